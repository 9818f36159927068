// Package cli реализует инструмент командной строки Mailflow.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Mailflow API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для управления flows, шаблонами, списками,
// контактами, подписками и настройками.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Mailflow API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	flows, err := client.ListFlows()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: mailflow flow list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - flow: list, create, show, activate, deactivate, versions, publish, stats, enroll
//   - template: list, create, show, update, delete
//   - contact: list, create, show, delete, move, unlist, automations, deliveries
//   - list: list, create, show, delete
//   - delivery: list, show
//   - settings: show, set
//   - stats
//
// Каждая группа создаётся через фабричную функцию (NewFlowCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
