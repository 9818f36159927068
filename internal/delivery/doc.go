// Package delivery выполняет задания долговечной очереди доставки.
//
// # Обзор
//
// Worker — stateless компонент системы Mailflow, который доставляет
// письма и webhook-вызовы, поставленные движком в очередь. Worker
// отвечает за:
//
//   - Получение заданий из очереди RabbitMQ (event-driven)
//   - Периодическую проверку pending заданий в БД (polling fallback)
//   - Отправку письма через SMTP или вызов webhook
//   - Retry с exponential backoff при временных ошибках
//   - Классификацию постоянных ошибок (bounce, 4xx)
//
// Workers масштабируются горизонтально — переход pending → processing
// атомарен, задание достаётся ровно одному экземпляру.
//
// # Жизненный цикл задания
//
//	pending → processing → sent
//	                     → pending (retry, остались попытки)
//	                     → failed  (попытки исчерпаны или постоянная ошибка)
//	                     → bounced (адрес отвергнут)
//
// Терминальное задание не удаляется — остаётся записью журнала доставки.
//
// # Ошибки
//
// Пакет различает два класса ошибок доставки:
//   - Временные (сеть, SMTP 4xx, HTTP 5xx) — retry с backoff
//   - Постоянные (bounce, HTTP 4xx) — терминальный статус сразу
//
// Настройка retry_failed_jobs=false отключает повторы целиком:
// любая ошибка терминальна.
package delivery
