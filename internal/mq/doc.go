// Package mq — инфраструктура обмена сообщениями через RabbitMQ.
//
// # Обзор
//
// Пакет предоставляет:
//   - Connection — соединение с автоматическим reconnect
//   - Publisher — публикация доменных событий
//   - Consumer — потребление с ручным ack/nack
//   - SetupTopology — объявление обменников и очередей
//
// # Роль очередей
//
// Очереди в Mailflow — сигнал малой задержки, не источник истины.
// Все факты живут в Postgres; события лишь будят потребителя раньше
// очередного polling-цикла. Потерянное событие не теряет работу —
// polling подхватит её из БД.
//
// # События
//
//   - automation.enrolled → automations.enrolled → Engine:
//     контакт подписан на flow, первый шаг выполняется немедленно
//   - delivery.queued → deliveries.queued → Delivery worker:
//     новое задание доставки поставлено в очередь
package mq
