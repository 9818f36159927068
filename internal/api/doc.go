// Package api реализует HTTP API управления Mailflow.
//
// API — внешняя поверхность системы: flows и их версии, шаблоны писем,
// списки и контакты, подписки контактов на flows, журнал доставки,
// настройки выполнения и статистика.
//
// Выполнение шагов здесь не происходит — API только мутирует состояние
// в Postgres и подталкивает движок через RabbitMQ (best-effort).
package api
