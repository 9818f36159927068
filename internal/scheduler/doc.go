// Package scheduler запускает циклы обработки движка по cron-расписанию.
//
// По умолчанию Engine сам опрашивает БД с фиксированным интервалом.
// Scheduler — альтернативный триггер для установок, где циклы должны
// идти по календарю: выражение задаётся переменной CYCLE_CRON.
package scheduler
