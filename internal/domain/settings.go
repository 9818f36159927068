package domain

import "time"

// Settings — процессные настройки обработки (singleton).
//
// Движок читает настройки один раз в начале цикла обработки; снимок
// неизменяем в пределах цикла — изменения вступают в силу со следующего
// цикла, никогда посередине.
type Settings struct {
	// FetchBatchSizePerProcess — сколько контактов выбирает один воркер за цикл.
	FetchBatchSizePerProcess int `json:"fetch_batch_size_per_process"`

	// MaxConcurrentProcesses — предел параллелизма внутри воркера.
	MaxConcurrentProcesses int `json:"max_concurrent_processes"`

	// RetryFailedJobs — повторять ли упавшие задания доставки.
	RetryFailedJobs bool `json:"retry_failed_jobs"`

	// DefaultRetryDelaySec — задержка повтора шага по умолчанию, секунды.
	DefaultRetryDelaySec int `json:"default_retry_delay_sec"`

	// EnableFlowParallelism — обрабатывать ли контакты батча параллельно.
	// Выключено — воркер идёт по батчу последовательно.
	EnableFlowParallelism bool `json:"enable_flow_parallelism"`

	// EnableTracking — добавлять ли трекинг-пиксель в письма.
	EnableTracking bool `json:"enable_tracking"`

	// MaxDailyEmailsPerCustomer — дневной лимит писем на customer.
	MaxDailyEmailsPerCustomer int `json:"max_daily_emails_per_customer"`

	// ProcessWebhookInProcess — выполнять ли webhook синхронно в воркере.
	// Выключено — webhook уходит в очередь доставки, как письмо.
	ProcessWebhookInProcess bool `json:"process_webhook_in_process"`
}

// DefaultSettings возвращает настройки по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		FetchBatchSizePerProcess:  20,
		MaxConcurrentProcesses:    5,
		RetryFailedJobs:           true,
		DefaultRetryDelaySec:      60,
		EnableFlowParallelism:     false,
		EnableTracking:            true,
		MaxDailyEmailsPerCustomer: 1000,
		ProcessWebhookInProcess:   false,
	}
}

// DefaultRetryDelay возвращает задержку повтора шага как time.Duration.
func (s Settings) DefaultRetryDelay() time.Duration {
	return time.Duration(s.DefaultRetryDelaySec) * time.Second
}
