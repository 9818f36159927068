package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Mailflow/internal/domain"
)

// SettingsRepo — репозиторий настроек выполнения.
//
// Настройки — одна строка (id = 1). Движок читает снимок один раз в
// начале цикла, поэтому изменение настроек действует со следующего цикла.
type SettingsRepo struct {
	pool *pgxpool.Pool
}

// NewSettingsRepo создаёт новый SettingsRepo.
func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

// Load возвращает текущие настройки. Если строка отсутствует
// (свежая установка), возвращаются значения по умолчанию.
func (r *SettingsRepo) Load(ctx context.Context) (*domain.Settings, error) {
	var s domain.Settings
	err := r.pool.QueryRow(ctx, `
		SELECT fetch_batch_size_per_process, max_concurrent_processes,
		       retry_failed_jobs, default_retry_delay_sec,
		       enable_flow_parallelism, enable_tracking,
		       max_daily_emails_per_customer, process_webhook_in_process
		FROM settings WHERE id = 1
	`).Scan(
		&s.FetchBatchSizePerProcess,
		&s.MaxConcurrentProcesses,
		&s.RetryFailedJobs,
		&s.DefaultRetryDelaySec,
		&s.EnableFlowParallelism,
		&s.EnableTracking,
		&s.MaxDailyEmailsPerCustomer,
		&s.ProcessWebhookInProcess,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		defaults := domain.DefaultSettings()
		return &defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan settings: %w", err)
	}
	return &s, nil
}

// Save сохраняет настройки (upsert единственной строки).
func (r *SettingsRepo) Save(ctx context.Context, s *domain.Settings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (id, fetch_batch_size_per_process, max_concurrent_processes,
		                      retry_failed_jobs, default_retry_delay_sec,
		                      enable_flow_parallelism, enable_tracking,
		                      max_daily_emails_per_customer, process_webhook_in_process)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			fetch_batch_size_per_process = EXCLUDED.fetch_batch_size_per_process,
			max_concurrent_processes = EXCLUDED.max_concurrent_processes,
			retry_failed_jobs = EXCLUDED.retry_failed_jobs,
			default_retry_delay_sec = EXCLUDED.default_retry_delay_sec,
			enable_flow_parallelism = EXCLUDED.enable_flow_parallelism,
			enable_tracking = EXCLUDED.enable_tracking,
			max_daily_emails_per_customer = EXCLUDED.max_daily_emails_per_customer,
			process_webhook_in_process = EXCLUDED.process_webhook_in_process
	`,
		s.FetchBatchSizePerProcess,
		s.MaxConcurrentProcesses,
		s.RetryFailedJobs,
		s.DefaultRetryDelaySec,
		s.EnableFlowParallelism,
		s.EnableTracking,
		s.MaxDailyEmailsPerCustomer,
		s.ProcessWebhookInProcess,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
