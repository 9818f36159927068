package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Mailflow/internal/domain"
)

// StatsRepo — репозиторий глобальной статистики аккаунта.
//
// Как и счётчики flow, глобальные счётчики обновляются только дельтами.
type StatsRepo struct {
	pool *pgxpool.Pool
}

// NewStatsRepo создаёт новый StatsRepo.
func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

// Load возвращает глобальную статистику.
func (r *StatsRepo) Load(ctx context.Context) (*domain.GlobalStats, error) {
	var s domain.GlobalStats
	err := r.pool.QueryRow(ctx, `
		SELECT total_subscribers, total_emails_sent, total_webhooks_sent
		FROM global_stats WHERE id = 1
	`).Scan(&s.TotalSubscribers, &s.TotalEmailsSent, &s.TotalWebhooksSent)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.GlobalStats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan global stats: %w", err)
	}
	return &s, nil
}

// IncrEmailsSent прибавляет дельту к счётчику отправленных писем.
func (r *StatsRepo) IncrEmailsSent(ctx context.Context, delta int64) error {
	return r.incr(ctx, "total_emails_sent", delta)
}

// IncrWebhooksSent прибавляет дельту к счётчику отправленных вебхуков.
func (r *StatsRepo) IncrWebhooksSent(ctx context.Context, delta int64) error {
	return r.incr(ctx, "total_webhooks_sent", delta)
}

func (r *StatsRepo) incr(ctx context.Context, column string, delta int64) error {
	if delta == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE global_stats SET `+column+` = `+column+` + $1 WHERE id = 1`, delta)
	if err != nil {
		return fmt.Errorf("incr %s: %w", column, err)
	}
	return nil
}
