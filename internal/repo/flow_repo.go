package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Mailflow/internal/domain"
)

// FlowRepo — репозиторий для работы с flows и flow_versions.
type FlowRepo struct {
	pool *pgxpool.Pool
}

// NewFlowRepo создаёт новый FlowRepo.
func NewFlowRepo(pool *pgxpool.Pool) *FlowRepo {
	return &FlowRepo{pool: pool}
}

const flowColumns = `
	id, customer_id, website_id, name, is_active, current_version,
	stat_users_processed, stat_emails_sent, stat_webhooks_sent,
	stat_subscribers_moved, stat_subscribers_removed, stat_subscribers_deleted,
	stat_processing_millis_total, created_at
`

// --- Flow CRUD ---

// Create создаёт новый flow.
func (r *FlowRepo) Create(ctx context.Context, flow *domain.Flow) error {
	query := `
		INSERT INTO flows (id, customer_id, website_id, name, is_active, current_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		flow.ID,
		flow.CustomerID,
		flow.WebsiteID,
		flow.Name,
		flow.IsActive,
		flow.CurrentVersion,
		flow.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert flow: %w", err)
	}
	return nil
}

// GetByID возвращает flow по ID.
func (r *FlowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE id = $1`
	return r.scanFlow(r.pool.QueryRow(ctx, query, id))
}

// List возвращает список всех flows.
func (r *FlowRepo) List(ctx context.Context) ([]domain.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var flows []domain.Flow
	for rows.Next() {
		flow, err := r.scanFlowFromRows(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, *flow)
	}
	return flows, rows.Err()
}

// Update обновляет имя flow.
func (r *FlowRepo) Update(ctx context.Context, flow *domain.Flow) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE flows SET name = $2 WHERE id = $1
	`, flow.ID, flow.Name)
	if err != nil {
		return fmt.Errorf("update flow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive включает/выключает flow.
// Flow деактивируется вместо жёсткого удаления, пока контакты в процессе.
func (r *FlowRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE flows SET is_active = $2 WHERE id = $1
	`, id, active)
	if err != nil {
		return fmt.Errorf("set flow active: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Flow Versions ---

// CreateVersion создаёт новую версию шагов и делает её актуальной.
// Номер версии — автоинкремент; существующие автоматизации продолжают
// выполняться по своим закреплённым версиям.
func (r *FlowRepo) CreateVersion(ctx context.Context, flowID uuid.UUID, steps []domain.Step) (*domain.FlowVersion, error) {
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("marshal steps: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	version := &domain.FlowVersion{
		FlowID:    flowID,
		Steps:     steps,
		CreatedAt: time.Now().UTC(),
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO flow_versions (flow_id, version, steps, created_at)
		VALUES ($1, COALESCE((SELECT MAX(version) FROM flow_versions WHERE flow_id = $1), 0) + 1, $2, $3)
		RETURNING version
	`, flowID, stepsJSON, version.CreatedAt).Scan(&version.Version)
	if err != nil {
		return nil, fmt.Errorf("insert flow version: %w", err)
	}

	result, err := tx.Exec(ctx, `
		UPDATE flows SET current_version = $2 WHERE id = $1
	`, flowID, version.Version)
	if err != nil {
		return nil, fmt.Errorf("update current version: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return version, nil
}

// GetVersion возвращает конкретную версию шагов flow.
func (r *FlowRepo) GetVersion(ctx context.Context, flowID uuid.UUID, version int) (*domain.FlowVersion, error) {
	query := `
		SELECT flow_id, version, steps, created_at
		FROM flow_versions
		WHERE flow_id = $1 AND version = $2
	`
	return r.scanVersion(r.pool.QueryRow(ctx, query, flowID, version))
}

// GetCurrentVersion возвращает актуальную версию шагов flow.
func (r *FlowRepo) GetCurrentVersion(ctx context.Context, flowID uuid.UUID) (*domain.FlowVersion, error) {
	query := `
		SELECT v.flow_id, v.version, v.steps, v.created_at
		FROM flow_versions v
		JOIN flows f ON f.id = v.flow_id AND f.current_version = v.version
		WHERE v.flow_id = $1
	`
	return r.scanVersion(r.pool.QueryRow(ctx, query, flowID))
}

// ListVersions возвращает все версии flow.
func (r *FlowRepo) ListVersions(ctx context.Context, flowID uuid.UUID) ([]domain.FlowVersion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT flow_id, version, steps, created_at
		FROM flow_versions
		WHERE flow_id = $1
		ORDER BY version DESC
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("list flow versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.FlowVersion
	for rows.Next() {
		var v domain.FlowVersion
		var stepsJSON []byte
		if err := rows.Scan(&v.FlowID, &v.Version, &stepsJSON, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan flow version: %w", err)
		}
		if err := json.Unmarshal(stepsJSON, &v.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Stats ---

// IncrStats прибавляет дельту к счётчикам flow.
// Чисто аддитивное обновление — порядок применения конкурентными
// воркерами не влияет на итог.
func (r *FlowRepo) IncrStats(ctx context.Context, flowID uuid.UUID, delta domain.FlowStatsDelta) error {
	if delta.IsZero() {
		return nil
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE flows SET
			stat_users_processed = stat_users_processed + $2,
			stat_emails_sent = stat_emails_sent + $3,
			stat_webhooks_sent = stat_webhooks_sent + $4,
			stat_subscribers_moved = stat_subscribers_moved + $5,
			stat_subscribers_removed = stat_subscribers_removed + $6,
			stat_subscribers_deleted = stat_subscribers_deleted + $7,
			stat_processing_millis_total = stat_processing_millis_total + $8
		WHERE id = $1
	`,
		flowID,
		delta.UsersProcessed,
		delta.EmailsSent,
		delta.WebhooksSent,
		delta.SubscribersMoved,
		delta.SubscribersRemoved,
		delta.SubscribersDeleted,
		delta.ProcessingMillisTotal,
	)
	if err != nil {
		return fmt.Errorf("incr flow stats: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func (r *FlowRepo) scanFlow(row pgx.Row) (*domain.Flow, error) {
	var f domain.Flow
	err := row.Scan(
		&f.ID,
		&f.CustomerID,
		&f.WebsiteID,
		&f.Name,
		&f.IsActive,
		&f.CurrentVersion,
		&f.Stats.UsersProcessed,
		&f.Stats.EmailsSent,
		&f.Stats.WebhooksSent,
		&f.Stats.SubscribersMoved,
		&f.Stats.SubscribersRemoved,
		&f.Stats.SubscribersDeleted,
		&f.Stats.ProcessingMillisTotal,
		&f.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow: %w", err)
	}
	return &f, nil
}

func (r *FlowRepo) scanFlowFromRows(rows pgx.Rows) (*domain.Flow, error) {
	var f domain.Flow
	err := rows.Scan(
		&f.ID,
		&f.CustomerID,
		&f.WebsiteID,
		&f.Name,
		&f.IsActive,
		&f.CurrentVersion,
		&f.Stats.UsersProcessed,
		&f.Stats.EmailsSent,
		&f.Stats.WebhooksSent,
		&f.Stats.SubscribersMoved,
		&f.Stats.SubscribersRemoved,
		&f.Stats.SubscribersDeleted,
		&f.Stats.ProcessingMillisTotal,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan flow: %w", err)
	}
	return &f, nil
}

func (r *FlowRepo) scanVersion(row pgx.Row) (*domain.FlowVersion, error) {
	var v domain.FlowVersion
	var stepsJSON []byte

	err := row.Scan(&v.FlowID, &v.Version, &stepsJSON, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow version: %w", err)
	}

	if err := json.Unmarshal(stepsJSON, &v.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	return &v, nil
}
