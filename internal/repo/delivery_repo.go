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

// DeliveryRepo — репозиторий долговечной очереди доставки.
//
// Очередь переживает перезапуск процесса: job создаётся при выполнении
// шага и живёт в БД до терминального статуса. Дедупликация — уникальный
// индекс по idempotency_key.
type DeliveryRepo struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepo создаёт новый DeliveryRepo.
func NewDeliveryRepo(pool *pgxpool.Pool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

const deliveryColumns = `
	id, kind, contact_id, flow_id, flow_version, step_index, customer_id,
	status, attempts, max_attempts, next_attempt_at, last_error, message_id,
	idempotency_key, email_payload, webhook_payload, created_at, updated_at
`

// Enqueue ставит job в очередь. Возвращает false, если job с таким
// idempotency_key уже существует — повторное выполнение шага после
// истёкшей аренды не создаёт дубликат доставки.
func (r *DeliveryRepo) Enqueue(ctx context.Context, job *domain.DeliveryJob) (bool, error) {
	emailJSON, webhookJSON, err := marshalPayloads(job)
	if err != nil {
		return false, err
	}

	result, err := r.pool.Exec(ctx, `
		INSERT INTO delivery_jobs (id, kind, contact_id, flow_id, flow_version, step_index,
		                           customer_id, status, attempts, max_attempts, next_attempt_at,
		                           idempotency_key, email_payload, webhook_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (idempotency_key) DO NOTHING
	`,
		job.ID,
		job.Kind,
		job.ContactID,
		job.FlowID,
		job.FlowVersion,
		job.StepIndex,
		job.CustomerID,
		job.Status,
		job.Attempts,
		job.MaxAttempts,
		job.NextAttemptAt,
		job.IdempotencyKey,
		emailJSON,
		webhookJSON,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("enqueue delivery job: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// GetByID возвращает job по ID.
func (r *DeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeliveryJob, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_jobs WHERE id = $1`
	return r.scanJob(r.pool.QueryRow(ctx, query, id))
}

// ListDue возвращает до limit jobs, готовых к попытке доставки.
func (r *DeliveryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_jobs
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY next_attempt_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due delivery jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.DeliveryJob
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ClaimPending атомарно переводит job из pending в processing и
// инкрементирует счётчик попыток. Проигрыш гонки между воркерами
// доставки — ErrClaimLost.
//
// Условие next_attempt_at <= now входит в CAS: повторная доставка
// события из MQ не обходит backoff между попытками.
func (r *DeliveryRepo) ClaimPending(ctx context.Context, id uuid.UUID) (*domain.DeliveryJob, error) {
	query := `
		UPDATE delivery_jobs
		SET status = 'processing', attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND next_attempt_at <= NOW()
		RETURNING ` + deliveryColumns

	job, err := r.scanJob(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrClaimLost
	}
	if err != nil {
		return nil, fmt.Errorf("claim delivery job: %w", err)
	}
	return job, nil
}

// Update сохраняет результат попытки доставки: статус, время следующей
// попытки, message_id провайдера и последнюю ошибку.
func (r *DeliveryRepo) Update(ctx context.Context, job *domain.DeliveryJob) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE delivery_jobs
		SET status = $2, attempts = $3, next_attempt_at = $4,
		    last_error = $5, message_id = $6, updated_at = $7
		WHERE id = $1
	`,
		job.ID,
		job.Status,
		job.Attempts,
		job.NextAttemptAt,
		nullString(job.LastError),
		nullString(job.MessageID),
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update delivery job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountEmailsEnqueuedSince считает email-jobs клиента, созданные после
// указанного момента. Используется для дневного лимита отправки:
// считаются все созданные jobs, а не только доставленные — лимит
// ограничивает исходящий поток, а не успехи.
func (r *DeliveryRepo) CountEmailsEnqueuedSince(ctx context.Context, customerID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM delivery_jobs
		WHERE customer_id = $1 AND kind = 'email' AND created_at >= $2
	`, customerID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count emails enqueued: %w", err)
	}
	return count, nil
}

// ListByContact возвращает журнал доставок контакта, новые первыми.
func (r *DeliveryRepo) ListByContact(ctx context.Context, contactID uuid.UUID, limit int) ([]domain.DeliveryJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_jobs
		WHERE contact_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, contactID, limit)
	if err != nil {
		return nil, fmt.Errorf("list delivery jobs by contact: %w", err)
	}
	defer rows.Close()

	var jobs []domain.DeliveryJob
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListByStatus возвращает jobs в указанном статусе (обзор для оператора).
func (r *DeliveryRepo) ListByStatus(ctx context.Context, status domain.DeliveryStatus, limit int) ([]domain.DeliveryJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_jobs
		WHERE status = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list delivery jobs by status: %w", err)
	}
	defer rows.Close()

	var jobs []domain.DeliveryJob
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// --- Helpers ---

func marshalPayloads(job *domain.DeliveryJob) (emailJSON, webhookJSON []byte, err error) {
	if job.Email != nil {
		emailJSON, err = json.Marshal(job.Email)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal email payload: %w", err)
		}
	}
	if job.Webhook != nil {
		webhookJSON, err = json.Marshal(job.Webhook)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal webhook payload: %w", err)
		}
	}
	return emailJSON, webhookJSON, nil
}

func (r *DeliveryRepo) scanJob(row pgx.Row) (*domain.DeliveryJob, error) {
	job, err := scanDeliveryJob(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

func (r *DeliveryRepo) scanJobFromRows(rows pgx.Rows) (*domain.DeliveryJob, error) {
	return scanDeliveryJob(rows.Scan)
}

func scanDeliveryJob(scan func(dest ...any) error) (*domain.DeliveryJob, error) {
	var job domain.DeliveryJob
	var lastError, messageID *string
	var emailJSON, webhookJSON []byte

	err := scan(
		&job.ID,
		&job.Kind,
		&job.ContactID,
		&job.FlowID,
		&job.FlowVersion,
		&job.StepIndex,
		&job.CustomerID,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.NextAttemptAt,
		&lastError,
		&messageID,
		&job.IdempotencyKey,
		&emailJSON,
		&webhookJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan delivery job: %w", err)
	}

	if lastError != nil {
		job.LastError = *lastError
	}
	if messageID != nil {
		job.MessageID = *messageID
	}
	if len(emailJSON) > 0 {
		job.Email = &domain.EmailPayload{}
		if err := json.Unmarshal(emailJSON, job.Email); err != nil {
			return nil, fmt.Errorf("unmarshal email payload: %w", err)
		}
	}
	if len(webhookJSON) > 0 {
		job.Webhook = &domain.WebhookPayload{}
		if err := json.Unmarshal(webhookJSON, job.Webhook); err != nil {
			return nil, fmt.Errorf("unmarshal webhook payload: %w", err)
		}
	}
	return &job, nil
}
