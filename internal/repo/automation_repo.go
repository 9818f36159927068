package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Mailflow/internal/domain"
)

// AutomationRepo — репозиторий активных автоматизаций контактов.
//
// Здесь живут обе критичные для движка операции:
//   - ListDue — селектор due-set (только чтение, дёшево и повторяемо);
//   - Claim — атомарный compare-and-swap аренды, единственная точка
//     взаимного исключения между воркерами.
type AutomationRepo struct {
	pool *pgxpool.Pool
}

// NewAutomationRepo создаёт новый AutomationRepo.
func NewAutomationRepo(pool *pgxpool.Pool) *AutomationRepo {
	return &AutomationRepo{pool: pool}
}

const automationColumns = `
	contact_id, flow_id, flow_version, step_index, status, next_step_at,
	attempts, claimed_by, claim_expires_at, last_error, enrolled_at, updated_at
`

// Create подписывает контакт на flow.
// Повторная подписка на тот же flow — ErrAlreadyExists.
func (r *AutomationRepo) Create(ctx context.Context, a *domain.Automation) error {
	query := `
		INSERT INTO automations (contact_id, flow_id, flow_version, step_index, status,
		                         next_step_at, attempts, enrolled_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (contact_id, flow_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		a.ContactID,
		a.FlowID,
		a.FlowVersion,
		a.StepIndex,
		a.Status,
		a.NextStepAt,
		a.Attempts,
		a.EnrolledAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert automation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Get возвращает автоматизацию по ключу (contact_id, flow_id).
func (r *AutomationRepo) Get(ctx context.Context, contactID, flowID uuid.UUID) (*domain.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE contact_id = $1 AND flow_id = $2`
	return r.scanAutomation(r.pool.QueryRow(ctx, query, contactID, flowID))
}

// ListDue возвращает до limit автоматизаций, готовых к выполнению шага.
//
// Выбираются только active с наступившим next_step_at, без живой аренды,
// в порядке старейшего due — чтобы ограничить худший случай просрочки.
// Деактивированные flows не выполняются. Только чтение: захват — отдельный
// шаг (Claim), чтобы чтение оставалось дешёвым и повторяемым.
func (r *AutomationRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Automation, error) {
	query := `
		SELECT ` + qualifyColumns("a", automationColumns) + `
		FROM automations a
		JOIN flows f ON f.id = a.flow_id AND f.is_active = true
		WHERE a.status IN ('active', 'waiting')
		  AND a.next_step_at <= $1
		  AND (a.claimed_by IS NULL OR a.claim_expires_at < $1)
		ORDER BY a.next_step_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due automations: %w", err)
	}
	defer rows.Close()

	var automations []domain.Automation
	for rows.Next() {
		a, err := r.scanAutomationFromRows(rows)
		if err != nil {
			return nil, err
		}
		automations = append(automations, *a)
	}
	return automations, rows.Err()
}

// Claim атомарно захватывает автоматизацию для воркера.
//
// Единственное условное обновление (CAS на claimed_by/claim_expires_at),
// не read-then-write: захват успешен, только если аренда свободна или
// истекла. Проигрыш гонки — ErrClaimLost; это ожидаемо и не является
// ошибкой, контакт просто пропускается в этом цикле.
//
// Условие next_step_at <= now входит в CAS: событие подписки из MQ
// доставляется минимум один раз, и повторная доставка не должна
// выполнить будущий шаг раньше срока.
func (r *AutomationRepo) Claim(ctx context.Context, contactID, flowID uuid.UUID, workerID string, leaseFor time.Duration) (*domain.Automation, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(leaseFor)

	query := `
		UPDATE automations
		SET claimed_by = $3, claim_expires_at = $4, updated_at = $5
		WHERE contact_id = $1 AND flow_id = $2
		  AND status IN ('active', 'waiting')
		  AND next_step_at <= $5
		  AND (claimed_by IS NULL OR claim_expires_at < $5)
		RETURNING ` + automationColumns

	a, err := r.scanAutomation(r.pool.QueryRow(ctx, query, contactID, flowID, workerID, expiresAt, now))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrClaimLost
	}
	if err != nil {
		return nil, fmt.Errorf("claim automation: %w", err)
	}
	return a, nil
}

// Release снимает аренду после фиксации результата шага.
// После истечения аренды — no-op: автоматизацией может владеть другой воркер.
func (r *AutomationRepo) Release(ctx context.Context, contactID, flowID uuid.UUID, workerID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE automations
		SET claimed_by = NULL, claim_expires_at = NULL
		WHERE contact_id = $1 AND flow_id = $2 AND claimed_by = $3
	`, contactID, flowID, workerID)
	if err != nil {
		return fmt.Errorf("release automation: %w", err)
	}
	return nil
}

// CommitAdvance фиксирует новый курсор/статус и снимает аренду одним
// обновлением — крах между ними невозможен. Условие claimed_by = workerID
// защищает от двойного продвижения: если аренда истекла и её перехватил
// другой воркер, обновление не затронет строк (ErrClaimLost).
func (r *AutomationRepo) CommitAdvance(ctx context.Context, a *domain.Automation, workerID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE automations
		SET flow_version = $4, step_index = $5, status = $6, next_step_at = $7,
		    attempts = $8, last_error = $9, updated_at = $10,
		    claimed_by = NULL, claim_expires_at = NULL
		WHERE contact_id = $1 AND flow_id = $2 AND claimed_by = $3
	`,
		a.ContactID,
		a.FlowID,
		workerID,
		a.FlowVersion,
		a.StepIndex,
		a.Status,
		a.NextStepAt,
		a.Attempts,
		nullString(a.LastError),
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("commit advance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

// ListByContact возвращает все автоматизации контакта.
func (r *AutomationRepo) ListByContact(ctx context.Context, contactID uuid.UUID) ([]domain.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE contact_id = $1 ORDER BY enrolled_at DESC`
	return r.list(ctx, query, contactID)
}

// ListByFlow возвращает все автоматизации flow.
func (r *AutomationRepo) ListByFlow(ctx context.Context, flowID uuid.UUID) ([]domain.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE flow_id = $1 ORDER BY enrolled_at DESC`
	return r.list(ctx, query, flowID)
}

// SetStatus переводит автоматизацию в указанный статус (пауза/возобновление
// оператором). Терминальные статусы не перезаписываются.
func (r *AutomationRepo) SetStatus(ctx context.Context, contactID, flowID uuid.UUID, status domain.AutomationStatus) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE automations
		SET status = $3, updated_at = NOW()
		WHERE contact_id = $1 AND flow_id = $2 AND status NOT IN ('completed', 'failed')
	`, contactID, flowID, status)
	if err != nil {
		return fmt.Errorf("set automation status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// --- Helpers ---

func (r *AutomationRepo) list(ctx context.Context, query string, arg any) ([]domain.Automation, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	defer rows.Close()

	var automations []domain.Automation
	for rows.Next() {
		a, err := r.scanAutomationFromRows(rows)
		if err != nil {
			return nil, err
		}
		automations = append(automations, *a)
	}
	return automations, rows.Err()
}

func (r *AutomationRepo) scanAutomation(row pgx.Row) (*domain.Automation, error) {
	var a domain.Automation
	var claimedBy, lastError *string

	err := row.Scan(
		&a.ContactID,
		&a.FlowID,
		&a.FlowVersion,
		&a.StepIndex,
		&a.Status,
		&a.NextStepAt,
		&a.Attempts,
		&claimedBy,
		&a.ClaimExpiresAt,
		&lastError,
		&a.EnrolledAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan automation: %w", err)
	}

	if claimedBy != nil {
		a.ClaimedBy = *claimedBy
	}
	if lastError != nil {
		a.LastError = *lastError
	}
	return &a, nil
}

func (r *AutomationRepo) scanAutomationFromRows(rows pgx.Rows) (*domain.Automation, error) {
	var a domain.Automation
	var claimedBy, lastError *string

	err := rows.Scan(
		&a.ContactID,
		&a.FlowID,
		&a.FlowVersion,
		&a.StepIndex,
		&a.Status,
		&a.NextStepAt,
		&a.Attempts,
		&claimedBy,
		&a.ClaimExpiresAt,
		&lastError,
		&a.EnrolledAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan automation: %w", err)
	}

	if claimedBy != nil {
		a.ClaimedBy = *claimedBy
	}
	if lastError != nil {
		a.LastError = *lastError
	}
	return &a, nil
}
