package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Mailflow/internal/domain"
)

// ContactRepo — репозиторий контактов (подписчиков).
//
// Перемещение между списками и удаление меняют счётчики списков и
// глобальную статистику в одной транзакции с самим контактом.
type ContactRepo struct {
	pool *pgxpool.Pool
}

// NewContactRepo создаёт новый ContactRepo.
func NewContactRepo(pool *pgxpool.Pool) *ContactRepo {
	return &ContactRepo{pool: pool}
}

const contactColumns = `
	id, website_id, list_id, email, name, attributes, status, created_at
`

// Create создаёт контакт и инкрементирует счётчики подписчиков.
func (r *ContactRepo) Create(ctx context.Context, contact *domain.Contact) error {
	attrsJSON, err := json.Marshal(contact.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO contacts (id, website_id, list_id, email, name, attributes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		contact.ID,
		contact.WebsiteID,
		contact.ListID,
		contact.Email,
		contact.Name,
		attrsJSON,
		contact.Status,
		contact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}

	if contact.ListID != nil {
		if err := incrListSubscribers(ctx, tx, *contact.ListID, 1); err != nil {
			return err
		}
	}
	if err := incrGlobalSubscribers(ctx, tx, 1); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID возвращает контакт по ID.
func (r *ContactRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	return r.scanContact(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail возвращает контакт по email в рамках сайта.
func (r *ContactRepo) GetByEmail(ctx context.Context, websiteID uuid.UUID, email string) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE website_id = $1 AND email = $2`
	return r.scanContact(r.pool.QueryRow(ctx, query, websiteID, email))
}

// List возвращает контакты сайта, новые первыми.
func (r *ContactRepo) List(ctx context.Context, websiteID uuid.UUID) ([]domain.Contact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE website_id = $1
		ORDER BY created_at DESC
	`, websiteID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		c, err := r.scanContactFromRows(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

// MoveToList переносит контакт в целевой список: декремент старого
// списка, инкремент нового и смена list_id — одной транзакцией.
// Отсутствующий целевой список — ErrNotFound.
func (r *ContactRepo) MoveToList(ctx context.Context, contactID, targetListID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	oldListID, err := lockContactListID(ctx, tx, contactID)
	if err != nil {
		return err
	}
	if oldListID != nil && *oldListID == targetListID {
		// Контакт уже в целевом списке.
		return tx.Commit(ctx)
	}

	if err := incrListSubscribers(ctx, tx, targetListID, 1); err != nil {
		return err
	}
	if oldListID != nil {
		if err := incrListSubscribers(ctx, tx, *oldListID, -1); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `UPDATE contacts SET list_id = $2 WHERE id = $1`, contactID, targetListID)
	if err != nil {
		return fmt.Errorf("move contact: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RemoveFromList убирает контакт из его текущего списка.
// Контакт без списка — no-op.
func (r *ContactRepo) RemoveFromList(ctx context.Context, contactID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	oldListID, err := lockContactListID(ctx, tx, contactID)
	if err != nil {
		return err
	}
	if oldListID == nil {
		return tx.Commit(ctx)
	}

	if err := incrListSubscribers(ctx, tx, *oldListID, -1); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `UPDATE contacts SET list_id = NULL WHERE id = $1`, contactID)
	if err != nil {
		return fmt.Errorf("remove contact from list: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SoftDelete помечает контакт удалённым, убирает его из списка и
// декрементирует глобальный счётчик подписчиков. Запись сохраняется
// для истории доставок.
func (r *ContactRepo) SoftDelete(ctx context.Context, contactID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	oldListID, err := lockContactListID(ctx, tx, contactID)
	if err != nil {
		return err
	}

	result, err := tx.Exec(ctx, `
		UPDATE contacts SET status = 'deleted', list_id = NULL
		WHERE id = $1 AND status <> 'deleted'
	`, contactID)
	if err != nil {
		return fmt.Errorf("soft delete contact: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Уже удалён — повторное выполнение шага не двигает счётчики.
		return tx.Commit(ctx)
	}

	if oldListID != nil {
		if err := incrListSubscribers(ctx, tx, *oldListID, -1); err != nil {
			return err
		}
	}
	if err := incrGlobalSubscribers(ctx, tx, -1); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Helpers ---

// lockContactListID читает list_id контакта с блокировкой строки,
// чтобы конкурентные переносы не потеряли декремент счётчика.
func lockContactListID(ctx context.Context, tx pgx.Tx, contactID uuid.UUID) (*uuid.UUID, error) {
	var listID *uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT list_id FROM contacts WHERE id = $1 FOR UPDATE
	`, contactID).Scan(&listID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock contact: %w", err)
	}
	return listID, nil
}

func incrListSubscribers(ctx context.Context, tx pgx.Tx, listID uuid.UUID, delta int) error {
	result, err := tx.Exec(ctx, `
		UPDATE lists SET subscribers = subscribers + $2 WHERE id = $1
	`, listID, delta)
	if err != nil {
		return fmt.Errorf("incr list subscribers: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func incrGlobalSubscribers(ctx context.Context, tx pgx.Tx, delta int) error {
	_, err := tx.Exec(ctx, `
		UPDATE global_stats SET total_subscribers = total_subscribers + $1
	`, delta)
	if err != nil {
		return fmt.Errorf("incr global subscribers: %w", err)
	}
	return nil
}

func (r *ContactRepo) scanContact(row pgx.Row) (*domain.Contact, error) {
	var c domain.Contact
	var name *string
	var attrsJSON []byte

	err := row.Scan(
		&c.ID,
		&c.WebsiteID,
		&c.ListID,
		&c.Email,
		&name,
		&attrsJSON,
		&c.Status,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan contact: %w", err)
	}

	if name != nil {
		c.Name = *name
	}
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &c.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return &c, nil
}

func (r *ContactRepo) scanContactFromRows(rows pgx.Rows) (*domain.Contact, error) {
	var c domain.Contact
	var name *string
	var attrsJSON []byte

	err := rows.Scan(
		&c.ID,
		&c.WebsiteID,
		&c.ListID,
		&c.Email,
		&name,
		&attrsJSON,
		&c.Status,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan contact: %w", err)
	}

	if name != nil {
		c.Name = *name
	}
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &c.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return &c, nil
}
