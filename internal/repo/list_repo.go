package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Mailflow/internal/domain"
)

// ListRepo — репозиторий списков подписчиков.
type ListRepo struct {
	pool *pgxpool.Pool
}

// NewListRepo создаёт новый ListRepo.
func NewListRepo(pool *pgxpool.Pool) *ListRepo {
	return &ListRepo{pool: pool}
}

// Create создаёт новый список.
func (r *ListRepo) Create(ctx context.Context, list *domain.List) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lists (id, website_id, name, subscribers, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		list.ID,
		list.WebsiteID,
		list.Name,
		list.Subscribers,
		list.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert list: %w", err)
	}
	return nil
}

// GetByID возвращает список по ID.
func (r *ListRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.List, error) {
	var l domain.List
	err := r.pool.QueryRow(ctx, `
		SELECT id, website_id, name, subscribers, created_at
		FROM lists WHERE id = $1
	`, id).Scan(&l.ID, &l.WebsiteID, &l.Name, &l.Subscribers, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan list: %w", err)
	}
	return &l, nil
}

// List возвращает списки сайта.
func (r *ListRepo) List(ctx context.Context, websiteID uuid.UUID) ([]domain.List, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, website_id, name, subscribers, created_at
		FROM lists
		WHERE website_id = $1
		ORDER BY created_at DESC
	`, websiteID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	var lists []domain.List
	for rows.Next() {
		var l domain.List
		if err := rows.Scan(&l.ID, &l.WebsiteID, &l.Name, &l.Subscribers, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// Delete удаляет список. Контакты списка не удаляются — их list_id
// обнуляется каскадом схемы.
func (r *ListRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM lists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
