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

// TemplateRepo — репозиторий email-шаблонов.
type TemplateRepo struct {
	pool *pgxpool.Pool
}

// NewTemplateRepo создаёт новый TemplateRepo.
func NewTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

// Create создаёт новый шаблон.
func (r *TemplateRepo) Create(ctx context.Context, tpl *domain.Template) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO templates (id, name, subject, body_html, from_email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		tpl.ID,
		tpl.Name,
		tpl.Subject,
		tpl.BodyHTML,
		tpl.FromEmail,
		tpl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetByID возвращает шаблон по ID.
func (r *TemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	var t domain.Template
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, subject, body_html, from_email, created_at
		FROM templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Subject, &t.BodyHTML, &t.FromEmail, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}
	return &t, nil
}

// List возвращает все шаблоны.
func (r *TemplateRepo) List(ctx context.Context) ([]domain.Template, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, subject, body_html, from_email, created_at
		FROM templates
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		var t domain.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Subject, &t.BodyHTML, &t.FromEmail, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// Update обновляет содержимое шаблона.
func (r *TemplateRepo) Update(ctx context.Context, tpl *domain.Template) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE templates SET name = $2, subject = $3, body_html = $4, from_email = $5
		WHERE id = $1
	`, tpl.ID, tpl.Name, tpl.Subject, tpl.BodyHTML, tpl.FromEmail)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет шаблон.
func (r *TemplateRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
