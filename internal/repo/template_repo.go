package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Pipewright/internal/catalog"
	"github.com/shaiso/Pipewright/internal/domain"
)

// TemplateRecord — шаблон в том виде, в каком он хранится в БД.
type TemplateRecord struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TemplateRepo — репозиторий шаблонов и фрагментов.
//
// Хранит исходный HCL текст; разбор выполняется при чтении через
// catalog.DecodeTemplate. Реализует catalog.Source.
type TemplateRepo struct {
	pool *pgxpool.Pool
}

// NewTemplateRepo создаёт новый TemplateRepo.
func NewTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

var _ catalog.Source = (*TemplateRepo)(nil)

// Save сохраняет определение шаблона name (upsert).
// Перед записью источник разбирается: сломанный шаблон не сохраняется.
func (r *TemplateRepo) Save(ctx context.Context, name, source string) (*domain.TaskTemplate, error) {
	tpl, err := catalog.DecodeTemplate(name, []byte(source))
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO templates (name, description, source, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description, source = EXCLUDED.source, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, tpl.Name, tpl.Description, source); err != nil {
		return nil, fmt.Errorf("upsert template: %w", err)
	}
	return tpl, nil
}

// SaveFragment сохраняет вспомогательный фрагмент (upsert).
func (r *TemplateRepo) SaveFragment(ctx context.Context, name, body string) error {
	query := `
		INSERT INTO fragments (name, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, name, body); err != nil {
		return fmt.Errorf("upsert fragment: %w", err)
	}
	return nil
}

// Get возвращает запись шаблона.
func (r *TemplateRepo) Get(ctx context.Context, name string) (*TemplateRecord, error) {
	query := `
		SELECT name, description, source, updated_at
		FROM templates
		WHERE name = $1
	`
	var rec TemplateRecord
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&rec.Name,
		&rec.Description,
		&rec.Source,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &rec, nil
}

// Delete удаляет шаблон.
func (r *TemplateRepo) Delete(ctx context.Context, name string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM templates WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Template реализует catalog.Source.
func (r *TemplateRepo) Template(ctx context.Context, name string) (*domain.TaskTemplate, error) {
	rec, err := r.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, &catalog.TemplateError{
			Template: name,
			Source:   "db",
			Message:  "not found",
			Err:      catalog.ErrTemplateNotFound,
		}
	}
	if err != nil {
		return nil, err
	}
	return catalog.DecodeTemplate(rec.Name, []byte(rec.Source))
}

// Fragment реализует catalog.Source.
func (r *TemplateRepo) Fragment(ctx context.Context, name string) (string, bool, error) {
	var body string
	err := r.pool.QueryRow(ctx, `SELECT body FROM fragments WHERE name = $1`, name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get fragment: %w", err)
	}
	return body, true, nil
}

// Names реализует catalog.Source.
func (r *TemplateRepo) Names(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan template name: %w", err)
	}
	return names, nil
}
