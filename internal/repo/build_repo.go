package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Pipewright/internal/domain"
)

// BuildRepo — репозиторий для работы с builds.
type BuildRepo struct {
	pool *pgxpool.Pool
}

// NewBuildRepo создаёт новый BuildRepo.
func NewBuildRepo(pool *pgxpool.Pool) *BuildRepo {
	return &BuildRepo{pool: pool}
}

// BuildFilter — параметры фильтрации builds.
type BuildFilter struct {
	Status domain.BuildStatus
	Limit  int
	Offset int
}

const buildColumns = `id, name, config, status, script, issues, error, started_at, finished_at, created_at`

// Create создаёт новую сборку.
func (r *BuildRepo) Create(ctx context.Context, b *domain.Build) error {
	configJSON, err := json.Marshal(b.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query := `
		INSERT INTO builds (id, name, config, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.pool.Exec(ctx, query, b.ID, b.Name, configJSON, b.Status, b.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("build %s: %w", b.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

// GetByID возвращает сборку по ID.
func (r *BuildRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Build, error) {
	query := `SELECT ` + buildColumns + ` FROM builds WHERE id = $1`
	return scanBuild(r.pool.QueryRow(ctx, query, id))
}

// List возвращает сборки, новые первыми.
func (r *BuildRepo) List(ctx context.Context, filter BuildFilter) ([]domain.Build, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `
		SELECT ` + buildColumns + `
		FROM builds
		WHERE ($1::text IS NULL OR status = $1::build_status)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, nullString(string(filter.Status)), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	return collectBuilds(rows)
}

// ListQueued возвращает сборки в статусе QUEUED, старые первыми.
func (r *BuildRepo) ListQueued(ctx context.Context, limit int) ([]domain.Build, error) {
	query := `
		SELECT ` + buildColumns + `
		FROM builds
		WHERE status = 'QUEUED'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued builds: %w", err)
	}
	return collectBuilds(rows)
}

// Claim атомарно переводит сборку из QUEUED в RUNNING.
// ErrInvalidState — сборку уже взял другой воркер или она завершена.
func (r *BuildRepo) Claim(ctx context.Context, b *domain.Build) error {
	query := `
		UPDATE builds
		SET status = 'RUNNING', started_at = $2
		WHERE id = $1 AND status = 'QUEUED'
	`
	result, err := r.pool.Exec(ctx, query, b.ID, b.StartedAt)
	if err != nil {
		return fmt.Errorf("claim build: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// Update сохраняет результат сборки.
func (r *BuildRepo) Update(ctx context.Context, b *domain.Build) error {
	issuesJSON, err := json.Marshal(b.Issues)
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}

	query := `
		UPDATE builds
		SET status = $2, script = $3, issues = $4, error = $5, started_at = $6, finished_at = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		b.ID,
		b.Status,
		nullString(b.Script),
		issuesJSON,
		nullString(b.Error),
		b.StartedAt,
		b.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update build: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectBuilds(rows pgx.Rows) ([]domain.Build, error) {
	defer rows.Close()

	var builds []domain.Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *b)
	}
	return builds, rows.Err()
}

// scanBuild сканирует одну строку в Build. pgx.Rows тоже реализует pgx.Row.
func scanBuild(row pgx.Row) (*domain.Build, error) {
	var b domain.Build
	var configJSON, issuesJSON []byte
	var script, buildErr *string

	err := row.Scan(
		&b.ID,
		&b.Name,
		&configJSON,
		&b.Status,
		&script,
		&issuesJSON,
		&buildErr,
		&b.StartedAt,
		&b.FinishedAt,
		&b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan build: %w", err)
	}

	if err := json.Unmarshal(configJSON, &b.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if issuesJSON != nil {
		if err := json.Unmarshal(issuesJSON, &b.Issues); err != nil {
			return nil, fmt.Errorf("unmarshal issues: %w", err)
		}
	}
	if script != nil {
		b.Script = *script
	}
	if buildErr != nil {
		b.Error = *buildErr
	}
	return &b, nil
}
