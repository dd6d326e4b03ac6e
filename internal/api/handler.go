package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Pipewright/internal/domain"
	"github.com/shaiso/Pipewright/internal/engine"
	"github.com/shaiso/Pipewright/internal/repo"
	"github.com/shaiso/Pipewright/internal/telemetry"
)

// Catalog — чтение шаблонов с кэшем (catalog.Store).
type Catalog interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) (*domain.TaskTemplate, error)
	Forget(name string)
}

// TemplateStore — хранилище пользовательских шаблонов (repo.TemplateRepo).
type TemplateStore interface {
	Get(ctx context.Context, name string) (*repo.TemplateRecord, error)
	Save(ctx context.Context, name, source string) (*domain.TaskTemplate, error)
	Delete(ctx context.Context, name string) error
	SaveFragment(ctx context.Context, name, body string) error
}

// BuildStore — хранилище сборок (repo.BuildRepo).
type BuildStore interface {
	Create(ctx context.Context, b *domain.Build) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Build, error)
	List(ctx context.Context, filter repo.BuildFilter) ([]domain.Build, error)
}

// Assembler — сборщик pipeline (engine.Assembler).
type Assembler interface {
	Assemble(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// Publisher публикует build.requested и template.changed (mq.Publisher).
type Publisher interface {
	PublishBuildRequested(ctx context.Context, buildID uuid.UUID) error
	PublishTemplateChanged(ctx context.Context, name string) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	catalog   Catalog
	templates TemplateStore
	builds    BuildStore
	assembler Assembler
	publisher Publisher
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Catalog   Catalog
	Templates TemplateStore
	Builds    BuildStore
	Assembler Assembler

	// Publisher — опционально; без него сборки подхватывает polling воркера,
	// а кэш шаблонов воркеров не сбрасывается.
	Publisher Publisher

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		catalog:   cfg.Catalog,
		templates: cfg.Templates,
		builds:    cfg.Builds,
		assembler: cfg.Assembler,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
	}
}

// log возвращает логгер запроса (с request_id) или общий.
func (h *Handler) log(r *http.Request) *slog.Logger {
	return telemetry.FromContextOr(r.Context(), h.logger)
}

// templateChanged сбрасывает шаблон из локального кэша и сообщает
// воркерам. Ошибка публикации не фатальна: запись уже в БД.
func (h *Handler) templateChanged(r *http.Request, name string) {
	h.catalog.Forget(name)
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishTemplateChanged(r.Context(), name); err != nil {
		h.log(r).Warn("failed to publish template.changed", "template", name, "error", err)
	}
}
