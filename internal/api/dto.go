package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Pipewright/internal/domain"
)

// Template DTOs

// SaveTemplateRequest — запрос на сохранение шаблона.
// Source — HCL с одним блоком template (и, возможно, fragment).
type SaveTemplateRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// SaveFragmentRequest — тело фрагмента для точки включения.
type SaveFragmentRequest struct {
	Body string `json:"body"`
}

// TemplateSummary — строка листинга шаблонов.
type TemplateSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Build DTOs

// BuildRequest — вход сборки для POST /builds и POST /builds/check.
type BuildRequest struct {
	Name     string                       `json:"name"`
	Pipeline string                       `json:"pipeline"`
	Sources  map[string]domain.SourceDef  `json:"sources,omitempty"`
	Params   map[string]map[string]string `json:"params,omitempty"`

	NoDependency bool `json:"no_dependency,omitempty"`
}

// Config возвращает сохраняемый вход сборки.
func (r BuildRequest) Config() domain.BuildConfig {
	return domain.BuildConfig{
		Pipeline: r.Pipeline,
		Sources:  r.Sources,
		Params:   r.Params,

		NoDependency: r.NoDependency,
	}
}

// BuildResponse — ответ со сборкой. Скрипт отдаётся отдельно (/script).
type BuildResponse struct {
	ID         uuid.UUID          `json:"id"`
	Name       string             `json:"name"`
	Config     domain.BuildConfig `json:"config"`
	Status     domain.BuildStatus `json:"status"`
	Issues     []domain.Issue     `json:"issues,omitempty"`
	Error      string             `json:"error,omitempty"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// BuildFromDomain конвертирует domain.Build в BuildResponse.
func BuildFromDomain(b domain.Build) BuildResponse {
	return BuildResponse{
		ID:         b.ID,
		Name:       b.Name,
		Config:     b.Config,
		Status:     b.Status,
		Issues:     b.Issues,
		Error:      b.Error,
		StartedAt:  b.StartedAt,
		FinishedAt: b.FinishedAt,
		CreatedAt:  b.CreatedAt,
	}
}

// CheckResponse — результат синхронной проверки.
type CheckResponse struct {
	Valid    bool           `json:"valid"`
	Topology string         `json:"topology,omitempty"`
	Nodes    int            `json:"nodes"`
	Forks    int            `json:"forks"`
	Issues   []domain.Issue `json:"issues,omitempty"`
	Error    string         `json:"error,omitempty"`
}
