package domain

import (
	"time"

	"github.com/google/uuid"
)

// BuildStatus — статус сборки pipeline.
//
// Жизненный цикл:
//
//	QUEUED → RUNNING → SUCCEEDED
//	                 ↘ FAILED
type BuildStatus string

const (
	// BuildStatusQueued — сборка создана и ждёт воркера.
	BuildStatusQueued BuildStatus = "QUEUED"

	// BuildStatusRunning — воркер собирает pipeline.
	BuildStatusRunning BuildStatus = "RUNNING"

	// BuildStatusSucceeded — скрипт отрендерен.
	BuildStatusSucceeded BuildStatus = "SUCCEEDED"

	// BuildStatusFailed — сборка завершилась ошибкой.
	BuildStatusFailed BuildStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s BuildStatus) IsTerminal() bool {
	switch s {
	case BuildStatusSucceeded, BuildStatusFailed:
		return true
	default:
		return false
	}
}

// Severity — серьёзность проблемы сборки.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue — одна проблема, найденная при сборке.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Node     NodeID   `json:"pid,omitempty"`
	Slot     string   `json:"slot,omitempty"`
	Message  string   `json:"message"`
}

// BuildConfig — входные данные сборки, сохраняемые вместе с ней.
type BuildConfig struct {
	// Pipeline — строка топологии ("a b (c | d)").
	Pipeline string `json:"pipeline" yaml:"pipeline"`

	// Sources — пользовательские входные каналы.
	Sources map[string]SourceDef `json:"sources,omitempty" yaml:"sources"`

	// Params — значения параметров: имя → instance → значение.
	Params map[string]map[string]string `json:"params,omitempty" yaml:"params"`

	// NoDependency — не вставлять недостающие зависимости шаблонов.
	NoDependency bool `json:"no_dependency,omitempty" yaml:"no_dependency"`
}

// SourceDef — пользовательский входной канал.
type SourceDef struct {
	Shape Shape  `json:"shape" yaml:"shape"`
	Path  string `json:"path" yaml:"path"`
}

// Build — одна сборка pipeline.
type Build struct {
	// ID — уникальный идентификатор сборки.
	ID uuid.UUID `json:"id"`

	// Name — имя pipeline.
	Name string `json:"name"`

	// Config — вход сборки.
	Config BuildConfig `json:"config"`

	// Status — текущий статус.
	Status BuildStatus `json:"status"`

	// Script — отрендеренный скрипт (только для SUCCEEDED).
	Script string `json:"script,omitempty"`

	// Issues — проблемы валидации (ошибки и предупреждения).
	Issues []Issue `json:"issues,omitempty"`

	// Error — сообщение фатальной ошибки.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала сборки воркером.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// NewBuild создаёт сборку в статусе QUEUED.
func NewBuild(name string, cfg BuildConfig) *Build {
	return &Build{
		ID:        uuid.New(),
		Name:      name,
		Config:    cfg,
		Status:    BuildStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
}

// MarkRunning переводит сборку в RUNNING.
func (b *Build) MarkRunning(now time.Time) {
	b.Status = BuildStatusRunning
	b.StartedAt = &now
}

// MarkSucceeded фиксирует успешный результат.
func (b *Build) MarkSucceeded(script string, issues []Issue, now time.Time) {
	b.Status = BuildStatusSucceeded
	b.Script = script
	b.Issues = issues
	b.Error = ""
	b.FinishedAt = &now
}

// MarkFailed фиксирует ошибку.
func (b *Build) MarkFailed(err error, issues []Issue, now time.Time) {
	b.Status = BuildStatusFailed
	b.Issues = issues
	if err != nil {
		b.Error = err.Error()
	}
	b.FinishedAt = &now
}
