package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/shaiso/Pipewright/internal/domain"
	"github.com/shaiso/Pipewright/internal/telemetry"
)

// Store — Template Store с read-through кэшем.
//
// Загруженные шаблоны неизменяемы, поэтому один Store безопасно
// разделять между параллельными сборками. Одновременные промахи
// по одному имени загружают шаблон один раз (singleflight).
type Store struct {
	source Source
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*domain.TaskTemplate

	group singleflight.Group
}

// NewStore создаёт Store поверх источника.
func NewStore(source Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		source: source,
		logger: logger,
		cache:  make(map[string]*domain.TaskTemplate),
	}
}

// Load возвращает шаблон по имени.
//
// Ошибки: ErrTemplateNotFound, ErrMalformedTemplate.
// Ошибки не кэшируются.
func (s *Store) Load(ctx context.Context, name string) (*domain.TaskTemplate, error) {
	s.mu.RLock()
	tpl, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		telemetry.CatalogLookups.WithLabelValues("hit").Inc()
		return tpl, nil
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		s.mu.RLock()
		cached, ok := s.cache[name]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}

		loaded, err := s.source.Template(ctx, name)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.cache[name] = loaded
		s.mu.Unlock()

		s.logger.Debug("template loaded",
			"template", name,
			"inputs", len(loaded.Inputs),
			"outputs", len(loaded.Outputs),
			"params", len(loaded.Params),
		)
		return loaded, nil
	})
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			telemetry.CatalogLookups.WithLabelValues("not_found").Inc()
		} else {
			telemetry.CatalogLookups.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	telemetry.CatalogLookups.WithLabelValues("miss").Inc()
	return v.(*domain.TaskTemplate), nil
}

// ListDeclaredSlots возвращает объявленные входы, выходы и параметры шаблона.
func (s *Store) ListDeclaredSlots(ctx context.Context, name string) (inputs, outputs []domain.Slot, params []domain.ParamSlot, err error) {
	tpl, err := s.Load(ctx, name)
	if err != nil {
		return nil, nil, nil, err
	}

	inputs = append([]domain.Slot(nil), tpl.Inputs...)
	outputs = append([]domain.Slot(nil), tpl.Outputs...)
	params = append([]domain.ParamSlot(nil), tpl.Params...)
	return inputs, outputs, params, nil
}

// Fragment возвращает вспомогательный фрагмент для точки включения.
//
// Отсутствие фрагмента — нормальное состояние: ok=false.
// Ошибки источника логируются и тоже дают ok=false.
func (s *Store) Fragment(ctx context.Context, name string) (string, bool) {
	body, ok, err := s.source.Fragment(ctx, name)
	if err != nil {
		s.logger.Warn("fragment lookup failed", "fragment", name, "error", err)
		return "", false
	}
	return body, ok
}

// List возвращает имена всех шаблонов, отсортированные по алфавиту.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.source.Names(ctx)
}

// Forget удаляет шаблон из кэша, чтобы следующий Load перечитал источник.
// Используется после сохранения новой версии шаблона через API.
func (s *Store) Forget(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}
