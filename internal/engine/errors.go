package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Pipewright/internal/catalog"
	"github.com/shaiso/Pipewright/internal/domain"
)

// Ошибки Template Store (переэкспорт для вызывающих engine).
var (
	// ErrTemplateNotFound — шаблон не найден.
	ErrTemplateNotFound = catalog.ErrTemplateNotFound

	// ErrMalformedTemplate — шаблон не разбирается или ссылается на
	// необъявленные слоты; также неразрешённый placeholder при рендеринге.
	ErrMalformedTemplate = catalog.ErrMalformedTemplate
)

// Ошибки сборки.
var (
	// ErrMissingParameter — для параметра нет значения и нет default.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrExternalResourceNotFound — внешний ресурс из конфигурации не существует.
	// Фатальная ошибка: сборка прерывается сразу.
	ErrExternalResourceNotFound = errors.New("external resource not found")

	// ErrChannelArityMismatch — форма канала не совпадает с ожидаемой формой слота.
	ErrChannelArityMismatch = errors.New("channel arity mismatch")

	// ErrAmbiguousChannelBinding — несколько каналов с одним именем
	// претендуют на один слот.
	ErrAmbiguousChannelBinding = errors.New("ambiguous channel binding")

	// ErrUnresolvedChannel — для входного слота не найден канал,
	// или узел ссылается на несуществующий канал.
	ErrUnresolvedChannel = errors.New("unresolved channel")

	// ErrEmptyForkSpec — fork без веток (или с пустой веткой).
	ErrEmptyForkSpec = errors.New("empty fork spec")

	// ErrCyclicGraph — в графе сборки обнаружен цикл.
	ErrCyclicGraph = errors.New("cyclic graph")
)

// Ошибки валидации графа.
var (
	// ErrUnboundSlot — объявленный слот не связан с каналом.
	ErrUnboundSlot = errors.New("unbound slot")

	// ErrUnconsumedOutput — выход не помечен terminal и не имеет потребителей.
	// Предупреждение, не ошибка.
	ErrUnconsumedOutput = errors.New("unconsumed output")
)

// Ошибки топологии и жизненного цикла графа.
var (
	// ErrTopologySyntax — строка pipeline не разбирается.
	ErrTopologySyntax = errors.New("invalid pipeline string")

	// ErrGraphFrozen — граф заморожен, изменения запрещены.
	ErrGraphFrozen = errors.New("graph is frozen")

	// ErrGraphNotFrozen — рендеринг незамороженного графа.
	ErrGraphNotFrozen = errors.New("graph is not frozen")
)

// SlotError — ошибка связывания или разрешения параметров с контекстом.
type SlotError struct {
	Template string // имя шаблона
	Instance string // идентификатор экземпляра (param_id)
	Slot     string // слот или параметр, вызвавший ошибку
	Message  string // описание ошибки
	Err      error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *SlotError) Error() string {
	prefix := ""
	if e.Template != "" {
		prefix = "process " + e.Template
		if e.Instance != "" {
			prefix += "_" + e.Instance
		}
		prefix += ": "
	}
	if e.Slot != "" {
		prefix += e.Slot + ": "
	}
	return prefix + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *SlotError) Unwrap() error {
	return e.Err
}

// NewSlotError создаёт новую ошибку слота.
func NewSlotError(template, instance, slot, message string, err error) *SlotError {
	return &SlotError{
		Template: template,
		Instance: instance,
		Slot:     slot,
		Message:  message,
		Err:      err,
	}
}

// ResourceError — внешний ресурс не найден.
//
// Сообщение однострочное и содержит ключ конфигурации и путь:
//
//	config key 'kmer_db1': external resource not found: '/data/db1'
type ResourceError struct {
	Key  domain.ParamKey
	Path string
}

// Error реализует интерфейс error.
func (e *ResourceError) Error() string {
	return fmt.Sprintf("config key '%s': %s: '%s'", e.Key, ErrExternalResourceNotFound, e.Path)
}

// Unwrap возвращает ErrExternalResourceNotFound.
func (e *ResourceError) Unwrap() error {
	return ErrExternalResourceNotFound
}

// TopologyError — синтаксическая ошибка строки pipeline.
type TopologyError struct {
	Pos     int    // позиция (в байтах) в строке pipeline
	Message string // описание ошибки
	Err     error  // ErrTopologySyntax или ErrEmptyForkSpec
}

// Error реализует интерфейс error.
func (e *TopologyError) Error() string {
	return fmt.Sprintf("pipeline string at %d: %s", e.Pos, e.Message)
}

// Unwrap возвращает базовую ошибку.
func (e *TopologyError) Unwrap() error {
	return e.Err
}

// IssueCode возвращает код проблемы для отчёта по базовой ошибке.
func IssueCode(err error) string {
	codes := []struct {
		target error
		code   string
	}{
		{ErrTemplateNotFound, "TemplateNotFound"},
		{ErrMalformedTemplate, "MalformedTemplate"},
		{ErrMissingParameter, "MissingParameter"},
		{ErrExternalResourceNotFound, "ExternalResourceNotFound"},
		{ErrChannelArityMismatch, "ChannelArityMismatch"},
		{ErrAmbiguousChannelBinding, "AmbiguousChannelBinding"},
		{ErrUnresolvedChannel, "UnresolvedChannel"},
		{ErrEmptyForkSpec, "EmptyForkSpec"},
		{ErrCyclicGraph, "CyclicGraph"},
		{ErrUnboundSlot, "UnboundSlot"},
		{ErrUnconsumedOutput, "UnconsumedOutput"},
		{ErrTopologySyntax, "TopologySyntax"},
	}
	for _, c := range codes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}
	return "Internal"
}
