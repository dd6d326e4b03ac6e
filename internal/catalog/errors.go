package catalog

import "errors"

// Ошибки Template Store.
var (
	// ErrTemplateNotFound — шаблон с таким именем не найден ни в одном источнике.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrMalformedTemplate — определение шаблона не удалось разобрать
	// или тело ссылается на необъявленные слоты.
	ErrMalformedTemplate = errors.New("malformed template")
)

// TemplateError — ошибка шаблона с контекстом.
type TemplateError struct {
	Template string // имя шаблона (может быть пустым для ошибок файла)
	Source   string // файл или источник определения
	Message  string // описание ошибки
	Err      error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *TemplateError) Error() string {
	msg := e.Message
	if e.Template != "" {
		msg = "template " + e.Template + ": " + msg
	}
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	return msg
}

// Unwrap возвращает базовую ошибку.
func (e *TemplateError) Unwrap() error {
	return e.Err
}

func malformed(template, source, message string) *TemplateError {
	return &TemplateError{
		Template: template,
		Source:   source,
		Message:  message,
		Err:      ErrMalformedTemplate,
	}
}

func notFound(template string) *TemplateError {
	return &TemplateError{
		Template: template,
		Message:  "not found",
		Err:      ErrTemplateNotFound,
	}
}
