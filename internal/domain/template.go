package domain

import "fmt"

// Shape — форма элементов, которые передаются по каналу.
type Shape string

const (
	// ShapeValue — одиночное значение (строка, число).
	ShapeValue Shape = "value"

	// ShapeFile — одиночный файл.
	ShapeFile Shape = "file"

	// ShapePair — кортеж (sample_id, [file_1, file_2]), например парные fastq.
	ShapePair Shape = "pair"

	// ShapeList — список файлов.
	ShapeList Shape = "list"
)

// IsValid проверяет, что форма известна.
func (s Shape) IsValid() bool {
	switch s {
	case ShapeValue, ShapeFile, ShapePair, ShapeList:
		return true
	default:
		return false
	}
}

// ParseShape парсит строку в Shape. Пустая строка — ShapeFile.
func ParseShape(s string) (Shape, error) {
	if s == "" {
		return ShapeFile, nil
	}
	shape := Shape(s)
	if !shape.IsValid() {
		return "", fmt.Errorf("unknown shape %q", s)
	}
	return shape, nil
}

// Slot — объявленный входной или выходной канал шаблона.
type Slot struct {
	// Name — имя слота. Для входов по нему ищется канал, для выходов
	// из него строится ID нового канала.
	Name string `json:"name"`

	// Shape — ожидаемая форма элементов канала.
	Shape Shape `json:"shape"`

	// External — вход берётся из конфигурации как внешний ресурс
	// (путь к файлу), а не из канала вышестоящего узла.
	External bool `json:"external,omitempty"`

	// Terminal — выход может остаться без потребителей.
	Terminal bool `json:"terminal,omitempty"`
}

// ParamSlot — объявленный параметр шаблона.
type ParamSlot struct {
	// Name — логическое имя параметра (без суффикса instance).
	Name string `json:"name"`

	// Default — значение по умолчанию; nil, если параметр обязателен.
	Default *string `json:"default,omitempty"`

	// Path — значение параметра является путём в файловой системе
	// и должно существовать на момент сборки.
	Path bool `json:"path,omitempty"`
}

// TaskTemplate — шаблон одного процесса pipeline.
//
// Шаблон неизменяем после загрузки: Template Store кэширует его
// и раздаёт один и тот же указатель всем сборкам.
type TaskTemplate struct {
	// Name — уникальное имя шаблона (например, "mentalist").
	Name string `json:"name"`

	// Description — описание для листинга.
	Description string `json:"description,omitempty"`

	// Body — тело шаблона в синтаксисе Go text/template.
	Body string `json:"body"`

	// Inputs — входные слоты в порядке объявления.
	// Первый не-external вход — основной (primary).
	Inputs []Slot `json:"inputs"`

	// Outputs — выходные слоты в порядке объявления.
	// Первый выход — основной, он продолжает lane.
	Outputs []Slot `json:"outputs"`

	// Params — параметры шаблона, включая неявные параметры external входов.
	Params []ParamSlot `json:"params,omitempty"`

	// Includes — объявленные точки включения вспомогательных фрагментов.
	Includes []string `json:"includes,omitempty"`

	// Depends — шаблоны, которые должны стоять выше по lane. Недостающие
	// сборка вставляет перед узлом, если зависимости не отключены.
	Depends []string `json:"depends,omitempty"`
}

// PrimaryInput возвращает основной вход шаблона.
func (t *TaskTemplate) PrimaryInput() (Slot, bool) {
	for _, in := range t.Inputs {
		if !in.External {
			return in, true
		}
	}
	return Slot{}, false
}

// PrimaryOutput возвращает основной выход шаблона.
func (t *TaskTemplate) PrimaryOutput() (Slot, bool) {
	if len(t.Outputs) == 0 {
		return Slot{}, false
	}
	return t.Outputs[0], true
}

// Input возвращает входной слот по имени.
func (t *TaskTemplate) Input(name string) (Slot, bool) {
	for _, in := range t.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return Slot{}, false
}

// Output возвращает выходной слот по имени.
func (t *TaskTemplate) Output(name string) (Slot, bool) {
	for _, out := range t.Outputs {
		if out.Name == name {
			return out, true
		}
	}
	return Slot{}, false
}

// DeclaresInclude проверяет, объявлена ли точка включения.
func (t *TaskTemplate) DeclaresInclude(name string) bool {
	for _, inc := range t.Includes {
		if inc == name {
			return true
		}
	}
	return false
}
