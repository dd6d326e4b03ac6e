package domain

import "strconv"

// NodeID — идентификатор узла сборки (pid процесса).
type NodeID int

// String возвращает строковое представление pid.
func (id NodeID) String() string {
	return strconv.Itoa(int(id))
}

// ChannelID — идентификатор канала в отрендеренном скрипте.
type ChannelID string

// ChannelKind — происхождение канала.
type ChannelKind string

const (
	// ChannelExternal — канал поверх внешнего ресурса из конфигурации
	// (например, файл базы данных kmer_db1).
	ChannelExternal ChannelKind = "external"

	// ChannelSource — входной канал, объявленный пользователем (sources).
	ChannelSource ChannelKind = "source"

	// ChannelProduced — канал, который создаёт выходной слот узла.
	ChannelProduced ChannelKind = "produced"
)

// Channel — именованный канал между узлами.
//
// У канала ровно один производитель (узел, пользовательский источник
// или внешний ресурс) и один или несколько потребителей после связывания.
// Каналы не хранят ссылок на узлы-потребители: граф ищет их по ID.
type Channel struct {
	// ID — уникальный идентификатор в рамках сборки.
	ID ChannelID `json:"id"`

	// Name — логическое имя (имя слота или источника).
	Name string `json:"name"`

	// Shape — форма элементов.
	Shape Shape `json:"shape"`

	// Kind — происхождение канала.
	Kind ChannelKind `json:"kind"`

	// Resource — путь к ресурсу (для external и source).
	Resource string `json:"resource,omitempty"`

	// Key — ключ конфигурации, указавший на ресурс (для external).
	Key ParamKey `json:"key,omitempty"`

	// Producer — узел-производитель (для produced).
	Producer NodeID `json:"producer,omitempty"`

	// ProducerSlot — выходной слот производителя.
	ProducerSlot string `json:"producer_slot,omitempty"`

	// Lane — lane производителя.
	Lane int `json:"lane,omitempty"`
}

// PipelineNode — экземпляр TaskTemplate в сборке.
//
// Узел создаётся сессией сборки и не изменяется после связывания.
type PipelineNode struct {
	// ID — pid процесса, уникален в сборке.
	ID NodeID `json:"pid"`

	// Instance — идентификатор экземпляра для ключей конфигурации (param_id).
	Instance string `json:"instance"`

	// Lane — номер lane, которому принадлежит узел.
	Lane int `json:"lane"`

	// Template — имя шаблона.
	Template string `json:"template"`

	// Params — разрешённые параметры.
	Params ParamMap `json:"params"`

	// Inputs — связанные входы: слот → канал.
	Inputs map[string]ChannelID `json:"inputs"`

	// Outputs — созданные выходы: слот → канал.
	Outputs map[string]ChannelID `json:"outputs"`

	// Fork — ID fork, ветку которого открывает этот узел (пусто для остальных).
	Fork string `json:"fork,omitempty"`
}

// Fork — развёрнутый fork в графе сборки.
type Fork struct {
	// ID — идентификатор fork ("fork_1", "fork_2", ...).
	ID string `json:"id"`

	// Source — общий вышестоящий канал всех веток.
	Source ChannelID `json:"source"`

	// Lanes — номера lane веток в порядке объявления.
	Lanes []int `json:"lanes"`

	// Heads — первый узел каждой ветки, параллелен Lanes. Для ветки,
	// открытой вложенным fork, это первая голова вложенного fork;
	// 0, если первый шаблон ветки не загрузился.
	Heads []NodeID `json:"heads"`

	// Outputs — итоговые выходы веток: основной выход последнего узла
	// или объединённый выход вложенного fork. Ветки без выхода пропущены.
	Outputs []string `json:"outputs"`
}

// OutputRef возвращает имя объединённого выхода fork в скрипте.
func (f *Fork) OutputRef() string {
	return f.ID + "_out"
}

// Step — один шаг топологии: шаблон или fork.
type Step struct {
	// Template — имя шаблона (пусто, если шаг — fork).
	Template string `json:"template,omitempty"`

	// Fork — разветвление (только последним шагом сегмента).
	Fork *ForkSpec `json:"fork,omitempty"`
}

// IsFork проверяет, является ли шаг разветвлением.
func (s Step) IsFork() bool {
	return s.Fork != nil
}

// Segment — линейная последовательность шагов.
type Segment []Step

// ForkSpec — директива разветвления: каждая ветка — свой сегмент.
type ForkSpec struct {
	Branches []Segment `json:"branches"`
}

// Replicate строит fork из n одинаковых веток.
func Replicate(segment Segment, n int) *ForkSpec {
	fork := &ForkSpec{Branches: make([]Segment, 0, n)}
	for i := 0; i < n; i++ {
		branch := make(Segment, len(segment))
		copy(branch, segment)
		fork.Branches = append(fork.Branches, branch)
	}
	return fork
}

// Topology — выбранная пользователем топология pipeline.
type Topology struct {
	Root Segment `json:"root"`
}

// Templates возвращает имена всех шаблонов топологии в порядке обхода.
func (t Topology) Templates() []string {
	var names []string
	var walk func(seg Segment)
	walk = func(seg Segment) {
		for _, step := range seg {
			if step.IsFork() {
				for _, b := range step.Fork.Branches {
					walk(b)
				}
				continue
			}
			names = append(names, step.Template)
		}
	}
	walk(t.Root)
	return names
}
