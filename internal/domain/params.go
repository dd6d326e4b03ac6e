package domain

// ParamKey — составной ключ параметра конфигурации.
//
// Значение для экземпляра процесса ищется по паре (имя, instance),
// а не по склеенной строке: так ключи "db" + "11" и "db1" + "1"
// не сталкиваются.
type ParamKey struct {
	Name     string `json:"name" yaml:"name"`
	Instance string `json:"instance" yaml:"instance"`
}

// String возвращает плоскую форму ключа (kmer_db1).
// Используется только для сообщений пользователю.
func (k ParamKey) String() string {
	return k.Name + k.Instance
}

// Value — разрешённое значение параметра.
type Value struct {
	// Literal — значение, подставляемое в шаблон.
	Literal string `json:"literal"`

	// Key — ключ конфигурации, из которого взято значение.
	// Пустой Instance означает значение по умолчанию из шаблона.
	Key ParamKey `json:"key"`

	// IsPath — значение является путём к внешнему ресурсу.
	IsPath bool `json:"is_path,omitempty"`

	// FromDefault — значение взято из default шаблона.
	FromDefault bool `json:"from_default,omitempty"`
}

// ParamMap — разрешённые параметры узла: имя → значение.
type ParamMap map[string]Value

// Literals возвращает map имя → строковое значение для рендеринга.
func (m ParamMap) Literals() map[string]string {
	result := make(map[string]string, len(m))
	for name, v := range m {
		result[name] = v.Literal
	}
	return result
}
