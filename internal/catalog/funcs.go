package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// IncludeFunc — имя функции включения фрагмента в теле шаблона:
//
//	{{ include "status" }}
const IncludeFunc = "include"

// BodyFuncs возвращает функции, доступные в теле шаблона.
//
// Функция include здесь — заглушка для разбора; рендерер подменяет её
// своей реализацией для каждого узла.
func BodyFuncs() template.FuncMap {
	return template.FuncMap{
		IncludeFunc: func(string) (string, error) { return "", nil },

		// json — сериализует значение в JSON строку
		"json": func(v any) string {
			b, err := json.Marshal(v)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return string(b)
		},

		// default — возвращает значение по умолчанию, если второй аргумент пустой
		"default": func(def, val any) any {
			if val == nil {
				return def
			}
			if s, ok := val.(string); ok && s == "" {
				return def
			}
			return val
		},

		// join — объединяет слайс строк
		"join": func(sep string, items []string) string {
			return strings.Join(items, sep)
		},

		// quote — оборачивает строку в одинарные кавычки (строки Nextflow/shell)
		"quote": func(s string) string {
			return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
		},

		"lower":     strings.ToLower,
		"upper":     strings.ToUpper,
		"trim":      strings.TrimSpace,
		"replace":   strings.ReplaceAll,
		"hasPrefix": strings.HasPrefix,
		"hasSuffix": strings.HasSuffix,
	}
}
