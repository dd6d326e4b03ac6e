package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Pipewright/internal/domain"
)

// ParamSource — источник значений параметров.
//
// Поиск только по составному ключу (имя, instance): плоские строки
// вида "kmer_db1" не разбираются и не сравниваются.
type ParamSource interface {
	Lookup(key domain.ParamKey) (string, bool)
}

// ParamTable — ParamSource поверх map имя → instance → значение
// (секция params пользовательской конфигурации).
type ParamTable map[string]map[string]string

// Lookup реализует ParamSource.
func (t ParamTable) Lookup(key domain.ParamKey) (string, bool) {
	byInstance, ok := t[key.Name]
	if !ok {
		return "", false
	}
	v, ok := byInstance[key.Instance]
	return v, ok
}

// ResolveParams разрешает параметры шаблона для экземпляра.
//
// Порядок: значение по ключу (имя, instance) → default шаблона →
// ErrMissingParameter. Все отсутствующие параметры сообщаются одной
// ошибкой (errors.Join из *SlotError). Функция чистая: результат зависит
// только от шаблона, instance и значений с этим instance.
//
// Возвращает частично заполненную ParamMap даже при ошибке.
func ResolveParams(tpl *domain.TaskTemplate, instance string, src ParamSource) (domain.ParamMap, error) {
	params := make(domain.ParamMap, len(tpl.Params))
	var errs []error

	for _, p := range tpl.Params {
		key := domain.ParamKey{Name: p.Name, Instance: instance}

		if src != nil {
			if v, ok := src.Lookup(key); ok {
				params[p.Name] = domain.Value{Literal: v, Key: key, IsPath: p.Path}
				continue
			}
		}

		if p.Default != nil {
			params[p.Name] = domain.Value{
				Literal:     *p.Default,
				Key:         domain.ParamKey{Name: p.Name},
				IsPath:      p.Path,
				FromDefault: true,
			}
			continue
		}

		errs = append(errs, NewSlotError(tpl.Name, instance, p.Name,
			fmt.Sprintf("no value for config key '%s' and no default", key), ErrMissingParameter))
	}

	return params, errors.Join(errs...)
}
