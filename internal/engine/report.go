package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Pipewright/internal/domain"
)

// Report — проблемы, собранные за одну сборку.
//
// Повторные проблемы с тем же кодом, узлом, слотом и текстом не добавляются.
type Report struct {
	Issues []domain.Issue

	// errs параллелен Issues: ошибка проблемы или nil для предупреждения.
	errs []error
	seen map[string]bool
}

// NewReport создаёт пустой отчёт.
func NewReport() *Report {
	return &Report{seen: make(map[string]bool)}
}

// Add добавляет ошибку (или ошибки из errors.Join) с указанной серьёзностью.
func (r *Report) Add(node domain.NodeID, severity domain.Severity, err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			r.Add(node, severity, e)
		}
		return
	}

	issue := domain.Issue{
		Severity: severity,
		Code:     IssueCode(err),
		Node:     node,
		Message:  err.Error(),
	}
	var slotErr *SlotError
	if errors.As(err, &slotErr) {
		issue.Slot = slotErr.Slot
	}

	key := issueKey(issue)
	if r.seen[key] {
		return
	}
	r.seen[key] = true

	r.Issues = append(r.Issues, issue)
	if severity == domain.SeverityError {
		r.errs = append(r.errs, err)
	} else {
		r.errs = append(r.errs, nil)
	}
}

// issueKey — ключ дедупликации. Текст входит в ключ: у ResourceError нет слота,
// и две недостающие базы одного узла отличаются только путём.
func issueKey(issue domain.Issue) string {
	return fmt.Sprintf("%s|%d|%s|%s", issue.Code, issue.Node, issue.Slot, issue.Message)
}

// Error добавляет ошибку.
func (r *Report) Error(node domain.NodeID, err error) {
	r.Add(node, domain.SeverityError, err)
}

// Warn добавляет предупреждение.
func (r *Report) Warn(node domain.NodeID, err error) {
	r.Add(node, domain.SeverityWarning, err)
}

// Merge добавляет проблемы другого отчёта.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	for i, issue := range other.Issues {
		key := issueKey(issue)
		if r.seen[key] {
			continue
		}
		r.seen[key] = true
		r.Issues = append(r.Issues, issue)
		r.errs = append(r.errs, other.errs[i])
	}
}

// HasErrors проверяет, есть ли проблемы уровня error.
func (r *Report) HasErrors() bool {
	for _, err := range r.errs {
		if err != nil {
			return true
		}
	}
	return false
}

// Warnings возвращает только предупреждения.
func (r *Report) Warnings() []domain.Issue {
	var result []domain.Issue
	for _, issue := range r.Issues {
		if issue.Severity == domain.SeverityWarning {
			result = append(result, issue)
		}
	}
	return result
}

// Err объединяет все ошибки отчёта через errors.Join.
// Возвращает nil, если ошибок нет; errors.Is работает на результате.
func (r *Report) Err() error {
	return errors.Join(r.errs...)
}
