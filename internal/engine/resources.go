package engine

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ResourceChecker проверяет существование внешних ресурсов.
type ResourceChecker interface {
	Exists(path string) (bool, error)
}

// ResourceFunc — адаптер функции к ResourceChecker.
type ResourceFunc func(path string) (bool, error)

// Exists реализует ResourceChecker.
func (f ResourceFunc) Exists(path string) (bool, error) {
	return f(path)
}

// OSResources проверяет ресурсы в локальной файловой системе.
//
// Путь с glob-метасимволами (*, ?, [, {a,b}, **) существует, если под него
// подходит хотя бы один файл. Фигурные скобки могут быть вложенными.
// URL (s3://, https://) считаются существующими: их проверяет
// исполняющий движок.
type OSResources struct{}

// Exists реализует ResourceChecker.
func (OSResources) Exists(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if isURL(path) {
		return true, nil
	}

	if strings.ContainsAny(path, "*?[{") {
		matches, err := doublestar.FilepathGlob(path)
		if err != nil {
			return false, err
		}
		return len(matches) > 0, nil
	}

	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func isURL(path string) bool {
	return strings.Contains(path, "://")
}

// RootedResources пускает проверку только внутрь разрешённых корней.
//
// Сервис проверяет пути, пришедшие от клиента, поэтому путь вне Roots
// (или относительный) считается несуществующим без обращения к диску:
// ответ не выдаёт, есть ли такой файл на хосте. Без Roots файловая
// система не трогается вовсе, и любой путь принимается; существование
// тогда проверяет исполняющий движок.
type RootedResources struct {
	Roots []string

	// Base — проверка внутри корней (по умолчанию OSResources).
	Base ResourceChecker
}

// Exists реализует ResourceChecker.
func (r RootedResources) Exists(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if len(r.Roots) == 0 || isURL(path) {
		return true, nil
	}
	if !r.allowed(path) {
		return false, nil
	}

	base := r.Base
	if base == nil {
		base = OSResources{}
	}
	return base.Exists(path)
}

func (r RootedResources) allowed(path string) bool {
	if !filepath.IsAbs(path) {
		return false
	}
	clean := filepath.Clean(path)
	for _, root := range r.Roots {
		rel, err := filepath.Rel(filepath.Clean(root), clean)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
