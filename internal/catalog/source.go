package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"

	"github.com/shaiso/Pipewright/internal/domain"
)

// Source — хранилище определений шаблонов.
//
// Реализации:
//   - FSSource — HCL файлы из fs.FS (директория или встроенная библиотека)
//   - repo.TemplateRepo — шаблоны в PostgreSQL
//   - Chain — упорядоченный fallback по нескольким источникам
type Source interface {
	// Template возвращает шаблон по имени или ErrTemplateNotFound.
	Template(ctx context.Context, name string) (*domain.TaskTemplate, error)

	// Fragment возвращает вспомогательный фрагмент. ok=false — фрагмента нет.
	Fragment(ctx context.Context, name string) (body string, ok bool, err error)

	// Names возвращает имена всех шаблонов источника.
	Names(ctx context.Context) ([]string, error)
}

// FSSource — источник шаблонов из HCL файлов (*.hcl) в fs.FS.
//
// Файлы разбираются один раз при первом обращении.
type FSSource struct {
	fsys fs.FS

	once      sync.Once
	indexErr  error
	templates map[string]*domain.TaskTemplate
	broken    map[string]error
	fragments map[string]string
}

// NewFSSource создаёт источник поверх fs.FS.
func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

// index разбирает все HCL файлы и строит индекс по имени.
func (s *FSSource) index() error {
	s.once.Do(func() {
		s.templates = make(map[string]*domain.TaskTemplate)
		s.broken = make(map[string]error)
		s.fragments = make(map[string]string)
		origin := make(map[string]string)

		s.indexErr = fs.WalkDir(s.fsys, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || path.Ext(p) != ".hcl" {
				return nil
			}

			src, err := fs.ReadFile(s.fsys, p)
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}

			doc, err := Decode(p, src)
			if err != nil {
				return err
			}

			for _, tpl := range doc.Templates {
				if prev, dup := origin[tpl.Name]; dup {
					return malformed(tpl.Name, p, "already defined in "+prev)
				}
				origin[tpl.Name] = p
				s.templates[tpl.Name] = tpl
			}
			for name, err := range doc.Broken {
				if prev, dup := origin[name]; dup {
					return malformed(name, p, "already defined in "+prev)
				}
				origin[name] = p
				s.broken[name] = err
			}
			for name, body := range doc.Fragments {
				if _, dup := s.fragments[name]; dup {
					return malformed("", p, fmt.Sprintf("fragment %q already defined", name))
				}
				s.fragments[name] = body
			}
			return nil
		})
	})
	return s.indexErr
}

// Template реализует Source.
func (s *FSSource) Template(_ context.Context, name string) (*domain.TaskTemplate, error) {
	if err := s.index(); err != nil {
		return nil, err
	}
	if err, ok := s.broken[name]; ok {
		return nil, err
	}
	tpl, ok := s.templates[name]
	if !ok {
		return nil, notFound(name)
	}
	return tpl, nil
}

// Fragment реализует Source.
func (s *FSSource) Fragment(_ context.Context, name string) (string, bool, error) {
	if err := s.index(); err != nil {
		return "", false, err
	}
	body, ok := s.fragments[name]
	return body, ok, nil
}

// Names реализует Source.
func (s *FSSource) Names(_ context.Context) ([]string, error) {
	if err := s.index(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.templates)+len(s.broken))
	for name := range s.templates {
		names = append(names, name)
	}
	for name := range s.broken {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// chain — упорядоченный набор источников.
type chain []Source

// Chain объединяет источники: шаблон берётся из первого источника,
// который его знает. Ранние источники перекрывают поздние.
func Chain(sources ...Source) Source {
	return chain(sources)
}

func (c chain) Template(ctx context.Context, name string) (*domain.TaskTemplate, error) {
	for _, src := range c {
		tpl, err := src.Template(ctx, name)
		if errors.Is(err, ErrTemplateNotFound) {
			continue
		}
		return tpl, err
	}
	return nil, notFound(name)
}

func (c chain) Fragment(ctx context.Context, name string) (string, bool, error) {
	for _, src := range c {
		body, ok, err := src.Fragment(ctx, name)
		if err != nil {
			return "", false, err
		}
		if ok {
			return body, true, nil
		}
	}
	return "", false, nil
}

func (c chain) Names(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, src := range c {
		names, err := src.Names(ctx)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			seen[n] = true
		}
	}
	return sortedKeys(seen), nil
}
