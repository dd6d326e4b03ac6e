package catalog

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed library/*.hcl
var library embed.FS

// Builtin возвращает источник со встроенной библиотекой шаблонов.
func Builtin() *FSSource {
	sub, err := fs.Sub(library, "library")
	if err != nil {
		// library/ вшита при сборке, ошибка здесь невозможна
		panic(err)
	}
	return NewFSSource(sub)
}

// Layered собирает цепочку источников: first (если не nil), затем
// директории dirs по порядку, затем встроенная библиотека.
func Layered(first Source, dirs []string) Source {
	sources := make([]Source, 0, len(dirs)+2)
	if first != nil {
		sources = append(sources, first)
	}
	for _, dir := range dirs {
		sources = append(sources, NewFSSource(os.DirFS(dir)))
	}
	return Chain(append(sources, Builtin())...)
}
