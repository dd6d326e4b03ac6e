// Package config загружает пользовательскую конфигурацию сборки (YAML).
//
// Конфигурация собирается слоями: файл значений по умолчанию, затем
// пользовательский файл, затем переменные окружения PIPEWRIGHT_*.
// Поздние слои перекрывают ранние.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Pipewright/internal/domain"
)

var (
	// ErrNoPipeline — не задана ни строка pipeline, ни рецепт.
	ErrNoPipeline = errors.New("no pipeline specified")

	// ErrUnknownRecipe — рецепт не найден в конфигурации.
	ErrUnknownRecipe = errors.New("unknown recipe")
)

// Переменные окружения.
const (
	EnvName      = "PIPEWRIGHT_NAME"
	EnvPipeline  = "PIPEWRIGHT_PIPELINE"
	EnvRecipe    = "PIPEWRIGHT_RECIPE"
	EnvTemplates = "PIPEWRIGHT_TEMPLATES"

	// EnvResourceRoots — корни, внутри которых сервисы проверяют внешние
	// ресурсы (список через os.PathListSeparator).
	EnvResourceRoots = "PIPEWRIGHT_RESOURCE_ROOTS"
)

// File — конфигурация сборки.
//
//	name: typing
//	pipeline: "integrity_coverage mentalist"
//	recipes:
//	  assembly: "trimmomatic (spades | skesa)"
//	sources:
//	  fastq_pair: { shape: pair, path: "data/*_{1,2}.fastq.gz" }
//	params:
//	  kmer_db:
//	    "2": /data/db1
//	  refs:
//	    "3": ./refs/plasmids.fasta
//
// Значения параметров, начинающиеся с "./" или "../", — пути
// относительно файла конфигурации.
type File struct {
	// Name — имя pipeline.
	Name string `yaml:"name,omitempty"`

	// Pipeline — строка топологии.
	Pipeline string `yaml:"pipeline,omitempty"`

	// Recipe — рецепт по умолчанию (если Pipeline пуст).
	Recipe string `yaml:"recipe,omitempty"`

	// Recipes — именованные строки топологии.
	Recipes map[string]string `yaml:"recipes,omitempty"`

	// Sources — пользовательские входные каналы.
	Sources map[string]domain.SourceDef `yaml:"sources,omitempty"`

	// Params — значения параметров: имя → instance → значение.
	Params map[string]map[string]string `yaml:"params,omitempty"`

	// Templates — дополнительные директории с HCL шаблонами.
	Templates []string `yaml:"templates,omitempty"`

	// ResourceRoots — директории, внутри которых API и воркер проверяют
	// внешние ресурсы (engine.RootedResources). CLI их не использует.
	ResourceRoots []string `yaml:"resource_roots,omitempty"`
}

// Parse разбирает YAML. Неизвестные ключи — ошибка.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &f, nil
}

// LoadFile читает и разбирает один файл.
// Относительные пути источников, шаблонов и параметров ("./", "../")
// считаются от директории файла.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.resolvePaths(filepath.Dir(path))
	return f, nil
}

// Load читает файлы по порядку и сливает их: поздние перекрывают ранние.
// Пустые пути пропускаются.
func Load(paths ...string) (*File, error) {
	result := &File{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		layer, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		if err := result.Merge(layer); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Merge сливает other в f; заданные значения other перекрывают f.
func (f *File) Merge(other *File) error {
	if err := mergo.Merge(f, other, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	return nil
}

// ApplyEnv применяет переменные окружения PIPEWRIGHT_*.
// lookup обычно os.LookupEnv.
func (f *File) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvName); ok && v != "" {
		f.Name = v
	}
	if v, ok := lookup(EnvPipeline); ok && v != "" {
		f.Pipeline = v
	}
	if v, ok := lookup(EnvRecipe); ok && v != "" {
		f.Recipe = v
		f.Pipeline = ""
	}
	if v, ok := lookup(EnvTemplates); ok && v != "" {
		f.Templates = append(f.Templates, filepath.SplitList(v)...)
	}
	if v, ok := lookup(EnvResourceRoots); ok && v != "" {
		f.ResourceRoots = append(f.ResourceRoots, filepath.SplitList(v)...)
	}
}

// ResolvePipeline возвращает строку топологии.
//
// Порядок: явный рецепт → Pipeline → рецепт по умолчанию.
func (f *File) ResolvePipeline(recipe string) (string, error) {
	if recipe == "" && f.Pipeline != "" {
		return f.Pipeline, nil
	}
	if recipe == "" {
		recipe = f.Recipe
	}
	if recipe == "" {
		return "", ErrNoPipeline
	}

	pipeline, ok := f.Recipes[recipe]
	if !ok {
		return "", fmt.Errorf("%w: %q (known: %s)", ErrUnknownRecipe, recipe, strings.Join(f.RecipeNames(), ", "))
	}
	return pipeline, nil
}

// RecipeNames возвращает имена рецептов по алфавиту.
func (f *File) RecipeNames() []string {
	names := make([]string, 0, len(f.Recipes))
	for name := range f.Recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildConfig возвращает вход сборки для указанной строки топологии.
func (f *File) BuildConfig(pipeline string) domain.BuildConfig {
	return domain.BuildConfig{
		Pipeline: pipeline,
		Sources:  f.Sources,
		Params:   f.Params,
	}
}

// resolvePaths делает относительные пути абсолютными относительно dir.
// Шаблоны путей с glob сохраняются как есть, кроме префикса.
func (f *File) resolvePaths(dir string) {
	for name, src := range f.Sources {
		if src.Path != "" && !filepath.IsAbs(src.Path) && !strings.Contains(src.Path, "://") {
			src.Path = filepath.Join(dir, src.Path)
			f.Sources[name] = src
		}
	}
	for i, t := range f.Templates {
		if !filepath.IsAbs(t) {
			f.Templates[i] = filepath.Join(dir, t)
		}
	}
	for i, root := range f.ResourceRoots {
		if !filepath.IsAbs(root) {
			f.ResourceRoots[i] = filepath.Join(dir, root)
		}
	}
	for _, instances := range f.Params {
		for inst, v := range instances {
			if isRelativePath(v) {
				instances[inst] = filepath.Join(dir, v)
			}
		}
	}
}

// isRelativePath — значение явно помечено как путь от файла конфигурации.
func isRelativePath(v string) bool {
	for _, prefix := range []string{"./", "../"} {
		if strings.HasPrefix(v, prefix) {
			return true
		}
	}
	return v == "." || v == ".."
}
