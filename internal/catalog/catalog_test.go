package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Pipewright/internal/domain"
)

const validHCL = `
template "mentalist" {
  description = "MLST typing"
  includes    = ["status"]

  input "fastq_pair" {
    shape = "pair"
  }
  input "kmer_db" {
    external = true
  }
  output "mentalist_out" {
    shape    = "file"
    terminal = true
  }
  param "cpus" {
    default = 4
  }
  param "label" {
    default = "typing"
  }
  param "mode" {}

  body = <<-EOT
    process mentalist_{{ .Pid }} {
        {{ include "status" }}
        {{ .Inputs.fastq_pair }} {{ .Inputs.kmer_db }} {{ .Params.cpus }} {{ .Params.mode }}
        {{ .Outputs.mentalist_out }} $${sample_id}
    }
  EOT
}

fragment "status" {
  body = "afterScript 'x'"
}
`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecode_Valid(t *testing.T) {
	doc, err := Decode("lib.hcl", []byte(validHCL))
	require.NoError(t, err)
	require.Len(t, doc.Templates, 1)
	assert.Empty(t, doc.Broken)
	assert.Equal(t, "afterScript 'x'", doc.Fragments["status"])

	tpl := doc.Templates[0]
	assert.Equal(t, "mentalist", tpl.Name)
	assert.Equal(t, "MLST typing", tpl.Description)
	assert.Equal(t, []string{"status"}, tpl.Includes)

	require.Len(t, tpl.Inputs, 2)
	assert.Equal(t, domain.Slot{Name: "fastq_pair", Shape: domain.ShapePair}, tpl.Inputs[0])
	assert.Equal(t, domain.Slot{Name: "kmer_db", Shape: domain.ShapeFile, External: true}, tpl.Inputs[1])
	assert.Equal(t, domain.Slot{Name: "mentalist_out", Shape: domain.ShapeFile, Terminal: true}, tpl.Outputs[0])

	// external вход — неявный path параметр без default
	require.Len(t, tpl.Params, 4)
	assert.Equal(t, domain.ParamSlot{Name: "kmer_db", Path: true}, tpl.Params[0])
	require.NotNil(t, tpl.Params[1].Default)
	assert.Equal(t, "4", *tpl.Params[1].Default)
	assert.Equal(t, "typing", *tpl.Params[2].Default)
	assert.Nil(t, tpl.Params[3].Default)

	// $${ в HCL превращается в ${
	assert.Contains(t, tpl.Body, "${sample_id}")
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "undeclared param",
			src:  `template "t" { body = "{{ .Params.nope }}" }`,
		},
		{
			name: "depends on itself",
			src:  `template "t" {
  depends = ["t"]
  body    = ""
}`,
		},
		{
			name: "undeclared input",
			src:  `template "t" { body = "{{ .Inputs.nope }}" }`,
		},
		{
			name: "undeclared include",
			src:  `template "t" { body = "{{ include \"status\" }}" }`,
		},
		{
			name: "non literal include",
			src:  `template "t" { body = "{{ include .Template }}" }`,
		},
		{
			name: "unknown field",
			src:  `template "t" { body = "{{ .Env.HOME }}" }`,
		},
		{
			name: "body parse error",
			src:  `template "t" { body = "{{ .Pid " }`,
		},
		{
			name: "unknown shape",
			src:  `
template "t" {
  input "x" {
    shape = "tuple"
  }
  body = ""
}`,
		},
		{
			name: "duplicate input",
			src:  `
template "t" {
  input "x" {}
  input "x" {}
  body = ""
}`,
		},
		{
			name: "param clashes with external input",
			src:  `
template "t" {
  input "db" {
    external = true
  }
  param "db" {}
  body = ""
}`,
		},
		{
			name: "external output",
			src:  `
template "t" {
  output "x" {
    external = true
  }
  body = ""
}`,
		},
		{
			name: "terminal input",
			src:  `
template "t" {
  input "x" {
    terminal = true
  }
  body = ""
}`,
		},
		{
			name: "non primitive default",
			src:  `
template "t" {
  param "p" {
    default = [1, 2]
  }
  body = ""
}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Decode("bad.hcl", []byte(tt.src))
			require.NoError(t, err)
			require.Contains(t, doc.Broken, "t")

			brokenErr := doc.Broken["t"]
			assert.True(t, errors.Is(brokenErr, ErrMalformedTemplate), "got %v", brokenErr)

			var te *TemplateError
			require.True(t, errors.As(brokenErr, &te))
			assert.Equal(t, "t", te.Template)
			assert.Equal(t, "bad.hcl", te.Source)
		})
	}
}

func TestDecode_SameNameInputAndOutput(t *testing.T) {
	src := `
template "pass" {
  input "reads" {
    shape = "pair"
  }
  output "reads" {
    shape = "pair"
  }
  body = "{{ .Inputs.reads }} -> {{ .Outputs.reads }}"
}`
	doc, err := Decode("pass.hcl", []byte(src))
	require.NoError(t, err)
	assert.Empty(t, doc.Broken)
	require.Len(t, doc.Templates, 1)
}

func TestDecode_SyntaxError(t *testing.T) {
	_, err := Decode("broken.hcl", []byte(`template "t" {`))
	assert.True(t, errors.Is(err, ErrMalformedTemplate))
}

func TestDecodeTemplate(t *testing.T) {
	tpl, err := DecodeTemplate("mentalist", []byte(validHCL))
	require.NoError(t, err)
	assert.Equal(t, "mentalist", tpl.Name)

	_, err = DecodeTemplate("other", []byte(validHCL))
	assert.True(t, errors.Is(err, ErrMalformedTemplate))
}

func TestFSSource(t *testing.T) {
	fsys := fstest.MapFS{
		"a/lib.hcl":   {Data: []byte(validHCL)},
		"b/other.hcl": {Data: []byte(`template "fastqc" { body = "fastqc" }`)},
		"README.md":   {Data: []byte("ignored")},
	}
	src := NewFSSource(fsys)
	ctx := context.Background()

	names, err := src.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fastqc", "mentalist"}, names)

	_, err = src.Template(ctx, "nope")
	assert.True(t, errors.Is(err, ErrTemplateNotFound))

	body, ok, err := src.Fragment(ctx, "status")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "afterScript 'x'", body)

	_, ok, err = src.Fragment(ctx, "compiler")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFSSource_DuplicateAcrossFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"one.hcl": {Data: []byte(`template "t" { body = "1" }`)},
		"two.hcl": {Data: []byte(`template "t" { body = "2" }`)},
	}
	_, err := NewFSSource(fsys).Template(context.Background(), "t")
	assert.True(t, errors.Is(err, ErrMalformedTemplate))
}

func TestChain(t *testing.T) {
	override := NewFSSource(fstest.MapFS{
		"o.hcl": {Data: []byte(`
template "fastqc" {
  description = "override"
  body        = "x"
}
fragment "status" { body = "override status" }
`)},
	})
	src := Chain(override, Builtin())
	ctx := context.Background()

	tpl, err := src.Template(ctx, "fastqc")
	require.NoError(t, err)
	assert.Equal(t, "override", tpl.Description)

	tpl, err = src.Template(ctx, "mentalist")
	require.NoError(t, err)
	assert.Equal(t, "mentalist", tpl.Name)

	body, ok, err := src.Fragment(ctx, "status")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "override status", body)

	_, ok, err = src.Fragment(ctx, "compiler")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = src.Template(ctx, "nope")
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}

func TestBuiltin_AllTemplatesLoad(t *testing.T) {
	store := NewStore(Builtin(), discard())
	ctx := context.Background()

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Subset(t, names, []string{"integrity_coverage", "trimmomatic", "fastqc", "mentalist", "spades", "skesa", "mlst", "abricate"})

	for _, name := range names {
		_, err := store.Load(ctx, name)
		assert.NoError(t, err, name)
	}

	fastqc, err := store.Load(ctx, "fastqc")
	require.NoError(t, err)
	assert.Equal(t, []string{"integrity_coverage"}, fastqc.Depends)
	for _, dep := range fastqc.Depends {
		assert.Contains(t, names, dep)
	}

	inputs, outputs, params, err := store.ListDeclaredSlots(ctx, "mentalist")
	require.NoError(t, err)
	assert.Len(t, inputs, 2)
	assert.Len(t, outputs, 1)
	assert.Len(t, params, 1)
}

// countingSource считает обращения к нижележащему источнику.
type countingSource struct {
	Source
	mu    sync.Mutex
	calls int
}

func (c *countingSource) Template(ctx context.Context, name string) (*domain.TaskTemplate, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Source.Template(ctx, name)
}

func TestStore_CacheAndForget(t *testing.T) {
	src := &countingSource{Source: Builtin()}
	store := NewStore(src, discard())
	ctx := context.Background()

	first, err := store.Load(ctx, "spades")
	require.NoError(t, err)
	second, err := store.Load(ctx, "spades")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, src.calls)

	store.Forget("spades")
	_, err = store.Load(ctx, "spades")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)

	// Ошибки не кэшируются
	_, err = store.Load(ctx, "nope")
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
	_, err = store.Load(ctx, "nope")
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
	assert.Equal(t, 4, src.calls)
}

func TestStore_ConcurrentLoad(t *testing.T) {
	store := NewStore(Builtin(), discard())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*domain.TaskTemplate, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tpl, err := store.Load(ctx, "mentalist")
			if err == nil {
				results[i] = tpl
			}
		}(i)
	}
	wg.Wait()

	for _, tpl := range results {
		assert.Same(t, results[0], tpl)
	}
}

func TestScanBody(t *testing.T) {
	refs, err := ScanBody("t", `{{ .Params.b }}{{ .Params.a }}{{ if .Inputs.x }}{{ .Outputs.y }}{{ end }}{{ range .Params.list }}{{ .Name }}{{ end }}{{ include "status" }}`)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "list"}, refs.Params)
	assert.Equal(t, []string{"x"}, refs.Inputs)
	assert.Equal(t, []string{"y"}, refs.Outputs)
	assert.Equal(t, []string{"status"}, refs.Includes)
}

func TestLayered(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.hcl"), []byte(`
template "fastqc" {
  description = "from dir"
  body        = "fastqc"
}
template "local_only" {
  body = "local"
}
`), 0o644))

	first := NewFSSource(fstest.MapFS{"db.hcl": {Data: []byte(`
template "local_only" {
  description = "from first"
  body        = "first"
}
`)}})

	src := Layered(first, []string{dir})

	tpl, err := src.Template(ctx, "local_only")
	require.NoError(t, err)
	assert.Equal(t, "from first", tpl.Description)

	tpl, err = src.Template(ctx, "fastqc")
	require.NoError(t, err)
	assert.Equal(t, "from dir", tpl.Description)

	// встроенная библиотека остаётся последним слоем
	_, err = src.Template(ctx, "mentalist")
	require.NoError(t, err)

	_, err = Layered(nil, nil).Template(ctx, "nope")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}
