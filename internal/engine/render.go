package engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/shaiso/Pipewright/internal/catalog"
	"github.com/shaiso/Pipewright/internal/domain"
)

// Имена фрагментов, которыми можно переопределить встроенный текст.
const (
	// SourceFragment — объявление пользовательского входного канала.
	SourceFragment = "source"

	// ForkEpilogueFragment — эпилог одного fork.
	ForkEpilogueFragment = "fork_epilogue"
)

// NodeContext — данные, доступные в теле шаблона:
//
//	{{ .Pid }} {{ .Lane }} {{ .Params.kmer_db }}
//	{{ .Inputs.fastq_pair }} {{ .Outputs.mentalist_out }}
type NodeContext struct {
	Pid      int
	Instance string
	Lane     int
	Template string
	Params   map[string]string
	Inputs   map[string]string
	Outputs  map[string]string
}

// SourceContext — данные фрагмента source.
type SourceContext struct {
	ID    string
	Name  string
	Shape string
	Path  string
}

// ForkContext — данные фрагмента fork_epilogue.
type ForkContext struct {
	ID      string
	Source  string
	Lanes   []int
	Outputs []string
	Output  string
}

// FragmentProvider — источник вспомогательных фрагментов.
// Отсутствие фрагмента — ok=false, не ошибка.
type FragmentProvider interface {
	Fragment(ctx context.Context, name string) (string, bool)
}

// Renderer — Script Renderer: проецирует замороженный граф в текст скрипта.
type Renderer struct {
	fragments FragmentProvider
}

// NewRenderer создаёт Renderer. fragments может быть nil: тогда
// точки включения всегда пусты и используется встроенный текст.
func NewRenderer(fragments FragmentProvider) *Renderer {
	return &Renderer{fragments: fragments}
}

// Render рендерит граф.
//
// Порядок: заголовок, объявления источников, блоки узлов в топологическом
// порядке (при равенстве — по pid), эпилог каждого fork. Один и тот же
// замороженный граф всегда даёт одинаковый текст.
//
// Ошибки: ErrGraphNotFrozen, ErrCyclicGraph, ErrMalformedTemplate.
func (r *Renderer) Render(ctx context.Context, g *Graph) (string, error) {
	if !g.Frozen() {
		return "", ErrGraphNotFrozen
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return "", err
	}

	rc := &renderCall{ctx: ctx, r: r, cache: make(map[string]*template.Template)}

	var out strings.Builder
	out.WriteString(header(g.Name))

	if sources := g.ChannelsOfKind(domain.ChannelSource); len(sources) > 0 {
		out.WriteString("\n")
		for _, ch := range sources {
			line, err := rc.source(ch)
			if err != nil {
				return "", err
			}
			out.WriteString(line)
		}
	}

	for _, pid := range order {
		node, _ := g.Node(pid)
		tpl, ok := g.Template(node.Template)
		if !ok {
			return "", NewSlotError(node.Template, node.Instance, "",
				"template is not registered in the graph", ErrTemplateNotFound)
		}

		block, err := rc.node(node, tpl)
		if err != nil {
			return "", err
		}
		out.WriteString("\n")
		out.WriteString(block)
	}

	for _, f := range g.Forks() {
		epilogue, err := rc.fork(f)
		if err != nil {
			return "", err
		}
		out.WriteString("\n")
		out.WriteString(epilogue)
	}

	return out.String(), nil
}

func header(name string) string {
	var b strings.Builder
	b.WriteString("#!/usr/bin/env nextflow\n\n")
	if name != "" {
		fmt.Fprintf(&b, "// Pipeline: %s\n", name)
	}
	b.WriteString("// Generated by pipewright\n")
	return b.String()
}

// renderCall — состояние одного вызова Render (кэш разобранных фрагментов).
type renderCall struct {
	ctx   context.Context
	r     *Renderer
	cache map[string]*template.Template
}

func (rc *renderCall) fragment(name string) (string, bool) {
	if rc.r.fragments == nil {
		return "", false
	}
	return rc.r.fragments.Fragment(rc.ctx, name)
}

// parse разбирает тело с общими функциями; include подменяется на вызов fn.
func parse(name, body string, include func(string) (string, error)) (*template.Template, error) {
	funcs := catalog.BodyFuncs()
	if include != nil {
		funcs[catalog.IncludeFunc] = include
	}
	return template.New(name).Funcs(funcs).Option("missingkey=error").Parse(body)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), " \t\n") + "\n", nil
}

// node рендерит блок одного узла.
func (rc *renderCall) node(node *domain.PipelineNode, tpl *domain.TaskTemplate) (string, error) {
	data := NewNodeContext(node)

	include := func(name string) (string, error) {
		if !tpl.DeclaresInclude(name) {
			return "", fmt.Errorf("include %q is not declared by the template", name)
		}
		body, ok := rc.fragment(name)
		if !ok {
			return "", nil
		}
		frag, err := parse(tpl.Name+"/"+name, body, nil)
		if err != nil {
			return "", fmt.Errorf("fragment %q: %v", name, err)
		}
		text, err := execute(frag, data)
		if err != nil {
			return "", fmt.Errorf("fragment %q: %v", name, err)
		}
		return strings.TrimSuffix(text, "\n"), nil
	}

	t, err := parse(tpl.Name, tpl.Body, include)
	if err != nil {
		return "", NewSlotError(tpl.Name, node.Instance, "", err.Error(), ErrMalformedTemplate)
	}
	text, err := execute(t, data)
	if err != nil {
		return "", NewSlotError(tpl.Name, node.Instance, "", err.Error(), ErrMalformedTemplate)
	}
	return text, nil
}

// NewNodeContext строит данные тела шаблона для узла.
func NewNodeContext(node *domain.PipelineNode) NodeContext {
	data := NodeContext{
		Pid:      int(node.ID),
		Instance: node.Instance,
		Lane:     node.Lane,
		Template: node.Template,
		Params:   node.Params.Literals(),
		Inputs:   make(map[string]string, len(node.Inputs)),
		Outputs:  make(map[string]string, len(node.Outputs)),
	}
	for slot, id := range node.Inputs {
		data.Inputs[slot] = string(id)
	}
	for slot, id := range node.Outputs {
		data.Outputs[slot] = string(id)
	}
	return data
}

// source рендерит объявление пользовательского источника.
func (rc *renderCall) source(ch *domain.Channel) (string, error) {
	data := SourceContext{
		ID:    string(ch.ID),
		Name:  ch.Name,
		Shape: string(ch.Shape),
		Path:  ch.Resource,
	}
	if text, ok, err := rc.override(SourceFragment, data); ok || err != nil {
		return text, err
	}

	path := quote(ch.Resource)
	switch ch.Shape {
	case domain.ShapePair:
		return fmt.Sprintf("%s = Channel.fromFilePairs(%s)\n", ch.ID, path), nil
	case domain.ShapeList:
		return fmt.Sprintf("%s = Channel.fromPath(%s).collect()\n", ch.ID, path), nil
	case domain.ShapeValue:
		return fmt.Sprintf("%s = Channel.value(%s)\n", ch.ID, path), nil
	default:
		return fmt.Sprintf("%s = Channel.fromPath(%s)\n", ch.ID, path), nil
	}
}

// fork рендерит эпилог fork: объединение выходов веток в один канал.
func (rc *renderCall) fork(f *domain.Fork) (string, error) {
	data := ForkContext{
		ID:      f.ID,
		Source:  string(f.Source),
		Lanes:   f.Lanes,
		Outputs: f.Outputs,
		Output:  f.OutputRef(),
	}
	if text, ok, err := rc.override(ForkEpilogueFragment, data); ok || err != nil {
		return text, err
	}

	lanes := make([]string, 0, len(f.Lanes))
	for _, l := range f.Lanes {
		lanes = append(lanes, fmt.Sprint(l))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "// %s from %s into lanes %s\n", f.ID, sourceLabel(f.Source), strings.Join(lanes, ", "))
	switch len(f.Outputs) {
	case 0:
	case 1:
		fmt.Fprintf(&b, "%s = %s\n", f.OutputRef(), f.Outputs[0])
	default:
		fmt.Fprintf(&b, "%s = %s.mix(%s)\n", f.OutputRef(), f.Outputs[0], strings.Join(f.Outputs[1:], ", "))
	}
	return b.String(), nil
}

// override рендерит фрагмент, переопределяющий встроенный текст.
func (rc *renderCall) override(name string, data any) (string, bool, error) {
	t, ok := rc.cache[name]
	if !ok {
		body, found := rc.fragment(name)
		if !found {
			rc.cache[name] = nil
			return "", false, nil
		}
		parsed, err := parse(name, body, nil)
		if err != nil {
			return "", true, fmt.Errorf("%w: fragment %q: %v", ErrMalformedTemplate, name, err)
		}
		rc.cache[name] = parsed
		t = parsed
	}
	if t == nil {
		return "", false, nil
	}

	text, err := execute(t, data)
	if err != nil {
		return "", true, fmt.Errorf("%w: fragment %q: %v", ErrMalformedTemplate, name, err)
	}
	return text, true, nil
}

func sourceLabel(id domain.ChannelID) string {
	if id == "" {
		return "pipeline sources"
	}
	return string(id)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
