package catalog

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/shaiso/Pipewright/internal/domain"
)

// fileRoot — все блоки верхнего уровня файла библиотеки.
type fileRoot struct {
	Templates []*templateBlock `hcl:"template,block"`
	Fragments []*fragmentBlock `hcl:"fragment,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type templateBlock struct {
	Name        string        `hcl:"name,label"`
	Description string        `hcl:"description,optional"`
	Includes    []string      `hcl:"includes,optional"`
	Depends     []string      `hcl:"depends,optional"`
	Inputs      []*slotBlock  `hcl:"input,block"`
	Outputs     []*slotBlock  `hcl:"output,block"`
	Params      []*paramBlock `hcl:"param,block"`
	Body        string        `hcl:"body"`
}

type slotBlock struct {
	Name     string `hcl:"name,label"`
	Shape    string `hcl:"shape,optional"`
	External bool   `hcl:"external,optional"`
	Terminal bool   `hcl:"terminal,optional"`
}

type paramBlock struct {
	Name    string         `hcl:"name,label"`
	Default hcl.Expression `hcl:"default,optional"`
	Path    bool           `hcl:"path,optional"`
}

type fragmentBlock struct {
	Name string `hcl:"name,label"`
	Body string `hcl:"body"`
}

// Document — разобранный файл библиотеки шаблонов.
type Document struct {
	// Templates — корректные шаблоны файла.
	Templates []*domain.TaskTemplate

	// Broken — шаблоны, не прошедшие проверку: имя → ошибка.
	Broken map[string]error

	// Fragments — вспомогательные фрагменты: имя → тело.
	Fragments map[string]string
}

// Decode разбирает HCL файл библиотеки.
//
// Синтаксические ошибки файла возвращаются как ErrMalformedTemplate.
// Ошибки отдельных шаблонов не прерывают разбор: такие шаблоны
// попадают в Document.Broken.
func Decode(filename string, src []byte) (*Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, &TemplateError{Source: filename, Message: diags.Error(), Err: ErrMalformedTemplate}
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, &TemplateError{Source: filename, Message: diags.Error(), Err: ErrMalformedTemplate}
	}

	doc := &Document{
		Broken:    make(map[string]error),
		Fragments: make(map[string]string),
	}

	for _, block := range root.Templates {
		tpl, err := translateTemplate(filename, block)
		if err != nil {
			doc.Broken[block.Name] = err
			continue
		}
		doc.Templates = append(doc.Templates, tpl)
	}

	for _, block := range root.Fragments {
		if _, dup := doc.Fragments[block.Name]; dup {
			return nil, malformed("", filename, fmt.Sprintf("duplicate fragment %q", block.Name))
		}
		doc.Fragments[block.Name] = block.Body
	}

	return doc, nil
}

// DecodeTemplate разбирает источник, содержащий ровно один шаблон name.
// Используется для шаблонов, которые хранятся в БД.
func DecodeTemplate(name string, src []byte) (*domain.TaskTemplate, error) {
	doc, err := Decode(name+".hcl", src)
	if err != nil {
		return nil, err
	}
	if err, ok := doc.Broken[name]; ok {
		return nil, err
	}
	for _, tpl := range doc.Templates {
		if tpl.Name == name {
			return tpl, nil
		}
	}
	return nil, malformed(name, name+".hcl", "source does not define this template")
}

// translateTemplate переводит HCL блок в domain.TaskTemplate и проверяет его.
func translateTemplate(filename string, block *templateBlock) (*domain.TaskTemplate, error) {
	tpl := &domain.TaskTemplate{
		Name:        block.Name,
		Description: block.Description,
		Body:        block.Body,
		Includes:    block.Includes,
		Depends:     block.Depends,
	}

	for _, dep := range block.Depends {
		if dep == "" || dep == block.Name {
			return nil, malformed(block.Name, filename, fmt.Sprintf("invalid dependency %q", dep))
		}
	}

	// Входы и параметры делят одно пространство имён (external вход —
	// неявный параметр), у выходов своё.
	inputNames := make(map[string]string)
	outputNames := make(map[string]string)
	claim := func(seen map[string]string, kind, name string) error {
		if name == "" {
			return malformed(block.Name, filename, kind+" has empty name")
		}
		if prev, ok := seen[name]; ok {
			return malformed(block.Name, filename,
				fmt.Sprintf("%s %q clashes with %s of the same name", kind, name, prev))
		}
		seen[name] = kind
		return nil
	}

	for _, in := range block.Inputs {
		if err := claim(inputNames, "input", in.Name); err != nil {
			return nil, err
		}
		shape, err := domain.ParseShape(in.Shape)
		if err != nil {
			return nil, malformed(block.Name, filename, fmt.Sprintf("input %q: %v", in.Name, err))
		}
		if in.Terminal {
			return nil, malformed(block.Name, filename, fmt.Sprintf("input %q cannot be terminal", in.Name))
		}
		tpl.Inputs = append(tpl.Inputs, domain.Slot{Name: in.Name, Shape: shape, External: in.External})
		if in.External {
			tpl.Params = append(tpl.Params, domain.ParamSlot{Name: in.Name, Path: true})
		}
	}

	for _, out := range block.Outputs {
		if err := claim(outputNames, "output", out.Name); err != nil {
			return nil, err
		}
		shape, err := domain.ParseShape(out.Shape)
		if err != nil {
			return nil, malformed(block.Name, filename, fmt.Sprintf("output %q: %v", out.Name, err))
		}
		if out.External {
			return nil, malformed(block.Name, filename, fmt.Sprintf("output %q cannot be external", out.Name))
		}
		tpl.Outputs = append(tpl.Outputs, domain.Slot{Name: out.Name, Shape: shape, Terminal: out.Terminal})
	}

	for _, p := range block.Params {
		if err := claim(inputNames, "param", p.Name); err != nil {
			return nil, err
		}
		def, err := evalDefault(p.Default)
		if err != nil {
			return nil, malformed(block.Name, filename, fmt.Sprintf("param %q default: %v", p.Name, err))
		}
		tpl.Params = append(tpl.Params, domain.ParamSlot{Name: p.Name, Default: def, Path: p.Path})
	}

	if err := CheckBody(tpl); err != nil {
		var te *TemplateError
		if errors.As(err, &te) {
			te.Source = filename
		}
		return nil, err
	}

	return tpl, nil
}

// evalDefault вычисляет выражение default в строку. nil — default не задан.
func evalDefault(expr hcl.Expression) (*string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}

	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return nil, fmt.Errorf("must be a primitive value: %w", err)
	}
	s := str.AsString()
	return &s, nil
}
