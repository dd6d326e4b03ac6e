package catalog

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/shaiso/Pipewright/internal/domain"
)

// Поля контекста рендеринга, доступные в теле шаблона.
var bodyFields = map[string]bool{
	"Pid":      true,
	"Instance": true,
	"Lane":     true,
	"Template": true,
	"Params":   true,
	"Inputs":   true,
	"Outputs":  true,
}

// References — ссылки тела шаблона на слоты и точки включения.
type References struct {
	Params   []string
	Inputs   []string
	Outputs  []string
	Includes []string
}

// CheckBody разбирает тело шаблона и сверяет ссылки с объявлениями.
//
// Ошибка разбора, ссылка на необъявленный слот или параметр и вызов
// include с необъявленной точкой включения — ErrMalformedTemplate.
func CheckBody(tpl *domain.TaskTemplate) error {
	refs, err := ScanBody(tpl.Name, tpl.Body)
	if err != nil {
		return malformed(tpl.Name, "", err.Error())
	}

	declared := func(names []string, has func(string) bool, kind string) error {
		for _, name := range names {
			if !has(name) {
				return malformed(tpl.Name, "", fmt.Sprintf("body references undeclared %s %q", kind, name))
			}
		}
		return nil
	}

	hasParam := func(name string) bool {
		for _, p := range tpl.Params {
			if p.Name == name {
				return true
			}
		}
		return false
	}
	hasInput := func(name string) bool { _, ok := tpl.Input(name); return ok }
	hasOutput := func(name string) bool { _, ok := tpl.Output(name); return ok }

	if err := declared(refs.Params, hasParam, "param"); err != nil {
		return err
	}
	if err := declared(refs.Inputs, hasInput, "input"); err != nil {
		return err
	}
	if err := declared(refs.Outputs, hasOutput, "output"); err != nil {
		return err
	}
	return declared(refs.Includes, tpl.DeclaresInclude, "include point")
}

// ScanBody разбирает тело и собирает ссылки .Params.x, .Inputs.x,
// .Outputs.x и вызовы include "x".
func ScanBody(name, body string) (*References, error) {
	t, err := template.New(name).Funcs(BodyFuncs()).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse body: %w", err)
	}

	s := &scanner{
		params:   make(map[string]bool),
		inputs:   make(map[string]bool),
		outputs:  make(map[string]bool),
		includes: make(map[string]bool),
	}
	if t.Tree != nil {
		s.walk(t.Tree.Root, true)
	}
	if s.err != nil {
		return nil, s.err
	}

	return &References{
		Params:   sortedKeys(s.params),
		Inputs:   sortedKeys(s.inputs),
		Outputs:  sortedKeys(s.outputs),
		Includes: sortedKeys(s.includes),
	}, nil
}

type scanner struct {
	params   map[string]bool
	inputs   map[string]bool
	outputs  map[string]bool
	includes map[string]bool
	err      error
}

// walk обходит дерево разбора. rootDot — точка указывает на контекст
// рендеринга (внутри range/with точка другая, поля там не проверяются).
func (s *scanner) walk(node parse.Node, rootDot bool) {
	if node == nil || s.err != nil {
		return
	}

	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			s.walk(child, rootDot)
		}
	case *parse.ActionNode:
		s.walk(n.Pipe, rootDot)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			s.walk(cmd, rootDot)
		}
	case *parse.CommandNode:
		s.command(n, rootDot)
	case *parse.IfNode:
		s.walk(n.Pipe, rootDot)
		s.walk(n.List, rootDot)
		s.walk(n.ElseList, rootDot)
	case *parse.RangeNode:
		s.walk(n.Pipe, rootDot)
		s.walk(n.List, false)
		s.walk(n.ElseList, rootDot)
	case *parse.WithNode:
		s.walk(n.Pipe, rootDot)
		s.walk(n.List, false)
		s.walk(n.ElseList, rootDot)
	case *parse.TemplateNode:
		s.walk(n.Pipe, rootDot)
	case *parse.FieldNode:
		if rootDot {
			s.field(n.Ident)
		}
	case *parse.ChainNode:
		s.walk(n.Node, rootDot)
	}
}

func (s *scanner) command(cmd *parse.CommandNode, rootDot bool) {
	if len(cmd.Args) >= 2 {
		if ident, ok := cmd.Args[0].(*parse.IdentifierNode); ok && ident.Ident == IncludeFunc {
			str, ok := cmd.Args[1].(*parse.StringNode)
			if !ok {
				s.err = fmt.Errorf("%s expects a string literal, got %s", IncludeFunc, cmd.Args[1])
				return
			}
			s.includes[str.Text] = true
		}
	}
	for _, arg := range cmd.Args {
		s.walk(arg, rootDot)
	}
}

func (s *scanner) field(ident []string) {
	if len(ident) == 0 {
		return
	}
	if !bodyFields[ident[0]] {
		s.err = fmt.Errorf("unknown field .%s", strings.Join(ident, "."))
		return
	}
	if len(ident) < 2 {
		return
	}
	switch ident[0] {
	case "Params":
		s.params[ident[1]] = true
	case "Inputs":
		s.inputs[ident[1]] = true
	case "Outputs":
		s.outputs[ident[1]] = true
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
