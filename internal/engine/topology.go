package engine

import (
	"fmt"
	"strings"

	"github.com/shaiso/Pipewright/internal/domain"
)

// ParseTopology разбирает строку pipeline в Topology.
//
// Грамматика:
//
//	segment := step* [fork]
//	fork    := "(" segment ("|" segment)* ")"
//
// Fork может стоять только последним шагом сегмента: после ")"
// сегмент заканчивается. Пример:
//
//	integrity_coverage trimmomatic (spades mlst | skesa abricate)
//
// Ошибки: ErrTopologySyntax, ErrEmptyForkSpec (обе внутри *TopologyError).
func ParseTopology(pipeline string) (domain.Topology, error) {
	p := &topologyParser{tokens: tokenize(pipeline)}

	root, err := p.segment()
	if err != nil {
		return domain.Topology{}, err
	}

	if tok := p.peek(); tok.kind != tokEOF {
		return domain.Topology{}, p.errorf(tok, ErrTopologySyntax, "unexpected %q", tok.text)
	}
	if len(root) == 0 {
		return domain.Topology{}, &TopologyError{Pos: 0, Message: "pipeline is empty", Err: ErrTopologySyntax}
	}

	return domain.Topology{Root: root}, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokName
	tokOpen
	tokClose
	tokBar
	tokInvalid
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// tokenize разбивает строку на токены. Имена шаблонов — буквы, цифры, '_', '-' и '.'.
func tokenize(s string) []token {
	var tokens []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokOpen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokClose, text: ")", pos: i})
			i++
		case c == '|':
			tokens = append(tokens, token{kind: tokBar, text: "|", pos: i})
			i++
		case isNameByte(c):
			start := i
			for i < len(s) && isNameByte(s[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokName, text: s[start:i], pos: start})
		default:
			tokens = append(tokens, token{kind: tokInvalid, text: string(c), pos: i})
			i++
		}
	}
	return append(tokens, token{kind: tokEOF, text: "end of pipeline", pos: len(s)})
}

func isNameByte(c byte) bool {
	return c == '_' || c == '-' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

type topologyParser struct {
	tokens []token
	pos    int
}

func (p *topologyParser) peek() token {
	return p.tokens[p.pos]
}

func (p *topologyParser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *topologyParser) errorf(tok token, base error, format string, args ...any) *TopologyError {
	return &TopologyError{Pos: tok.pos, Message: fmt.Sprintf(format, args...), Err: base}
}

// segment читает шаги до ")", "|" или конца строки.
func (p *topologyParser) segment() (domain.Segment, error) {
	var seg domain.Segment

	for {
		tok := p.peek()
		switch tok.kind {
		case tokName:
			p.next()
			seg = append(seg, domain.Step{Template: tok.text})

		case tokOpen:
			fork, err := p.fork()
			if err != nil {
				return nil, err
			}
			seg = append(seg, domain.Step{Fork: fork})

			// После fork сегмент обязан закончиться
			if after := p.peek(); after.kind == tokName || after.kind == tokOpen {
				return nil, p.errorf(after, ErrTopologySyntax,
					"%q follows a fork; a fork must be the last step of its lane", after.text)
			}
			return seg, nil

		case tokInvalid:
			return nil, p.errorf(tok, ErrTopologySyntax, "unexpected character %q", tok.text)

		default:
			return seg, nil
		}
	}
}

// fork читает "(" segment ("|" segment)* ")".
func (p *topologyParser) fork() (*domain.ForkSpec, error) {
	open := p.next()
	spec := &domain.ForkSpec{}

	for {
		start := p.peek()
		branch, err := p.segment()
		if err != nil {
			return nil, err
		}
		if len(branch) == 0 {
			if start.kind == tokClose && len(spec.Branches) == 0 {
				return nil, p.errorf(open, ErrEmptyForkSpec, "fork has no branches")
			}
			return nil, p.errorf(start, ErrEmptyForkSpec, "fork branch %d is empty", len(spec.Branches)+1)
		}
		spec.Branches = append(spec.Branches, branch)

		tok := p.next()
		switch tok.kind {
		case tokBar:
			continue
		case tokClose:
			return spec, nil
		default:
			return nil, p.errorf(tok, ErrTopologySyntax, "unclosed fork opened at %d", open.pos)
		}
	}
}

// FormatTopology возвращает каноническую строку pipeline.
// ParseTopology(FormatTopology(t)) даёт структурно равную топологию.
func FormatTopology(t domain.Topology) string {
	return formatSegment(t.Root)
}

func formatSegment(seg domain.Segment) string {
	parts := make([]string, 0, len(seg))
	for _, step := range seg {
		if !step.IsFork() {
			parts = append(parts, step.Template)
			continue
		}
		branches := make([]string, 0, len(step.Fork.Branches))
		for _, b := range step.Fork.Branches {
			branches = append(branches, formatSegment(b))
		}
		parts = append(parts, "("+strings.Join(branches, " | ")+")")
	}
	return strings.Join(parts, " ")
}
