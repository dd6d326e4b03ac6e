package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shaiso/Pipewright/internal/domain"
)

func steps(names ...string) domain.Segment {
	seg := make(domain.Segment, 0, len(names))
	for _, n := range names {
		seg = append(seg, domain.Step{Template: n})
	}
	return seg
}

func forkOf(branches ...domain.Segment) domain.Step {
	return domain.Step{Fork: &domain.ForkSpec{Branches: branches}}
}

func TestParseTopology_Valid(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		expected domain.Segment
	}{
		{
			name:     "single",
			pipeline: "mentalist",
			expected: steps("mentalist"),
		},
		{
			name:     "linear",
			pipeline: "  integrity_coverage   trimmomatic\tfastqc ",
			expected: steps("integrity_coverage", "trimmomatic", "fastqc"),
		},
		{
			name:     "fork at end",
			pipeline: "trimmomatic (spades | skesa)",
			expected: append(steps("trimmomatic"), forkOf(steps("spades"), steps("skesa"))),
		},
		{
			name:     "fork at start",
			pipeline: "(spades mlst|skesa abricate)",
			expected: domain.Segment{forkOf(steps("spades", "mlst"), steps("skesa", "abricate"))},
		},
		{
			name:     "nested fork",
			pipeline: "trimmomatic (spades (mlst | abricate) | skesa)",
			expected: append(steps("trimmomatic"), forkOf(
				append(steps("spades"), forkOf(steps("mlst"), steps("abricate"))),
				steps("skesa"),
			)),
		},
		{
			name:     "single branch fork",
			pipeline: "a (b)",
			expected: append(steps("a"), forkOf(steps("b"))),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topo, err := ParseTopology(tt.pipeline)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(topo.Root, tt.expected) {
				t.Errorf("expected %+v, got %+v", tt.expected, topo.Root)
			}
		})
	}
}

func TestParseTopology_Errors(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		err      error
	}{
		{"empty", "", ErrTopologySyntax},
		{"blank", "   ", ErrTopologySyntax},
		{"step after fork", "a (b | c) d", ErrTopologySyntax},
		{"fork after fork", "a (b | c) (d | e)", ErrTopologySyntax},
		{"unclosed fork", "a (b | c", ErrTopologySyntax},
		{"stray close", "a b)", ErrTopologySyntax},
		{"stray bar", "a | b", ErrTopologySyntax},
		{"bad character", "a;b", ErrTopologySyntax},
		{"no branches", "a ()", ErrEmptyForkSpec},
		{"empty branch", "a (b | )", ErrEmptyForkSpec},
		{"empty first branch", "a ( | b)", ErrEmptyForkSpec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTopology(tt.pipeline)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}

			var topoErr *TopologyError
			if !errors.As(err, &topoErr) {
				t.Fatalf("expected TopologyError, got %T", err)
			}
		})
	}
}

func TestParseTopology_ErrorPosition(t *testing.T) {
	_, err := ParseTopology("a (b | c) d")

	var topoErr *TopologyError
	if !errors.As(err, &topoErr) {
		t.Fatalf("expected TopologyError, got %v", err)
	}
	if topoErr.Pos != 10 {
		t.Errorf("expected position 10, got %d", topoErr.Pos)
	}
}

func TestFormatTopology_RoundTrip(t *testing.T) {
	pipelines := []string{
		"mentalist",
		"integrity_coverage trimmomatic (spades mlst | skesa abricate)",
		"(a | b (c | d) | e)",
	}

	for _, p := range pipelines {
		t.Run(p, func(t *testing.T) {
			topo, err := ParseTopology(p)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			formatted := FormatTopology(topo)
			if formatted != p {
				t.Errorf("expected %q, got %q", p, formatted)
			}

			again, err := ParseTopology(formatted)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(again, topo) {
				t.Error("re-parsed topology differs")
			}
		})
	}
}

func TestReplicate(t *testing.T) {
	fork := domain.Replicate(steps("spades", "mlst"), 3)
	if len(fork.Branches) != 3 {
		t.Fatalf("expected 3 branches, got %d", len(fork.Branches))
	}

	// Ветки независимы
	fork.Branches[0][0].Template = "changed"
	if fork.Branches[1][0].Template != "spades" {
		t.Error("branches should not share backing arrays")
	}

	topo := domain.Topology{Root: domain.Segment{{Fork: domain.Replicate(steps("x"), 2)}}}
	if got := FormatTopology(topo); got != "(x | x)" {
		t.Errorf("expected (x | x), got %q", got)
	}
}
