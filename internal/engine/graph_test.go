package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shaiso/Pipewright/internal/domain"
)

// chainGraph строит граф из узлов, где каждый узел читает выход перечисленных.
func chainGraph(t *testing.T, deps map[domain.NodeID][]domain.NodeID) *Graph {
	t.Helper()
	g := NewGraph("test")

	for pid := range deps {
		ch := &domain.Channel{
			ID:       OutputChannelID("out", 1, pid),
			Name:     "out",
			Shape:    domain.ShapeFile,
			Kind:     domain.ChannelProduced,
			Producer: pid,
		}
		if err := g.AddChannel(ch); err != nil {
			t.Fatalf("add channel: %v", err)
		}
	}

	for pid, from := range deps {
		node := &domain.PipelineNode{
			ID:       pid,
			Template: "t",
			Inputs:   make(map[string]domain.ChannelID),
			Outputs:  map[string]domain.ChannelID{"out": OutputChannelID("out", 1, pid)},
		}
		for i, dep := range from {
			node.Inputs[string(rune('a'+i))] = OutputChannelID("out", 1, dep)
		}
		if err := g.AddNode(node); err != nil {
			t.Fatalf("add node: %v", err)
		}
	}
	return g
}

func TestGraph_TopologicalOrder_SimpleChain(t *testing.T) {
	// 1 → 2 → 3
	g := chainGraph(t, map[domain.NodeID][]domain.NodeID{
		1: nil,
		2: {1},
		3: {2},
	})

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []domain.NodeID{1, 2, 3}
	if !reflect.DeepEqual(order, expected) {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestGraph_TopologicalOrder_Diamond(t *testing.T) {
	// 1 → 3 → 4
	// 1 → 2 → 4
	g := chainGraph(t, map[domain.NodeID][]domain.NodeID{
		1: nil,
		3: {1},
		2: {1},
		4: {2, 3},
	})

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// При равенстве первым идёт меньший pid
	expected := []domain.NodeID{1, 2, 3, 4}
	if !reflect.DeepEqual(order, expected) {
		t.Errorf("expected %v, got %v", expected, order)
	}

	if deps := g.Dependencies(4); !reflect.DeepEqual(deps, []domain.NodeID{2, 3}) {
		t.Errorf("node 4 should depend on 2 and 3, got %v", deps)
	}
	if consumers := g.Consumers(OutputChannelID("out", 1, 1)); !reflect.DeepEqual(consumers, []domain.NodeID{2, 3}) {
		t.Errorf("channel of 1 should be consumed by 2 and 3, got %v", consumers)
	}
}

func TestGraph_TopologicalOrder_Cycle(t *testing.T) {
	tests := []struct {
		name string
		deps map[domain.NodeID][]domain.NodeID
	}{
		{
			name: "self loop",
			deps: map[domain.NodeID][]domain.NodeID{1: {1}},
		},
		{
			name: "two nodes",
			deps: map[domain.NodeID][]domain.NodeID{1: {2}, 2: {1}},
		},
		{
			name: "cycle after root",
			deps: map[domain.NodeID][]domain.NodeID{1: nil, 2: {1, 4}, 3: {2}, 4: {3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := chainGraph(t, tt.deps)
			_, err := g.TopologicalOrder()
			if !errors.Is(err, ErrCyclicGraph) {
				t.Errorf("expected ErrCyclicGraph, got %v", err)
			}
		})
	}
}

func TestGraph_Frozen(t *testing.T) {
	g := NewGraph("test")
	g.Freeze()

	if !g.Frozen() {
		t.Fatal("graph should be frozen")
	}

	if err := g.AddNode(&domain.PipelineNode{ID: 1}); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("AddNode: expected ErrGraphFrozen, got %v", err)
	}
	if err := g.AddChannel(&domain.Channel{ID: "x"}); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("AddChannel: expected ErrGraphFrozen, got %v", err)
	}
	if err := g.AddFork(&domain.Fork{ID: "fork_1"}); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("AddFork: expected ErrGraphFrozen, got %v", err)
	}
	if err := g.AddTemplate(&domain.TaskTemplate{Name: "t"}); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("AddTemplate: expected ErrGraphFrozen, got %v", err)
	}
}

func TestGraph_Duplicates(t *testing.T) {
	g := NewGraph("test")

	if err := g.AddNode(&domain.PipelineNode{ID: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddNode(&domain.PipelineNode{ID: 1}); err == nil {
		t.Error("expected error for duplicate pid")
	}

	if err := g.AddChannel(&domain.Channel{ID: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddChannel(&domain.Channel{ID: "a"}); err == nil {
		t.Error("expected error for duplicate channel")
	}
}

func TestGraph_ExternalChannelsAreNotDependencies(t *testing.T) {
	g := NewGraph("test")
	_ = g.AddChannel(&domain.Channel{ID: "kmer_db_1", Kind: domain.ChannelExternal})
	_ = g.AddChannel(&domain.Channel{ID: "fastq_pair_in", Kind: domain.ChannelSource})
	_ = g.AddNode(&domain.PipelineNode{
		ID: 1,
		Inputs: map[string]domain.ChannelID{
			"kmer_db":    "kmer_db_1",
			"fastq_pair": "fastq_pair_in",
		},
	})

	if deps := g.Dependencies(1); len(deps) != 0 {
		t.Errorf("expected no dependencies, got %v", deps)
	}
	if got := g.ChannelsOfKind(domain.ChannelSource); len(got) != 1 || got[0].ID != "fastq_pair_in" {
		t.Errorf("expected one source channel, got %v", got)
	}
}
