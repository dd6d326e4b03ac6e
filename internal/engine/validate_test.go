package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Pipewright/internal/domain"
)

func TestValidate_CyclicGraphRejected(t *testing.T) {
	g := chainGraph(t, map[domain.NodeID][]domain.NodeID{1: {2}, 2: {1}})

	report := Validate(g, existing())
	require.True(t, report.HasErrors())
	assert.True(t, errors.Is(report.Err(), ErrCyclicGraph))
}

func TestValidate_UnboundAndDanglingChannels(t *testing.T) {
	g := NewGraph("test")
	tpl := &domain.TaskTemplate{
		Name:    "t",
		Inputs:  []domain.Slot{{Name: "a", Shape: domain.ShapeFile}, {Name: "b", Shape: domain.ShapeFile}},
		Outputs: []domain.Slot{{Name: "out", Shape: domain.ShapeFile, Terminal: true}},
	}
	require.NoError(t, g.AddTemplate(tpl))
	require.NoError(t, g.AddNode(&domain.PipelineNode{
		ID:       1,
		Instance: "1",
		Template: "t",
		Inputs:   map[string]domain.ChannelID{"a": "ghost"},
		Outputs:  map[string]domain.ChannelID{},
	}))

	report := Validate(g, existing())
	err := report.Err()
	assert.True(t, errors.Is(err, ErrUnresolvedChannel))
	assert.True(t, errors.Is(err, ErrUnboundSlot))

	slots := make(map[string]string)
	for _, issue := range report.Issues {
		slots[issue.Slot] = issue.Code
	}
	assert.Equal(t, "UnresolvedChannel", slots["a"])
	assert.Equal(t, "UnboundSlot", slots["b"])
	assert.Equal(t, "UnboundSlot", slots["out"])
}

func TestValidate_ExternalResourceRemoved(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddChannel(&domain.Channel{
		ID:       "kmer_db_1",
		Kind:     domain.ChannelExternal,
		Resource: "/data/db1",
		Key:      domain.ParamKey{Name: "kmer_db", Instance: "1"},
	}))

	report := Validate(g, existing())
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "ExternalResourceNotFound", report.Issues[0].Code)
	assert.Contains(t, report.Issues[0].Message, "kmer_db1")

	assert.False(t, Validate(g, existing("/data/db1")).HasErrors())
}

func TestReport_Dedup(t *testing.T) {
	r := NewReport()
	err := NewSlotError("t", "1", "x", "boom", ErrUnboundSlot)

	r.Error(1, err)
	r.Error(1, err)
	r.Warn(2, NewSlotError("t", "2", "y", "unused", ErrUnconsumedOutput))

	assert.Len(t, r.Issues, 2)
	assert.Len(t, r.Warnings(), 1)
	assert.True(t, r.HasErrors())

	other := NewReport()
	other.Error(1, err)
	other.Error(3, NewSlotError("t", "3", "z", "boom", ErrUnboundSlot))
	r.Merge(other)
	assert.Len(t, r.Issues, 3)

	warnOnly := NewReport()
	warnOnly.Warn(1, NewSlotError("t", "1", "y", "unused", ErrUnconsumedOutput))
	assert.False(t, warnOnly.HasErrors())
	assert.NoError(t, warnOnly.Err())
}

func TestValidate_TwoMissingResourcesOnOneNode(t *testing.T) {
	g := NewGraph("test")
	tpl := &domain.TaskTemplate{
		Name: "t",
		Inputs: []domain.Slot{
			{Name: "db_a", Shape: domain.ShapeFile, External: true},
			{Name: "db_b", Shape: domain.ShapeFile, External: true},
		},
	}
	require.NoError(t, g.AddTemplate(tpl))
	for _, ch := range []*domain.Channel{
		{ID: "db_a_1", Kind: domain.ChannelExternal, Resource: "/x/a", Key: domain.ParamKey{Name: "db_a", Instance: "1"}},
		{ID: "db_b_1", Kind: domain.ChannelExternal, Resource: "/x/b", Key: domain.ParamKey{Name: "db_b", Instance: "1"}},
	} {
		require.NoError(t, g.AddChannel(ch))
	}
	require.NoError(t, g.AddNode(&domain.PipelineNode{
		ID:       1,
		Instance: "1",
		Template: "t",
		Inputs:   map[string]domain.ChannelID{"db_a": "db_a_1", "db_b": "db_b_1"},
		Outputs:  map[string]domain.ChannelID{},
	}))

	report := Validate(g, existing())
	require.Len(t, report.Issues, 2)
	msgs := []string{report.Issues[0].Message, report.Issues[1].Message}
	assert.Contains(t, strings.Join(msgs, "\n"), "'db_a1'")
	assert.Contains(t, strings.Join(msgs, "\n"), "'db_b1'")

	merged := NewReport()
	merged.Merge(report)
	merged.Merge(report)
	assert.Len(t, merged.Issues, 2)
}
