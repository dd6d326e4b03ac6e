package engine

import (
	"fmt"

	"github.com/shaiso/Pipewright/internal/domain"
)

// Validate проверяет граф сборки и возвращает все найденные проблемы.
//
// Проверяет:
//   - отсутствие циклов (ErrCyclicGraph)
//   - каждый объявленный слот связан (ErrUnboundSlot)
//   - каждый канал, на который ссылается узел, существует (ErrUnresolvedChannel)
//   - внешние ресурсы и источники всё ещё существуют (ErrExternalResourceNotFound)
//   - выходы без потребителей и без terminal (ErrUnconsumedOutput, предупреждение)
//
// Граф не изменяется.
func Validate(g *Graph, checker ResourceChecker) *Report {
	if checker == nil {
		checker = OSResources{}
	}
	r := NewReport()

	if _, err := g.TopologicalOrder(); err != nil {
		r.Error(0, err)
	}

	merged := make(map[domain.ChannelID]bool)
	for _, f := range g.Forks() {
		for _, out := range f.Outputs {
			merged[domain.ChannelID(out)] = true
		}
	}

	for _, node := range g.Nodes() {
		tpl, ok := g.Template(node.Template)
		if !ok {
			r.Error(node.ID, NewSlotError(node.Template, node.Instance, "",
				"template is not registered in the graph", ErrTemplateNotFound))
			continue
		}

		for _, slot := range tpl.Inputs {
			id, bound := node.Inputs[slot.Name]
			if !bound {
				r.Error(node.ID, NewSlotError(tpl.Name, node.Instance, slot.Name,
					"input slot is not bound to any channel", ErrUnboundSlot))
				continue
			}
			if _, exists := g.Channel(id); !exists {
				r.Error(node.ID, NewSlotError(tpl.Name, node.Instance, slot.Name,
					fmt.Sprintf("channel %s does not exist", id), ErrUnresolvedChannel))
			}
		}

		for _, slot := range tpl.Outputs {
			id, bound := node.Outputs[slot.Name]
			if !bound {
				r.Error(node.ID, NewSlotError(tpl.Name, node.Instance, slot.Name,
					"output slot has no channel", ErrUnboundSlot))
				continue
			}
			if _, exists := g.Channel(id); !exists {
				r.Error(node.ID, NewSlotError(tpl.Name, node.Instance, slot.Name,
					fmt.Sprintf("channel %s does not exist", id), ErrUnresolvedChannel))
				continue
			}
			if slot.Terminal || merged[id] {
				continue
			}
			if len(g.Consumers(id)) == 0 {
				r.Warn(node.ID, NewSlotError(tpl.Name, node.Instance, slot.Name,
					fmt.Sprintf("channel %s has no consumers", id), ErrUnconsumedOutput))
			}
		}
	}

	for _, ch := range g.Channels() {
		if ch.Kind == domain.ChannelProduced {
			continue
		}
		exists, err := checker.Exists(ch.Resource)
		if err != nil || !exists {
			var node domain.NodeID
			if consumers := g.Consumers(ch.ID); len(consumers) > 0 {
				node = consumers[0]
			}
			r.Error(node, &ResourceError{Key: ch.Key, Path: ch.Resource})
		}
	}

	return r
}
