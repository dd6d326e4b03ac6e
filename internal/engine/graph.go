package engine

import (
	"fmt"
	"sort"

	"github.com/shaiso/Pipewright/internal/domain"
)

// Graph — граф сборки (AssemblyGraph).
//
// Хранит узлы и каналы в арене по ID: узлы не держат указателей друг
// на друга, связи восстанавливаются через каналы. Граф изменяется
// только сессией сборки; после Freeze любые изменения запрещены,
// а рендеринг разрешён.
type Graph struct {
	// Name — имя pipeline (попадает в заголовок скрипта).
	Name string

	nodes     map[domain.NodeID]*domain.PipelineNode
	channels  map[domain.ChannelID]*domain.Channel
	chanOrder []domain.ChannelID
	templates map[string]*domain.TaskTemplate
	forks     []*domain.Fork

	frozen bool
}

// NewGraph создаёт пустой граф.
func NewGraph(name string) *Graph {
	return &Graph{
		Name:      name,
		nodes:     make(map[domain.NodeID]*domain.PipelineNode),
		channels:  make(map[domain.ChannelID]*domain.Channel),
		templates: make(map[string]*domain.TaskTemplate),
	}
}

// AddTemplate регистрирует шаблон, использованный узлами графа.
func (g *Graph) AddTemplate(tpl *domain.TaskTemplate) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	g.templates[tpl.Name] = tpl
	return nil
}

// AddNode добавляет узел.
func (g *Graph) AddNode(node *domain.PipelineNode) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("duplicate node pid %d", node.ID)
	}
	g.nodes[node.ID] = node
	return nil
}

// AddChannel добавляет канал.
func (g *Graph) AddChannel(ch *domain.Channel) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if _, exists := g.channels[ch.ID]; exists {
		return fmt.Errorf("duplicate channel %s", ch.ID)
	}
	g.channels[ch.ID] = ch
	g.chanOrder = append(g.chanOrder, ch.ID)
	return nil
}

// AddFork регистрирует развёрнутый fork.
func (g *Graph) AddFork(f *domain.Fork) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	g.forks = append(g.forks, f)
	return nil
}

// Freeze замораживает граф. Повторный вызов безопасен.
func (g *Graph) Freeze() {
	g.frozen = true
}

// Frozen проверяет, заморожен ли граф.
func (g *Graph) Frozen() bool {
	return g.frozen
}

// Node возвращает узел по pid.
func (g *Graph) Node(id domain.NodeID) (*domain.PipelineNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Channel возвращает канал по ID.
func (g *Graph) Channel(id domain.ChannelID) (*domain.Channel, bool) {
	ch, ok := g.channels[id]
	return ch, ok
}

// Template возвращает шаблон узла.
func (g *Graph) Template(name string) (*domain.TaskTemplate, bool) {
	tpl, ok := g.templates[name]
	return tpl, ok
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.nodes)
}

// Nodes возвращает узлы, отсортированные по pid.
func (g *Graph) Nodes() []*domain.PipelineNode {
	nodes := make([]*domain.PipelineNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Channels возвращает каналы в порядке добавления.
func (g *Graph) Channels() []*domain.Channel {
	chans := make([]*domain.Channel, 0, len(g.chanOrder))
	for _, id := range g.chanOrder {
		chans = append(chans, g.channels[id])
	}
	return chans
}

// ChannelsOfKind возвращает каналы одного происхождения в порядке добавления.
func (g *Graph) ChannelsOfKind(kind domain.ChannelKind) []*domain.Channel {
	var chans []*domain.Channel
	for _, id := range g.chanOrder {
		if ch := g.channels[id]; ch.Kind == kind {
			chans = append(chans, ch)
		}
	}
	return chans
}

// Forks возвращает fork в порядке развёртывания.
func (g *Graph) Forks() []*domain.Fork {
	return append([]*domain.Fork(nil), g.forks...)
}

// Consumers возвращает pid узлов, читающих канал, по возрастанию.
func (g *Graph) Consumers(id domain.ChannelID) []domain.NodeID {
	var consumers []domain.NodeID
	for pid, n := range g.nodes {
		for _, in := range n.Inputs {
			if in == id {
				consumers = append(consumers, pid)
				break
			}
		}
	}
	sort.Slice(consumers, func(i, j int) bool { return consumers[i] < consumers[j] })
	return consumers
}

// Dependencies возвращает pid узлов-производителей входов узла.
// Каналы external и source зависимостей не создают.
func (g *Graph) Dependencies(id domain.NodeID) []domain.NodeID {
	node, ok := g.nodes[id]
	if !ok {
		return nil
	}

	seen := make(map[domain.NodeID]bool)
	var deps []domain.NodeID
	for _, chID := range node.Inputs {
		ch, ok := g.channels[chID]
		if !ok || ch.Kind != domain.ChannelProduced {
			continue
		}
		if !seen[ch.Producer] {
			seen[ch.Producer] = true
			deps = append(deps, ch.Producer)
		}
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return deps
}

// TopologicalOrder выполняет топологическую сортировку (алгоритм Кана).
//
// Среди готовых узлов первым берётся узел с меньшим pid, поэтому порядок
// детерминирован. Если обнаружен цикл, возвращает ErrCyclicGraph
// со списком узлов, оставшихся вне порядка.
func (g *Graph) TopologicalOrder() ([]domain.NodeID, error) {
	inDegree := make(map[domain.NodeID]int, len(g.nodes))
	dependents := make(map[domain.NodeID][]domain.NodeID)

	for pid := range g.nodes {
		deps := g.Dependencies(pid)
		inDegree[pid] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], pid)
		}
	}

	// Очередь готовых узлов, отсортированная по pid
	var ready []domain.NodeID
	for pid, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, pid)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	order := make([]domain.NodeID, 0, len(g.nodes))
	for len(ready) > 0 {
		pid := ready[0]
		ready = ready[1:]
		order = append(order, pid)

		for _, dependent := range dependents[pid] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = insertSorted(ready, dependent)
			}
		}
	}

	if len(order) != len(g.nodes) {
		var cyclic []domain.NodeID
		for pid, deg := range inDegree {
			if deg > 0 {
				cyclic = append(cyclic, pid)
			}
		}
		sort.Slice(cyclic, func(i, j int) bool { return cyclic[i] < cyclic[j] })
		return nil, fmt.Errorf("%w: nodes %v", ErrCyclicGraph, cyclic)
	}

	return order, nil
}

// insertSorted вставляет pid в отсортированный слайс.
func insertSorted(ids []domain.NodeID, id domain.NodeID) []domain.NodeID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}
