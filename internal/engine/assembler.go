package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shaiso/Pipewright/internal/domain"
	"github.com/shaiso/Pipewright/internal/telemetry"
)

// TemplateLoader — Template Store с точки зрения сборки.
type TemplateLoader interface {
	Load(ctx context.Context, name string) (*domain.TaskTemplate, error)
	FragmentProvider
}

// Config — зависимости Assembler.
type Config struct {
	Templates TemplateLoader
	Resources ResourceChecker
	Logger    *slog.Logger
}

// Assembler — сборщик pipeline.
//
// Один Assembler можно использовать из нескольких горутин:
// каждая сборка получает свою сессию и свой граф.
type Assembler struct {
	templates TemplateLoader
	resources ResourceChecker
	logger    *slog.Logger
	renderer  *Renderer
}

// NewAssembler создаёт Assembler.
func NewAssembler(cfg Config) *Assembler {
	if cfg.Resources == nil {
		cfg.Resources = OSResources{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assembler{
		templates: cfg.Templates,
		resources: cfg.Resources,
		logger:    cfg.Logger,
		renderer:  NewRenderer(cfg.Templates),
	}
}

// Request — вход одной сборки.
type Request struct {
	// Name — имя pipeline.
	Name string

	// Pipeline — строка топологии; используется, если Topology == nil.
	Pipeline string

	// Topology — уже разобранная топология.
	Topology *domain.Topology

	// Sources — пользовательские входные каналы по имени.
	Sources map[string]domain.SourceDef

	// Params — значения параметров.
	Params ParamSource

	// CheckOnly — остановиться после валидации, без рендеринга.
	CheckOnly bool

	// NoDependency — не вставлять недостающие зависимости шаблонов (Depends).
	NoDependency bool
}

// Result — результат сборки.
type Result struct {
	Topology domain.Topology
	Graph    *Graph
	Script   string
	Report   *Report
}

// Assemble выполняет сборку за один проход:
// топология → для каждого шага загрузка шаблона, разрешение параметров,
// связывание, развёртывание fork → валидация → заморозка → рендеринг.
//
// Нефатальные проблемы собираются в Report; если среди них есть ошибки,
// возвращается Result вместе с Report.Err(). Несуществующий внешний
// ресурс (*ResourceError) и синтаксическая ошибка топологии прерывают
// сборку сразу, Result при этом nil.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	var topology domain.Topology
	if req.Topology != nil {
		topology = *req.Topology
	} else {
		parsed, err := ParseTopology(req.Pipeline)
		if err != nil {
			return nil, err
		}
		topology = parsed
	}

	s := &session{
		ctx:    ctx,
		a:      a,
		graph:  NewGraph(req.Name),
		params: req.Params,
		report: NewReport(),
		noDeps: req.NoDependency,
		logger: telemetry.FromContextOr(ctx, a.logger).With("pipeline", req.Name),
	}
	s.binder = NewBinder(s.graph, a.resources)

	scope, err := s.addSources(req.Sources)
	if err != nil {
		return nil, err
	}

	if _, err := s.segment(topology.Root, s.nextLane(), scope, ""); err != nil {
		return nil, err
	}

	s.report.Merge(Validate(s.graph, a.resources))
	s.graph.Freeze()

	result := &Result{Topology: topology, Graph: s.graph, Report: s.report}

	for _, issue := range s.report.Issues {
		telemetry.BuildIssues.WithLabelValues(issue.Code, string(issue.Severity)).Inc()
	}

	if s.report.HasErrors() {
		s.logger.Info("assembly failed validation",
			"nodes", s.graph.Size(),
			"issues", len(s.report.Issues),
		)
		return result, s.report.Err()
	}

	if !req.CheckOnly {
		script, err := a.renderer.Render(ctx, s.graph)
		if err != nil {
			s.report.Error(0, err)
			return result, err
		}
		result.Script = script
	}

	s.logger.Info("assembly finished",
		"nodes", s.graph.Size(),
		"forks", len(s.graph.Forks()),
		"warnings", len(s.report.Warnings()),
		"check_only", req.CheckOnly,
		"duration", time.Since(start),
	)
	return result, nil
}

// session — состояние одной сборки.
type session struct {
	ctx    context.Context
	a      *Assembler
	graph  *Graph
	binder *Binder
	params ParamSource
	report *Report
	logger *slog.Logger
	noDeps bool

	pidSeq  int
	laneSeq int
	forkSeq int
}

func (s *session) nextPid() domain.NodeID {
	s.pidSeq++
	return domain.NodeID(s.pidSeq)
}

func (s *session) nextLane() int {
	s.laneSeq++
	return s.laneSeq
}

// SourceChannelID возвращает ID канала пользовательского источника.
func SourceChannelID(name string) domain.ChannelID {
	return domain.ChannelID(name + "_in")
}

// addSources добавляет пользовательские источники в граф (по имени, по алфавиту).
func (s *session) addSources(sources map[string]domain.SourceDef) (Scope, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var scope Scope
	for _, name := range names {
		def := sources[name]

		shape, err := domain.ParseShape(string(def.Shape))
		if err != nil {
			return Scope{}, fmt.Errorf("source %s: %w", name, err)
		}

		key := domain.ParamKey{Name: "sources." + name}
		exists, err := s.a.resources.Exists(def.Path)
		if err != nil || !exists {
			return Scope{}, &ResourceError{Key: key, Path: def.Path}
		}

		ch := &domain.Channel{
			ID:       SourceChannelID(name),
			Name:     name,
			Shape:    shape,
			Kind:     domain.ChannelSource,
			Resource: def.Path,
			Key:      key,
		}
		if err := s.graph.AddChannel(ch); err != nil {
			return Scope{}, err
		}
		scope.Visible = append(scope.Visible, ch.ID)
	}
	return scope, nil
}

// segmentResult — итог сборки сегмента.
type segmentResult struct {
	// heads — узлы, читающие вход сегмента.
	heads []domain.NodeID

	// out — итоговый выход сегмента: основной выход последнего узла,
	// у которого он есть, или объединённый выход fork. Пусто, если
	// сегмент ничего не произвёл.
	out string
}

// segment собирает линейный сегмент в lane. forkID — fork, ветку которого
// открывает сегмент. Возвращает ошибку только для фатальных ситуаций.
func (s *session) segment(seg domain.Segment, lane int, scope Scope, forkID string) (segmentResult, error) {
	var res segmentResult

	for i, step := range seg {
		if err := s.ctx.Err(); err != nil {
			return res, err
		}

		if step.IsFork() {
			fork, err := s.ExpandFork(step.Fork, scope)
			if err != nil {
				var resErr *ResourceError
				if errors.As(err, &resErr) || !errors.Is(err, ErrEmptyForkSpec) {
					return res, err
				}
				s.report.Error(0, err)
				continue
			}
			if i == 0 {
				res.heads = fork.Heads
			}
			if len(fork.Outputs) > 0 {
				res.out = fork.OutputRef()
			}
			continue
		}

		// Недостающие зависимости встают перед шаблоном шага;
		// первый размещённый узел открывает ветку.
		first := i == 0
		for _, name := range s.withDependencies(step.Template, scope) {
			node, head, err := s.addNode(name, lane, scope, forkID, first)
			if err != nil {
				return res, err
			}
			if node == nil {
				continue
			}

			produced := make([]domain.ChannelID, 0, len(node.Outputs))
			tpl, _ := s.graph.Template(node.Template)
			for _, out := range tpl.Outputs {
				produced = append(produced, node.Outputs[out.Name])
			}
			scope = scope.Advance(head, produced...)

			if first {
				res.heads = []domain.NodeID{node.ID}
				first = false
			}
			if head != "" {
				res.out = string(head)
			}
		}
	}

	return res, nil
}

// withDependencies возвращает шаблоны для размещения на месте шага name:
// недостающие зависимости (транзитивно, зависимость раньше зависящего),
// затем сам name. Зависимость есть, если её шаблон уже произвёл канал,
// видимый в scope. Шаблон, который не загрузился, зависимостей не даёт:
// ошибку загрузки сообщит addNode.
func (s *session) withDependencies(name string, scope Scope) []string {
	if s.noDeps {
		return []string{name}
	}

	present := make(map[string]bool)
	for _, id := range scope.Visible {
		ch, ok := s.graph.Channel(id)
		if !ok || ch.Kind != domain.ChannelProduced {
			continue
		}
		if node, ok := s.graph.Node(ch.Producer); ok {
			present[node.Template] = true
		}
	}

	var order []string
	visiting := map[string]bool{name: true}
	var visit func(string)
	visit = func(tplName string) {
		tpl, err := s.a.templates.Load(s.ctx, tplName)
		if err != nil {
			return
		}
		for _, dep := range tpl.Depends {
			if present[dep] || visiting[dep] {
				continue
			}
			visiting[dep] = true
			visit(dep)
			present[dep] = true
			order = append(order, dep)
		}
	}
	visit(name)
	order = append(order, name)

	if len(order) > 1 {
		s.logger.Debug("dependencies inserted", "template", name, "dependencies", order[:len(order)-1])
	}
	return order
}

// addNode создаёт, связывает и добавляет в граф один узел.
// Возвращает nil-узел, если шаблон не загрузился (проблема уже в отчёте).
func (s *session) addNode(name string, lane int, scope Scope, forkID string, first bool) (*domain.PipelineNode, domain.ChannelID, error) {
	pid := s.nextPid()
	logger := telemetry.WithPid(telemetry.WithTemplate(s.logger, name), int(pid))

	tpl, err := s.a.templates.Load(s.ctx, name)
	if err != nil {
		s.report.Error(pid, err)
		logger.Debug("template not loaded", "error", err)
		return nil, "", nil
	}

	node := &domain.PipelineNode{
		ID:       pid,
		Instance: pid.String(),
		Lane:     lane,
		Template: tpl.Name,
	}
	if first {
		node.Fork = forkID
	}

	params, err := ResolveParams(tpl, node.Instance, s.params)
	s.report.Error(pid, err)
	node.Params = params

	bound, err := s.binder.Bind(node, tpl, scope)
	if bound == nil {
		// Bind без узла возвращает только фатальную ошибку ресурса
		logger.Debug("external resource check failed", "error", err)
		return nil, "", err
	}
	s.report.Error(pid, err)

	if err := s.graph.AddTemplate(tpl); err != nil {
		return nil, "", err
	}
	if err := s.graph.AddNode(bound.Node); err != nil {
		return nil, "", err
	}
	for _, ch := range bound.Channels {
		if err := s.graph.AddChannel(ch); err != nil {
			return nil, "", err
		}
	}

	var head domain.ChannelID
	if out, ok := tpl.PrimaryOutput(); ok {
		head = bound.Node.Outputs[out.Name]
	}

	logger.Debug("node bound",
		"lane", lane,
		"inputs", len(bound.Node.Inputs),
		"outputs", len(bound.Node.Outputs),
	)
	return bound.Node, head, nil
}

// NewRequest собирает Request из сохранённого входа сборки.
func NewRequest(name string, cfg domain.BuildConfig) Request {
	return Request{
		Name:     name,
		Pipeline: cfg.Pipeline,
		Sources:  cfg.Sources,
		Params:   ParamTable(cfg.Params),

		NoDependency: cfg.NoDependency,
	}
}

// IssuesOf возвращает проблемы сборки с учётом фатальной ошибки:
// для прерванной сборки (result == nil) это одна проблема из err.
func IssuesOf(result *Result, err error) []domain.Issue {
	if result != nil {
		return result.Report.Issues
	}
	if err == nil {
		return nil
	}
	return []domain.Issue{{
		Severity: domain.SeverityError,
		Code:     IssueCode(err),
		Message:  err.Error(),
	}}
}
