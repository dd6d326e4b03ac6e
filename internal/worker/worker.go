package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Pipewright/internal/domain"
	"github.com/shaiso/Pipewright/internal/engine"
	"github.com/shaiso/Pipewright/internal/mq"
	"github.com/shaiso/Pipewright/internal/repo"
	"github.com/shaiso/Pipewright/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultPrefetch     = 5
)

// BuildStore — хранилище сборок (repo.BuildRepo).
type BuildStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Build, error)
	ListQueued(ctx context.Context, limit int) ([]domain.Build, error)
	Claim(ctx context.Context, b *domain.Build) error
	Update(ctx context.Context, b *domain.Build) error
}

// Assembler — сборщик pipeline (engine.Assembler).
type Assembler interface {
	Assemble(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// Notifier публикует итог сборки (mq.Publisher).
type Notifier interface {
	PublishBuildCompleted(ctx context.Context, payload mq.BuildCompletedPayload) error
}

// TemplateCache — кэш шаблонов (catalog.Store).
type TemplateCache interface {
	Forget(name string)
}

// Worker выполняет сборки из очереди и из БД.
type Worker struct {
	builds    BuildStore
	assembler Assembler
	notifier  Notifier
	templates TemplateCache
	conn      *mq.Connection

	pollInterval time.Duration
	batchSize    int
	prefetch     int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	now        func() time.Time
}

// Config — конфигурация Worker.
type Config struct {
	Builds    BuildStore
	Assembler Assembler

	// Publisher — опционально; без него build.completed не публикуется.
	Publisher Notifier

	// Templates — опционально; кэш, который сбрасывается по template.changed.
	Templates TemplateCache

	// Conn — опционально; без соединения работает только polling.
	Conn *mq.Connection

	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // сборок за один poll (default: 50)
	Prefetch     int           // одновременных сообщений (default: 5)

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	w := &Worker{
		builds:       cfg.Builds,
		assembler:    cfg.Assembler,
		notifier:     cfg.Publisher,
		templates:    cfg.Templates,
		conn:         cfg.Conn,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		prefetch:     cfg.Prefetch,
		logger:       cfg.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.prefetch <= 0 {
		w.prefetch = defaultPrefetch
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Start запускает consumer builds.requested и consumer template.changed
// (если есть соединение) и polling горутину.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"prefetch", w.prefetch,
	)

	if w.conn != nil {
		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueBuildsRequested,
			Handler:  w.handleBuildRequested,
			Prefetch: w.prefetch,
		})
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("build consumer error", "error", err)
			}
		}()
	}

	if w.conn != nil && w.templates != nil {
		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:   mq.TemplateQueue(),
			Handler: w.handleTemplateChanged,
			Private: mq.RoutingKeyTemplatesChanged,
		})
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("template consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()
}

// Stop останавливает Worker и ждёт завершения текущих сборок.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу: подхватываем сборки, созданные пока воркер был выключен
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (w *Worker) poll(ctx context.Context) {
	builds, err := w.builds.ListQueued(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("failed to list queued builds", "error", err)
		}
		return
	}
	if len(builds) > 0 {
		w.logger.Debug("poll found queued builds", "count", len(builds))
	}

	for i := range builds {
		err := w.Process(ctx, builds[i].ID)
		if err != nil && !errors.Is(err, ErrBuildNotQueued) {
			w.logger.Error("failed to process build from poll", "build_id", builds[i].ID, "error", err)
		}
	}
}

// handleBuildRequested обрабатывает сообщение build.requested.
func (w *Worker) handleBuildRequested(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.BuildRequestedPayload](msg)
	if err != nil {
		return err
	}

	err = w.Process(ctx, payload.BuildID)
	if errors.Is(err, ErrBuildNotFound) || errors.Is(err, ErrBuildNotQueued) {
		// Ожидаемо: сборку уже взял poll или другой воркер
		w.logger.Debug("build not processed", "build_id", payload.BuildID, "reason", err)
		return nil
	}
	return err
}

// handleTemplateChanged сбрасывает шаблон из кэша: следующая сборка
// перечитает его из БД.
func (w *Worker) handleTemplateChanged(_ context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.TemplateChangedPayload](msg)
	if err != nil {
		return err
	}
	if w.templates != nil {
		w.templates.Forget(payload.Name)
	}
	w.logger.Debug("template cache entry dropped", "template", payload.Name)
	return nil
}

// Process забирает сборку, выполняет её и сохраняет результат.
//
// Ошибка возвращается только для инфраструктурных сбоев; провал сборки
// фиксируется в самой сборке (FAILED).
func (w *Worker) Process(ctx context.Context, id uuid.UUID) error {
	build, err := w.builds.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrBuildNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("get build: %w", err)
	}
	if build.Status != domain.BuildStatusQueued {
		return ErrBuildNotQueued
	}

	build.MarkRunning(w.now())
	if err := w.builds.Claim(ctx, build); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return ErrBuildNotQueued
		}
		return fmt.Errorf("claim build: %w", err)
	}

	logger := telemetry.WithBuildID(w.logger, build.ID.String())
	logger.Info("build started", "name", build.Name, "pipeline", build.Config.Pipeline)

	start := time.Now()
	result, asmErr := w.assembler.Assemble(telemetry.WithLogger(ctx, logger), engine.NewRequest(build.Name, build.Config))
	telemetry.BuildDuration.Observe(time.Since(start).Seconds())

	issues := engine.IssuesOf(result, asmErr)
	if asmErr != nil {
		build.MarkFailed(asmErr, issues, w.now())
		logger.Warn("build failed", "error", asmErr, "issues", len(issues))
	} else {
		build.MarkSucceeded(result.Script, issues, w.now())
		logger.Info("build succeeded", "issues", len(issues), "duration", time.Since(start))
	}
	telemetry.BuildsTotal.WithLabelValues(string(build.Status)).Inc()

	// Результат сохраняем даже если ctx отменён во время сборки
	if err := w.builds.Update(context.WithoutCancel(ctx), build); err != nil {
		return fmt.Errorf("update build: %w", err)
	}

	w.publishCompletion(ctx, build)
	return nil
}

// publishCompletion публикует build.completed.
// Ошибка публикации не фатальна: результат уже в БД.
func (w *Worker) publishCompletion(ctx context.Context, build *domain.Build) {
	if w.notifier == nil {
		return
	}

	payload := mq.BuildCompletedPayload{
		BuildID: build.ID,
		Status:  build.Status,
		Error:   build.Error,
	}
	for _, issue := range build.Issues {
		if issue.Severity == domain.SeverityError {
			payload.Errors++
		} else {
			payload.Warnings++
		}
	}

	if err := w.notifier.PublishBuildCompleted(ctx, payload); err != nil {
		w.logger.Warn("failed to publish build.completed", "build_id", build.ID, "error", err)
	}
}
