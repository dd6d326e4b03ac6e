package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Pipewright/internal/catalog"
	"github.com/shaiso/Pipewright/internal/domain"
	"github.com/shaiso/Pipewright/internal/engine"
	"github.com/shaiso/Pipewright/internal/mq"
	"github.com/shaiso/Pipewright/internal/repo"
)

// memBuilds — BuildStore в памяти.
type memBuilds struct {
	mu     sync.Mutex
	builds map[uuid.UUID]domain.Build
}

func newMemBuilds(builds ...*domain.Build) *memBuilds {
	m := &memBuilds{builds: make(map[uuid.UUID]domain.Build)}
	for _, b := range builds {
		m.builds[b.ID] = *b
	}
	return m
}

func (m *memBuilds) GetByID(_ context.Context, id uuid.UUID) (*domain.Build, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.builds[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &b, nil
}

func (m *memBuilds) ListQueued(_ context.Context, limit int) ([]domain.Build, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Build
	for _, b := range m.builds {
		if b.Status == domain.BuildStatusQueued && len(out) < limit {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBuilds) Claim(_ context.Context, b *domain.Build) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.builds[b.ID]
	if !ok || stored.Status != domain.BuildStatusQueued {
		return repo.ErrInvalidState
	}
	stored.Status = domain.BuildStatusRunning
	stored.StartedAt = b.StartedAt
	m.builds[b.ID] = stored
	return nil
}

func (m *memBuilds) Update(_ context.Context, b *domain.Build) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.builds[b.ID]; !ok {
		return repo.ErrNotFound
	}
	m.builds[b.ID] = *b
	return nil
}

// recorder — Notifier, запоминающий опубликованные события.
type recorder struct {
	mu     sync.Mutex
	events []mq.BuildCompletedPayload
}

func (r *recorder) PublishBuildCompleted(_ context.Context, p mq.BuildCompletedPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
	return nil
}

// forgotten — TemplateCache, запоминающий сброшенные имена.
type forgotten struct {
	mu    sync.Mutex
	names []string
}

func (f *forgotten) Forget(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAssembler(resourcesExist bool) *engine.Assembler {
	return engine.NewAssembler(engine.Config{
		Templates: catalog.NewStore(catalog.Builtin(), discard()),
		Resources: engine.ResourceFunc(func(string) (bool, error) { return resourcesExist, nil }),
		Logger:    discard(),
	})
}

func mentalistBuild() *domain.Build {
	return domain.NewBuild("typing", domain.BuildConfig{
		Pipeline: "mentalist",
		Sources: map[string]domain.SourceDef{
			"fastq_pair": {Shape: domain.ShapePair, Path: "/data/*_{1,2}.fq.gz"},
		},
		Params: map[string]map[string]string{
			"kmer_db": {"1": "/data/db1"},
		},
	})
}

func TestProcess_Succeeded(t *testing.T) {
	build := mentalistBuild()
	store := newMemBuilds(build)
	events := &recorder{}
	w := New(Config{Builds: store, Assembler: newAssembler(true), Publisher: events, Logger: discard()})

	require.NoError(t, w.Process(context.Background(), build.ID))

	got, err := store.GetByID(context.Background(), build.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BuildStatusSucceeded, got.Status)
	assert.Contains(t, got.Script, "process mentalist_1")
	assert.Empty(t, got.Error)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)

	require.Len(t, events.events, 1)
	assert.Equal(t, domain.BuildStatusSucceeded, events.events[0].Status)
	assert.Zero(t, events.events[0].Errors)
}

func TestProcess_MissingExternalResource(t *testing.T) {
	build := mentalistBuild()
	store := newMemBuilds(build)
	events := &recorder{}
	w := New(Config{Builds: store, Assembler: newAssembler(false), Publisher: events, Logger: discard()})

	require.NoError(t, w.Process(context.Background(), build.ID))

	got, _ := store.GetByID(context.Background(), build.ID)
	assert.Equal(t, domain.BuildStatusFailed, got.Status)
	assert.Empty(t, got.Script)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "ExternalResourceNotFound", got.Issues[0].Code)

	require.Len(t, events.events, 1)
	assert.Equal(t, 1, events.events[0].Errors)
}

func TestProcess_NotQueued(t *testing.T) {
	build := mentalistBuild()
	build.Status = domain.BuildStatusSucceeded
	w := New(Config{Builds: newMemBuilds(build), Assembler: newAssembler(true), Logger: discard()})

	err := w.Process(context.Background(), build.ID)
	assert.True(t, errors.Is(err, ErrBuildNotQueued))

	err = w.Process(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, ErrBuildNotFound))
}

func TestProcess_RunsOnce(t *testing.T) {
	build := mentalistBuild()
	events := &recorder{}
	w := New(Config{Builds: newMemBuilds(build), Assembler: newAssembler(true), Publisher: events, Logger: discard()})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Process(context.Background(), build.ID)
		}()
	}
	wg.Wait()

	assert.Len(t, events.events, 1)
}

func TestHandleBuildRequested(t *testing.T) {
	build := mentalistBuild()
	store := newMemBuilds(build)
	w := New(Config{Builds: store, Assembler: newAssembler(true), Logger: discard()})

	msg, err := mq.NewMessage(mq.MessageTypeBuildRequested, mq.BuildRequestedPayload{BuildID: build.ID})
	require.NoError(t, err)
	require.NoError(t, w.handleBuildRequested(context.Background(), msg))

	// Повторная доставка подтверждается без ошибки
	require.NoError(t, w.handleBuildRequested(context.Background(), msg))

	bad := &mq.Message{Type: mq.MessageTypeBuildRequested, Payload: []byte(`"nope"`)}
	err = w.handleBuildRequested(context.Background(), bad)
	assert.True(t, errors.Is(err, mq.ErrPermanent))
}

func TestHandleTemplateChanged(t *testing.T) {
	cache := &forgotten{}
	w := New(Config{Builds: newMemBuilds(), Assembler: newAssembler(true), Templates: cache, Logger: discard()})

	msg, err := mq.NewMessage(mq.MessageTypeTemplateChanged, mq.TemplateChangedPayload{Name: "mentalist"})
	require.NoError(t, err)
	require.NoError(t, w.handleTemplateChanged(context.Background(), msg))
	assert.Equal(t, []string{"mentalist"}, cache.names)

	bad := &mq.Message{Type: mq.MessageTypeTemplateChanged, Payload: []byte(`[]`)}
	assert.True(t, errors.Is(w.handleTemplateChanged(context.Background(), bad), mq.ErrPermanent))
}

func TestHandleTemplateChanged_ReloadsTemplate(t *testing.T) {
	source := &swapSource{body: "v1"}
	store := catalog.NewStore(source, discard())
	w := New(Config{Builds: newMemBuilds(), Assembler: newAssembler(true), Templates: store, Logger: discard()})

	tpl, err := store.Load(context.Background(), "custom")
	require.NoError(t, err)
	assert.Equal(t, "v1", tpl.Body)

	source.set("v2")
	tpl, _ = store.Load(context.Background(), "custom")
	assert.Equal(t, "v1", tpl.Body)

	msg, err := mq.NewMessage(mq.MessageTypeTemplateChanged, mq.TemplateChangedPayload{Name: "custom"})
	require.NoError(t, err)
	require.NoError(t, w.handleTemplateChanged(context.Background(), msg))

	tpl, err = store.Load(context.Background(), "custom")
	require.NoError(t, err)
	assert.Equal(t, "v2", tpl.Body)
}

// swapSource — catalog.Source с одним шаблоном, тело которого можно подменить.
type swapSource struct {
	mu   sync.Mutex
	body string
}

func (s *swapSource) set(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
}

func (s *swapSource) Template(_ context.Context, name string) (*domain.TaskTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.TaskTemplate{Name: name, Body: s.body}, nil
}

func (s *swapSource) Fragment(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (s *swapSource) Names(context.Context) ([]string, error) {
	return []string{"custom"}, nil
}

func TestPollLoop_PicksUpQueued(t *testing.T) {
	first, second := mentalistBuild(), mentalistBuild()
	store := newMemBuilds(first, second)
	w := New(Config{Builds: store, Assembler: newAssembler(true), PollInterval: time.Hour, Logger: discard()})

	w.Start(context.Background())
	require.Eventually(t, func() bool {
		queued, _ := store.ListQueued(context.Background(), 10)
		return len(queued) == 0
	}, 5*time.Second, 10*time.Millisecond)
	w.Stop()

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		b, _ := store.GetByID(context.Background(), id)
		assert.Equal(t, domain.BuildStatusSucceeded, b.Status)
	}
}
