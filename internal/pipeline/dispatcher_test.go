package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	artifactmem "github.com/sitelens/sitelens/internal/artifact/memory"
	idgen "github.com/sitelens/sitelens/internal/id/uuid"
	"github.com/sitelens/sitelens/internal/metrics"
	notifymem "github.com/sitelens/sitelens/internal/notify/memory"
	"github.com/sitelens/sitelens/internal/progress"
	"github.com/sitelens/sitelens/internal/store"
	"github.com/sitelens/sitelens/internal/urlnorm"
)

type pipelineFixture struct {
	mgr        *Manager
	queue      *Queue
	repo       *recordingRepo
	stages     *fakeStages
	publisher  *notifymem.Publisher
	dispatcher *Dispatcher
}

func newPipelineFixture(t *testing.T, workers int) *pipelineFixture {
	t.Helper()
	metrics.Init()

	norm, err := urlnorm.New(nil, nil)
	require.NoError(t, err)

	f := &pipelineFixture{
		repo:      newRecordingRepo(),
		queue:     NewQueue(8),
		stages:    &fakeStages{},
		publisher: notifymem.New(),
	}
	clk := newStubClock()
	hub := progress.NewHub(progress.Config{Logger: zap.NewNop()})
	t.Cleanup(func() {
		_ = hub.Close(context.Background())
	})
	runner := NewRunner(f.repo, f.stages, artifactmem.New(), f.publisher, hub, clk, "sitelens.reports", zap.NewNop())
	f.mgr = NewManager(f.repo, f.queue, idgen.New(), norm, clk, zap.NewNop())
	f.dispatcher = NewDispatcher(f.queue, runner, workers, zap.NewNop())
	return f
}

func (f *pipelineFixture) waitCompleted(t *testing.T, id uuid.UUID) store.JobRecord {
	t.Helper()
	var rec store.JobRecord
	require.Eventually(t, func() bool {
		got, err := f.repo.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		rec = got
		return got.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)
	return rec
}

func TestDispatcherRunsQueuedJobs(t *testing.T) {
	f := newPipelineFixture(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.dispatcher.Run(ctx)
		close(done)
	}()

	ids := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		rec, err := f.mgr.Submit(context.Background(), Request{StartURL: "https://example.com/"})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	for _, id := range ids {
		rec := f.waitCompleted(t, id)
		require.Equal(t, store.JobCompleted, rec.Status)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}

func TestDispatcherDrainsQueueAfterClose(t *testing.T) {
	f := newPipelineFixture(t, 1)

	first, err := f.mgr.Submit(context.Background(), Request{StartURL: "https://example.com/"})
	require.NoError(t, err)
	second, err := f.mgr.Submit(context.Background(), Request{StartURL: "https://example.org/"})
	require.NoError(t, err)

	f.queue.Close()

	done := make(chan struct{})
	go func() {
		f.dispatcher.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not drain and stop")
	}

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		rec, err := f.repo.GetJob(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, store.JobCompleted, rec.Status)
	}
}

func TestPipelineEndToEndThreePages(t *testing.T) {
	f := newPipelineFixture(t, 1)
	f.stages.crawlResult = crawlResultFor(
		"https://example.com/",
		"https://example.com/pricing",
		"https://example.com/docs",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		f.dispatcher.Run(ctx)
		close(done)
	}()

	submitted, err := f.mgr.Submit(context.Background(), Request{StartURL: "https://example.com/"})
	require.NoError(t, err)
	require.Equal(t, store.JobPending, submitted.Status)

	rec := f.waitCompleted(t, submitted.ID)
	require.Equal(t, store.JobCompleted, rec.Status)
	require.Equal(t, 100, rec.Progress)
	require.Empty(t, rec.Error)

	var result Result
	require.NoError(t, json.Unmarshal(rec.Result, &result))
	require.Len(t, result.Crawl.URLs, 3)
	require.Len(t, result.Capture.Items, 3)
	require.Len(t, result.Audit.Items, 3)
	require.Equal(t, 3, result.Crawl.Stats.PagesCrawled)

	messages := f.publisher.Messages()
	require.Len(t, messages, 1)
	summary, ok := messages[0].Payload.(Summary)
	require.True(t, ok)
	require.Equal(t, 3, summary.PagesCrawled)
	require.Len(t, summary.Audits, 3)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}
