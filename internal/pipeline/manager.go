package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/store"
	"github.com/sitelens/sitelens/internal/urlnorm"
)

// ErrInvalidRequest marks a submission rejected by validation before any
// job record was created. API layers map it to a client error.
var ErrInvalidRequest = errors.New("invalid submission")

// IDGenerator mints fresh job identifiers. Every submission gets a new one;
// ids are never reused.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Manager accepts job submissions and serves status lookups. Submit never
// blocks: a full queue produces an immediately failed job record instead of
// waiting for capacity. After a task is queued, the runner that dequeues it
// owns every further transition.
type Manager struct {
	repo   store.Repository
	queue  *Queue
	ids    IDGenerator
	norm   *urlnorm.Normalizer
	clock  Clock
	logger *zap.Logger
}

// NewManager wires a Manager over the shared queue and repository.
func NewManager(
	repo store.Repository,
	queue *Queue,
	ids IDGenerator,
	norm *urlnorm.Normalizer,
	clk Clock,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		repo:   repo,
		queue:  queue,
		ids:    ids,
		norm:   norm,
		clock:  clk,
		logger: logger,
	}
}

// Submit validates the request, persists a pending record, and enqueues the
// task. Validation failures return an error and create nothing. A full or
// closed queue still returns the job record, moved straight to failed, so
// every accepted submission is accounted for.
func (m *Manager) Submit(ctx context.Context, req Request) (store.JobRecord, error) {
	seed, err := m.norm.Normalize(req.StartURL, nil)
	if err != nil {
		return store.JobRecord{}, fmt.Errorf("%w: start url: %v", ErrInvalidRequest, err)
	}
	req.StartURL = seed.URL
	if req.MaxPages < 0 {
		return store.JobRecord{}, fmt.Errorf("%w: max pages must not be negative", ErrInvalidRequest)
	}

	id, err := m.ids.NewRawID()
	if err != nil {
		return store.JobRecord{}, fmt.Errorf("mint job id: %w", err)
	}

	rec := store.JobRecord{
		ID:        id,
		StartURL:  req.StartURL,
		Status:    store.JobPending,
		Message:   "queued",
		CreatedAt: m.clock.Now(),
	}
	if err := m.repo.CreateJob(ctx, rec); err != nil {
		return store.JobRecord{}, fmt.Errorf("create job: %w", err)
	}

	if err := m.queue.TryEnqueue(Task{JobID: id, Request: req}); err != nil {
		now := m.clock.Now()
		rec.Status = store.JobFailed
		rec.Message = "rejected at submission"
		rec.Error = err.Error()
		rec.FinishedAt = &now
		if uerr := m.repo.UpdateJob(ctx, rec); uerr != nil {
			m.logger.Error("record rejected submission",
				zap.String("job_id", id.String()),
				zap.Error(uerr),
			)
		}
		m.logger.Warn("job rejected",
			zap.String("job_id", id.String()),
			zap.Error(err),
		)
		return rec, nil
	}

	m.logger.Info("job queued",
		zap.String("job_id", id.String()),
		zap.String("start_url", req.StartURL),
	)
	return rec, nil
}

// GetStatus loads one job. A missing id surfaces as store.ErrNotFound so
// callers can distinguish absence from infrastructure failure.
func (m *Manager) GetStatus(ctx context.Context, id uuid.UUID) (store.JobRecord, error) {
	rec, err := m.repo.GetJob(ctx, id)
	if err != nil {
		return store.JobRecord{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return rec, nil
}
