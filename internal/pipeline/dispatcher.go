package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher fans queued tasks out to a fixed pool of runner goroutines.
type Dispatcher struct {
	queue   *Queue
	runner  *Runner
	workers int
	logger  *zap.Logger
}

// NewDispatcher builds a dispatcher with the given worker count.
func NewDispatcher(queue *Queue, runner *Runner, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		runner:  runner,
		workers: workers,
		logger:  logger,
	}
}

// Run starts the worker pool and blocks until every worker exits. Workers
// stop when the context ends or the queue is closed and drained, so a
// shutdown that closes the queue first lets in-flight jobs finish.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			d.work(ctx, n)
		}(i)
	}
	wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, n int) {
	logger := d.logger.With(zap.Int("worker", n))
	for {
		task, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				logger.Debug("worker stopping", zap.Error(err))
				return
			}
			logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		logger.Debug("dequeued job", zap.String("job_id", task.JobID.String()))
		d.runner.Execute(ctx, task)
	}
}
