package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Queue errors. ErrQueueFull is the submission backpressure signal; Submit
// converts it into an immediately failed job record.
var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

// Task pairs a job id with its request while the job waits for a runner.
type Task struct {
	JobID   uuid.UUID
	Request Request
}

// Queue is a bounded in-memory task queue. TryEnqueue never blocks the
// submitter; Dequeue waits for work or context cancellation.
type Queue struct {
	ch      chan Task
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue holding at most capacity pending tasks.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Task, capacity)}
}

// TryEnqueue adds the task or reports immediately that it cannot. A full
// queue returns ErrQueueFull, a closed one ErrQueueClosed.
func (q *Queue) TryEnqueue(task Task) error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next task, respecting context cancellation. Once the
// queue is closed and drained it returns ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case <-ctx.Done():
		return Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return Task{}, ErrQueueClosed
		}
		return task, nil
	}
}

// Close stops accepting tasks. Already queued tasks remain dequeueable so a
// draining shutdown can finish them.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
