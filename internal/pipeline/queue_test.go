package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestQueueFIFOOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	first := Task{JobID: uuid.New(), Request: Request{StartURL: "https://a.example/"}}
	second := Task{JobID: uuid.New(), Request: Request{StartURL: "https://b.example/"}}

	if err := q.TryEnqueue(first); err != nil {
		t.Fatalf("TryEnqueue(first) error = %v", err)
	}
	if err := q.TryEnqueue(second); err != nil {
		t.Fatalf("TryEnqueue(second) error = %v", err)
	}

	got, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if got.JobID != first.JobID {
		t.Fatalf("expected first task %s, got %s", first.JobID, got.JobID)
	}
	got, err = q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if got.JobID != second.JobID {
		t.Fatalf("expected second task %s, got %s", second.JobID, got.JobID)
	}
}

func TestQueueTryEnqueueFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	if err := q.TryEnqueue(Task{JobID: uuid.New()}); err != nil {
		t.Fatalf("TryEnqueue() error = %v", err)
	}
	err := q.TryEnqueue(Task{JobID: uuid.New()})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestQueueDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestQueueCloseDrainsPendingTasks(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	queued := Task{JobID: uuid.New()}
	if err := q.TryEnqueue(queued); err != nil {
		t.Fatalf("TryEnqueue() error = %v", err)
	}

	q.Close()
	q.Close()

	if err := q.TryEnqueue(Task{JobID: uuid.New()}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed after close, got %v", err)
	}

	got, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue() after close error = %v", err)
	}
	if got.JobID != queued.JobID {
		t.Fatalf("expected drained task %s, got %s", queued.JobID, got.JobID)
	}

	_, err = q.Dequeue(context.Background())
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed once drained, got %v", err)
	}
}
