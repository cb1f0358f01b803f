package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sitelens/sitelens/internal/browser"
	"github.com/sitelens/sitelens/internal/metrics"
)

// Retry defaults. Attempts counts total tries, so 2 means one retry after
// the first failure.
const (
	DefaultAttempts = 2
	DefaultBackoff  = 3 * time.Second
)

// RetryPolicy reruns an operation a fixed number of times with a fixed
// wait between tries.
type RetryPolicy struct {
	attempts int
	backoff  time.Duration
}

// NewRetryPolicy builds a policy. Attempts below 1 are clamped to 1; a
// backoff of zero or less disables the wait.
func NewRetryPolicy(attempts int, backoff time.Duration) *RetryPolicy {
	if attempts < 1 {
		attempts = 1
	}
	if backoff < 0 {
		backoff = 0
	}
	return &RetryPolicy{attempts: attempts, backoff: backoff}
}

// Do runs op until it succeeds or the tries are exhausted, and reports how
// many tries were made. Attempts carry their own deadlines, so a timed-out
// try is retried; the loop stops early only when ctx itself is done or the
// browser cannot start, since neither heals on retry.
func (p *RetryPolicy) Do(ctx context.Context, op func(context.Context) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			metrics.ObserveAuditRetry()
			if p.backoff > 0 {
				select {
				case <-time.After(p.backoff):
				case <-ctx.Done():
					return attempt - 1, ctx.Err()
				}
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || errors.Is(lastErr, browser.ErrStart) {
			return attempt, lastErr
		}
	}
	return p.attempts, fmt.Errorf("after %d attempts: %w", p.attempts, lastErr)
}
