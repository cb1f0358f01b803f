package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sitelens/sitelens/internal/browser"
	"github.com/sitelens/sitelens/internal/metrics"
)

func TestRetrySucceedsFirstTry(t *testing.T) {
	metrics.Init()
	policy := NewRetryPolicy(3, time.Millisecond)

	calls := 0
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
}

func TestRetryRecoversAfterFailure(t *testing.T) {
	metrics.Init()
	policy := NewRetryPolicy(3, 10*time.Millisecond)

	calls := 0
	start := time.Now()
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, 2, calls)
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	metrics.Init()
	policy := NewRetryPolicy(3, time.Millisecond)

	boom := errors.New("boom")
	calls := 0
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "after 3 attempts")
	require.Equal(t, 3, attempts)
	require.Equal(t, 3, calls)
}

func TestRetryClampsAttempts(t *testing.T) {
	metrics.Init()
	policy := NewRetryPolicy(0, 0)

	calls := 0
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
}

func TestRetryStopsWhenContextCanceled(t *testing.T) {
	metrics.Init()
	policy := NewRetryPolicy(2, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	calls := 0
	_, err := policy.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestRetryDoesNotRetryBrowserStart(t *testing.T) {
	metrics.Init()
	policy := NewRetryPolicy(3, time.Millisecond)

	calls := 0
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("%w: exec chrome: not found", browser.ErrStart)
	})
	require.ErrorIs(t, err, browser.ErrStart)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
}
