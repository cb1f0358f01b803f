package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunPreservesCardinalityAndOrder(t *testing.T) {
	t.Parallel()

	items := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, concurrency := range []int{1, 2, 3, len(items), len(items) + 5} {
		t.Run(fmt.Sprintf("concurrency_%d", concurrency), func(t *testing.T) {
			t.Parallel()

			results := Run(context.Background(), items, concurrency,
				func(_ context.Context, index int, item string) (string, error) {
					return fmt.Sprintf("%d:%s", index, item), nil
				})

			require.Len(t, results, len(items))
			for i, item := range items {
				require.True(t, results[i].Ok())
				require.Equal(t, fmt.Sprintf("%d:%s", i, item), results[i].Value)
			}
		})
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	items := []int{0, 1, 2, 3, 4}
	boom := errors.New("item exploded")

	results := Run(context.Background(), items, 2,
		func(_ context.Context, _ int, item int) (int, error) {
			if item == 2 {
				return 0, boom
			}
			return item * 10, nil
		})

	require.Len(t, results, len(items))
	for i, res := range results {
		if i == 2 {
			require.ErrorIs(t, res.Err, boom)
			continue
		}
		require.True(t, res.Ok(), "item %d should be unaffected", i)
		require.Equal(t, i*10, res.Value)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	t.Parallel()

	items := []int{0, 1, 2}
	results := Run(context.Background(), items, 3,
		func(_ context.Context, _ int, item int) (int, error) {
			if item == 1 {
				panic("unexpected state")
			}
			return item, nil
		})

	require.True(t, results[0].Ok())
	require.False(t, results[1].Ok())
	require.Contains(t, results[1].Err.Error(), "panicked")
	require.True(t, results[2].Ok())
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const limit = 3
	var current, peak atomic.Int32

	items := make([]int, 10)
	Run(context.Background(), items, limit,
		func(_ context.Context, _ int, _ int) (struct{}, error) {
			c := current.Add(1)
			for {
				p := peak.Load()
				if c <= p || peak.CompareAndSwap(p, c) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return struct{}{}, nil
		})

	require.LessOrEqual(t, peak.Load(), int32(limit))
	require.Positive(t, peak.Load())
}

func TestRunWaitsForWaveToSettle(t *testing.T) {
	t.Parallel()

	// Four items at concurrency two: the second wave must observe every
	// first-wave item settled, including the failed one.
	var settled [4]atomic.Bool

	results := Run(context.Background(), []int{0, 1, 2, 3}, 2,
		func(_ context.Context, index int, _ int) (struct{}, error) {
			defer settled[index].Store(true)
			if index < 2 {
				time.Sleep(10 * time.Millisecond)
				if index == 1 {
					return struct{}{}, errors.New("first wave failure")
				}
				return struct{}{}, nil
			}
			require.True(t, settled[0].Load(), "item 0 should have settled before wave two")
			require.True(t, settled[1].Load(), "item 1 should have settled before wave two")
			return struct{}{}, nil
		})

	require.Len(t, results, 4)
	require.True(t, results[0].Ok())
	require.False(t, results[1].Ok())
	require.True(t, results[2].Ok())
	require.True(t, results[3].Ok())
}

func TestRunSettlesRemainingItemsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []int{0, 1, 2}
	results := Run(ctx, items, 1,
		func(_ context.Context, _ int, item int) (int, error) {
			return item, nil
		})

	require.Len(t, results, len(items))
	for _, res := range results {
		require.ErrorIs(t, res.Err, context.Canceled)
	}
}

func TestRunEmptyInput(t *testing.T) {
	t.Parallel()

	results := Run(context.Background(), []int(nil), 4,
		func(_ context.Context, _ int, item int) (int, error) {
			return item, nil
		})
	require.Empty(t, results)
}

func TestRunNormalizesConcurrency(t *testing.T) {
	t.Parallel()

	results := Run(context.Background(), []int{1, 2}, 0,
		func(_ context.Context, _ int, item int) (int, error) {
			return item, nil
		})
	require.Len(t, results, 2)
	require.True(t, results[0].Ok())
	require.True(t, results[1].Ok())
}
