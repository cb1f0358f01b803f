// Package batch runs one operation per item with bounded concurrency.
//
// Items are processed in consecutive waves of at most the configured
// concurrency; a wave starts only after the previous one has fully settled.
// Failures are captured per item as result values, so one item can never
// cancel or mask its siblings. The capture and audit stages both run on this
// primitive and differ only in the operation they supply.
package batch

import (
	"context"
	"fmt"
	"sync"
)

// Op is the per-item operation. index is the item's position in the input
// slice, which operations may use for deterministic naming.
type Op[I, O any] func(ctx context.Context, index int, item I) (O, error)

// Result is the settled outcome of one item. Exactly one of Value or Err is
// meaningful; Err == nil marks success.
type Result[O any] struct {
	Value O
	Err   error
}

// Ok reports whether the item succeeded.
func (r Result[O]) Ok() bool { return r.Err == nil }

// Run executes op for every item and returns one Result per item, in input
// order, regardless of per-item failures. A concurrency below 1 is treated
// as 1. Once ctx is done, remaining items settle immediately with the
// context error so the caller still receives a full accounting.
func Run[I, O any](ctx context.Context, items []I, concurrency int, op Op[I, O]) []Result[O] {
	results := make([]Result[O], len(items))
	if len(items) == 0 {
		return results
	}
	if concurrency < 1 {
		concurrency = 1
	}

	for start := 0; start < len(items); start += concurrency {
		end := min(start+concurrency, len(items))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				results[i] = Result[O]{Err: fmt.Errorf("batch aborted: %w", err)}
				continue
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = settle(ctx, i, items[i], op)
			}(i)
		}
		wg.Wait()
	}
	return results
}

// settle runs a single op call and converts a panic into that slot's error so
// a misbehaving operation degrades to an item failure.
func settle[I, O any](ctx context.Context, index int, item I, op Op[I, O]) (res Result[O]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[O]{Err: fmt.Errorf("operation panicked on item %d: %v", index, r)}
		}
	}()
	value, err := op(ctx, index, item)
	if err != nil {
		return Result[O]{Err: err}
	}
	return Result[O]{Value: value}
}
