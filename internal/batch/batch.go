// Package batch runs a scoring function over many items with bounded
// concurrency. Results come back in input order and one item's failure
// never fails its siblings.
package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Outcome is one slot of a batch result: either a value or the error
// that produced the gap.
type Outcome[R any] struct {
	Value R
	Err   error
}

// Map applies fn to every item with at most concurrency calls in
// flight, returning outcomes aligned with the input.
//
// Cancellation stops dispatching new items; their outcomes carry the
// context error. Items already started run to completion on a context
// detached from the caller's cancellation, so partial batches return
// real results rather than a pile of context.Canceled.
func Map[T, R any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) (R, error)) []Outcome[R] {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]Outcome[R], len(items))
	sem := semaphore.NewWeighted(int64(concurrency))
	detached := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Outcome[R]{Err: err}
			continue
		}
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer sem.Release(1)
			v, err := fn(detached, item)
			results[i] = Outcome[R]{Value: v, Err: err}
		}(i, item)
	}
	wg.Wait()

	return results
}
