package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the pool size used when a caller doesn't have a
// specific reason to pick another value (§5: "typical size 4-16").
const DefaultConcurrency = 8

// Run applies fn to every item in items, running at most concurrency calls
// at a time, and returns the results in the same order as items. The first
// error returned by fn cancels ctx for the remaining in-flight and
// not-yet-started calls, and Run returns that error; partial results up to
// that point are still returned alongside it.
//
// concurrency <= 0 is treated as DefaultConcurrency. An empty items slice
// returns immediately with a nil slice and nil error.
func Run[T, R any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

// RunEach is Run for side-effecting work with no per-item result.
func RunEach[T any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) error) error {
	_, err := Run(ctx, items, concurrency, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, item)
	})
	return err
}
