// Package parallel runs a function over an iterator with bounded
// concurrency.
package parallel

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every value of an input sequence using at most limit
// goroutines.
type Map[T, R any] struct {
	ctx   context.Context
	limit int
	fn    func(context.Context, T) (R, error)
}

func NewMap[T, R any](ctx context.Context, limit int, fn func(context.Context, T) (R, error)) *Map[T, R] {
	if limit < 1 {
		limit = 1
	}
	return &Map[T, R]{
		ctx:   ctx,
		limit: limit,
		fn:    fn,
	}
}

type result[R any] struct {
	value R
	err   error
}

// Iter returns the results of fn in completion order. Errors of the input
// sequence are passed through. Once the context is done, no more results
// are yielded. Breaking out of the loop cancels the in-flight calls and
// waits for them before Iter returns.
func (m *Map[T, R]) Iter(seq iter.Seq2[T, error]) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		ctx, cancel := context.WithCancel(m.ctx)
		defer cancel()

		results := make(chan result[R])
		send := func(r result[R]) {
			select {
			case results <- r:
			case <-ctx.Done():
			}
		}

		go func() {
			defer close(results)
			var g errgroup.Group
			g.SetLimit(m.limit)
			for in, err := range seq {
				if ctx.Err() != nil {
					break
				}
				if err != nil {
					send(result[R]{err: err})
					continue
				}
				g.Go(func() error {
					value, err := m.fn(ctx, in)
					send(result[R]{value: value, err: err})
					return nil
				})
			}
			_ = g.Wait()
		}()

		for r := range results {
			if ctx.Err() != nil {
				continue
			}
			if !yield(r.value, r.err) {
				cancel()
			}
		}
	}
}
