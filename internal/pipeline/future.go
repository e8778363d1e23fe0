package pipeline

import (
	"context"
	"sync"
)

// Future wraps one deferred computation that many chunks may attach to. The
// computation runs at most once per run regardless of attach count or timing;
// awaiting before resolution suspends only the caller, never the scheduler.
type Future[T any] struct {
	compute func(context.Context) (T, error)

	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture wraps compute without triggering it.
func NewFuture[T any](compute func(context.Context) (T, error)) *Future[T] {
	return &Future[T]{compute: compute, done: make(chan struct{})}
}

// ResolvedFuture returns a future already resolved with value.
func ResolvedFuture[T any](value T) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), value: value}
	f.once.Do(func() {})
	close(f.done)
	return f
}

// FailedFuture returns a future already resolved with err.
func FailedFuture[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), err: err}
	f.once.Do(func() {})
	close(f.done)
	return f
}

// Start triggers the computation in the background. Subsequent calls are
// no-ops; the supplied context governs the computation itself, not any
// individual waiter.
func (f *Future[T]) Start(ctx context.Context) {
	f.once.Do(func() {
		go func() {
			defer close(f.done)
			f.value, f.err = f.compute(ctx)
		}()
	})
}

// Await suspends the caller until the future resolves or ctx is done. Every
// waiter observes the same value or the same rejection.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Resolved reports whether the computation has completed.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
