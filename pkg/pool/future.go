package pool

import (
	"context"
	"sync"
)

// Future is a one-shot result slot: it becomes readable exactly once, either
// by the goroutine that computed it or by whoever observes it first.
type Future[T any] struct {
	once   sync.Once
	done   chan struct{}
	result T
	err    error
}

// NewFuture creates an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// deliver resolves the future. Only the first call has any effect.
func (f *Future[T]) deliver(result T, err error) {
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
	})
}

// Deliver resolves the future from outside the pool package — the hook the
// RPC client façade uses to settle a Future[T] from a grpc-go call callback
// instead of a pool worker closure. Only the first call has any effect.
func (f *Future[T]) Deliver(result T, err error) {
	f.deliver(result, err)
}

// Wait blocks until the future is resolved and returns its value.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.result, f.err
}

// Done returns a channel that closes once the future is resolved, for use in
// select statements alongside a context's cancellation or a timeout.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// WaitCtx blocks until the future is resolved or ctx is done, whichever
// comes first.
func (f *Future[T]) WaitCtx(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet returns the resolved value without blocking. The second return
// value is false if the future has not been delivered yet.
func (f *Future[T]) TryGet() (T, error, bool) {
	select {
	case <-f.done:
		return f.result, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}
