// Package pool implements a bounded-capacity, resizable worker pool.
//
// It unifies the two divergent shapes the task-dispatch service needs on the
// same underlying queue: a fire-and-forget Submit for closures whose result
// nobody waits on, and a future-returning Go for closures whose result a
// caller wants to observe later. Both ride the same lock-free MPMC queue
// (pkg/mpmc) backed by the hazard-pointer domain (pkg/hazptr) for node
// reclamation.
package pool

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dts/scheduler/pkg/log"
	"github.com/dts/scheduler/pkg/mpmc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrShuttingDown is returned by Submit/Go once the pool has begun shutting
// down; no further closures are accepted.
var ErrShuttingDown = errors.New("pool: shutting down")

// workerIdleTimeout bounds how long a worker blocks waiting for the next
// closure before re-checking the stop flag, so Shutdown is observed promptly
// even if the wakeup signal is missed.
const workerIdleTimeout = 200 * time.Millisecond

// Pool runs closures submitted by many producers on a bounded set of
// goroutine workers.
type Pool struct {
	queue *mpmc.Queue[func()]

	// cap bounds how many closures may be queued (and not yet dequeued) at
	// once; Submit backs off cooperatively while the queue is at capacity.
	cap     int64
	inFlight atomic.Int64

	notify chan struct{}
	stopCh chan struct{}

	target    atomic.Int64
	active    atomic.Int64
	completed atomic.Int64
	stopped   atomic.Bool

	group    *errgroup.Group
	groupCtx context.Context

	// spawnGate bounds how many goroutine launches a single Resize burst may
	// have in flight at once; spawn() acquires before calling group.Go and
	// the spawned goroutine releases as soon as it starts running, so a
	// Resize(+many) doesn't hand the runtime a thundering herd of worker
	// goroutines to schedule all at once.
	spawnGate *semaphore.Weighted
}

// New creates a pool with initial workers and a bounded queue capacity of
// capacity outstanding closures.
func New(initial, capacity int) *Pool {
	if initial <= 0 {
		initial = runtime.NumCPU()
	}
	if capacity <= 0 {
		capacity = 1024
	}

	group, ctx := errgroup.WithContext(context.Background())

	p := &Pool{
		queue:     mpmc.New[func()](),
		cap:       int64(capacity),
		notify:    make(chan struct{}, capacity),
		stopCh:    make(chan struct{}),
		group:     group,
		spawnGate: semaphore.NewWeighted(int64(runtime.NumCPU())),
	}
	p.groupCtx = ctx

	p.target.Store(int64(initial))
	for i := 0; i < initial; i++ {
		p.spawn()
	}
	return p
}

// spawn starts one more worker goroutine and accounts for it in active. It
// blocks on spawnGate first, so a large Resize step launches workers in
// waves of at most NumCPU instead of all at once.
func (p *Pool) spawn() {
	p.active.Add(1)
	p.spawnGate.Acquire(context.Background(), 1)
	p.group.Go(func() error {
		p.spawnGate.Release(1)
		p.worker()
		return nil
	})
}

// Submit enqueues fn for execution on some worker. It cooperatively spins
// and yields while the bounded queue is full, and fails immediately once the
// pool is shutting down.
func (p *Pool) Submit(fn func()) error {
	for {
		if p.stopped.Load() {
			return ErrShuttingDown
		}
		if p.inFlight.Add(1) <= p.cap {
			break
		}
		p.inFlight.Add(-1)
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}

	p.queue.Enqueue(fn)
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// Go wraps fn so its return value is delivered into the returned Future
// exactly once. If the pool refuses the submission (shutting down), the
// future resolves immediately with the submission error.
func Go[R any](p *Pool, fn func() (R, error)) *Future[R] {
	f := NewFuture[R]()
	err := p.Submit(func() {
		r, err := fn()
		f.deliver(r, err)
	})
	if err != nil {
		var zero R
		f.deliver(zero, err)
	}
	return f
}

// Resize changes the target worker count. If target grows, new workers are
// spawned immediately; if it shrinks, existing workers notice on their next
// loop iteration and exit one at a time.
func (p *Pool) Resize(target int) {
	if target < 0 {
		target = 0
	}
	old := p.target.Swap(int64(target))
	if diff := int64(target) - old; diff > 0 {
		for i := int64(0); i < diff; i++ {
			p.spawn()
		}
	} else if diff < 0 {
		// Wake idle workers so they notice the shrunk target promptly.
		for i := int64(0); i > diff; i-- {
			select {
			case p.notify <- struct{}{}:
			default:
			}
		}
	}
}

// Shutdown stops accepting new work, drains and discards whatever is still
// queued, wakes every worker, and waits for them all to exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return p.group.Wait()
	}
	close(p.stopCh)

	for {
		if _, ok := p.queue.Dequeue(); !ok {
			break
		}
		p.inFlight.Add(-1)
	}

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TasksLeft reports the approximate number of closures still queued, i.e.
// submitted but not yet picked up by a worker; closures already running are
// not counted.
func (p *Pool) TasksLeft() int {
	n := p.inFlight.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// ThreadCount reports the current number of live worker goroutines.
func (p *Pool) ThreadCount() int {
	return int(p.active.Load())
}

// Completed reports how many closures have finished running (successfully or
// via a recovered panic), for observability and tests.
func (p *Pool) Completed() int64 {
	return p.completed.Load()
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.notify:
		case <-p.stopCh:
		case <-time.After(workerIdleTimeout):
		}

		if p.stopped.Load() {
			p.active.Add(-1)
			return
		}

		fn, ok := p.queue.Dequeue()
		if !ok {
			if p.shouldExit() {
				return
			}
			continue
		}

		p.inFlight.Add(-1)
		p.run(fn)

		if p.shouldExit() {
			return
		}
	}
}

// run invokes fn inside a panic firewall: a faulting closure is logged and
// counted, never allowed to take down the worker goroutine.
func (p *Pool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Debugf("pool: task panicked: %v", r)
		}
		p.completed.Add(1)
	}()
	fn()
}

// shouldExit checks active against target and, if this worker is the
// surplus, atomically claims the exit and decrements active exactly once.
func (p *Pool) shouldExit() bool {
	for {
		active := p.active.Load()
		target := p.target.Load()
		if active <= target {
			return false
		}
		if p.active.CompareAndSwap(active, active-1) {
			return true
		}
	}
}
