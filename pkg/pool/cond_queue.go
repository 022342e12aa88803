package pool

import (
	"context"
	"sync"

	"github.com/dts/scheduler/pkg/log"
)

// CondPool is the spec-permitted alternative backing for Pool: "a
// mutex-guarded queue with a condition variable is permitted if it satisfies
// the same observable contract" as the lock-free MPMC queue. It is not wired
// into the default construction path (New uses the hazard-pointer-backed
// mpmc.Queue); it exists so the alternative is available where the simpler
// implementation's lock contention is preferable to lock-free bookkeeping,
// e.g. in tests that want a deterministic drain order.
type CondPool struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []func()
	cap       int
	stopped   bool
	active    int
	target    int
	completed int64
	wg        sync.WaitGroup
}

// NewCondPool creates a CondPool with initial workers and a bounded queue of
// capacity closures.
func NewCondPool(initial, capacity int) *CondPool {
	p := &CondPool{cap: capacity, target: initial}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < initial; i++ {
		p.spawnLocked()
	}
	return p
}

func (p *CondPool) spawnLocked() {
	p.active++
	p.wg.Add(1)
	go p.worker()
}

// Submit enqueues fn, blocking on the condition variable while the bounded
// queue is full.
func (p *CondPool) Submit(fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.stopped && len(p.queue) >= p.cap {
		p.cond.Wait()
	}
	if p.stopped {
		return ErrShuttingDown
	}
	p.queue = append(p.queue, fn)
	p.cond.Signal()
	return nil
}

// Shutdown stops accepting work, discards anything still queued, and wakes
// every worker so they all observe the stop flag and exit.
func (p *CondPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.queue = nil
	p.mu.Unlock()
	p.cond.Broadcast()

	done := make(chan struct{})
	go func() { p.wg.Wait(); close(done) }()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *CondPool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for !p.stopped && len(p.queue) == 0 {
			p.cond.Wait()
		}
		if p.stopped {
			p.active--
			p.mu.Unlock()
			return
		}
		fn := p.queue[0]
		p.queue = p.queue[1:]
		p.cond.Signal()
		p.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Debugf("pool: task panicked: %v", r)
				}
				p.mu.Lock()
				p.completed++
				p.mu.Unlock()
			}()
			fn()
		}()
	}
}

// TasksLeft reports the number of closures still queued.
func (p *CondPool) TasksLeft() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// ThreadCount reports the current number of live worker goroutines.
func (p *CondPool) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
