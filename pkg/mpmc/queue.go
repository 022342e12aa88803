// Package mpmc implements a lock-free multi-producer/multi-consumer FIFO
// queue (Michael & Scott's algorithm). Dequeue protects the head node
// through github.com/dts/scheduler/pkg/hazptr and retires the popped node
// there with a no-op deleter; the garbage collector frees the node's memory
// once nothing references it.
package mpmc

import (
	"sync/atomic"
	"unsafe"

	"github.com/dts/scheduler/pkg/hazptr"
)

type node[T any] struct {
	data T
	next atomic.Pointer[node[T]]
}

// Queue is an unbounded, lock-free FIFO safe for any number of concurrent
// producers and consumers.
type Queue[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	domain *hazptr.Domain
	length atomic.Int64
}

// New creates an empty queue backed by the process-wide default hazard
// pointer domain.
func New[T any]() *Queue[T] {
	return NewWithDomain[T](hazptr.Default())
}

// NewWithDomain creates an empty queue backed by the given hazard pointer
// domain, letting tests and isolated subsystems avoid sharing reclamation
// state with the rest of the process.
func NewWithDomain[T any](domain *hazptr.Domain) *Queue[T] {
	dummy := &node[T]{}
	q := &Queue[T]{domain: domain}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	return q
}

// Enqueue appends data to the tail of the queue.
func (q *Queue[T]) Enqueue(data T) {
	n := &node[T]{data: data}

	for {
		tail := q.tail.Load()
		next := tail.next.Load()

		if tail != q.tail.Load() {
			continue
		}

		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(tail, n)
				q.length.Add(1)
				return
			}
		} else {
			// Tail lagged behind; help advance it before retrying.
			q.tail.CompareAndSwap(tail, next)
		}
	}
}

// Dequeue removes and returns the item at the head of the queue. The second
// return value is false if the queue was empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	holder := q.domain.Acquire()
	defer holder.Release()

	for {
		head := q.head.Load()
		holder.Protect(unsafe.Pointer(head))
		if head != q.head.Load() {
			continue
		}

		tail := q.tail.Load()
		next := head.next.Load()

		if head != q.head.Load() {
			continue
		}

		if next == nil {
			var zero T
			return zero, false
		}

		if head == tail {
			// Tail lagged behind a completed enqueue; help advance it.
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		data := next.data
		if q.head.CompareAndSwap(head, next) {
			q.length.Add(-1)
			holder.Unprotect()
			holder.Retire(unsafe.Pointer(head), func() {})
			return data, true
		}
	}
}

// Len returns the approximate number of items currently in the queue. It is
// exact in the absence of concurrent mutation.
func (q *Queue[T]) Len() int64 {
	return q.length.Load()
}
