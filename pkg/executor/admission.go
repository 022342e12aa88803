package executor

import (
	"sync"

	"github.com/dts/scheduler/pkg/protocol"
	"github.com/dts/scheduler/pkg/utils"
)

// admissionQueue orders tasks awaiting a pool slot by Task.Priority (higher
// goes first, advisory only) before they're handed to the bounded work pool.
// Grounded on utils.PriorityQueue, used the same way to order builds ahead of
// worker dispatch in the teacher's pkg/scheduler/scheduler_priority.go.
type admissionQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  *utils.PriorityQueue[*protocol.Task]
	closed bool
}

func priorityCompare(a, b any) int {
	ta, tb := a.(*protocol.Task), b.(*protocol.Task)
	return int(tb.Priority) - int(ta.Priority)
}

func priorityEquals(a, b any) bool {
	return a.(*protocol.Task) == b.(*protocol.Task)
}

func newAdmissionQueue() *admissionQueue {
	aq := &admissionQueue{
		queue: utils.NewPriorityQueue[*protocol.Task](priorityCompare, priorityEquals),
	}
	aq.cond = sync.NewCond(&aq.mu)
	return aq
}

// push admits task into the priority queue. A push after close is a no-op:
// the executor has already stopped scheduling new attempts.
func (aq *admissionQueue) push(task *protocol.Task) {
	aq.mu.Lock()
	defer aq.mu.Unlock()
	if aq.closed {
		return
	}
	aq.queue.Push(task)
	aq.cond.Signal()
}

// pop blocks until a task is available or the queue is closed and drained.
func (aq *admissionQueue) pop() (*protocol.Task, bool) {
	aq.mu.Lock()
	defer aq.mu.Unlock()
	for aq.queue.Len() == 0 && !aq.closed {
		aq.cond.Wait()
	}
	if aq.queue.Len() == 0 {
		return nil, false
	}
	return aq.queue.Pop(), true
}

// close marks the queue closed and wakes every blocked popper; once drained,
// pop returns ok=false forever.
func (aq *admissionQueue) close() {
	aq.mu.Lock()
	aq.closed = true
	aq.mu.Unlock()
	aq.cond.Broadcast()
}
