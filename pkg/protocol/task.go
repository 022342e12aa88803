// Package protocol holds the Task record, its state machine, and the
// bidirectional conversion between the in-memory Task and its wire form.
package protocol

import (
	"sync"
	"sync/atomic"
	"time"
)

// TaskState is one of the task's lifecycle states.
type TaskState uint8

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskSuccess
	TaskFailed
	TaskTimeout
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "PENDING"
	case TaskRunning:
		return "RUNNING"
	case TaskSuccess:
		return "SUCCESS"
	case TaskFailed:
		return "FAILED"
	case TaskTimeout:
		return "TIMEOUT"
	case TaskCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether a task in this state has finished executing and
// will not transition again except through a fresh retry attempt.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskSuccess, TaskFailed, TaskTimeout, TaskCancelled:
		return true
	default:
		return false
	}
}

// Resource describes a cpu/memory requirement or availability snapshot.
type Resource struct {
	CPUCore float64
	MemMB   uint64
}

// Covers reports whether this resource snapshot is sufficient to satisfy req.
func (r Resource) Covers(req Resource) bool {
	return req.CPUCore <= r.CPUCore && req.MemMB <= r.MemMB
}

// Shard identifies a task's ordinal position within a sharded submission.
type Shard struct {
	ShardID     uint32
	TotalShards uint32
}

// Task is the unit of work dispatched to the executor. All timestamp fields
// are wall-clock milliseconds since the Unix epoch (see NowMillis).
type Task struct {
	mu sync.Mutex

	TaskID   string
	ClientID string
	Priority uint32

	state TaskState

	// Cancelled is the ONLY cross-goroutine mutable channel into a running
	// attempt: the executor's deadline timer, a CancelTask RPC, and the
	// handler body all observe and set it through this single shared flag.
	// It is never present on the wire.
	Cancelled *atomic.Bool

	FuncName   string
	FuncParams map[string]any
	Required   Resource
	Shard      Shard

	TimeoutMs  uint32
	MaxRetry   uint32
	RetryCount uint32

	SubmitTs int64
	StartTs  int64
	FinishTs int64

	Result   map[string]any
	ErrorMsg string

	// onUpdate, if set, fires after every successful state transition with a
	// snapshot of the task, outside the guard mutex. It is the hook the RPC
	// layer uses to fan updates out over ListenResults.
	onUpdate func(*Task)
}

// SetUpdateHook installs fn to run after every successful state transition.
// Only one hook is supported; a later call replaces an earlier one.
func (t *Task) SetUpdateHook(fn func(*Task)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUpdate = fn
}

// NewTask creates a task in the PENDING state with its own cancellation flag
// and sensible policy defaults, matching the original implementation's
// defaults (30s timeout, 3 retries).
func NewTask(taskID, clientID, funcName string, params map[string]any) *Task {
	return &Task{
		TaskID:     taskID,
		ClientID:   clientID,
		state:      TaskPending,
		Cancelled:  new(atomic.Bool),
		FuncName:   funcName,
		FuncParams: params,
		TimeoutMs:  30_000,
		MaxRetry:   3,
	}
}

// NowMillis returns the current time as wall-clock milliseconds since the
// Unix epoch, the unit every Task timestamp is expressed in. The value is
// not monotonic: a step of the system clock moves it as well.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// State returns the task's current state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Transition attempts to move the task from its current state into to,
// rejecting the move if the task is already in a terminal state (first
// writer wins: whichever of the deadline timer or the executing attempt gets
// here first owns the outcome) or if the specific from/to pair isn't one of
// the state machine's legal edges. It returns true iff the transition took
// effect.
func (t *Task) Transition(to TaskState, result map[string]any, errorMsg string) bool {
	t.mu.Lock()

	if t.state.IsTerminal() {
		// Terminal-to-terminal transitions are forbidden; the only way out
		// of a terminal state is a fresh attempt via BeginRetry, not here.
		t.mu.Unlock()
		return false
	}
	// Legal edges: PENDING -> RUNNING, and any non-terminal state -> a
	// terminal one. Re-entering PENDING goes through BeginRetry only.
	if !to.IsTerminal() && !(t.state == TaskPending && to == TaskRunning) {
		t.mu.Unlock()
		return false
	}

	t.state = to
	switch to {
	case TaskSuccess:
		t.Result = result
		t.ErrorMsg = ""
		t.FinishTs = NowMillis()
	case TaskFailed, TaskTimeout:
		t.ErrorMsg = errorMsg
		t.FinishTs = NowMillis()
	case TaskCancelled:
		t.Result = result
		t.ErrorMsg = errorMsg
		t.FinishTs = NowMillis()
	case TaskRunning:
		t.StartTs = NowMillis()
	}
	hook := t.onUpdate
	t.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return true
}

// MarkCancelled sets the shared cancellation flag with release ordering. It
// is monotonic: once true, it is never cleared.
func (t *Task) MarkCancelled() {
	t.Cancelled.Store(true)
}

// IsCancelled observes the shared cancellation flag with acquire ordering.
func (t *Task) IsCancelled() bool {
	return t.Cancelled.Load()
}

// BeginRetry resets the task back to PENDING for a fresh attempt, bumping
// RetryCount. It is only valid from RUNNING: a retryable handler fault is
// resolved directly into a new attempt without ever passing through a
// terminal state. The deadline budget keeps counting from the original
// SubmitTs, so StartTs/FinishTs are cleared but SubmitTs is not.
func (t *Task) BeginRetry() bool {
	t.mu.Lock()
	if t.state != TaskRunning {
		t.mu.Unlock()
		return false
	}
	t.state = TaskPending
	t.RetryCount++
	t.StartTs = 0
	t.FinishTs = 0
	t.ErrorMsg = ""
	hook := t.onUpdate
	t.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return true
}

// Snapshot returns a value copy of the task's fields under the guard mutex,
// safe to hand to a caller without further locking. The Cancelled pointer is
// shared, not copied, since it must remain the same flag every observer
// watches.
func (t *Task) Snapshot() Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Task{
		TaskID:     t.TaskID,
		ClientID:   t.ClientID,
		Priority:   t.Priority,
		state:      t.state,
		Cancelled:  t.Cancelled,
		FuncName:   t.FuncName,
		FuncParams: t.FuncParams,
		Required:   t.Required,
		Shard:      t.Shard,
		TimeoutMs:  t.TimeoutMs,
		MaxRetry:   t.MaxRetry,
		RetryCount: t.RetryCount,
		SubmitTs:   t.SubmitTs,
		StartTs:    t.StartTs,
		FinishTs:   t.FinishTs,
		Result:     t.Result,
		ErrorMsg:   t.ErrorMsg,
	}
}
