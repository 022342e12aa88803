// Package executor advances a Task through its state machine while honoring
// deadline, cooperative cancellation, retry policy, and resource admission.
// Handler bodies run on pkg/pool.
package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dts/scheduler/pkg/log"
	"github.com/dts/scheduler/pkg/pool"
	"github.com/dts/scheduler/pkg/protocol"
	"github.com/dts/scheduler/pkg/utils"
)

// MaxConcurrentRetry bounds how many retry attempts may be in flight across
// every task this executor owns at once.
const MaxConcurrentRetry = 10

// Executor runs registered task handlers on a bounded work pool, enforcing
// the per-task state machine described in the data model.
type Executor struct {
	registry  *protocol.FunctionRegistry
	pool      *pool.Pool
	probe     ResourceProbe
	admission *admissionQueue

	// retryingCnt is the process-wide retry-in-flight budget; in this
	// codebase there is exactly one Executor per process, so an
	// instance-scoped atomic satisfies the "single process-wide atomic"
	// contract while staying safe to run many Executors side by side in
	// tests without cross-test contamination.
	retryingCnt atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Executor backed by p for running handler bodies. A nil
// probe defaults to DefaultResourceProbe().
func New(p *pool.Pool, probe ResourceProbe) *Executor {
	if probe == nil {
		probe = DefaultResourceProbe()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		registry:  protocol.NewFunctionRegistry(),
		pool:      p,
		probe:     probe,
		admission: newAdmissionQueue(),
		ctx:       ctx,
		cancel:    cancel,
	}
	registerBuiltins(e.registry)

	e.wg.Add(1)
	go e.dispatchLoop()
	return e
}

// dispatchLoop is the single goroutine that drains the priority-ordered
// admission queue and hands each task to the bounded work pool in priority
// order, one at a time. Task.Priority is advisory: this only affects the
// order tasks are handed to the pool, never how many run concurrently.
func (e *Executor) dispatchLoop() {
	defer e.wg.Done()
	for {
		task, ok := e.admission.pop()
		if !ok {
			return
		}
		if err := e.pool.Submit(func() { e.runAttempt(task) }); err != nil {
			task.Transition(protocol.TaskFailed, nil, "shutdown")
		}
	}
}

// RegisterFunction installs fn under name. Expected to happen before the
// executor accepts traffic; the registry's own mutex keeps a late
// registration safe against concurrent lookups.
func (e *Executor) RegisterFunction(name string, fn protocol.TaskFunction) {
	e.registry.Register(name, fn)
}

// FunctionNames enumerates every registered function, for introspection.
func (e *Executor) FunctionNames() []string {
	return e.registry.Names()
}

// ExecuteTask admits task into the priority-ordered dispatch queue and
// returns immediately; dispatchLoop hands it to the work pool in its turn.
func (e *Executor) ExecuteTask(task *protocol.Task) {
	if task.SubmitTs == 0 {
		task.SubmitTs = protocol.NowMillis()
	}
	e.admission.push(task)
}

// Shutdown stops accepting new retry/deadline timers and drains the
// dispatch loop. In-flight handler bodies already running on the pool are
// not interrupted; they are expected to observe the cancellation flag
// cooperatively.
func (e *Executor) Shutdown() {
	e.cancel()
	e.admission.close()
	e.wg.Wait()
}

// runAttempt is one execution pipeline pass: Admit, Budget, Arm deadline,
// Begin, Dispatch, Invoke, Resolve.
func (e *Executor) runAttempt(task *protocol.Task) {
	// 1. Admit.
	if avail := e.probe.Available(); !avail.Covers(task.Required) {
		log.Debugf("executor: task %s admission failed: need %.1f cores/%s, have %.1f cores/%s",
			task.TaskID, task.Required.CPUCore, utils.HumanByteSize(int64(task.Required.MemMB)*1024*1024),
			avail.CPUCore, utils.HumanByteSize(int64(avail.MemMB)*1024*1024))
		task.Transition(protocol.TaskFailed, nil, "Insufficient resources")
		return
	}

	// 2. Budget. Signed arithmetic: underflow yields an immediate TIMEOUT.
	remaining := int64(task.TimeoutMs) - (protocol.NowMillis() - task.SubmitTs)
	if remaining <= 0 {
		task.Transition(protocol.TaskTimeout, nil, "Execution timeout")
		return
	}

	// 3. Arm deadline: a dedicated goroutine races the handler body. Either
	// it fires first and claims TIMEOUT, or the defer below stops it before
	// it ever does, whichever is first wins via Task.Transition's terminal
	// guard.
	deadlineTimer := time.NewTimer(time.Duration(remaining) * time.Millisecond)
	deadlineStop := make(chan struct{})
	go func() {
		select {
		case <-deadlineTimer.C:
			task.MarkCancelled()
			if task.Transition(protocol.TaskTimeout, nil, "Execution timeout") {
				log.Debugf("executor: task %s deadline fired", task.TaskID)
			}
		case <-deadlineStop:
		case <-e.ctx.Done():
		}
	}()
	defer func() {
		deadlineTimer.Stop()
		close(deadlineStop)
	}()

	// 4. Begin.
	if !task.Transition(protocol.TaskRunning, nil, "") {
		// The deadline timer (or a concurrent cancel) already claimed a
		// terminal state for this attempt before we got here.
		return
	}

	// 5. Dispatch.
	fn, ok := e.registry.Lookup(task.FuncName)
	if !ok {
		task.Transition(protocol.TaskFailed, nil, "Unknown function: "+task.FuncName)
		return
	}

	// 6. Invoke.
	result, err := fn(task.FuncParams, task)

	// 7. Resolve.
	e.resolve(task, result, err)
}

func (e *Executor) resolve(task *protocol.Task, result map[string]any, err error) {
	if err == nil {
		task.Transition(protocol.TaskSuccess, result, "")
		return
	}

	if kinded, ok := err.(*protocol.KindedError); ok && kinded.Kind == protocol.KindCancelled {
		task.Transition(protocol.TaskCancelled, result, kinded.Msg)
		return
	}

	if protocol.IsRetryable(err) && task.RetryCount < task.MaxRetry {
		e.retry(task)
		return
	}

	if detailed, ok := err.(utils.DetailedError); ok {
		log.Debugf("executor: task %s failing: %s", task.TaskID, detailed.Details())
	}
	task.Transition(protocol.TaskFailed, nil, "Execution failed: "+err.Error())
}

// retry arms a one-shot exponential-backoff timer for another attempt,
// admitting it against the global retry-in-flight budget first.
func (e *Executor) retry(task *protocol.Task) {
	if e.retryingCnt.Add(1) > MaxConcurrentRetry {
		e.retryingCnt.Add(-1)
		task.Transition(protocol.TaskFailed, nil, "Retry quota full")
		return
	}

	retryLevel := task.RetryCount
	if retryLevel > 4 {
		retryLevel = 4
	}
	delay := time.Duration(1<<retryLevel) * time.Second

	timer := time.NewTimer(delay)
	go func() {
		select {
		case <-timer.C:
			e.retryingCnt.Add(-1)
			if task.BeginRetry() {
				e.ExecuteTask(task)
			}
		case <-e.ctx.Done():
			timer.Stop()
			e.retryingCnt.Add(-1)
			task.Transition(protocol.TaskFailed, nil, "shutdown")
		}
	}()
}
