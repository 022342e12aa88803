package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dts/scheduler/pkg/pool"
	"github.com/dts/scheduler/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) (*Executor, *pool.Pool) {
	p := pool.New(4, 256)
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	e := New(p, NewStaticProbe(4, 8192))
	t.Cleanup(e.Shutdown)
	return e, p
}

func waitTerminal(t *testing.T, task *protocol.Task, timeout time.Duration) protocol.TaskState {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s := task.State(); s.IsTerminal() {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach a terminal state within %s (state=%s)", task.TaskID, timeout, task.State())
	return task.State()
}

func TestFib10(t *testing.T) {
	e, _ := newTestExecutor(t)

	task := protocol.NewTask("gtest-fib", "c1", "fib", map[string]any{"n": float64(10)})
	task.SubmitTs = protocol.NowMillis()
	e.ExecuteTask(task)

	state := waitTerminal(t, task, time.Second)
	assert.Equal(t, protocol.TaskSuccess, state)
	assert.Equal(t, float64(55), task.Result["result"])
	assert.Greater(t, task.FinishTs, int64(0))
	assert.GreaterOrEqual(t, task.FinishTs, task.SubmitTs)
}

func TestUnknownFunction(t *testing.T) {
	e, _ := newTestExecutor(t)

	task := protocol.NewTask("gtest-unknown", "c1", "unknown", nil)
	task.SubmitTs = protocol.NowMillis()
	e.ExecuteTask(task)

	state := waitTerminal(t, task, time.Second)
	assert.Equal(t, protocol.TaskFailed, state)
	assert.Contains(t, task.ErrorMsg, "Unknown function")
}

func TestInsufficientResources(t *testing.T) {
	p := pool.New(2, 64)
	defer p.Shutdown(context.Background())
	e := New(p, NewStaticProbe(4, 8192))
	defer e.Shutdown()

	task := protocol.NewTask("gtest-resources", "c1", "fib", map[string]any{"n": float64(1)})
	task.Required = protocol.Resource{CPUCore: 10, MemMB: 16384}
	task.SubmitTs = protocol.NowMillis()
	e.ExecuteTask(task)

	state := waitTerminal(t, task, time.Second)
	assert.Equal(t, protocol.TaskFailed, state)
	assert.Equal(t, "Insufficient resources", task.ErrorMsg)
}

func TestDeadlineTimesOut(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.RegisterFunction("slow", func(params map[string]any, task *protocol.Task) (map[string]any, error) {
		for i := 0; i < 30; i++ {
			if task.IsCancelled() {
				return map[string]any{"result": "cancelled"}, nil
			}
			time.Sleep(10 * time.Millisecond)
		}
		return map[string]any{"result": "done"}, nil
	})

	task := protocol.NewTask("gtest-deadline", "c1", "slow", nil)
	task.TimeoutMs = 100
	task.SubmitTs = protocol.NowMillis()
	e.ExecuteTask(task)

	state := waitTerminal(t, task, 2*time.Second)
	assert.Equal(t, protocol.TaskTimeout, state)
	assert.Equal(t, "Execution timeout", task.ErrorMsg)
}

func TestCooperativeCancelYieldsHandlerChosenSuccess(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.RegisterFunction("slow", func(params map[string]any, task *protocol.Task) (map[string]any, error) {
		for i := 0; i < 30; i++ {
			if task.IsCancelled() {
				return map[string]any{"result": "cancelled"}, nil
			}
			time.Sleep(10 * time.Millisecond)
		}
		return map[string]any{"result": "done"}, nil
	})

	task := protocol.NewTask("gtest-cancel", "c1", "slow", nil)
	task.TimeoutMs = 60_000 // budget large enough that the deadline timer never fires
	task.SubmitTs = protocol.NowMillis()
	e.ExecuteTask(task)

	time.Sleep(50 * time.Millisecond)
	task.MarkCancelled()

	state := waitTerminal(t, task, time.Second)
	assert.Equal(t, protocol.TaskSuccess, state)
	assert.Equal(t, "cancelled", task.Result["result"])
}

func TestRetryThenSucceed(t *testing.T) {
	e, _ := newTestExecutor(t)

	var attempts atomic.Int32
	e.RegisterFunction("flaky", func(params map[string]any, task *protocol.Task) (map[string]any, error) {
		n := attempts.Add(1)
		if n < 3 {
			return nil, protocol.NewKindedError(protocol.KindTransient, "connection refused")
		}
		return map[string]any{"result": "ok"}, nil
	})

	task := protocol.NewTask("gtest-retry", "c1", "flaky", nil)
	task.MaxRetry = 5
	task.SubmitTs = protocol.NowMillis()
	e.ExecuteTask(task)

	state := waitTerminal(t, task, 5*time.Second)
	assert.Equal(t, protocol.TaskSuccess, state)
	assert.EqualValues(t, 2, task.RetryCount)
}

func TestRetryQuotaExhaustion(t *testing.T) {
	p := pool.New(16, 256)
	defer p.Shutdown(context.Background())
	e := New(p, NewStaticProbe(64, 65536))
	defer e.Shutdown()

	e.RegisterFunction("always-fails", func(params map[string]any, task *protocol.Task) (map[string]any, error) {
		return nil, protocol.NewKindedError(protocol.KindTransient, "connection refused")
	})

	const n = 12
	tasks := make([]*protocol.Task, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		task := protocol.NewTask("gtest-quota", "c1", "always-fails", nil)
		task.MaxRetry = 1
		task.SubmitTs = protocol.NowMillis()
		tasks[i] = task
		wg.Add(1)
		go func(task *protocol.Task) {
			defer wg.Done()
			e.ExecuteTask(task)
		}(task)
	}
	wg.Wait()

	quotaFull := 0
	for _, task := range tasks {
		waitTerminal(t, task, 5*time.Second)
		if task.State() == protocol.TaskFailed && task.ErrorMsg == "Retry quota full" {
			quotaFull++
		}
	}
	require.GreaterOrEqual(t, quotaFull, 2)
}
