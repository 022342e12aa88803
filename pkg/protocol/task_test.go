package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskTransitionRejectsTerminalToTerminal(t *testing.T) {
	task := NewTask("t1", "c1", "fib", nil)

	require.True(t, task.Transition(TaskRunning, nil, ""))
	require.True(t, task.Transition(TaskSuccess, map[string]any{"result": 55}, ""))
	assert.Equal(t, TaskSuccess, task.State())

	assert.False(t, task.Transition(TaskFailed, nil, "nope"), "terminal state must reject overwrite")
	assert.Equal(t, TaskSuccess, task.State(), "state must not change on rejected transition")
}

func TestBeginRetryOnlyFromRunning(t *testing.T) {
	task := NewTask("t1", "c1", "fib", nil)
	assert.False(t, task.BeginRetry(), "cannot retry a PENDING task")

	require.True(t, task.Transition(TaskRunning, nil, ""))
	assert.True(t, task.BeginRetry())
	assert.Equal(t, TaskPending, task.State())
	assert.EqualValues(t, 1, task.RetryCount)
}

func TestCancelledFlagIsMonotonic(t *testing.T) {
	task := NewTask("t1", "c1", "fib", nil)
	assert.False(t, task.IsCancelled())
	task.MarkCancelled()
	assert.True(t, task.IsCancelled())
	task.MarkCancelled()
	assert.True(t, task.IsCancelled())
}

func TestStateStringRoundTrip(t *testing.T) {
	for state, name := range stateNames {
		assert.Equal(t, state, stateByName[name])
		assert.Equal(t, name, state.String())
	}
}
