package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireRoundTrip(t *testing.T) {
	task := NewTask("gtest-1", "client-a", "fib", map[string]any{"n": float64(10)})
	task.Priority = 7
	task.Required = Resource{CPUCore: 2, MemMB: 512}
	task.Shard = Shard{ShardID: 1, TotalShards: 4}
	task.SubmitTs = 1000
	require.True(t, task.Transition(TaskRunning, nil, ""))
	require.True(t, task.Transition(TaskSuccess, map[string]any{"result": float64(55)}, ""))

	wire := ToWire(task)
	back, err := FromWire(wire)
	require.NoError(t, err)

	assert.Equal(t, task.TaskID, back.TaskID)
	assert.Equal(t, task.ClientID, back.ClientID)
	assert.Equal(t, task.Priority, back.Priority)
	assert.Equal(t, task.State(), back.State())
	assert.Equal(t, task.FuncName, back.FuncName)
	assert.Equal(t, task.FuncParams, back.FuncParams)
	assert.Equal(t, task.Required, back.Required)
	assert.Equal(t, task.Shard, back.Shard)
	assert.Equal(t, task.TimeoutMs, back.TimeoutMs)
	assert.Equal(t, task.MaxRetry, back.MaxRetry)
	assert.Equal(t, task.RetryCount, back.RetryCount)
	assert.Equal(t, task.SubmitTs, back.SubmitTs)
	assert.Equal(t, task.StartTs, back.StartTs)
	assert.Equal(t, task.FinishTs, back.FinishTs)
	assert.Equal(t, task.Result, back.Result)
	assert.Equal(t, task.ErrorMsg, back.ErrorMsg)

	// The cancellation flag is never on the wire, and FromWire must not try
	// to share the original's flag.
	assert.NotSame(t, task.Cancelled, back.Cancelled)
}

func TestFromWireRejectsMissingRequiredFields(t *testing.T) {
	_, err := FromWire(&WireTask{FuncName: "fib"})
	assert.Error(t, err)

	_, err = FromWire(&WireTask{TaskId: "t1"})
	assert.Error(t, err)
}

func TestWireTaskJSONCodecRoundTrip(t *testing.T) {
	task := NewTask("t1", "c1", "fib", map[string]any{"n": float64(3), "nested": map[string]any{"a": "b"}})
	wire := ToWire(task)

	data, err := json.Marshal(wire)
	require.NoError(t, err)

	var decoded WireTask
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, wire.FuncParams["n"].ToGo(), decoded.FuncParams["n"].ToGo())
	assert.Equal(t, wire.FuncParams["nested"].ToGo(), decoded.FuncParams["nested"].ToGo())
}

func TestFromWireTolerateUnknownNestedKeys(t *testing.T) {
	wire := &WireTask{
		TaskId:   "t1",
		FuncName: "fib",
		FuncParams: map[string]*Value{
			"n":              NewValue(float64(1)),
			"unexpected_key": NewValue("ignored by any schema"),
		},
	}
	task, err := FromWire(wire)
	require.NoError(t, err)
	assert.Equal(t, "ignored by any schema", task.FuncParams["unexpected_key"])
}
