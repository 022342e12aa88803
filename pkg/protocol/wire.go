package protocol

import (
	"fmt"
	"sync/atomic"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
)

func newCancelledFlag() *atomic.Bool { return new(atomic.Bool) }

func msToTime(ms int64) time.Time { return time.UnixMilli(ms) }

// WireResource is the wire shape of Resource.
type WireResource struct {
	CpuCore float64 `json:"cpu_core"`
	MemMb   uint64  `json:"mem_mb"`
}

// WireShard is the wire shape of Shard.
type WireShard struct {
	ShardId     uint32 `json:"shard_id"`
	TotalShards uint32 `json:"total_shards"`
}

// WireTask is the bidirectional wire form of Task. Every field Task exposes
// outside the process appears here EXCEPT Cancelled: the cancellation flag
// is an in-memory cross-goroutine signal, never serialized.
//
// Lifecycle timestamps additionally carry a protobuf timestamppb.Timestamp
// alongside their millisecond integer form, so a caller that wants wall-clock
// semantics doesn't have to hand-decode epoch millis; the millisecond field
// remains canonical for round-tripping and is what FromWire trusts. The
// *_at fields are derived on every ToWire/FillWire call and ignored by
// FromWire.
type WireTask struct {
	TaskId   string `json:"task_id"`
	ClientId string `json:"client_id"`
	Priority uint32 `json:"priority"`
	State    string `json:"state"`

	FuncName   string             `json:"func_name"`
	FuncParams map[string]*Value  `json:"func_params"`
	Required   WireResource       `json:"required"`
	Shard      WireShard          `json:"shard"`

	TimeoutMs  uint32 `json:"timeout_ms"`
	MaxRetry   uint32 `json:"max_retry"`
	RetryCount uint32 `json:"retry_count"`

	SubmitTs int64 `json:"submit_ts"`
	StartTs  int64 `json:"start_ts"`
	FinishTs int64 `json:"finish_ts"`

	SubmitAt *timestamppb.Timestamp `json:"submit_at,omitempty"`
	StartAt  *timestamppb.Timestamp `json:"start_at,omitempty"`
	FinishAt *timestamppb.Timestamp `json:"finish_at,omitempty"`

	Result   map[string]*Value `json:"result"`
	ErrorMsg string             `json:"error_msg"`
}

// stateNames / stateByName back the TaskState <-> string wire mapping.
var stateNames = map[TaskState]string{
	TaskPending:   "PENDING",
	TaskRunning:   "RUNNING",
	TaskSuccess:   "SUCCESS",
	TaskFailed:    "FAILED",
	TaskTimeout:   "TIMEOUT",
	TaskCancelled: "CANCELLED",
}

var stateByName = func() map[string]TaskState {
	m := make(map[string]TaskState, len(stateNames))
	for k, v := range stateNames {
		m[v] = k
	}
	return m
}()

// ToWire converts an in-memory Task into its wire form. Every field is
// copied; Cancelled is deliberately omitted.
func ToWire(t *Task) *WireTask {
	w := &WireTask{}
	FillWire(w, t)
	return w
}

// FillWire populates dst from t's current snapshot without allocating a new
// WireTask, so a caller recycling scratch buffers (e.g. from a sync.Pool on
// a streaming hot path) can avoid the per-call allocation ToWire pays.
func FillWire(dst *WireTask, t *Task) {
	snap := t.Snapshot()
	dst.TaskId = snap.TaskID
	dst.ClientId = snap.ClientID
	dst.Priority = snap.Priority
	dst.State = stateNames[snap.state]
	dst.FuncName = snap.FuncName
	dst.FuncParams = ValueMapFrom(snap.FuncParams)
	dst.Required = WireResource{CpuCore: snap.Required.CPUCore, MemMb: snap.Required.MemMB}
	dst.Shard = WireShard{ShardId: snap.Shard.ShardID, TotalShards: snap.Shard.TotalShards}
	dst.TimeoutMs = snap.TimeoutMs
	dst.MaxRetry = snap.MaxRetry
	dst.RetryCount = snap.RetryCount
	dst.SubmitTs = snap.SubmitTs
	dst.StartTs = snap.StartTs
	dst.FinishTs = snap.FinishTs
	dst.SubmitAt = MillisToTimestamp(snap.SubmitTs)
	dst.StartAt = MillisToTimestamp(snap.StartTs)
	dst.FinishAt = MillisToTimestamp(snap.FinishTs)
	dst.Result = ValueMapFrom(snap.Result)
	dst.ErrorMsg = snap.ErrorMsg
}

// FromWire converts a wire Task back into an in-memory Task, allocating a
// fresh Cancelled flag (the wire form never carries one). Unknown keys
// inside nested structured values are tolerated by construction (ValueMapTo
// carries whatever keys are present); missing required top-level fields
// (task_id, func_name) are a hard error.
func FromWire(w *WireTask) (*Task, error) {
	if w == nil {
		return nil, fmt.Errorf("protocol: nil wire task")
	}
	if w.TaskId == "" {
		return nil, fmt.Errorf("protocol: wire task missing required field task_id")
	}
	if w.FuncName == "" {
		return nil, fmt.Errorf("protocol: wire task missing required field func_name")
	}

	state, ok := stateByName[w.State]
	if !ok {
		state = TaskPending
	}

	t := &Task{
		TaskID:     w.TaskId,
		ClientID:   w.ClientId,
		Priority:   w.Priority,
		state:      state,
		Cancelled:  newCancelledFlag(),
		FuncName:   w.FuncName,
		FuncParams: ValueMapTo(w.FuncParams),
		Required:   Resource{CPUCore: w.Required.CpuCore, MemMB: w.Required.MemMb},
		Shard:      Shard{ShardID: w.Shard.ShardId, TotalShards: w.Shard.TotalShards},
		TimeoutMs:  w.TimeoutMs,
		MaxRetry:   w.MaxRetry,
		RetryCount: w.RetryCount,
		SubmitTs:   w.SubmitTs,
		StartTs:    w.StartTs,
		FinishTs:   w.FinishTs,
		Result:     ValueMapTo(w.Result),
		ErrorMsg:   w.ErrorMsg,
	}
	return t, nil
}

// MillisToTimestamp renders an epoch-millisecond field as a protobuf
// Timestamp for callers that want wall-clock semantics rather than a raw
// integer; zero maps to nil (no timestamp recorded yet).
func MillisToTimestamp(ms int64) *timestamppb.Timestamp {
	if ms == 0 {
		return nil
	}
	return timestamppb.New(msToTime(ms))
}
