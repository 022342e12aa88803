package dtsclient

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// callState mirrors the CREATE/FINISH step marker the completion-queue tag
// record carried in the original implementation; here it just documents
// which leg of a call is in flight, advanced with a single CAS per step.
type callState int32

const (
	callCreated callState = iota
	callFinished
)

// tag is the one-shot record that accompanies a single outstanding call: an
// id for logging/correlation, a step marker, and the exactly-once latch that
// gates delivery into the call's Future and optional callback. It plays the
// role the original's heap-allocated, re-armed AsyncCallContext played, but
// lives for exactly one call instead of being recycled.
type tag struct {
	id    string
	state atomic.Int32

	fired  atomic.Bool
	onFire func()
}

func newTag() *tag {
	id, _ := uuid.NewRandom()
	return &tag{id: id.String()}
}

// advance CASes the tag from the expected step to the next one, reporting
// whether this call actually made the transition (as opposed to a racing
// completion having already moved past it).
func (t *tag) advance(from, to callState) bool {
	return t.state.CompareAndSwap(int32(from), int32(to))
}

// fire runs fn exactly once for this tag, no matter how many completion
// paths (response, transport error, context cancellation) race to call it.
func (t *tag) fire(fn func()) {
	if t.fired.CompareAndSwap(false, true) {
		t.advance(callCreated, callFinished)
		fn()
	}
}
