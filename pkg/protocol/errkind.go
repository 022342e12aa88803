package protocol

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// ErrKind classifies a failure by what the caller (executor or RPC layer)
// should do about it, mirroring the teacher's utils.GrpcError switch but as
// an explicit enum instead of a table keyed on sentinel error values.
type ErrKind int

const (
	// KindTransient covers retryable handler faults: peer unreachable,
	// connection refused, operation aborted by the runtime.
	KindTransient ErrKind = iota
	// KindTimeout is a deadline that elapsed before the attempt finished.
	KindTimeout
	// KindCancelled is a cooperative cancellation the handler observed.
	KindCancelled
	// KindInvariant covers schema/field violations: missing fields, unknown
	// functions, failed resource admission.
	KindInvariant
	// KindShuttingDown is a submission rejected because the service is
	// stopping.
	KindShuttingDown
	// KindTransport is a wire-level failure surfaced by the RPC layer as a
	// non-OK status from the transport itself, not from task logic.
	KindTransport
)

// GrpcStatus maps an ErrKind to the gRPC status code every caller of this
// service should see for it.
func (k ErrKind) GrpcStatus() codes.Code {
	switch k {
	case KindTransient:
		return codes.Unavailable
	case KindTimeout:
		return codes.DeadlineExceeded
	case KindCancelled:
		return codes.Canceled
	case KindInvariant:
		return codes.InvalidArgument
	case KindShuttingDown:
		return codes.Unavailable
	case KindTransport:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// KindedError is an error tagged with the ErrKind that decides how the
// executor or RPC boundary should handle it.
type KindedError struct {
	Kind ErrKind
	Msg  string
}

func (e *KindedError) Error() string { return e.Msg }

// Details satisfies utils.DetailedError, giving the executor's failure
// logging a richer line than the bare message when one is available.
func (e *KindedError) Details() string {
	return fmt.Sprintf("kind=%d msg=%s", e.Kind, e.Msg)
}

// NewKindedError builds a KindedError with a formatted message.
func NewKindedError(kind ErrKind, format string, args ...any) *KindedError {
	return &KindedError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether err (or its KindedError wrapping) is the kind
// of transient fault the executor's retry policy applies to: connection
// refused, host unreachable, or an aborted operation.
func IsRetryable(err error) bool {
	ke, ok := err.(*KindedError)
	return ok && ke.Kind == KindTransient
}
