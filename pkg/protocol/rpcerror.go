package protocol

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RPCError is the error kind the RPC client façade hands back to callers: a
// gRPC status code plus message, so a caller never has to reach into
// *status.Status itself to learn what went wrong. It is the "dedicated
// error kind carrying the underlying status code" spec §4.E calls for.
type RPCError struct {
	Code codes.Code
	Msg  string
}

func (e *RPCError) Error() string { return e.Msg }

// NewRPCError builds an RPCError directly from a code and message.
func NewRPCError(code codes.Code, msg string) *RPCError {
	return &RPCError{Code: code, Msg: msg}
}

// RPCErrorFromStatus classifies any error surfaced by a grpc-go call
// (Invoke, NewStream, Recv, ...) into an *RPCError carrying its status code.
// This is the client-side half of spec §7's "Transport errors ... surfaced
// by the completion queue as !ok" classification point; nil in, nil out.
func RPCErrorFromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &RPCError{Code: codes.Internal, Msg: err.Error()}
	}
	return &RPCError{Code: st.Code(), Msg: st.Message()}
}
