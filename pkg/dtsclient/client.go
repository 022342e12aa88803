// Package dtsclient is the caller-facing half of the async RPC completion
// engine: every TaskService call returns immediately with a *pool.Future
// that settles exactly once, mirroring the original implementation's
// tag-based completion-queue contract without requiring callers to pump a
// queue themselves. grpc-go's blocking Invoke/Recv calls play the role the
// original's CompletionQueue.Next() loop played; each call here just runs
// that blocking leg on its own goroutine and lets the tag decide which of
// the racing completion paths (response, transport error, caller-side
// context cancellation) actually gets to deliver.
package dtsclient

import (
	"context"
	"io"

	"github.com/dts/scheduler/pkg/dtsrpc"
	"github.com/dts/scheduler/pkg/pool"
	"github.com/dts/scheduler/pkg/protocol"
	"github.com/dts/scheduler/pkg/utils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps a TaskService connection with the future-returning façade
// described in spec §4.E, grounded on the teacher's
// pkg/worker/grpc_client_worker.go dial pattern.
type Client struct {
	conn *grpc.ClientConn
	rpc  protocol.TaskServiceClient
}

// DialOption configures Dial.
type DialOption func(*dialConfig)

type dialConfig struct {
	grpcOpts utils.GRPCOptions
}

// WithKeepalive applies keepalive parameters to the dial, the client-side
// half of the same utils.GRPCOptions the server's Config.GRPC uses.
func WithKeepalive(opts utils.GRPCOptions) DialOption {
	return func(c *dialConfig) { c.grpcOpts = opts }
}

// Dial connects to a TaskService server at addr. The connection carries no
// transport authentication — this system has no authentication in scope
// (spec §1 Non-goals), matching the teacher's own unauthenticated dial.
func Dial(addr string, opts ...DialOption) (*Client, error) {
	cfg := dialConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	dialOpts := append(
		[]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		cfg.grpcOpts.ToDialOptions()...,
	)
	conn, err := grpc.Dial(addr, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, rpc: protocol.NewTaskServiceClient(conn)}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// CallOption configures a single call's terminal-callback behavior.
type CallOption[T any] struct {
	callback func(T, error)
}

// WithCallback installs fn to fire exactly once at the call's terminal
// outcome, whether or not the caller ever inspects the returned Future.
func WithCallback[T any](fn func(T, error)) CallOption[T] {
	return CallOption[T]{callback: fn}
}

func combineCallbacks[T any](opts []CallOption[T]) func(T, error) {
	var fn func(T, error)
	for _, o := range opts {
		if o.callback != nil {
			fn = o.callback
		}
	}
	return fn
}

// callAsync runs fn on its own goroutine and races it against ctx's
// cancellation, letting a shared tag decide which leg actually delivers the
// Future and fires the callback — the unary-call analogue of the original's
// LAUNCH -> FINISH transition, with ctx cancellation standing in for the
// completion queue's own "!ok" forced-FINISH path.
func callAsync[T any](ctx context.Context, cb func(T, error), fn func() (T, error)) *pool.Future[T] {
	future := pool.NewFuture[T]()
	t := newTag()
	done := make(chan struct{})

	go func() {
		result, err := fn()
		close(done)
		t.fire(func() {
			future.Deliver(result, err)
			if cb != nil {
				cb(result, err)
			}
		})
	}()

	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				t.fire(func() {
					var zero T
					err := protocol.RPCErrorFromStatus(ctx.Err())
					future.Deliver(zero, err)
					if cb != nil {
						cb(zero, err)
					}
				})
			case <-done:
			}
		}()
	}

	return future
}

// SubmitTask submits task and returns a Future that settles once the server
// acknowledges admission (or rejects it outright).
func (c *Client) SubmitTask(ctx context.Context, task *protocol.Task, opts ...CallOption[*protocol.Task]) *pool.Future[*protocol.Task] {
	return callAsync(ctx, combineCallbacks(opts), func() (*protocol.Task, error) {
		resp, err := c.rpc.SubmitTask(ctx, protocol.ToWire(task), protocol.DefaultCallOptions()...)
		if err != nil {
			return nil, protocol.RPCErrorFromStatus(err)
		}
		return protocol.FromWire(resp.Task)
	})
}

// SubmitTaskSync is SubmitTask with the wait already done.
func (c *Client) SubmitTaskSync(ctx context.Context, task *protocol.Task) (*protocol.Task, error) {
	return c.SubmitTask(ctx, task).WaitCtx(ctx)
}

// CancelTask requests cooperative cancellation of taskID. The settled bool
// reports whether the flag transition was even possible, not whether the
// running attempt actually stopped.
func (c *Client) CancelTask(ctx context.Context, taskID string, opts ...CallOption[bool]) *pool.Future[bool] {
	return callAsync(ctx, combineCallbacks(opts), func() (bool, error) {
		resp, err := c.rpc.CancelTask(ctx, &protocol.CancelRequest{TaskId: taskID}, protocol.DefaultCallOptions()...)
		if err != nil {
			return false, protocol.RPCErrorFromStatus(err)
		}
		return resp.Cancelled, nil
	})
}

// CancelTaskSync is CancelTask with the wait already done.
func (c *Client) CancelTaskSync(ctx context.Context, taskID string) (bool, error) {
	return c.CancelTask(ctx, taskID).WaitCtx(ctx)
}

// QueryStatus fetches the current snapshot of taskID.
func (c *Client) QueryStatus(ctx context.Context, taskID string, opts ...CallOption[*protocol.Task]) *pool.Future[*protocol.Task] {
	return callAsync(ctx, combineCallbacks(opts), func() (*protocol.Task, error) {
		wire, err := c.rpc.QueryStatus(ctx, &protocol.QueryRequest{TaskId: taskID}, protocol.DefaultCallOptions()...)
		if err != nil {
			return nil, protocol.RPCErrorFromStatus(err)
		}
		return protocol.FromWire(wire)
	})
}

// QueryStatusSync is QueryStatus with the wait already done.
func (c *Client) QueryStatusSync(ctx context.Context, taskID string) (*protocol.Task, error) {
	return c.QueryStatus(ctx, taskID).WaitCtx(ctx)
}

// Subscription is an open ListenResults stream.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Close ends the subscription and its underlying stream.
func (s *Subscription) Close() { s.cancel() }

// Wait blocks until the stream has ended, returning the error (if any) it
// ended with. A clean server-side close reports nil; an explicit Close()
// cancels the stream, which ends it with a Canceled *protocol.RPCError.
func (s *Subscription) Wait() error {
	<-s.done
	return s.err
}

// ListenResults opens the listen_results server-stream for clientID. onUpdate
// fires for every frame on the stream's own goroutine; onDone fires exactly
// once, when the stream reaches a terminal state, and carries a nil error
// only for a clean EOF; an explicit Close() surfaces as a Canceled
// *protocol.RPCError.
// This is spec §4.E's streaming state machine: START -> READ (loop, emit) ->
// FINISH -> DONE, rendered as one reader goroutine plus the tag's one-shot
// latch over the three ways FINISH can be reached.
func (c *Client) ListenResults(ctx context.Context, clientID string, onUpdate func(*protocol.Task), onDone func(error)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	t := newTag()

	finish := func(err error) {
		t.fire(func() {
			sub.err = err
			close(sub.done)
			if onDone != nil {
				onDone(err)
			}
		})
	}

	go func() {
		// ListenResults frames can carry whole Task snapshots; ask for
		// dts-gzip on top of the default codec so a long-running stream of
		// large frames doesn't pay full JSON size over the wire once frames
		// cross compress.go's threshold.
		callOpts := append(protocol.DefaultCallOptions(), grpc.UseCompressor(dtsrpc.CompressorName))
		stream, err := c.rpc.ListenResults(ctx, &protocol.SubscribeRequest{ClientId: clientID}, callOpts...)
		if err != nil {
			finish(protocol.RPCErrorFromStatus(err))
			return
		}

		for {
			frame, err := stream.Recv()
			if err == io.EOF {
				finish(nil)
				return
			}
			if err != nil {
				finish(protocol.RPCErrorFromStatus(err))
				return
			}
			task, convErr := protocol.FromWire(frame.Task)
			if convErr != nil {
				continue
			}
			if onUpdate != nil {
				onUpdate(task)
			}
		}
	}()

	return sub
}
