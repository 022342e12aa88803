package dtsclient

import (
	"context"
	"testing"
	"time"

	"github.com/dts/scheduler/pkg/dtsrpc"
	"github.com/dts/scheduler/pkg/executor"
	"github.com/dts/scheduler/pkg/pool"
	"github.com/dts/scheduler/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer boots a real dtsrpc.Server on a loopback port and returns
// a dialed Client against it, tearing both down at test end.
func startTestServer(t *testing.T) *Client {
	t.Helper()

	p := pool.New(4, 256)
	exec := executor.New(p, executor.NewStaticProbe(4, 8192))
	srv := dtsrpc.New(dtsrpc.Config{}, exec)

	addr, err := srv.Listen()
	require.NoError(t, err)

	go srv.Serve()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		p.Shutdown(context.Background())
	})

	client, err := Dial(addr)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestClientSubmitTaskSyncRunsToSuccess(t *testing.T) {
	client := startTestServer(t)

	task := protocol.NewTask("ct-fib-1", "c1", "fib", map[string]any{"n": float64(10)})
	task.TimeoutMs = 1000

	submitted, err := client.SubmitTaskSync(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, protocol.TaskPending, submitted.State())

	deadline := time.Now().Add(2 * time.Second)
	var final *protocol.Task
	for time.Now().Before(deadline) {
		final, err = client.QueryStatusSync(context.Background(), "ct-fib-1")
		require.NoError(t, err)
		if final.State().IsTerminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	require.NotNil(t, final)
	assert.Equal(t, protocol.TaskSuccess, final.State())
	assert.Equal(t, float64(55), final.Result["result"])
}

func TestClientQueryStatusUnknownTaskReturnsRPCError(t *testing.T) {
	client := startTestServer(t)

	_, err := client.QueryStatusSync(context.Background(), "no-such-task")
	require.Error(t, err)
	rpcErr, ok := err.(*protocol.RPCError)
	require.True(t, ok, "expected *protocol.RPCError, got %T", err)
	assert.NotEmpty(t, rpcErr.Code.String())
}

func TestClientCancelTaskOnFinishedTaskReportsFalse(t *testing.T) {
	client := startTestServer(t)

	task := protocol.NewTask("ct-fib-2", "c1", "fib", map[string]any{"n": float64(5)})
	task.TimeoutMs = 1000
	_, err := client.SubmitTaskSync(context.Background(), task)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		final, err := client.QueryStatusSync(context.Background(), "ct-fib-2")
		require.NoError(t, err)
		if final.State().IsTerminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancelled, err := client.CancelTaskSync(context.Background(), "ct-fib-2")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestClientListenResultsReceivesUpdatesForOwnClient(t *testing.T) {
	client := startTestServer(t)

	updates := make(chan *protocol.Task, 8)
	sub := client.ListenResults(context.Background(), "c-listen", func(task *protocol.Task) {
		updates <- task
	}, nil)
	t.Cleanup(sub.Close)

	task := protocol.NewTask("ct-fib-3", "c-listen", "fib", map[string]any{"n": float64(6)})
	task.TimeoutMs = 1000
	_, err := client.SubmitTaskSync(context.Background(), task)
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-updates:
			if u.State() == protocol.TaskSuccess {
				assert.Equal(t, float64(8), u.Result["result"])
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for a SUCCESS update on the subscription")
		}
	}
}
