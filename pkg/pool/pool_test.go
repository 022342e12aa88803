package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSubmitNoDrops(t *testing.T) {
	p := New(4, 64)
	defer p.Shutdown(context.Background())

	const n = 2000
	var mu sync.Mutex
	seen := make(map[int]struct{})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			mu.Lock()
			seen[i] = struct{}{}
			mu.Unlock()
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Len(t, seen, n)
}

func TestPoolGoFuture(t *testing.T) {
	p := New(2, 16)
	defer p.Shutdown(context.Background())

	f := Go(p, func() (int, error) { return 41 + 1, nil })
	v, err := f.Wait()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPoolSurvivesPanic(t *testing.T) {
	p := New(2, 16)
	defer p.Shutdown(context.Background())

	require.NoError(t, p.Submit(func() { panic("boom") }))

	var ran atomic.Bool
	done := make(chan struct{})
	require.NoError(t, p.Submit(func() {
		ran.Store(true)
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool stalled after a panicking closure")
	}
	assert.True(t, ran.Load())
}

func TestPoolShutdownRejectsSubmit(t *testing.T) {
	p := New(2, 16)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, p.Submit(func() {}), ErrShuttingDown)
}

func TestPoolResize(t *testing.T) {
	p := New(2, 64)
	defer p.Shutdown(context.Background())

	p.Resize(6)
	assert.Eventually(t, func() bool { return p.ThreadCount() == 6 }, time.Second, 10*time.Millisecond)

	p.Resize(1)
	assert.Eventually(t, func() bool { return p.ThreadCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestCondPoolSubmitNoDrops(t *testing.T) {
	p := NewCondPool(4, 64)
	defer p.Shutdown(context.Background())

	const n = 500
	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()
	assert.EqualValues(t, n, count.Load())
}
