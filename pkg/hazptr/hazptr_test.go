package hazptr

import (
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtectDefersReclamation(t *testing.T) {
	d := NewDomain()
	h1 := d.Acquire()
	defer h1.Release()

	val := byte(42)
	ptr := unsafe.Pointer(&val)
	h1.Protect(ptr)

	var deleted atomic.Bool
	h1.Retire(ptr, func() { deleted.Store(true) })
	h1.flush(true)

	d.Scan()
	assert.False(t, deleted.Load(), "deleter must not run while a slot protects the pointer")

	h1.Release()
	d.Scan()
	assert.True(t, deleted.Load(), "deleter must run once no slot protects the pointer")
}

func TestRetireWithoutProtectionReclaimsImmediately(t *testing.T) {
	d := NewDomain()
	h := d.Acquire()
	defer h.Release()

	val := byte(7)
	ptr := unsafe.Pointer(&val)

	var deleted atomic.Bool
	h.Retire(ptr, func() { deleted.Store(true) })
	h.flush(true)
	d.Scan()

	assert.True(t, deleted.Load())
}

func TestConcurrentProtectAndRetireNeverDoubleFrees(t *testing.T) {
	d := NewDomain()

	const n = 500
	var freed int64
	var freedSet sync.Map

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := d.Acquire()
			defer h.Release()

			val := byte(i)
			ptr := unsafe.Pointer(&val)
			h.Protect(ptr)

			h.Retire(ptr, func() {
				if _, loaded := freedSet.LoadOrStore(ptr, true); loaded {
					t.Errorf("double free of %p", ptr)
				}
				atomic.AddInt64(&freed, 1)
			})
		}()
	}

	wg.Wait()
	d.Scan()

	require.LessOrEqual(t, freed, int64(n))
}

func TestStatsTracksSlotsAndReclaimed(t *testing.T) {
	d := NewDomain()
	h := d.Acquire()

	stats := d.Stats()
	assert.Equal(t, 1, stats.Slots)

	val := byte(1)
	h.Retire(unsafe.Pointer(&val), func() {})
	h.Release()
	d.Scan()

	stats = d.Stats()
	assert.GreaterOrEqual(t, stats.Reclaimed, int64(1))
}
