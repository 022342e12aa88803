package mpmc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueFIFOSingleProducer(t *testing.T) {
	q := New[int]()

	for i := 0; i < 100; i++ {
		q.Enqueue(i)
	}

	for i := 0; i < 100; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestDequeueEmptyQueueReturnsFalse(t *testing.T) {
	q := New[string]()
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestConcurrentEnqueueDequeuePreservesCount(t *testing.T) {
	q := New[int]()

	const producers = 8
	const perProducer = 2000
	total := producers * perProducer

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(base*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	results := make(chan int, total)
	var consumers sync.WaitGroup
	for c := 0; c < producers; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				v, ok := q.Dequeue()
				if !ok {
					return
				}
				results <- v
			}
		}()
	}
	consumers.Wait()
	close(results)

	seen := map[int]struct{}{}
	count := 0
	for v := range results {
		seen[v] = struct{}{}
		count++
	}

	assert.Equal(t, total, count)
	assert.Len(t, seen, total)
}

func TestPerProducerOrderingPreserved(t *testing.T) {
	q := New[int]()

	const perProducer = 500
	var wg sync.WaitGroup
	producers := 4

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(base*1000 + i)
			}
		}(p)
	}
	wg.Wait()

	lastSeen := map[int]int{}
	for {
		v, ok := q.Dequeue()
		if !ok {
			break
		}
		producer := v / 1000
		seq := v % 1000
		assert.GreaterOrEqual(t, seq, lastSeen[producer])
		lastSeen[producer] = seq
	}
}
