package outbox

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[string]()

	for _, s := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(s))
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestQueue_TryDequeue_Empty(t *testing.T) {
	q := NewQueue[int]()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestQueue_Enqueue_AfterClose(t *testing.T) {
	q := NewQueue[string]()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue("late"), "enqueue after close should return false")
	assert.True(t, q.Closed())
}

func TestQueue_CloseKeepsQueuedItems(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("pending")
	q.Close()

	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "pending", got)
}

func TestQueue_WaitSignals(t *testing.T) {
	q := NewQueue[int]()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(1)
	}()

	select {
	case <-q.Wait():
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, 1, got)
	case <-time.After(time.Second):
		t.Fatal("wait did not signal")
	}
}

func TestQueue_Len(t *testing.T) {
	q := NewQueue[int]()
	assert.Equal(t, 0, q.Len())

	q.Enqueue(1)
	q.Enqueue(2)
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
}

func TestQueue_ThreadSafe(t *testing.T) {
	q := NewQueue[int]()

	const producers = 10
	const itemsPerProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				q.Enqueue(p*1000 + i)
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for {
		v, ok := q.TryDequeue()
		if !ok {
			break
		}
		seen[v] = true
	}
	assert.Len(t, seen, producers*itemsPerProducer)
}
