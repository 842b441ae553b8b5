package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferAndCapacity(t *testing.T) {
	q := New[int](2)

	assert.True(t, q.Offer(1))
	assert.True(t, q.Offer(2))
	assert.False(t, q.Offer(3))

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, q.Cap())
	assert.Equal(t, 0, q.Remaining())
}

func TestFIFO(t *testing.T) {
	q := New[int](8)
	for i := 0; i < 5; i++ {
		require.True(t, q.Offer(i))
	}
	for i := 0; i < 5; i++ {
		v, ok := q.TryPoll()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.TryPoll()
	assert.False(t, ok)
}

func TestPutBlocksUntilSpace(t *testing.T) {
	q := New[int](1)
	require.True(t, q.Offer(1))

	done := make(chan bool)
	go func() { done <- q.Put(2, nil) }()

	select {
	case <-done:
		t.Fatal("put returned while queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	v, ok := q.TryPoll()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, <-done)

	v, ok = q.TryPoll()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestPutCancel(t *testing.T) {
	q := New[int](1)
	require.True(t, q.Offer(1))

	cancel := make(chan struct{})
	done := make(chan bool)
	go func() { done <- q.Put(2, cancel) }()

	close(cancel)
	assert.False(t, <-done)
	assert.Equal(t, 1, q.Len())
}

func TestPollTimeout(t *testing.T) {
	q := New[int](1)

	start := time.Now()
	_, ok := q.Poll(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestPollWakesOnPut(t *testing.T) {
	q := New[int](1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Put(7, nil)
	}()

	v, ok := q.Poll(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestPollCancelled(t *testing.T) {
	q := New[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Poll(ctx, time.Hour)
	assert.False(t, ok)
}

func TestConcurrentProducers(t *testing.T) {
	q := New[int](4)
	const producers, perProducer = 8, 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Put(i, nil)
			}
		}()
	}

	got := 0
	for got < producers*perProducer {
		if _, ok := q.Poll(context.Background(), time.Second); ok {
			got++
		}
	}
	wg.Wait()
	assert.Equal(t, 0, q.Len())
}
