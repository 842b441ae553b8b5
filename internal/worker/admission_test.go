package worker

import (
	"strings"
	"testing"
	"time"

	"logship/internal/metrics"
	"logship/internal/model"
	"logship/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate(capacity int, neverBlock bool) (*gate, *syncBuffer) {
	log, buf := testLogger()
	return &gate{
		queue:      queue.New[*model.Event](capacity),
		neverBlock: neverBlock,
		threshold:  capacity / 5,
		log:        *log,
		metrics:    metrics.New(),
	}, buf
}

func TestGateNeverBlockOverflow(t *testing.T) {
	g, logs := newGate(2, true)

	require.True(t, g.admit(&model.Event{Message: "a"}, nil))
	require.True(t, g.admit(&model.Event{Message: "b"}, nil))
	require.Equal(t, 2, g.queue.Len())

	assert.False(t, g.admit(&model.Event{Message: "c"}, nil))

	assert.Equal(t, 2, g.queue.Len())
	assert.Equal(t, 1, strings.Count(logs.String(), ErrOverflow.Error()))
	assert.Equal(t, int64(1), metrics.Load(&g.metrics.EventsDroppedOverflowTotal))
	assert.Equal(t, int64(2), metrics.Load(&g.metrics.EventsAcceptedTotal))

	// 큐 내용은 그대로 a, b
	v, _ := g.queue.TryPoll()
	assert.Equal(t, "a", v.Message)
}

func TestGateBlocksUntilSpace(t *testing.T) {
	g, _ := newGate(1, false)
	require.True(t, g.admit(&model.Event{Message: "first"}, nil))

	done := make(chan bool)
	go func() { done <- g.admit(&model.Event{Message: "second"}, nil) }()

	select {
	case <-done:
		t.Fatal("admit returned while queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := g.queue.TryPoll()
	require.True(t, ok)
	assert.True(t, <-done)
}

func TestGateBlockedProducerReleasedOnStop(t *testing.T) {
	g, logs := newGate(1, false)
	require.True(t, g.admit(&model.Event{}, nil))

	stop := make(chan struct{})
	done := make(chan bool)
	go func() { done <- g.admit(&model.Event{}, stop) }()

	close(stop)
	assert.False(t, <-done)
	assert.Equal(t, int64(1), metrics.Load(&g.metrics.EventsRejectedTotal))
	assert.Contains(t, logs.String(), ErrRejected.Error())
}

func TestGateDiscardableBelowThreshold(t *testing.T) {
	g, logs := newGate(10, false) // threshold 2
	g.discardable = func(ev *model.Event) bool { return ev.Level == "DEBUG" }

	for i := 0; i < 9; i++ {
		require.True(t, g.admit(&model.Event{Level: "INFO"}, nil))
	}
	// 남은 용량 1 < threshold 2
	assert.False(t, g.admit(&model.Event{Level: "DEBUG"}, nil))
	assert.True(t, g.admit(&model.Event{Level: "ERROR"}, nil))

	assert.Equal(t, 10, g.queue.Len())
	assert.Equal(t, int64(1), metrics.Load(&g.metrics.EventsDiscardedTotal))
	assert.Empty(t, logs.String())
}

func TestGateDiscardableAboveThreshold(t *testing.T) {
	g, _ := newGate(10, false)
	g.discardable = func(*model.Event) bool { return true }

	assert.True(t, g.admit(&model.Event{Level: "DEBUG"}, nil))
	assert.Equal(t, int64(0), metrics.Load(&g.metrics.EventsDiscardedTotal))
}
