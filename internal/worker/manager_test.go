package worker

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"logship/internal/config"
	"logship/internal/metrics"
	"logship/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) config.Config {
	c := config.Default()
	c.URL = url
	c.LicenseKey = "lic-123"
	c.BufferSize = 2
	c.BufferInterval = 50 * time.Millisecond
	c.QueueCapacity = 16
	c.Workers = 1
	c.MaxPendingBatches = 1
	c.MaxFlushTime = 5 * time.Second
	return c
}

func startPipeline(t *testing.T, cfg config.Config) (*Pipeline, *syncBuffer) {
	t.Helper()
	log, logs := testLogger()
	p, err := New(cfg, Options{
		Logger:  log,
		Encoder: messageEncoder,
		Lookup:  config.MapLookup(nil),
	})
	require.NoError(t, err)
	p.Start()
	return p, logs
}

func ingest(p *Pipeline, msgs ...string) {
	for _, m := range msgs {
		p.Ingest(&model.Event{Timestamp: time.Now().UnixMilli(), Message: m})
	}
}

func seq(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func TestPipelineDeliversInOrder(t *testing.T) {
	ep := newEndpoint(t)
	cfg := testConfig(ep.srv.URL)
	cfg.BufferSize = 3
	p, _ := startPipeline(t, cfg)

	msgs := seq("e", 10)
	ingest(p, msgs...)
	require.NoError(t, p.Stop())

	assert.Equal(t, msgs, ep.messages())
	for _, r := range ep.snapshot() {
		assert.LessOrEqual(t, len(r.messages), 3)
	}

	m := p.Metrics()
	assert.Equal(t, int64(10), metrics.Load(&m.EventsDeliveredTotal))
	assert.Equal(t, int64(0), metrics.Load(&m.EventsFailedTotal))
}

func TestPipelineSplitsBatchesBySize(t *testing.T) {
	ep := newEndpoint(t)
	p, _ := startPipeline(t, testConfig(ep.srv.URL))

	ingest(p, "e1", "e2", "e3")
	require.Eventually(t, func() bool { return len(ep.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Stop())

	reqs := ep.snapshot()
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"e1", "e2"}, reqs[0].messages)
	assert.Equal(t, []string{"e3"}, reqs[1].messages)
}

func TestPipelineSendsCommonAttributes(t *testing.T) {
	ep := newEndpoint(t)
	cfg := testConfig(ep.srv.URL)
	cfg.BufferSize = 1
	cfg.Attributes = map[string]string{"service": "billing", "env": "prod"}
	p, _ := startPipeline(t, cfg)

	ingest(p, "x")
	require.NoError(t, p.Stop())

	reqs := ep.snapshot()
	require.Len(t, reqs, 1)
	assert.Equal(t, cfg.Attributes, reqs[0].attrs)
	assert.Equal(t,
		`[{"common":{"attributes":{"env":"prod","service":"billing"}},"logs":[{"m":"x"}]}]`,
		reqs[0].raw)
	assert.Equal(t, "lic-123", reqs[0].header.Get("X-License-Key"))
}

func TestPipelineContinuesAfterFailedDelivery(t *testing.T) {
	ep := newEndpoint(t)
	ep.status = func(n int) int {
		if n == 0 {
			return http.StatusInternalServerError
		}
		return http.StatusAccepted
	}
	cfg := testConfig(ep.srv.URL)
	cfg.BufferSize = 1
	p, logs := startPipeline(t, cfg)

	ingest(p, "a", "b")
	require.NoError(t, p.Stop())

	assert.Equal(t, []string{"a", "b"}, ep.messages())
	m := p.Metrics()
	assert.Equal(t, int64(1), metrics.Load(&m.DeliveriesFailedTotal))
	assert.Equal(t, int64(1), metrics.Load(&m.DeliveriesSucceededTotal))
	assert.Contains(t, logs.String(), "failed to send logs")
	assert.Contains(t, logs.String(), `"status":500`)
}

// 종료 시점에 in-flight 1 + 풀 대기열 1 + Batcher 미완성 1 + 큐 3 이벤트가
// 모두 전송되는지 확인.
func TestPipelineStopDrainsEverything(t *testing.T) {
	ep := newEndpoint(t)
	ep.hold = make(chan struct{})
	cfg := testConfig(ep.srv.URL)
	cfg.BufferInterval = time.Hour
	p, _ := startPipeline(t, cfg)

	msgs := seq("e", 9)
	ingest(p, msgs...)

	// e1,e2 전송 중 / e3,e4 풀 대기열 / e5,e6 submit block / e7..e9 큐
	require.Eventually(t, func() bool { return p.QueueLen() == 3 }, 2*time.Second, 5*time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- p.Stop() }()

	require.Eventually(t, func() bool { return p.State() == StateStopping }, time.Second, 5*time.Millisecond)
	close(ep.hold)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}

	assert.Equal(t, StateDrained, p.State())
	assert.Equal(t, msgs, ep.messages())
	for _, r := range ep.snapshot() {
		assert.LessOrEqual(t, len(r.messages), 2)
	}
	assert.Equal(t, 0, p.QueueLen())
}

func TestPipelineStopTimeout(t *testing.T) {
	ep := newEndpoint(t)
	ep.hold = make(chan struct{}) // 응답하지 않음
	cfg := testConfig(ep.srv.URL)
	cfg.BufferSize = 1
	cfg.MaxFlushTime = 100 * time.Millisecond
	p, logs := startPipeline(t, cfg)

	ingest(p, "stuck")
	require.Eventually(t, func() bool { return len(ep.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	err := p.Stop()
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateDrained, p.State())
	assert.Contains(t, logs.String(), "some events may not have been delivered")

	// 같은 결과를 다시 반환
	assert.ErrorIs(t, p.Stop(), ErrShutdownTimeout)
}

func TestPipelineLifecycle(t *testing.T) {
	ep := newEndpoint(t)
	log, logs := testLogger()
	p, err := New(testConfig(ep.srv.URL), Options{Logger: log, Encoder: messageEncoder})
	require.NoError(t, err)

	assert.Equal(t, StateNew, p.State())
	p.Ingest(&model.Event{Message: "too early"})
	assert.Equal(t, 0, p.QueueLen())

	p.Start()
	assert.Equal(t, StateRunning, p.State())
	p.Start()
	assert.Equal(t, StateRunning, p.State())

	require.NoError(t, p.Stop())
	assert.Equal(t, StateDrained, p.State())
	require.NoError(t, p.Stop())

	p.Ingest(&model.Event{Message: "too late"})
	assert.Empty(t, ep.messages())
	assert.Equal(t, int64(2), metrics.Load(&p.Metrics().EventsRejectedTotal))
	assert.Contains(t, logs.String(), "pipeline started")
	assert.Contains(t, logs.String(), ErrRejected.Error())
}

func TestPipelineStopWithoutStart(t *testing.T) {
	p, err := New(testConfig("http://127.0.0.1:1"), Options{Lookup: config.MapLookup(nil)})
	require.NoError(t, err)

	require.NoError(t, p.Stop())
	assert.Equal(t, StateDrained, p.State())

	p.Start()
	assert.Equal(t, StateDrained, p.State())
}

func TestPipelineNeverBlockDropsOverflow(t *testing.T) {
	ep := newEndpoint(t)
	ep.hold = make(chan struct{})
	defer close(ep.hold)

	cfg := testConfig(ep.srv.URL)
	cfg.NeverBlock = true
	cfg.QueueCapacity = 2
	cfg.BufferSize = 1
	cfg.BufferInterval = time.Hour
	cfg.MaxFlushTime = 100 * time.Millisecond
	p, logs := startPipeline(t, cfg)

	// 1: 전송 중, 2: 풀 대기열, 3: submit block, 4,5: 큐, 나머지 drop
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			ingest(p, fmt.Sprintf("warm%d", i))
			time.Sleep(20 * time.Millisecond)
		}
		ingest(p, seq("x", 10)...)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ingest blocked in never-block mode")
	}

	assert.Positive(t, metrics.Load(&p.Metrics().EventsDroppedOverflowTotal))
	assert.Contains(t, logs.String(), ErrOverflow.Error())
	_ = p.Stop()
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		cfg := testConfig("")
		_, err := New(cfg, Options{Lookup: config.MapLookup(nil)})
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.ErrorIs(t, err, config.ErrInvalid)
	})

	t.Run("missing credential", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.LicenseKey = ""
		_, err := New(cfg, Options{Lookup: config.MapLookup(nil)})
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("credential from env", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.LicenseKey = ""
		p, err := New(cfg, Options{Lookup: config.MapLookup(map[string]string{config.EnvAPIKey: "k"})})
		require.NoError(t, err)
		assert.Equal(t, config.APIKey, p.cred.Kind)
		assert.True(t, p.cred.FromEnv)
	})

	t.Run("zero buffer size", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.BufferSize = 0
		_, err := New(cfg, Options{Lookup: config.MapLookup(nil)})
		assert.True(t, errors.Is(err, ErrConfiguration))
	})
}
