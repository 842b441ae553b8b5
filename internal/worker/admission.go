package worker

import (
	"logship/internal/metrics"
	"logship/internal/model"
	"logship/internal/queue"

	"github.com/rs/zerolog"
)

// gate 는 Ingest 된 이벤트마다 enqueue / block / drop 을 결정한다.
//
// 결과는 호출자에게 돌려주지 않는다 (fire-and-forget).
// drop 은 진단 로그 1줄 + metrics 로만 드러난다.
type gate struct {
	queue       *queue.Bounded[*model.Event]
	neverBlock  bool
	threshold   int
	discardable func(*model.Event) bool

	log     zerolog.Logger
	metrics *metrics.Metrics
}

// admit 는 이벤트가 큐에 들어갔으면 true.
// stop 이 닫히면 block 중이던 Put 이 풀리고 이벤트는 거절된다.
func (g *gate) admit(ev *model.Event, stop <-chan struct{}) bool {
	// 남은 용량이 threshold 미만이면 discardable 이벤트만 조용히 버린다.
	// predicate 가 없으면 아무것도 버리지 않는다.
	if g.discardable != nil && g.queue.Remaining() < g.threshold && g.discardable(ev) {
		g.metrics.Inc(&g.metrics.EventsDiscardedTotal, 1)
		return false
	}

	if g.neverBlock {
		if !g.queue.Offer(ev) {
			g.metrics.Inc(&g.metrics.EventsDroppedOverflowTotal, 1)
			g.log.Error().
				Err(ErrOverflow).
				Int("queue_capacity", g.queue.Cap()).
				Msg("failed to append event: queue full, event dropped")
			return false
		}
		g.metrics.Inc(&g.metrics.EventsAcceptedTotal, 1)
		return true
	}

	// 기본 정책: 공간이 생길 때까지 호출자 goroutine 을 멈춘다 (backpressure).
	if !g.queue.Put(ev, stop) {
		g.reject()
		return false
	}
	g.metrics.Inc(&g.metrics.EventsAcceptedTotal, 1)
	return true
}

func (g *gate) reject() {
	g.metrics.Inc(&g.metrics.EventsRejectedTotal, 1)
	g.log.Error().
		Err(ErrRejected).
		Msg("failed to append event: pipeline is not running, event dropped")
}
