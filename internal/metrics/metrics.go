package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 파이프라인 상태를 나타내는 카운터 모음이다.
// 모든 필드는 atomic 으로만 접근한다.
type Metrics struct {
	// ======================
	// Admission (Ingest) 지표
	// ======================

	// EventsAcceptedTotal
	// - 큐에 정상적으로 들어간 이벤트 수.
	EventsAcceptedTotal int64

	// EventsDroppedOverflowTotal
	// - NeverBlock 모드에서 큐가 가득 차 버려진 이벤트 수.
	// - 이 값이 증가한다면 전송 단계가 유입 속도를 따라가지 못한다는 신호.
	EventsDroppedOverflowTotal int64

	// EventsDiscardedTotal
	// - 남은 용량이 discarding threshold 미만일 때
	//   discardable 로 판정되어 버려진 이벤트 수.
	EventsDiscardedTotal int64

	// EventsRejectedTotal
	// - 종료(Stopping) 이후 들어온 Ingest 호출로 버려진 이벤트 수.
	EventsRejectedTotal int64

	// ======================
	// Batch / 전송 지표
	// ======================

	// BatchesSubmittedTotal / EventsSubmittedTotal
	// - 워커 풀에 넘겨진 배치 수와 그 안의 이벤트 수.
	BatchesSubmittedTotal int64
	EventsSubmittedTotal  int64

	// DeliveriesSucceededTotal / EventsDeliveredTotal
	// - 2xx 응답을 받은 요청 수와 그 이벤트 수.
	DeliveriesSucceededTotal int64
	EventsDeliveredTotal     int64

	// DeliveriesFailedTotal / EventsFailedTotal
	// - 3xx 이상 응답, 전송 오류, 인코딩 실패로 버려진 요청 수와 이벤트 수.
	// - 재시도는 없다. 여기에 잡힌 이벤트는 유실된 것이다.
	DeliveriesFailedTotal int64
	EventsFailedTotal     int64

	// BatchesAbandonedTotal
	// - 종료 deadline(MaxFlushTime) 초과로 실행조차 못 하고 버려진 배치 수.
	BatchesAbandonedTotal int64

	// ======================
	// HTTP intake 지표
	// ======================

	// HTTPRequestsTotal
	// - /collect 로 들어온 모든 요청 수.
	HTTPRequestsTotal int64

	// HTTPRequestsRejectedTotal
	// - 바디 초과(413), 파싱 실패(400), 종료 중(503)으로 거절된 요청 수.
	HTTPRequestsRejectedTotal int64
}

func New() *Metrics {
	return &Metrics{}
}

// Inc 는 counter 에 n 을 더한다. nil Metrics 는 무시.
func (m *Metrics) Inc(counter *int64, n int64) {
	if m == nil || counter == nil {
		return
	}
	atomic.AddInt64(counter, n)
}

// Load 는 counter 를 읽는다.
func Load(counter *int64) int64 {
	return atomic.LoadInt64(counter)
}

// counters 는 노출 이름과 필드를 한 곳에서 관리한다 (String / Collector 공용).
func (m *Metrics) counters() []namedCounter {
	return []namedCounter{
		{"events_accepted_total", "Events admitted into the queue", &m.EventsAcceptedTotal},
		{"events_dropped_overflow_total", "Events dropped because the queue was full", &m.EventsDroppedOverflowTotal},
		{"events_discarded_total", "Discardable events dropped below the discarding threshold", &m.EventsDiscardedTotal},
		{"events_rejected_total", "Events rejected after shutdown started", &m.EventsRejectedTotal},
		{"batches_submitted_total", "Batches handed to the delivery pool", &m.BatchesSubmittedTotal},
		{"events_submitted_total", "Events handed to the delivery pool", &m.EventsSubmittedTotal},
		{"deliveries_succeeded_total", "Delivery requests answered with status < 300", &m.DeliveriesSucceededTotal},
		{"events_delivered_total", "Events in successful delivery requests", &m.EventsDeliveredTotal},
		{"deliveries_failed_total", "Delivery requests that failed and were discarded", &m.DeliveriesFailedTotal},
		{"events_failed_total", "Events in failed delivery requests", &m.EventsFailedTotal},
		{"batches_abandoned_total", "Batches abandoned at the shutdown deadline", &m.BatchesAbandonedTotal},
		{"http_requests_total", "Requests received by the intake endpoint", &m.HTTPRequestsTotal},
		{"http_requests_rejected_total", "Intake requests rejected", &m.HTTPRequestsRejectedTotal},
	}
}

type namedCounter struct {
	name string
	help string
	ptr  *int64
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)

	for _, c := range m.counters() {
		fmt.Fprintf(&sb, "%s=%d\n", c.name, atomic.LoadInt64(c.ptr))
	}
	return sb.String()
}
