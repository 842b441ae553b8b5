package metrics

import (
	"sync/atomic"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "logship"

// QueueStats 는 큐 깊이를 gauge 로 노출하기 위한 최소 인터페이스.
// worker.Pipeline 이 구현한다.
type QueueStats interface {
	QueueLen() int
	RemainingCapacity() int
}

// Collector 는 Metrics 의 atomic 카운터를 scrape 시점에 읽어
// Prometheus counter 로 내보낸다. 값의 원본은 항상 Metrics 하나.
type Collector struct {
	m      *Metrics
	queue  QueueStats
	descs  map[*int64]*prom.Desc
	qLen   *prom.Desc
	qSpare *prom.Desc
}

// NewCollector 는 queue 가 nil 이면 gauge 를 생략한다.
func NewCollector(m *Metrics, queue QueueStats) *Collector {
	c := &Collector{
		m:     m,
		queue: queue,
		descs: make(map[*int64]*prom.Desc),
		qLen: prom.NewDesc(prom.BuildFQName(namespace, "queue", "length"),
			"Events currently waiting in the queue", nil, nil),
		qSpare: prom.NewDesc(prom.BuildFQName(namespace, "queue", "remaining_capacity"),
			"Free slots in the queue", nil, nil),
	}
	for _, nc := range m.counters() {
		c.descs[nc.ptr] = prom.NewDesc(prom.BuildFQName(namespace, "", nc.name), nc.help, nil, nil)
	}
	return c
}

// Register 는 reg 에 collector 를 등록한다. reg 가 nil 이면 새 Registry 를 만든다.
func Register(reg *prom.Registry, m *Metrics, queue QueueStats) (*prom.Registry, error) {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	if err := reg.Register(NewCollector(m, queue)); err != nil {
		return nil, err
	}
	return reg, nil
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
	if c.queue != nil {
		ch <- c.qLen
		ch <- c.qSpare
	}
}

func (c *Collector) Collect(ch chan<- prom.Metric) {
	for _, nc := range c.m.counters() {
		ch <- prom.MustNewConstMetric(c.descs[nc.ptr], prom.CounterValue, float64(atomic.LoadInt64(nc.ptr)))
	}
	if c.queue != nil {
		ch <- prom.MustNewConstMetric(c.qLen, prom.GaugeValue, float64(c.queue.QueueLen()))
		ch <- prom.MustNewConstMetric(c.qSpare, prom.GaugeValue, float64(c.queue.RemainingCapacity()))
	}
}
