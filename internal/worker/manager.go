// internal/worker/manager.go
package worker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"logship/internal/config"
	"logship/internal/metrics"
	"logship/internal/model"
	"logship/internal/queue"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// State 는 파이프라인 생명주기.
//
//	New → Running → Stopping → Drained
//
// Drained 는 종료 상태이며 재시작할 수 없다 (새 인스턴스 필요).
type State int32

const (
	StateNew State = iota
	StateRunning
	StateStopping
	StateDrained
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateDrained:
		return "drained"
	default:
		return "unknown"
	}
}

// Options 는 파이프라인 외부 협력자 주입용. 모두 선택.
type Options struct {
	// 진단 채널. nil 이면 전역 zerolog logger.
	Logger *zerolog.Logger

	// nil 이면 새 Metrics.
	Metrics *metrics.Metrics

	// Formatter 가 nil 이면 NewRelicFormatter{Encoder}.
	Formatter BodyFormatter
	Encoder   Encoder

	// nil 이면 Timeout=RequestTimeout 인 새 client.
	HTTPClient *http.Client

	// 남은 용량이 threshold 미만일 때 버려도 되는 이벤트 판정.
	// nil 이면 아무것도 버리지 않는다.
	Discardable func(*model.Event) bool

	// 인증 정보 env fallback 조회. nil 이면 os.LookupEnv.
	Lookup config.LookupFunc
}

// Pipeline 은 로그 이벤트 배치 전송 파이프라인이다.
//
// 흐름:
//   - Ingest: 호출자 goroutine → gate → 이벤트 큐
//   - Batcher: 큐를 BufferSize / BufferInterval 기준으로 배치로 묶음
//   - Pool: Workers 개 goroutine 이 배치를 HTTP POST 로 전송
//
// Stop 은 역순으로 정리한다: 새 Ingest 차단 → Batcher 취소 및 미완성 배치 회수
// → 큐 drain → 워커 풀 종료 (MaxFlushTime 까지만 대기).
type Pipeline struct {
	cfg     config.Config
	cred    config.Credential
	log     zerolog.Logger
	metrics *metrics.Metrics

	queue   *queue.Bounded[*model.Event]
	gate    *gate
	batcher *Batcher
	pool    *Pool
	sender  *Sender

	state atomic.Int32

	// Ingest 는 RLock, Stop 은 Lock.
	// Stop 이 Lock 을 잡은 뒤에는 큐에 새로 들어오는 이벤트가 없다.
	ingestMu sync.RWMutex
	stopping chan struct{}

	batcherCtx    context.Context
	batcherCancel context.CancelFunc
	batcherDone   chan struct{}

	lifeMu  sync.Mutex
	stopErr error
}

// New 는 설정을 검증하고 인증 정보를 결정한다.
// 실패하면 ErrConfiguration 으로 감싼 에러를 반환하고 파이프라인은 만들지 않는다.
func New(cfg config.Config, opts Options) (*Pipeline, error) {
	log := zlog.Logger
	if opts.Logger != nil {
		log = *opts.Logger
	}
	log = log.With().Str("component", "pipeline").Logger()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("pipeline not started")
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cred, err := config.ResolveCredential(cfg, lookup)
	if err != nil {
		log.Error().Err(err).Msg("pipeline not started")
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	formatter := opts.Formatter
	if formatter == nil {
		formatter = NewRelicFormatter{Encoder: opts.Encoder}
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	q := queue.New[*model.Event](cfg.QueueCapacity)

	p := &Pipeline{
		cfg:         cfg,
		cred:        cred,
		log:         log,
		metrics:     m,
		queue:       q,
		pool:        NewPool(cfg.Workers, cfg.MaxPendingBatches),
		sender:      NewSender(client, cfg.URL, cred, cfg.Attributes, formatter),
		stopping:    make(chan struct{}),
		batcherDone: make(chan struct{}),
	}
	p.gate = &gate{
		queue:       q,
		neverBlock:  cfg.NeverBlock,
		threshold:   cfg.Threshold(),
		discardable: opts.Discardable,
		log:         log,
		metrics:     m,
	}
	p.batcher = NewBatcher(q, cfg.BufferSize, cfg.BufferInterval, p.submit)
	p.batcherCtx, p.batcherCancel = context.WithCancel(context.Background())

	return p, nil
}

// Start 는 워커 풀과 Batcher 를 띄운다. New 상태에서만 동작한다.
func (p *Pipeline) Start() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.State() != StateNew {
		return
	}

	p.pool.Start()
	go func() {
		defer close(p.batcherDone)
		p.batcher.Run(p.batcherCtx)
	}()
	p.state.Store(int32(StateRunning))

	p.log.Info().
		Str("url", p.cfg.URL).
		Str("credential", p.cred.Kind.String()).
		Bool("credential_from_env", p.cred.FromEnv).
		Int("queue_capacity", p.cfg.QueueCapacity).
		Int("discarding_threshold", p.cfg.Threshold()).
		Int("buffer_size", p.cfg.BufferSize).
		Dur("buffer_interval", p.cfg.BufferInterval).
		Int("workers", p.cfg.Workers).
		Bool("never_block", p.cfg.NeverBlock).
		Msg("pipeline started")
}

// Ingest 는 이벤트 1건을 받는다. 결과를 반환하지 않는다.
//
// NeverBlock=false 이면 큐가 가득 찼을 때 호출자가 block 된다.
// Running 이 아니면 이벤트는 버려지고 진단 로그만 남는다.
func (p *Pipeline) Ingest(ev *model.Event) {
	if ev == nil {
		return
	}

	p.ingestMu.RLock()
	defer p.ingestMu.RUnlock()

	if p.State() != StateRunning {
		p.gate.reject()
		return
	}
	p.gate.admit(ev, p.stopping)
}

// State 는 현재 생명주기 상태.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// QueueLen 은 큐에 대기 중인 이벤트 수.
func (p *Pipeline) QueueLen() int { return p.queue.Len() }

// RemainingCapacity 는 큐의 남은 자리 수.
func (p *Pipeline) RemainingCapacity() int { return p.queue.Remaining() }

// Metrics 는 파이프라인 카운터.
func (p *Pipeline) Metrics() *metrics.Metrics { return p.metrics }

// submit 은 배치를 전송 작업으로 만들어 워커 풀에 넘긴다.
func (p *Pipeline) submit(ctx context.Context, batch model.Batch) error {
	task := &deliveryTask{
		id:      uuid.NewString(),
		batch:   batch,
		sender:  p.sender,
		log:     p.log,
		metrics: p.metrics,
	}
	if err := p.pool.Submit(ctx, task); err != nil {
		return err
	}

	p.metrics.Inc(&p.metrics.BatchesSubmittedTotal, 1)
	p.metrics.Inc(&p.metrics.EventsSubmittedTotal, int64(len(batch)))
	p.log.Debug().
		Str("batch_id", task.id).
		Int("events", len(batch)).
		Msg("batch submitted")
	return nil
}

// Stop 은 종료 시퀀스를 실행한다. 여러 번 호출해도 안전하며
// 두 번째부터는 첫 번째 결과를 그대로 반환한다.
//
// MaxFlushTime 안에 모든 배치를 끝내지 못하면 ErrShutdownTimeout 을 감싼
// 에러를 반환한다 (같은 내용이 진단 로그에도 남는다).
func (p *Pipeline) Stop() error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	switch p.State() {
	case StateDrained:
		return p.stopErr
	case StateNew:
		// 시작하지 않은 파이프라인: 정리할 것 없음
		p.state.Store(int32(StateDrained))
		close(p.stopping)
		p.batcherCancel()
		p.pool.Shutdown(context.Background())
		return nil
	}

	p.stopErr = p.shutdown()
	return p.stopErr
}

func (p *Pipeline) shutdown() error {
	// ------------------------------------------------------------
	// 1) Stopping: 새 Ingest 거절, block 중인 Put 해제,
	//    진행 중인 Ingest 가 모두 gate 를 빠져나올 때까지 대기
	// ------------------------------------------------------------
	p.state.Store(int32(StateStopping))
	close(p.stopping)
	p.ingestMu.Lock()
	p.ingestMu.Unlock()

	p.log.Info().Msg("stopping to send logs...")

	// 회수 배치 submit 과 워커 풀 대기를 합쳐서 MaxFlushTime 상한
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.MaxFlushTime)
	defer cancel()

	var lost int

	// ------------------------------------------------------------
	// 2) Batcher 취소 → 미완성 배치 회수
	// ------------------------------------------------------------
	p.batcherCancel()
	<-p.batcherDone

	remaining := p.batcher.Remaining()
	p.log.Info().Int("events", len(remaining)).Msg("remaining partial batch")
	if len(remaining) > 0 {
		lost += p.submitFinal(ctx, remaining)
	}

	// ------------------------------------------------------------
	// 3) 큐 drain: 대기 없이 BufferSize 씩 꺼내 배치로 submit
	// ------------------------------------------------------------
	p.log.Info().Int("events", p.queue.Len()).Msg("remaining log events")
	for {
		batch := make(model.Batch, 0, p.cfg.BufferSize)
		for len(batch) < p.cfg.BufferSize {
			ev, ok := p.queue.TryPoll()
			if !ok {
				break
			}
			batch = append(batch, ev)
		}
		if len(batch) == 0 {
			break
		}
		lost += p.submitFinal(ctx, batch)
	}

	// ------------------------------------------------------------
	// 4) 워커 풀 종료: MaxFlushTime 까지만 대기
	// ------------------------------------------------------------
	drained := p.pool.Shutdown(ctx)
	p.state.Store(int32(StateDrained))

	if !drained || lost > 0 {
		p.log.Error().
			Err(ErrShutdownTimeout).
			Dur("max_flush_time", p.cfg.MaxFlushTime).
			Int("unsubmitted_events", lost).
			Msg("failed to await termination of sending, some events may not have been delivered")
		return fmt.Errorf("%w after %s", ErrShutdownTimeout, p.cfg.MaxFlushTime)
	}

	p.log.Info().Msg("stopped to send logs")
	return nil
}

// submitFinal 은 종료 중 submit. 실패하면 (deadline 초과) 버려진 이벤트 수를 반환한다.
func (p *Pipeline) submitFinal(ctx context.Context, batch model.Batch) int {
	if err := p.submit(ctx, batch); err != nil {
		p.metrics.Inc(&p.metrics.BatchesAbandonedTotal, 1)
		p.metrics.Inc(&p.metrics.EventsFailedTotal, int64(len(batch)))
		return len(batch)
	}
	return 0
}
