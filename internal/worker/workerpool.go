package worker

import (
	"context"
	"sync"
)

// Job 은 워커 풀에서 실행되는 작업.
// Abandon 은 종료 deadline 이 지나 실행하지 않고 버릴 때 호출된다.
type Job interface {
	Run(ctx context.Context)
	Abandon()
}

// Pool 은 고정 개수의 워커가 대기열(tasks)에서 Job 을 꺼내 실행한다.
//
// 대기열은 크기가 정해져 있다. 가득 차면 Submit 이 block 되고,
// 그 압력은 Batcher → 이벤트 큐 → Ingest 호출자 순으로 전달된다.
type Pool struct {
	workers int
	tasks   chan Job

	// ctx 는 deadline 초과 시 취소된다 → 진행 중 요청 중단, 남은 Job 은 Abandon
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	wg        sync.WaitGroup
	startOnce sync.Once
}

func NewPool(workers, pending int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if pending < 1 {
		pending = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers: workers,
		tasks:   make(chan Job, pending),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start 는 워커 goroutine 들을 띄운다. 두 번째 호출부터는 무시.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(p.workers)
		for i := 0; i < p.workers; i++ {
			go p.work()
		}
	})
}

func (p *Pool) work() {
	defer p.wg.Done()

	for job := range p.tasks {
		if p.ctx.Err() != nil {
			job.Abandon()
			continue
		}
		job.Run(p.ctx)
	}
}

// Submit 은 대기열에 자리가 날 때까지 기다린다.
// ctx 가 끝나면 ctx.Err(), Shutdown 이후면 ErrPoolClosed.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Pending 은 대기열에 쌓인 Job 수 (실행 중인 것은 제외).
func (p *Pool) Pending() int { return len(p.tasks) }

// Shutdown 은 새 Job 을 더 받지 않고, ctx 가 끝날 때까지
// 이미 받은 Job 이 모두 끝나기를 기다린다.
//
// 모두 끝나면 true. ctx 가 먼저 끝나면 풀을 취소하고 false 를 반환한다.
// 이 경우 진행 중인 요청은 중단되고 대기열의 Job 은 Abandon 되며,
// 워커 goroutine 이 끝나기를 기다리지 않는다.
func (p *Pool) Shutdown(ctx context.Context) bool {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return true
	case <-ctx.Done():
		p.cancel()
		return false
	}
}
