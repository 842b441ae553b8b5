package worker

import (
	"context"
	"sync"
	"time"

	"logship/internal/model"
	"logship/internal/queue"
)

// SubmitFunc 는 완성된 배치를 전송 단계로 넘긴다.
// 에러를 반환하면 배치는 넘겨지지 않은 것으로 본다.
type SubmitFunc func(ctx context.Context, batch model.Batch) error

// Batcher 는 큐를 배치로 묶는 단일 소비자 루프.
//
// 배치 한 사이클:
//  1. 빈 배치로 시작
//  2. 최대 size 번 Poll(interval). 이벤트가 오면 추가,
//     interval 안에 아무것도 안 오면 사이클을 일찍 끝낸다 (저트래픽 latency 상한)
//  3. 배치가 비어 있지 않으면 submit
//  4. ctx 가 살아 있으면 1) 로
//
// ctx 취소로 끝나면 지금까지 모은 배치는 버리지 않고
// Remaining() 으로 회수할 수 있게 남겨 둔다.
type Batcher struct {
	queue    *queue.Bounded[*model.Event]
	size     int
	interval time.Duration
	submit   SubmitFunc

	// pending 은 Batcher goroutine 과 종료 시퀀스가 공유한다.
	mu      sync.Mutex
	pending model.Batch
}

func NewBatcher(q *queue.Bounded[*model.Event], size int, interval time.Duration, submit SubmitFunc) *Batcher {
	return &Batcher{
		queue:    q,
		size:     size,
		interval: interval,
		submit:   submit,
		pending:  make(model.Batch, 0, size),
	}
}

// Run 은 ctx 가 취소되거나 submit 이 실패할 때까지 사이클을 반복한다.
func (b *Batcher) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := b.cycle(ctx); err != nil {
			return
		}
	}
}

func (b *Batcher) cycle(ctx context.Context) error {
	for b.pendingLen() < b.size {
		ev, ok := b.queue.Poll(ctx, b.interval)
		if !ok {
			// timeout 또는 취소
			break
		}
		b.mu.Lock()
		b.pending = append(b.pending, ev)
		b.mu.Unlock()
	}

	b.mu.Lock()
	batch := b.pending
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	// submit 이 실패하면 pending 을 그대로 둔다 → Remaining() 으로 회수
	if err := b.submit(ctx, batch); err != nil {
		return err
	}

	// 넘긴 배치는 전송 작업 소유. backing array 를 공유하지 않도록 새로 할당.
	b.mu.Lock()
	b.pending = make(model.Batch, 0, b.size)
	b.mu.Unlock()
	return nil
}

func (b *Batcher) pendingLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Remaining 은 아직 넘겨지지 않은 배치를 꺼내고 비운다.
// Run 이 끝난 뒤 종료 시퀀스가 호출한다.
func (b *Batcher) Remaining() model.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.pending
	b.pending = make(model.Batch, 0, b.size)
	if len(out) == 0 {
		return nil
	}
	return out
}
