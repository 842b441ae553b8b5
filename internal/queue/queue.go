// Package queue 는 생산자 여러 개 / 소비자 하나가 공유하는
// 고정 용량 FIFO 를 제공한다.
//
// 내부는 buffered channel 하나뿐이다. enqueue/dequeue 의 원자성은
// 채널이 보장하므로 외부 lock 이 필요 없다.
package queue

import (
	"context"
	"time"
)

// Bounded 는 용량이 고정된 스레드 안전 FIFO.
type Bounded[T any] struct {
	ch chan T
}

// New 는 capacity 크기의 큐를 만든다. capacity < 1 이면 1 로 보정한다
// (설정 검증은 config.Validate 가 먼저 수행한다).
func New[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[T]{ch: make(chan T, capacity)}
}

// Put 은 공간이 생길 때까지 block 한다.
// cancel 이 닫히면 넣지 않고 false 를 반환한다 (nil 이면 무한 대기).
func (q *Bounded[T]) Put(v T, cancel <-chan struct{}) bool {
	select {
	case q.ch <- v:
		return true
	case <-cancel:
		return false
	}
}

// Offer 는 block 하지 않는다. 가득 차 있으면 false.
func (q *Bounded[T]) Offer(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Poll 은 timeout 동안 다음 원소를 기다린다.
// timeout 만료 또는 ctx 취소 시 ok=false.
func (q *Bounded[T]) Poll(ctx context.Context, timeout time.Duration) (v T, ok bool) {
	// 이미 들어와 있는 원소는 timer 없이 바로 꺼낸다.
	select {
	case v = <-q.ch:
		return v, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v = <-q.ch:
		return v, true
	case <-timer.C:
	case <-ctx.Done():
	}
	return v, false
}

// TryPoll 은 대기 없이 하나를 꺼낸다. 비어 있으면 ok=false.
func (q *Bounded[T]) TryPoll() (v T, ok bool) {
	select {
	case v = <-q.ch:
		return v, true
	default:
		return v, false
	}
}

// Len 은 현재 들어 있는 원소 수.
func (q *Bounded[T]) Len() int { return len(q.ch) }

// Cap 은 고정 용량.
func (q *Bounded[T]) Cap() int { return cap(q.ch) }

// Remaining 은 남은 용량 (Cap - Len).
func (q *Bounded[T]) Remaining() int { return cap(q.ch) - len(q.ch) }
