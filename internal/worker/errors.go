package worker

import (
	"errors"
	"fmt"
)

// 파이프라인 에러 분류.
//
// Ingest 쪽 에러(ErrOverflow, ErrRejected)와 전송 쪽 에러(ErrDelivery)는
// 호출자에게 전파되지 않고 진단 로그와 metrics 로만 관찰된다.
// 시작을 막는 것은 ErrConfiguration 뿐이다.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrOverflow        = errors.New("event queue overflow")
	ErrRejected        = errors.New("pipeline is not running")
	ErrDelivery        = errors.New("delivery failed")
	ErrShutdownTimeout = errors.New("shutdown drain deadline exceeded")
	ErrPoolClosed      = errors.New("worker pool closed")
)

// DeliveryError 는 전송 작업 1건의 실패 내용.
// Status 가 0 이면 응답을 받기 전에 실패한 경우(인코딩, 전송 오류).
type DeliveryError struct {
	Status int
	Body   string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("delivery failed: status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("delivery failed: %v", e.Err)
}

// Is 는 errors.Is(err, ErrDelivery) 를 만족시킨다.
func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

func (e *DeliveryError) Unwrap() error { return e.Err }
