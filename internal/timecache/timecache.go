// internal/timecache/timecache.go
package timecache

import (
	"context"
	"sync/atomic"
	"time"
)

//
// timecache.go
// ------------------------------------------------------------
// intake 요청마다 time.Now() 를 호출하지 않도록
// 현재 epoch milliseconds 를 주기적으로 캐싱한다.
//
// 사용처:
//   - timestamp 없이 들어온 intake 이벤트의 기본 Timestamp
// ------------------------------------------------------------

const resolution = 10 * time.Millisecond

var (
	unixMilli atomic.Int64
	running   atomic.Bool
)

func init() {
	unixMilli.Store(time.Now().UnixMilli())
}

// Start 는 ctx 가 끝날 때까지 캐시를 갱신한다.
// 여러 번 호출해도 갱신 goroutine 은 하나만 돈다.
func Start(ctx context.Context) {
	if !running.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer running.Store(false)

		ticker := time.NewTicker(resolution)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				unixMilli.Store(now.UnixMilli())
			}
		}
	}()
}

// UnixMilli 는 캐시된 epoch milliseconds.
// Start 가 돌고 있지 않으면 time.Now 를 직접 사용한다.
func UnixMilli() int64 {
	if !running.Load() {
		return time.Now().UnixMilli()
	}
	return unixMilli.Load()
}
