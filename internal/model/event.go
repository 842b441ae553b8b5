// internal/model/event.go
package model

// Event
// ------------------------------------------------------------
// 애플리케이션이 만든 단일 로그 레코드.
// 파이프라인(큐 → 배치 → 전송)은 이 구조체를 들여다보지 않고
// 포인터 그대로 넘기며, 필드는 Encoder 만 읽는다.
//
// Ingest 이후에는 파이프라인이 소유권을 가지므로
// 호출자는 넘긴 Event 를 다시 수정하면 안 된다.
type Event struct {
	Timestamp  int64             `json:"timestamp"`             // epoch milliseconds
	Level      string            `json:"level,omitempty"`       // INFO, WARN, ...
	Logger     string            `json:"logger,omitempty"`      // logger 이름
	Thread     string            `json:"thread,omitempty"`      // 생성한 goroutine/thread 이름
	Message    string            `json:"message"`               // 본문
	Attributes map[string]string `json:"attributes,omitempty"` // 이벤트별 추가 속성
}

// Batch
// ------------------------------------------------------------
// 한 번의 전송 시도에 묶이는 이벤트들 (도착 순서 유지).
// Batcher 가 만들고, 워커 풀에 넘긴 뒤에는 전송 작업만 접근한다.
type Batch []*Event

// Len 은 배치 내 이벤트 수.
func (b Batch) Len() int { return len(b) }
