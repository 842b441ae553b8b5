package pool

import (
	"bytes"
	"sync"
)

// ---------------------------------------------------------------
// Pool 구성 목적
//
// 배치마다 요청 body 를 조립하고, intake 요청마다 body 를 읽으므로
// 버퍼 할당이 매우 빈번하다.
// 아래 Pool 들은 "GC 줄이기, 메모리 재사용" 목적.
// ---------------------------------------------------------------

var (
	// BodyPool:
	//   - intake POST body 를 임시 저장하는 버퍼
	//   - 초기 용량 4KB
	BodyPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 4*1024))
		},
	}

	// BufferPool:
	//   - 전송 요청 body(JSON) 조립용 버퍼
	//   - 초기 용량 64KB (기본 배치 10건 기준 충분)
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 64*1024))
		},
	}
)

// Pool 에 되돌려줄 최대 버퍼 용량.
// 이보다 큰 버퍼는 GC 에 맡긴다.
const MaxBufferCap = 1 * 1024 * 1024 // 1MB

// GetBuffer 는 비워진 버퍼를 꺼낸다.
func GetBuffer() *bytes.Buffer {
	buf := BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// GetBody 는 비워진 intake body 버퍼를 꺼낸다.
func GetBody() *bytes.Buffer {
	buf := BodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBody:
//   - maxCap(보통 MaxBodySize*2)보다 크면 버려서 GC 로.
func PutBody(buf *bytes.Buffer, maxCap int64) {
	if int64(buf.Cap()) <= maxCap {
		buf.Reset()
		BodyPool.Put(buf)
	}
}

// PutBuffer:
//   - 1MB 이하이면 풀에 재사용
//   - 초대형 배치 결과는 풀로 돌리지 않음
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}
