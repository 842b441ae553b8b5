package worker

import (
	"bytes"
	"fmt"

	"logship/internal/config"
	"logship/internal/model"
	"logship/internal/pool"

	json "github.com/goccy/go-json"
)

// Encoder 는 이벤트 1건을 JSON 객체 바이트로 직렬화한다.
// 파이프라인은 결과를 검사하지 않고 logs 배열에 그대로 이어 붙인다.
type Encoder interface {
	Encode(ev *model.Event) ([]byte, error)
}

// EncoderFunc 는 함수를 Encoder 로 쓰기 위한 어댑터.
type EncoderFunc func(ev *model.Event) ([]byte, error)

func (f EncoderFunc) Encode(ev *model.Event) ([]byte, error) { return f(ev) }

// BodyFormatter 는 배치 하나를 요청 body 로 만든다.
// wire 형태를 바꾸고 싶으면 파이프라인은 그대로 두고 이것만 교체한다.
type BodyFormatter interface {
	Format(batch model.Batch, attrs map[string]string) ([]byte, error)
}

// JSONEncoder 는 이벤트를 New Relic log 객체로 인코딩한다.
//
//	{"log.level":"INFO","logger.name":"app","message":"...","thread.name":"main","timestamp":1700000000000}
//
// 이벤트 Attributes 는 같은 레벨에 펼쳐지며, 예약 필드를 덮어쓰지 못한다.
// goccy/go-json 은 map key 를 정렬하므로 출력은 결정적이다.
type JSONEncoder struct{}

func (JSONEncoder) Encode(ev *model.Event) ([]byte, error) {
	obj := make(map[string]any, len(ev.Attributes)+5)
	for k, v := range ev.Attributes {
		obj[k] = v
	}
	obj["timestamp"] = ev.Timestamp
	obj["message"] = ev.Message
	if ev.Level != "" {
		obj["log.level"] = ev.Level
	}
	if ev.Logger != "" {
		obj["logger.name"] = ev.Logger
	}
	if ev.Thread != "" {
		obj["thread.name"] = ev.Thread
	}
	return json.Marshal(obj)
}

// NewRelicFormatter
//
// 요청 body 형태:
//
//	[{"common":{"attributes":{"k1":"v1"}},"logs":[<event>,<event>]}]
//
// attrs 가 비어 있으면 common 객체를 생략한다:
//
//	[{"logs":[<event>,<event>]}]
//
// 이벤트 하나라도 인코딩에 실패하면 배치 전체를 실패로 반환한다.
type NewRelicFormatter struct {
	Encoder Encoder
}

func (f NewRelicFormatter) Format(batch model.Batch, attrs map[string]string) ([]byte, error) {
	enc := f.Encoder
	if enc == nil {
		enc = JSONEncoder{}
	}

	// ------------------------------------------------------------
	// 1) 조립용 버퍼는 pool 에서 가져온다
	// ------------------------------------------------------------
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	buf.WriteString(`[{`)

	// ------------------------------------------------------------
	// 2) common.attributes (key 정렬)
	// ------------------------------------------------------------
	if len(attrs) > 0 {
		buf.WriteString(`"common":{"attributes":{`)
		for i, k := range config.AttributeKeys(attrs) {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, k); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			if err := writeJSONString(buf, attrs[k]); err != nil {
				return nil, err
			}
		}
		buf.WriteString(`}},`)
	}

	// ------------------------------------------------------------
	// 3) logs 배열 (도착 순서, 쉼표 구분, trailing comma 없음)
	// ------------------------------------------------------------
	buf.WriteString(`"logs":[`)
	for i, ev := range batch {
		b, err := enc.Encode(ev)
		if err != nil {
			return nil, fmt.Errorf("encode event %d: %w", i, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		// encoder 가 줄바꿈을 붙이는 경우가 있어 끝 공백만 제거
		buf.Write(bytes.TrimRight(b, " \r\n\t"))
	}
	buf.WriteString(`]}]`)

	// ------------------------------------------------------------
	// 4) pool 버퍼는 재사용되므로 호출자 소유의 slice 로 복사
	// ------------------------------------------------------------
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
