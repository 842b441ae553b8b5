// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid 는 설정 검증 실패를 나타낸다.
// worker.New 는 이 에러를 ErrConfiguration 으로 감싸서 반환한다.
var ErrInvalid = errors.New("invalid configuration")

// UndefinedThreshold 는 DiscardingThreshold 가 지정되지 않았음을 뜻한다.
// 이 경우 QueueCapacity/5 가 사용된다.
const UndefinedThreshold = -1

// 기본값 모음.
const (
	DefaultBufferSize        = 10
	DefaultBufferInterval    = 10 * time.Second
	DefaultQueueCapacity     = 256
	DefaultMaxFlushTime      = 1000 * time.Second
	DefaultWorkers           = 10
	DefaultMaxPendingBatches = 100
	DefaultRequestTimeout    = 30 * time.Second
	DefaultHTTPAddr          = ":8080"
	DefaultMaxBodySize       = 1 << 20
	DefaultServiceName       = "logship"
)

// Config
//
// 파이프라인 실행에 필요한 모든 설정 값.
// Default / Load / LoadFile 중 하나로 한 번 만들어지고,
// 이후에는 값 복사로만 전달되는 불변(read-only) 설정이다.
type Config struct {

	// ---------------------------
	// 전송 대상 / 인증
	// ---------------------------

	URL        string            // 로그 수집 endpoint (필수)
	LicenseKey string            // X-License-Key 로 전송 (APIKey 보다 우선)
	APIKey     string            // Api-Key 로 전송
	Attributes map[string]string // 모든 요청의 common.attributes

	// ---------------------------
	// 큐 / 배치
	// ---------------------------

	BufferSize          int           // 배치 하나의 최대 이벤트 수
	BufferInterval      time.Duration // 배치를 채우는 동안 다음 이벤트를 기다리는 최대 시간
	QueueCapacity       int           // 이벤트 큐 용량 (backpressure 경계)
	DiscardingThreshold int           // 남은 용량이 이 값 미만이면 discardable 이벤트를 버린다
	NeverBlock          bool          // true: 큐가 가득 차면 drop, false: 호출자 block

	// ---------------------------
	// 전송 워커
	// ---------------------------

	Workers           int           // 동시 전송 goroutine 수
	MaxPendingBatches int           // 워커 풀 내부 대기 배치 수 상한
	RequestTimeout    time.Duration // HTTP 요청 1회 timeout
	MaxFlushTime      time.Duration // 종료 시 drain 대기 상한

	// ---------------------------
	// intake 서버
	// ---------------------------

	HTTPAddr    string
	MaxBodySize int64

	// ---------------------------
	// 로깅
	// ---------------------------

	ServiceName string
	InstanceID  string
	LogLevel    string
	LogPretty   bool
	LogSampleN  uint32
}

// Default 는 모든 선택 항목을 기본값으로 채운 Config 를 반환한다.
// URL 과 인증 정보는 비어 있으므로 그대로는 Validate 를 통과하지 못한다.
func Default() Config {
	return Config{
		BufferSize:          DefaultBufferSize,
		BufferInterval:      DefaultBufferInterval,
		QueueCapacity:       DefaultQueueCapacity,
		DiscardingThreshold: UndefinedThreshold,
		Workers:             DefaultWorkers,
		MaxPendingBatches:   DefaultMaxPendingBatches,
		RequestTimeout:      DefaultRequestTimeout,
		MaxFlushTime:        DefaultMaxFlushTime,
		HTTPAddr:            DefaultHTTPAddr,
		MaxBodySize:         DefaultMaxBodySize,
		ServiceName:         DefaultServiceName,
		InstanceID:          fallbackInstanceID(),
		LogLevel:            "info",
	}
}

// Threshold 는 실제로 적용되는 discarding threshold 를 반환한다.
func (c Config) Threshold() int {
	if c.DiscardingThreshold == UndefinedThreshold {
		return c.QueueCapacity / 5
	}
	return c.DiscardingThreshold
}

// Validate 는 파이프라인 시작 전에 설정 오류를 잡는다.
// 첫 사용 시점이 아니라 생성 시점에 거부하는 것이 목적.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.URL) == "":
		return fmt.Errorf("%w: url is required", ErrInvalid)
	case c.QueueCapacity < 1:
		return fmt.Errorf("%w: queue capacity %d < 1", ErrInvalid, c.QueueCapacity)
	case c.BufferSize < 1:
		return fmt.Errorf("%w: buffer size %d < 1", ErrInvalid, c.BufferSize)
	case c.BufferInterval <= 0:
		return fmt.Errorf("%w: buffer interval must be positive", ErrInvalid)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers %d < 1", ErrInvalid, c.Workers)
	case c.MaxPendingBatches < 1:
		return fmt.Errorf("%w: max pending batches %d < 1", ErrInvalid, c.MaxPendingBatches)
	case c.MaxFlushTime < 0:
		return fmt.Errorf("%w: max flush time must not be negative", ErrInvalid)
	}

	if c.DiscardingThreshold != UndefinedThreshold &&
		(c.DiscardingThreshold < 0 || c.DiscardingThreshold > c.QueueCapacity) {
		return fmt.Errorf("%w: discarding threshold %d outside [0, %d]",
			ErrInvalid, c.DiscardingThreshold, c.QueueCapacity)
	}
	return nil
}

// LookupFunc 는 환경변수 조회 함수 (os.LookupEnv 와 동일한 시그니처).
// 테스트에서 map 기반 조회로 교체할 수 있게 분리했다.
type LookupFunc func(key string) (string, bool)

// MapLookup 은 map 을 LookupFunc 로 바꿔준다.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// Load
//
// 환경 변수 기반으로 Config 를 초기화한다.
// 모든 항목은 선택이며, 값이 없으면 Default() 값을 유지한다.
// 형식이 잘못된 값은 ErrInvalid 로 즉시 반환한다.
func Load(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	c := Default()
	p := envParser{lookup: lookup}

	// 인증 정보는 여기서 읽지 않는다 → ResolveCredential 이 env fallback 을 담당.
	p.str("LOGS_URL", &c.URL)
	if v, ok := p.get("ATTRIBUTES"); ok {
		attrs, err := ParseAttributes(v)
		if err != nil {
			return Config{}, err
		}
		c.Attributes = attrs
	}

	p.int("BUFFER_SIZE", &c.BufferSize)
	p.dur("BUFFER_INTERVAL", &c.BufferInterval)
	p.int("QUEUE_CAPACITY", &c.QueueCapacity)
	p.int("DISCARDING_THRESHOLD", &c.DiscardingThreshold)
	p.bool("NEVER_BLOCK", &c.NeverBlock)

	p.int("WORKERS", &c.Workers)
	p.int("MAX_PENDING_BATCHES", &c.MaxPendingBatches)
	p.dur("REQUEST_TIMEOUT", &c.RequestTimeout)
	p.dur("MAX_FLUSH_TIME", &c.MaxFlushTime)

	p.str("HTTP_ADDR", &c.HTTPAddr)
	p.int64("MAX_BODY_SIZE", &c.MaxBodySize)

	p.str("SERVICE_NAME", &c.ServiceName)
	p.str("INSTANCE_ID", &c.InstanceID)
	p.str("LOG_LEVEL", &c.LogLevel)
	p.bool("LOG_PRETTY", &c.LogPretty)
	p.uint32("LOG_SAMPLE_N", &c.LogSampleN)

	if p.err != nil {
		return Config{}, p.err
	}
	return c, nil
}

// envParser 는 첫 번째 파싱 에러만 기억하고 나머지 호출은 무시한다.
type envParser struct {
	lookup LookupFunc
	err    error
}

func (p *envParser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *envParser) fail(key, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: env %s=%q: %v", ErrInvalid, key, v, err)
	}
}

func (p *envParser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *envParser) int(key string, dst *int) {
	if v, ok := p.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (p *envParser) int64(key string, dst *int64) {
	if v, ok := p.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (p *envParser) uint32(key string, dst *uint32) {
	if v, ok := p.get(key); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = uint32(n)
	}
}

func (p *envParser) bool(key string, dst *bool) {
	if v, ok := p.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (p *envParser) dur(key string, dst *time.Duration) {
	if v, ok := p.get(key); ok {
		d, err := ParseDuration(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = d
	}
}

// ParseDuration 은 Go duration 문법("1500ms", "10s")을 받는다.
// 숫자만 있으면 초 단위로 해석한다 (bufferSeconds / maxFlushTime 호환).
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// ParseAttributes 는 "k1=v1,k2=v2" 형태를 map 으로 바꾼다.
// 빈 문자열은 nil map.
func ParseAttributes(v string) (map[string]string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, val, ok := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: attribute %q is not key=value", ErrInvalid, part)
		}
		out[k] = strings.TrimSpace(val)
	}
	return out, nil
}

// AttributeKeys 는 attribute key 를 정렬해서 반환한다.
// 요청 body 를 결정적(deterministic)으로 만들기 위해 사용.
func AttributeKeys(attrs map[string]string) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fallbackInstanceID
//
// 이 프로세스 인스턴스를 식별하는 고유 값.
//   - 기본: hostname
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
