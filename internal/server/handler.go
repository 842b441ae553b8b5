package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"logship/internal/config"
	"logship/internal/metrics"
	"logship/internal/model"
	"logship/internal/pool"
	"logship/internal/timecache"
	"logship/internal/worker"

	json "github.com/goccy/go-json"
)

// ClientIPAttribute 는 intake 요청자 IP 를 담는 이벤트 속성 키.
const ClientIPAttribute = "client.ip"

var errNoEvents = errors.New("no events in request body")

// Ingester 는 Handler 가 이벤트를 넘기는 대상 (worker.Pipeline).
type Ingester interface {
	Ingest(ev *model.Event)
	State() worker.State
}

type Handler struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	pipeline Ingester
}

func NewHandler(cfg config.Config, m *metrics.Metrics, p Ingester) *Handler {
	return &Handler{
		cfg:      cfg,
		metrics:  m,
		pipeline: p,
	}
}

// intakeEvent 는 /collect 로 들어오는 이벤트 1건의 JSON 형태.
type intakeEvent struct {
	Timestamp  int64             `json:"timestamp"`
	Level      string            `json:"level"`
	Logger     string            `json:"logger"`
	Thread     string            `json:"thread"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes"`
}

// HandleCollect
//
// 다른 프로세스가 HTTP 로 로그 이벤트를 넘기는 엔드포인트.
// body 형식: JSON 객체 1개, JSON 배열, 또는 NDJSON (줄마다 객체 1개).
//
// 동작:
//  1. 요청 길이 제한(MaxBodySize)
//  2. BodyPool 기반 메모리 재사용
//  3. 이벤트마다 timestamp(없으면 수신 시각)와 client.ip 를 채워 Ingest
//  4. metrics 증가
//
// 큐가 가득 차 있고 NeverBlock=false 이면 Ingest 가 block 되므로
// 응답도 그만큼 늦어진다. 이것이 HTTP 클라이언트에게 가는 backpressure.
func (h *Handler) HandleCollect(w http.ResponseWriter, r *http.Request) {

	// 허용 메서드 검사
	if r.Method != http.MethodPost && r.Method != http.MethodOptions {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// OPTIONS 요청은 CORS preflight 로 가정 → 즉시 204
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.metrics.Inc(&h.metrics.HTTPRequestsTotal, 1)

	// 종료 중이면 body 를 읽기 전에 거절
	if h.pipeline.State() != worker.StateRunning {
		h.reject(w, http.StatusServiceUnavailable, "pipeline is not running")
		return
	}

	// --------------------------------------------------------------------
	// 요청 Body 최대 크기 강제 제한
	// --------------------------------------------------------------------
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	defer r.Body.Close()

	buf := pool.GetBody()
	defer pool.PutBody(buf, h.cfg.MaxBodySize*2)

	if _, err := io.Copy(buf, r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.reject(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	batch, err := decodeEvents(buf.Bytes())
	if err != nil {
		h.reject(w, http.StatusBadRequest, err.Error())
		return
	}

	now := timecache.UnixMilli()
	ip := clientIP(r)

	for _, in := range batch {
		ev := &model.Event{
			Timestamp:  in.Timestamp,
			Level:      in.Level,
			Logger:     in.Logger,
			Thread:     in.Thread,
			Message:    in.Message,
			Attributes: in.Attributes,
		}
		if ev.Timestamp <= 0 {
			ev.Timestamp = now
		}
		if ip != "" {
			if ev.Attributes == nil {
				ev.Attributes = make(map[string]string, 1)
			}
			ev.Attributes[ClientIPAttribute] = ip
		}
		h.pipeline.Ingest(ev)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, `{"accepted":%d}`, len(batch))
}

func (h *Handler) reject(w http.ResponseWriter, status int, msg string) {
	h.metrics.Inc(&h.metrics.HTTPRequestsRejectedTotal, 1)
	http.Error(w, msg, status)
}

// decodeEvents 는 배열이면 한 번에, 아니면 값이 끝날 때까지 객체를 하나씩 읽는다.
// 객체 1개와 NDJSON 은 같은 경로로 처리된다.
func decodeEvents(body []byte) ([]intakeEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errNoEvents
	}

	var out []intakeEvent
	if body[0] == '[' {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("invalid json array: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(body))
		for {
			var ev intakeEvent
			err := dec.Decode(&ev)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("invalid json event %d: %w", len(out)+1, err)
			}
			out = append(out, ev)
		}
	}

	if len(out) == 0 {
		return nil, errNoEvents
	}
	return out, nil
}

// HandleHealth 는 파이프라인이 Running 일 때만 200.
// 종료가 시작되면 503 을 돌려 로드밸런서가 트래픽을 빼게 한다.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	state := h.pipeline.State()
	if state != worker.StateRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, _ = io.WriteString(w, state.String())
}

// HandleMetrics
//
// 파이프라인 카운터를 name=value 텍스트로 출력한다.
// Prometheus 형식은 /metrics 에서 따로 제공.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}
