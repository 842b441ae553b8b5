package worker

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// syncBuffer 는 여러 goroutine 이 동시에 쓰는 로그를 모은다.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func testLogger() (*zerolog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	l := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &l, buf
}

// received 는 fake endpoint 가 받은 요청 1건.
type received struct {
	header   http.Header
	raw      string
	messages []string
	attrs    map[string]string
}

// endpoint 는 New Relic log API 흉내를 내는 httptest 서버.
type endpoint struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []received

	// status 는 n 번째(0부터) 요청의 응답 코드를 결정한다. nil 이면 202.
	status func(n int) int
	// hold 가 nil 이 아니면 응답 전에 닫힐 때까지 기다린다.
	hold chan struct{}
}

func newEndpoint(t *testing.T) *endpoint {
	t.Helper()
	e := &endpoint{}
	e.srv = httptest.NewServer(http.HandlerFunc(e.handle))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *endpoint) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)

	var payload []struct {
		Common *struct {
			Attributes map[string]string `json:"attributes"`
		} `json:"common"`
		Logs []struct {
			M string `json:"m"`
		} `json:"logs"`
	}
	rec := received{header: r.Header.Clone(), raw: string(raw)}
	if json.Unmarshal(raw, &payload) == nil && len(payload) == 1 {
		for _, l := range payload[0].Logs {
			rec.messages = append(rec.messages, l.M)
		}
		if payload[0].Common != nil {
			rec.attrs = payload[0].Common.Attributes
		}
	}

	e.mu.Lock()
	n := len(e.requests)
	e.requests = append(e.requests, rec)
	hold := e.hold
	e.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	code := http.StatusAccepted
	if e.status != nil {
		code = e.status(n)
	}
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"requestId":"r-` + http.StatusText(code) + `"}`))
}

func (e *endpoint) snapshot() []received {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]received(nil), e.requests...)
}

func (e *endpoint) messages() []string {
	var out []string
	for _, r := range e.snapshot() {
		out = append(out, r.messages...)
	}
	return out
}
