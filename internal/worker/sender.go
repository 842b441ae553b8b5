package worker

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"logship/internal/config"
	"logship/internal/metrics"
	"logship/internal/model"

	"github.com/rs/zerolog"
)

// 진단 로그에 남길 응답 body 상한
const maxResponseBody = 64 * 1024

// Result 는 HTTP 교환 1회의 결과.
type Result struct {
	Status int
	Body   string
}

// Sender 는 배치 하나를 요청 body 로 만들고 POST 1회를 수행한다.
// 재시도는 하지 않는다.
type Sender struct {
	client    *http.Client
	url       string
	cred      config.Credential
	attrs     map[string]string
	formatter BodyFormatter
}

func NewSender(client *http.Client, url string, cred config.Credential, attrs map[string]string, f BodyFormatter) *Sender {
	if client == nil {
		client = http.DefaultClient
	}
	if f == nil {
		f = NewRelicFormatter{}
	}
	return &Sender{
		client:    client,
		url:       url,
		cred:      cred,
		attrs:     attrs,
		formatter: f,
	}
}

// Send 는 status < 300 이면 nil 을 반환한다.
// 그 외에는 *DeliveryError (errors.Is(err, ErrDelivery) == true).
func (s *Sender) Send(ctx context.Context, batch model.Batch) (Result, error) {
	body, err := s.formatter.Format(batch, s.attrs)
	if err != nil {
		return Result{}, &DeliveryError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, &DeliveryError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(s.cred.Header, s.cred.Value)

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	res := Result{Status: resp.StatusCode, Body: string(raw)}

	if resp.StatusCode >= 300 {
		return res, &DeliveryError{Status: res.Status, Body: res.Body}
	}
	return res, nil
}

// deliveryTask 는 배치 + 전송기 = 워커 풀의 Job 1건.
// 성공/실패 모두 여기서 끝난다. 실패한 배치는 진단 로그만 남기고 버린다.
type deliveryTask struct {
	id      string
	batch   model.Batch
	sender  *Sender
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func (t *deliveryTask) Run(ctx context.Context) {
	n := int64(len(t.batch))

	res, err := t.sender.Send(ctx, t.batch)
	if err != nil {
		t.metrics.Inc(&t.metrics.DeliveriesFailedTotal, 1)
		t.metrics.Inc(&t.metrics.EventsFailedTotal, n)
		t.log.Error().
			Err(err).
			Str("batch_id", t.id).
			Int("events", len(t.batch)).
			Int("status", res.Status).
			Str("body", res.Body).
			Msg("failed to send logs, batch discarded")
		return
	}

	t.metrics.Inc(&t.metrics.DeliveriesSucceededTotal, 1)
	t.metrics.Inc(&t.metrics.EventsDeliveredTotal, n)
	t.log.Info().
		Str("batch_id", t.id).
		Int("events", len(t.batch)).
		Int("status", res.Status).
		Str("body", res.Body).
		Msg("logs sent")
}

func (t *deliveryTask) Abandon() {
	t.metrics.Inc(&t.metrics.BatchesAbandonedTotal, 1)
	t.metrics.Inc(&t.metrics.EventsFailedTotal, int64(len(t.batch)))
	t.log.Warn().
		Str("batch_id", t.id).
		Int("events", len(t.batch)).
		Msg("batch abandoned at shutdown deadline")
}
