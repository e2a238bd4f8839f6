package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/gateway/endpoint"
	"github.com/xraph/gateway/event"
	"github.com/xraph/gateway/signature"
)

// Headers attached to every outbound attempt. Partners verify the payload
// with the signature and timestamp pair and can dedupe retries with the
// delivery id plus attempt number.
const (
	headerContentType    = "Content-Type"
	headerUserAgent      = "User-Agent"
	headerEventID        = "X-Gateway-Event-ID"
	headerEventType      = "X-Gateway-Event-Type"
	headerDeliveryID     = "X-Gateway-Delivery-ID"
	headerAttempt        = "X-Gateway-Attempt"
	headerIdempotencyKey = "X-Gateway-Idempotency-Key"
	headerSignature      = "X-Gateway-Signature"
	headerTimestamp      = "X-Gateway-Timestamp"
)

const userAgent = "Gateway/1.0"

// maxResponseBody caps how much of the partner's response body gets stored
// on the delivery row.
const maxResponseBody = 1024

// Sender performs a single HTTP delivery attempt against a partner endpoint.
type Sender struct {
	client  *http.Client
	timeout time.Duration
}

// NewSender returns a Sender whose attempts are bounded by timeout.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Send posts the event payload to the endpoint and reports the outcome. A
// transport failure or timeout yields a Result with StatusCode zero and the
// error text; an HTTP response of any status is reported as-is, the caller
// decides what counts as success.
func (s *Sender) Send(ctx context.Context, ep *endpoint.Endpoint, evt *event.Event, d *Delivery) Result {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(evt.Data)
	if err != nil {
		return Result{Error: err.Error()}
	}

	req, err := s.buildRequest(ctx, ep, evt, d, body)
	if err != nil {
		return Result{Error: err.Error()}
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return Result{Error: err.Error(), LatencyMs: latency}
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return Result{
		StatusCode: resp.StatusCode,
		Response:   string(snippet),
		LatencyMs:  latency,
	}
}

func (s *Sender) buildRequest(ctx context.Context, ep *endpoint.Endpoint, evt *event.Event, d *Delivery, body []byte) (*http.Request, error) {
	//nolint:gosec // G704: the URL is the partner-configured webhook destination.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	ts := time.Now().Unix()
	req.Header.Set(headerContentType, "application/json")
	req.Header.Set(headerUserAgent, userAgent)
	req.Header.Set(headerEventID, evt.ID.String())
	req.Header.Set(headerEventType, evt.Type)
	req.Header.Set(headerDeliveryID, d.ID.String())
	req.Header.Set(headerAttempt, strconv.Itoa(d.AttemptCount))
	if evt.IdempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, evt.IdempotencyKey)
	}
	req.Header.Set(headerSignature, signature.Sign(body, ep.Secret, ts))
	req.Header.Set(headerTimestamp, strconv.FormatInt(ts, 10))

	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}
