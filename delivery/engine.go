package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/gateway/endpoint"
	"github.com/xraph/gateway/event"
	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/observability"
)

// EngineStore is the interface the engine needs for delivery operations.
type EngineStore interface {
	Dequeue(ctx context.Context, limit int) ([]*Delivery, error)
	GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error)
	GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error)
	SetEnabled(ctx context.Context, epID id.ID, enabled bool) error
}

// Ledger records delivery outcomes. All state transitions flow through it so
// attempt counts stay monotonic and terminal rows stay immutable.
type Ledger interface {
	RecordAttempt(ctx context.Context, d *Delivery) error
	MarkDelivered(ctx context.Context, d *Delivery, res Result) error
	MarkRetrying(ctx context.Context, d *Delivery, res Result, nextAt time.Time) error
	MarkFailed(ctx context.Context, d *Delivery, res Result, reason Reason) error
}

// DLQPusher surfaces permanently failed deliveries for manual review.
type DLQPusher interface {
	PushFailed(ctx context.Context, d *Delivery, ep *endpoint.Endpoint, evt *event.Event, reason Reason, lastError string, lastStatusCode int) error
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency        int
	PartnerConcurrency int
	PollInterval       time.Duration
	BatchSize          int
	RequestTimeout     time.Duration
	Backoff            Backoff
	Metrics            *observability.Metrics
	Tracer             *observability.Tracer
}

// Engine is the delivery worker pool that dequeues and processes deliveries.
type Engine struct {
	store   EngineStore
	ledger  Ledger
	sender  *Sender
	retrier *Retrier
	dlq     DLQPusher
	slots   *partnerSlots
	pace    *paceGate
	config  EngineConfig
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a delivery engine.
func NewEngine(store EngineStore, ledger Ledger, dlq DLQPusher, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		ledger:  ledger,
		sender:  NewSender(cfg.RequestTimeout),
		retrier: NewRetrier(cfg.Backoff),
		dlq:     dlq,
		slots:   newPartnerSlots(cfg.PartnerConcurrency),
		pace:    newPaceGate(),
		config:  cfg,
		logger:  logger,
	}
}

// Start begins the delivery workers and poll loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight deliveries to complete.
func (e *Engine) Stop(_ context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// pollLoop periodically dequeues due deliveries and dispatches them to workers.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.Dequeue(ctx, e.config.BatchSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "dequeue failed", "error", err)
				continue
			}

			for _, d := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(del *Delivery) {
					defer e.wg.Done()
					defer func() { <-sem }()
					e.process(ctx, del)
				}(d)
			}
		}
	}
}

// process handles a single claimed delivery: re-check the endpoint, attempt
// the send under the partner's concurrency slot, decide, and record the
// outcome through the ledger.
func (e *Engine) process(ctx context.Context, d *Delivery) {
	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartDeliverySpan(ctx, d.ID.String(), d.EventID.String(), d.EndpointID.String())
	}

	ep, err := e.store.GetEndpoint(ctx, d.EndpointID)
	if err != nil {
		e.logger.ErrorContext(ctx, "get endpoint failed",
			"delivery_id", d.ID, "endpoint_id", d.EndpointID, "error", err)
		e.requeue(ctx, d)
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, err.Error())
		}
		return
	}

	// Enabled-state is checked immediately before the attempt, not only at
	// enqueue time: an endpoint disabled while a retry was waiting must not
	// be called.
	if !ep.Enabled {
		if markErr := e.ledger.MarkFailed(ctx, d, Result{}, ReasonEndpointDisabled); markErr != nil {
			e.logger.ErrorContext(ctx, "mark failed (disabled endpoint) failed",
				"delivery_id", d.ID, "error", markErr)
		}
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("cancelled", 0)
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.logger.InfoContext(ctx, "delivery cancelled, endpoint disabled",
			"delivery_id", d.ID, "endpoint_id", d.EndpointID)
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, string(ReasonEndpointDisabled))
		}
		return
	}

	evt, err := e.store.GetEvent(ctx, d.EventID)
	if err != nil {
		e.logger.ErrorContext(ctx, "get event failed",
			"delivery_id", d.ID, "event_id", d.EventID, "error", err)
		e.requeue(ctx, d)
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, err.Error())
		}
		return
	}

	// One noisy partner must not starve the pool: each partner holds at most
	// PartnerConcurrency slots at a time.
	partnerKey := ep.PartnerID.String()
	if acquireErr := e.slots.acquire(ctx, partnerKey); acquireErr != nil {
		// Shutdown while waiting for a slot. The attempt never started, so
		// the row goes straight back on the queue.
		e.requeue(ctx, d)
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, acquireErr.Error())
		}
		return
	}
	defer e.slots.release(partnerKey)

	// Endpoints with a delivery rate limit get their attempts spaced out.
	if wait := e.pace.reserve(ep.ID.String(), ep.RateLimit); wait > 0 {
		select {
		case <-ctx.Done():
			e.requeue(ctx, d)
			if span != nil {
				e.config.Tracer.EndDeliverySpan(span, 0, 0, ctx.Err().Error())
			}
			return
		case <-time.After(wait):
		}
	}

	if attemptErr := e.ledger.RecordAttempt(ctx, d); attemptErr != nil {
		e.logger.ErrorContext(ctx, "record attempt failed",
			"delivery_id", d.ID, "error", attemptErr)
		e.requeue(ctx, d)
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, attemptErr.Error())
		}
		return
	}

	result := e.sender.Send(ctx, ep, evt, d)
	latencySeconds := float64(result.LatencyMs) / 1000.0

	decision := e.retrier.Decide(result, d)

	switch decision {
	case Delivered:
		if markErr := e.ledger.MarkDelivered(ctx, d, result); markErr != nil {
			e.logger.ErrorContext(ctx, "mark delivered failed",
				"delivery_id", d.ID, "error", markErr)
			break
		}
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("delivered", latencySeconds)
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID, "status", result.StatusCode, "latency_ms", result.LatencyMs)

	case Retry:
		nextAt := e.retrier.ComputeNextAttempt(d.AttemptCount)
		if markErr := e.ledger.MarkRetrying(ctx, d, result, nextAt); markErr != nil {
			e.logger.ErrorContext(ctx, "mark retrying failed",
				"delivery_id", d.ID, "error", markErr)
			break
		}
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("retried", latencySeconds)
		}
		e.logger.DebugContext(ctx, "retry scheduled",
			"delivery_id", d.ID, "attempt", d.AttemptCount, "next_at", nextAt)

	case Fail:
		reason := ReasonRejected
		if d.AttemptCount >= d.MaxAttempts {
			reason = ReasonExhausted
		}
		e.fail(ctx, d, ep, evt, result, reason, latencySeconds)

	case DisableEndpoint:
		if disableErr := e.store.SetEnabled(ctx, d.EndpointID, false); disableErr != nil {
			e.logger.ErrorContext(ctx, "disable endpoint failed",
				"endpoint_id", d.EndpointID, "error", disableErr)
		}
		e.fail(ctx, d, ep, evt, result, ReasonEndpointGone, latencySeconds)
		e.logger.WarnContext(ctx, "endpoint disabled (410 Gone)",
			"endpoint_id", d.EndpointID, "delivery_id", d.ID)
	}

	if span != nil {
		e.config.Tracer.EndDeliverySpan(span, result.StatusCode, result.LatencyMs, result.Error)
	}
}

// requeue puts a claimed delivery back on the queue when no attempt could be
// made at all. The attempt count is untouched and the write runs even during
// shutdown, so a bailed-out claim never strands the row.
func (e *Engine) requeue(ctx context.Context, d *Delivery) {
	ctx = context.WithoutCancel(ctx)
	if err := e.ledger.MarkRetrying(ctx, d, Result{}, time.Now()); err != nil {
		e.logger.ErrorContext(ctx, "requeue delivery failed",
			"delivery_id", d.ID, "error", err)
	}
}

// fail records a terminal failure and raises it for manual review via the DLQ.
func (e *Engine) fail(ctx context.Context, d *Delivery, ep *endpoint.Endpoint, evt *event.Event, result Result, reason Reason, latencySeconds float64) {
	if markErr := e.ledger.MarkFailed(ctx, d, result, reason); markErr != nil {
		e.logger.ErrorContext(ctx, "mark failed failed",
			"delivery_id", d.ID, "error", markErr)
		return
	}

	if e.dlq != nil {
		if dlqErr := e.dlq.PushFailed(ctx, d, ep, evt, reason, result.Error, result.StatusCode); dlqErr != nil {
			e.logger.ErrorContext(ctx, "push to DLQ failed",
				"delivery_id", d.ID, "error", dlqErr)
		}
	}

	if e.config.Metrics != nil {
		e.config.Metrics.RecordDelivery("failed", latencySeconds)
		e.config.Metrics.PendingDeliveries.Dec()
		e.config.Metrics.DLQSize.Inc()
	}

	e.logger.WarnContext(ctx, "delivery failed permanently",
		"delivery_id", d.ID, "reason", reason, "status", result.StatusCode, "error", result.Error)
}

// partnerSlots caps the number of in-flight deliveries per partner.
type partnerSlots struct {
	mu    sync.Mutex
	cap   int
	slots map[string]chan struct{}
}

func newPartnerSlots(capPerPartner int) *partnerSlots {
	return &partnerSlots{
		cap:   capPerPartner,
		slots: make(map[string]chan struct{}),
	}
}

// acquire blocks until the partner has a free slot or the context is done.
// A cap of 0 disables per-partner limiting.
func (p *partnerSlots) acquire(ctx context.Context, partnerID string) error {
	if p.cap <= 0 {
		return nil
	}

	p.mu.Lock()
	ch, ok := p.slots[partnerID]
	if !ok {
		ch = make(chan struct{}, p.cap)
		p.slots[partnerID] = ch
	}
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ch <- struct{}{}:
		return nil
	}
}

// paceGate spaces attempts to endpoints that carry a delivery rate limit.
// Each reservation books the next free send slot for the endpoint.
type paceGate struct {
	mu   sync.Mutex
	next map[string]time.Time
}

func newPaceGate() *paceGate {
	return &paceGate{next: make(map[string]time.Time)}
}

// reserve returns how long the caller must wait before attempting the
// endpoint. perSecond <= 0 disables pacing.
func (g *paceGate) reserve(epID string, perSecond int) time.Duration {
	if perSecond <= 0 {
		return 0
	}
	interval := time.Second / time.Duration(perSecond)
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	at := g.next[epID]
	if at.Before(now) {
		at = now
	}
	g.next[epID] = at.Add(interval)
	return at.Sub(now)
}

func (p *partnerSlots) release(partnerID string) {
	if p.cap <= 0 {
		return
	}

	p.mu.Lock()
	ch, ok := p.slots[partnerID]
	p.mu.Unlock()
	if ok {
		<-ch
	}
}
