package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/gateway/auth"
	"github.com/xraph/gateway/catalog"
	"github.com/xraph/gateway/credential"
	"github.com/xraph/gateway/delivery"
	"github.com/xraph/gateway/dlq"
	"github.com/xraph/gateway/endpoint"
	"github.com/xraph/gateway/event"
	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
	"github.com/xraph/gateway/ledger"
	"github.com/xraph/gateway/partner"
	"github.com/xraph/gateway/ratelimit"
	"github.com/xraph/gateway/signature"
	"github.com/xraph/gateway/store"
)

// wireServices initializes the internal services after options have been applied.
func (g *Gateway) wireServices() {
	g.partnerSvc = partner.NewService(g.store, g.logger)

	g.credentialSvc = credential.NewService(g.store, g.logger)

	g.catalog = catalog.NewCatalog(g.store, catalog.Config{
		CacheTTL: g.config.CacheTTL,
	}, g.logger)

	g.validator = catalog.NewValidator()

	g.endpointSvc = endpoint.NewService(g.store, g.logger)

	g.authn = auth.New(g.store, g.credentialSvc, ratelimit.New(g.counters), auth.Config{
		Window:       g.config.RateLimitWindow,
		DefaultLimit: int64(g.config.DefaultRateLimit),
	}, g.metrics, g.logger)

	g.ledgerSvc = ledger.NewService(g.store, g.logger)

	g.dlqSvc = dlq.NewService(g.store, g.logger)

	g.engine = delivery.NewEngine(g.store, g.ledgerSvc, g.dlqSvc, delivery.EngineConfig{
		Concurrency:        g.config.Concurrency,
		PartnerConcurrency: g.config.PartnerConcurrency,
		PollInterval:       g.config.PollInterval,
		BatchSize:          g.config.BatchSize,
		RequestTimeout:     g.config.RequestTimeout,
		Backoff: delivery.Backoff{
			Base:   g.config.RetryBase,
			Cap:    g.config.RetryCap,
			Jitter: g.config.RetryJitter,
		},
		Metrics: g.metrics,
		Tracer:  g.tracer,
	}, g.logger)
}

// Start begins the delivery engine.
func (g *Gateway) Start(ctx context.Context) {
	g.engine.Start(ctx)
}

// Stop gracefully shuts down the delivery engine.
func (g *Gateway) Stop(ctx context.Context) {
	g.engine.Stop(ctx)
}

// Onboarded is the result of enrolling a new partner: the partner record and
// its first API credential, with the plaintext secret shown exactly once.
type Onboarded struct {
	Partner    *partner.Partner
	Credential *credential.Issued
}

// Onboard enrolls a new partner and issues its first API credential in one
// step. The partner starts in the pending status and must be activated before
// it can publish events.
func (g *Gateway) Onboard(ctx context.Context, in partner.Input, scopes []string) (*Onboarded, error) {
	p, err := g.partnerSvc.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	issued, err := g.credentialSvc.Issue(ctx, p.ID, credential.PurposeAPI, scopes, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: issue credential for %s: %w", p.ID, err)
	}

	g.logger.InfoContext(ctx, "partner onboarded",
		"partner_id", p.ID,
		"name", p.Name,
		"credential_id", issued.Credential.ID,
	)

	return &Onboarded{Partner: p, Credential: issued}, nil
}

// Authenticate admits or rejects an inbound partner request. Rejections come
// back as an *auth.Rejection error carrying the deny reason and, for rate
// limit denials, the window reset time.
func (g *Gateway) Authenticate(ctx context.Context, req auth.Request) (*auth.Grant, error) {
	return g.authn.Authenticate(ctx, req)
}

// VerifyCallback checks an inbound callback signature against the endpoint's
// signing secret, rejecting stale timestamps beyond the configured skew
// tolerance.
func (g *Gateway) VerifyCallback(ctx context.Context, epID id.ID, payload []byte, timestamp int64, sig string) error {
	ep, err := g.store.GetEndpoint(ctx, epID)
	if err != nil {
		return err
	}
	return signature.VerifyAt(payload, ep.Secret, timestamp, sig, g.config.SkewTolerance, time.Now().UTC())
}

// RegisterEventType registers an event type definition in the catalog.
func (g *Gateway) RegisterEventType(ctx context.Context, def catalog.Definition, opts ...catalog.RegisterOption) (*catalog.EventType, error) {
	return g.catalog.RegisterType(ctx, def, opts...)
}

// Publish validates and persists an event, then fans out deliveries to the
// publishing partner's matching endpoints.
//
// The critical path:
//  1. Look up the event type in the catalog (reject unknown types).
//  2. Reject deprecated event types.
//  3. Validate the payload against the JSON Schema (if configured).
//  4. Require the publishing partner to be active.
//  5. Persist the event (idempotency key dedup is handled here).
//  6. Resolve the partner's matching endpoints.
//  7. Enqueue one delivery per matched endpoint.
func (g *Gateway) Publish(ctx context.Context, evt *event.Event) error {
	// 1. Validate event type exists.
	et, err := g.catalog.GetType(ctx, evt.Type)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrEventTypeNotFound, evt.Type)
	}

	// 2. Reject deprecated event types.
	if et.IsDeprecated {
		return fmt.Errorf("%w: %s", ErrEventTypeDeprecated, evt.Type)
	}

	// 3. Validate payload against schema (if defined).
	if len(et.Definition.Schema) > 0 {
		if validateErr := g.validator.Validate(et.Definition.Schema, evt.Data); validateErr != nil {
			return fmt.Errorf("%w: %s", ErrPayloadValidationFailed, validateErr.Error())
		}
	}

	// 4. Only active partners may publish.
	p, err := g.store.GetPartner(ctx, evt.PartnerID)
	if err != nil {
		return err
	}
	if p.Status != partner.StatusActive {
		return fmt.Errorf("%w: %s is %s", ErrPartnerNotActive, p.ID, p.Status)
	}

	// 5. Assign ID and entity timestamps, then persist. An idempotency key
	// replay is a no-op success that hands the caller the original event's
	// identity instead of the freshly assigned one.
	evt.Entity = entity.New()
	evt.ID = id.NewEventID()
	if createErr := g.store.CreateEvent(ctx, evt); createErr != nil {
		if errors.Is(createErr, ErrDuplicateIdempotencyKey) {
			original, getErr := g.store.GetEventByIdempotencyKey(ctx, evt.IdempotencyKey)
			if getErr != nil {
				return fmt.Errorf("gateway: resolve replayed event: %w", getErr)
			}
			*evt = *original
			return nil
		}
		return fmt.Errorf("gateway: persist event: %w", createErr)
	}

	// 6. Resolve the partner's matching endpoints.
	endpoints, err := g.store.Resolve(ctx, evt.PartnerID, evt.Type)
	if err != nil {
		return fmt.Errorf("gateway: resolve endpoints: %w", err)
	}

	if len(endpoints) == 0 {
		return nil // no matching endpoints, nothing to deliver
	}

	maxAttempts := g.config.MaxAttempts
	if p.MaxDeliveryAttempts > 0 {
		maxAttempts = p.MaxDeliveryAttempts
	}

	// 7. Fan out: create one delivery per endpoint.
	now := time.Now().UTC()
	deliveries := make([]*delivery.Delivery, 0, len(endpoints))
	for _, ep := range endpoints {
		d := &delivery.Delivery{
			Entity:        entity.New(),
			ID:            id.NewDeliveryID(),
			EventID:       evt.ID,
			EndpointID:    ep.ID,
			EventType:     evt.Type,
			State:         delivery.StatePending,
			AttemptCount:  0,
			MaxAttempts:   maxAttempts,
			NextAttemptAt: now,
		}
		deliveries = append(deliveries, d)
	}

	if err := g.store.EnqueueBatch(ctx, deliveries); err != nil {
		return fmt.Errorf("gateway: enqueue deliveries: %w", err)
	}

	if g.metrics != nil {
		g.metrics.EventsPublishedTotal.Inc()
		g.metrics.PendingDeliveries.Add(float64(len(deliveries)))
	}

	g.logger.DebugContext(ctx, "event published",
		"event_id", evt.ID,
		"type", evt.Type,
		"partner_id", evt.PartnerID,
		"endpoints", len(endpoints),
	)

	return nil
}

// Partners returns the partner lifecycle service.
func (g *Gateway) Partners() *partner.Service {
	return g.partnerSvc
}

// Credentials returns the credential management service.
func (g *Gateway) Credentials() *credential.Service {
	return g.credentialSvc
}

// Endpoints returns the endpoint management service.
func (g *Gateway) Endpoints() *endpoint.Service {
	return g.endpointSvc
}

// Catalog returns the event type catalog.
func (g *Gateway) Catalog() *catalog.Catalog {
	return g.catalog
}

// Ledger returns the delivery ledger service.
func (g *Gateway) Ledger() *ledger.Service {
	return g.ledgerSvc
}

// DLQ returns the dead letter queue service.
func (g *Gateway) DLQ() *dlq.Service {
	return g.dlqSvc
}

// Store returns the underlying store.
func (g *Gateway) Store() store.Store {
	return g.store
}
