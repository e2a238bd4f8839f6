package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/gateway/delivery"
	"github.com/xraph/gateway/endpoint"
	"github.com/xraph/gateway/event"
	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
)

// Service manages the dead letter queue. Entries land here when a
// delivery fails permanently and leave only through an explicit replay
// or a purge.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new DLQ service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// PushFailed captures a permanently failed delivery as a DLQ entry.
// Implements delivery.DLQPusher.
func (svc *Service) PushFailed(ctx context.Context, d *delivery.Delivery, ep *endpoint.Endpoint, evt *event.Event, reason delivery.Reason, lastError string, lastStatusCode int) error {
	payload, marshalErr := json.Marshal(evt.Data)
	if marshalErr != nil {
		return fmt.Errorf("dlq: marshal payload: %w", marshalErr)
	}

	entry := &Entry{
		Entity:         entity.New(),
		ID:             id.NewDLQID(),
		DeliveryID:     d.ID,
		EventID:        d.EventID,
		EndpointID:     d.EndpointID,
		EventType:      evt.Type,
		PartnerID:      ep.PartnerID,
		URL:            ep.URL,
		Payload:        payload,
		Reason:         reason,
		Error:          lastError,
		AttemptCount:   d.AttemptCount,
		LastStatusCode: lastStatusCode,
		FailedAt:       time.Now().UTC(),
	}

	if err := svc.store.Push(ctx, entry); err != nil {
		return err
	}

	svc.logger.WarnContext(ctx, "delivery dead-lettered",
		"dlq_id", entry.ID,
		"event_type", evt.Type,
		"partner_id", ep.PartnerID,
		"reason", reason,
		"attempts", d.AttemptCount,
	)
	return nil
}

// List returns DLQ entries matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return svc.store.ListDLQ(ctx, opts)
}

// Get returns a DLQ entry by ID.
func (svc *Service) Get(ctx context.Context, dlqID id.ID) (*Entry, error) {
	return svc.store.GetDLQ(ctx, dlqID)
}

// Replay re-enqueues a single DLQ entry for redelivery.
func (svc *Service) Replay(ctx context.Context, dlqID id.ID) error {
	if err := svc.store.Replay(ctx, dlqID); err != nil {
		return err
	}
	svc.logger.InfoContext(ctx, "dlq entry replayed", "dlq_id", dlqID)
	return nil
}

// ReplayBulk re-enqueues every unreplayed DLQ entry that failed within
// the given time range and returns how many were requeued.
func (svc *Service) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	n, err := svc.store.ReplayBulk(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		svc.logger.InfoContext(ctx, "dlq bulk replay", "replayed", n)
	}
	return n, nil
}

// Purge removes DLQ entries that failed before the cutoff.
func (svc *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return svc.store.Purge(ctx, before)
}

// Count returns the total number of DLQ entries.
func (svc *Service) Count(ctx context.Context) (int64, error) {
	return svc.store.CountDLQ(ctx)
}
