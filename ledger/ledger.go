// Package ledger is the system of record for delivery attempts. Every state
// transition flows through it, which is where two invariants are enforced:
// terminal rows are immutable, and attempt counts only ever grow by one.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/gateway/delivery"
	"github.com/xraph/gateway/id"
)

// ErrInvalidTransition is returned when a write would violate the delivery
// state machine, such as mutating a terminal row or skipping an attempt.
var ErrInvalidTransition = errors.New("ledger: invalid delivery transition")

// Service enforces the delivery state machine over a delivery store.
type Service struct {
	store  delivery.Store
	logger *slog.Logger
}

// NewService creates a ledger service.
func NewService(store delivery.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// RecordAttempt increments the attempt counter ahead of a send. The counter
// moves by exactly one; the persisted write happens with the outcome, so a
// crash mid-attempt leaves the row claimable with its old count.
func (s *Service) RecordAttempt(_ context.Context, d *delivery.Delivery) error {
	if d.State.Terminal() {
		return fmt.Errorf("%w: attempt on %s delivery %s", ErrInvalidTransition, d.State, d.ID)
	}
	d.AttemptCount++
	return nil
}

// MarkDelivered records a successful delivery. Terminal.
func (s *Service) MarkDelivered(ctx context.Context, d *delivery.Delivery, res delivery.Result) error {
	if d.State.Terminal() {
		return fmt.Errorf("%w: %s → delivered on delivery %s", ErrInvalidTransition, d.State, d.ID)
	}

	now := time.Now()
	d.State = delivery.StateDelivered
	d.CompletedAt = &now
	applyResult(d, res)

	return s.store.UpdateDelivery(ctx, d)
}

// MarkRetrying records a failed attempt with another one scheduled.
func (s *Service) MarkRetrying(ctx context.Context, d *delivery.Delivery, res delivery.Result, nextAt time.Time) error {
	if d.State.Terminal() {
		return fmt.Errorf("%w: %s → retrying on delivery %s", ErrInvalidTransition, d.State, d.ID)
	}

	d.State = delivery.StateRetrying
	d.NextAttemptAt = nextAt
	applyResult(d, res)

	return s.store.UpdateDelivery(ctx, d)
}

// MarkFailed records a permanent failure with the given reason. Terminal.
func (s *Service) MarkFailed(ctx context.Context, d *delivery.Delivery, res delivery.Result, reason delivery.Reason) error {
	if d.State.Terminal() {
		return fmt.Errorf("%w: %s → failed on delivery %s", ErrInvalidTransition, d.State, d.ID)
	}

	now := time.Now()
	d.State = delivery.StateFailed
	d.FailReason = reason
	d.CompletedAt = &now
	applyResult(d, res)

	return s.store.UpdateDelivery(ctx, d)
}

// Abandon cancels an in-flight delivery on operator request. The row fails
// with the abandoned reason; deliveries already terminal cannot be abandoned.
func (s *Service) Abandon(ctx context.Context, delID id.ID, note string) (*delivery.Delivery, error) {
	d, err := s.store.GetDelivery(ctx, delID)
	if err != nil {
		return nil, err
	}
	if d.State.Terminal() {
		return nil, fmt.Errorf("%w: abandon on %s delivery %s", ErrInvalidTransition, d.State, d.ID)
	}

	now := time.Now()
	d.State = delivery.StateFailed
	d.FailReason = delivery.ReasonAbandoned
	d.LastError = note
	d.CompletedAt = &now

	if err := s.store.UpdateDelivery(ctx, d); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "delivery abandoned", "delivery_id", d.ID, "note", note)
	return d, nil
}

// Get returns a single delivery row.
func (s *Service) Get(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	return s.store.GetDelivery(ctx, delID)
}

// ListByEvent returns all delivery rows for an event.
func (s *Service) ListByEvent(ctx context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	return s.store.ListByEvent(ctx, evtID)
}

// ListByEndpoint returns delivery history for an endpoint, newest first.
func (s *Service) ListByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	return s.store.ListByEndpoint(ctx, epID, opts)
}

// CountPending returns the number of deliveries awaiting attempt.
func (s *Service) CountPending(ctx context.Context) (int64, error) {
	return s.store.CountPending(ctx)
}

func applyResult(d *delivery.Delivery, res delivery.Result) {
	d.LastStatusCode = res.StatusCode
	d.LastError = res.Error
	d.LastResponse = res.Response
	d.LastLatencyMs = res.LatencyMs
}
