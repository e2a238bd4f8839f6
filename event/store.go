package event

import (
	"context"

	"github.com/xraph/gateway/id"
)

// Store defines the persistence contract for webhook events.
type Store interface {
	// CreateEvent persists an event. Must be durable before returning.
	CreateEvent(ctx context.Context, evt *Event) error

	// GetEvent returns an event by ID.
	GetEvent(ctx context.Context, evtID id.ID) (*Event, error)

	// GetEventByIdempotencyKey returns the event that first claimed a
	// non-empty idempotency key.
	GetEventByIdempotencyKey(ctx context.Context, key string) (*Event, error)

	// ListEvents returns events, optionally filtered by type or time range.
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)

	// ListEventsByPartner returns events for a specific partner.
	ListEventsByPartner(ctx context.Context, partnerID id.ID, opts ListOpts) ([]*Event, error)
}
