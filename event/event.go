// Package event defines the webhook event submitted for delivery.
package event

import (
	"time"

	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
)

// Event represents a webhook event submitted for delivery. The payload is
// immutable once the event is persisted; retries always send the bytes that
// were recorded at publish time.
type Event struct {
	entity.Entity

	// ID is the unique TypeID for this event. It is stable across all
	// delivery attempts so receivers can deduplicate.
	ID id.ID `json:"id"`

	// Type is the dot-separated event type name (e.g. "invoice.created").
	Type string `json:"type"`

	// PartnerID identifies the partner whose endpoints receive this event.
	PartnerID id.ID `json:"partner_id"`

	// Data is the event payload. Validated against JSON Schema if configured.
	Data any `json:"data"`

	// IdempotencyKey prevents duplicate event processing.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ListOpts configures filtering and pagination for event listing.
type ListOpts struct {
	Offset int
	Limit  int
	Type   string
	From   *time.Time
	To     *time.Time
}
