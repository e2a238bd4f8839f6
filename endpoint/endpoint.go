// Package endpoint manages partner-registered webhook delivery targets.
package endpoint

import (
	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
)

// Endpoint represents a webhook delivery target registered by a partner.
type Endpoint struct {
	entity.Entity

	// ID is the unique TypeID for this endpoint.
	ID id.ID `json:"id"`

	// PartnerID identifies the partner that owns this endpoint.
	PartnerID id.ID `json:"partner_id"`

	// URL is the webhook delivery URL. Must be an absolute http(s) address.
	URL string `json:"url"`

	// Description is a human-readable description of this endpoint.
	Description string `json:"description"`

	// Secret is the HMAC signing secret for this endpoint. Never serialized.
	Secret string `json:"-"`

	// EventTypes are glob patterns for event type subscriptions.
	EventTypes []string `json:"event_types"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// RateLimit caps delivery attempts per second to this endpoint.
	// Zero means unpaced.
	RateLimit int `json:"rate_limit,omitempty"`

	// Enabled indicates whether the endpoint is active for deliveries.
	// Disabling is the logical delete; rows are never removed while delivery
	// history references them.
	Enabled bool `json:"enabled"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}
