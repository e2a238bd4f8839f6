package endpoint

import (
	"context"

	"github.com/xraph/gateway/id"
)

// Store defines the persistence contract for webhook endpoints.
type Store interface {
	// CreateEndpoint persists a new endpoint.
	CreateEndpoint(ctx context.Context, ep *Endpoint) error

	// GetEndpoint returns an endpoint by ID.
	GetEndpoint(ctx context.Context, epID id.ID) (*Endpoint, error)

	// UpdateEndpoint modifies an existing endpoint.
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error

	// ListEndpoints returns endpoints for a partner, optionally filtered.
	ListEndpoints(ctx context.Context, partnerID id.ID, opts ListOpts) ([]*Endpoint, error)

	// Resolve finds all enabled endpoints of a partner subscribed to an
	// event type. This is the hot path, called on every Publish.
	Resolve(ctx context.Context, partnerID id.ID, eventType string) ([]*Endpoint, error)

	// SetEnabled enables or disables an endpoint without deleting it.
	SetEnabled(ctx context.Context, epID id.ID, enabled bool) error
}
