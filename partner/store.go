package partner

import (
	"context"

	"github.com/xraph/gateway/id"
)

// Store defines the persistence contract for partners.
type Store interface {
	// CreatePartner persists a new partner.
	CreatePartner(ctx context.Context, p *Partner) error

	// GetPartner returns a partner by ID.
	GetPartner(ctx context.Context, partnerID id.ID) (*Partner, error)

	// UpdatePartner modifies an existing partner.
	UpdatePartner(ctx context.Context, p *Partner) error

	// ListPartners returns partners, optionally filtered.
	ListPartners(ctx context.Context, opts ListOpts) ([]*Partner, error)
}
