package credential

import (
	"context"
	"time"

	"github.com/xraph/gateway/id"
)

// Store defines the persistence contract for credentials. Implementations
// must enforce at most one active credential per (partner, purpose) pair.
type Store interface {
	// CreateCredential persists a new credential. Returns a conflict error
	// when an active credential already exists for the same (partner,
	// purpose) pair.
	CreateCredential(ctx context.Context, c *Credential) error

	// GetActiveCredential returns the active credential for a (partner,
	// purpose) pair, whether or not it has expired. Expiry is the service's
	// concern, not the store's.
	GetActiveCredential(ctx context.Context, partnerID id.ID, purpose Purpose) (*Credential, error)

	// GetCredential returns a credential by ID.
	GetCredential(ctx context.Context, credID id.ID) (*Credential, error)

	// TouchCredential stamps the last-used timestamp.
	TouchCredential(ctx context.Context, credID id.ID, usedAt time.Time) error

	// DeactivateCredential clears the active flag. The row is retained.
	DeactivateCredential(ctx context.Context, credID id.ID) error

	// ReactivateCredential restores the active flag on a previously
	// deactivated credential. Returns a conflict error when another
	// credential is already active for the same (partner, purpose) pair.
	ReactivateCredential(ctx context.Context, credID id.ID) error

	// ListCredentials returns all credentials for a partner, active or not.
	ListCredentials(ctx context.Context, partnerID id.ID) ([]*Credential, error)
}
