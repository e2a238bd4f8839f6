// Package credential stores and verifies hashed partner secrets.
//
// The plaintext secret is returned exactly once, at issue time. Only its
// SHA-256 digest is persisted, and verification compares digests in constant
// time. Lookup, expiry, and mismatch failures all collapse into the single
// ErrUnauthorized sentinel so callers cannot probe which partners or
// credentials exist.
package credential

import (
	"errors"
	"time"

	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
)

// ErrUnauthorized is the only failure Verify reports. It deliberately hides
// whether the credential was missing, expired, inactive, or mismatched.
var ErrUnauthorized = errors.New("credential: unauthorized")

// Purpose names what a credential is for, e.g. "api" for inbound request
// authentication. A partner holds at most one active credential per purpose.
type Purpose string

// PurposeAPI is the default purpose for inbound request authentication.
const PurposeAPI Purpose = "api"

// Credential holds the hashed secret material for one (partner, purpose) pair.
type Credential struct {
	entity.Entity

	// ID is the unique TypeID for this credential.
	ID id.ID `json:"id"`

	// PartnerID identifies the owning partner.
	PartnerID id.ID `json:"partner_id"`

	// Purpose names what this credential authenticates.
	Purpose Purpose `json:"purpose"`

	// SecretHash is the hex-encoded SHA-256 digest of the secret.
	// The plaintext is never stored.
	SecretHash string `json:"-"`

	// Scopes are the capability strings granted to this credential.
	Scopes []string `json:"scopes"`

	// ExpiresAt is an optional hard expiry. Expired credentials fail
	// verification regardless of hash match.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// LastUsedAt is stamped on every successful verification.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	// Active indicates whether this credential may verify. Rotation
	// deactivates the prior credential instead of deleting it.
	Active bool `json:"active"`
}

// Expired reports whether the credential is past its expiry at the given time.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}
