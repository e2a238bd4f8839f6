// Package partner manages external counterparty identity and lifecycle.
package partner

import (
	"time"

	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
)

// Status is the lifecycle state of a partner.
type Status string

const (
	// StatusPending indicates the partner is onboarded but not yet activated.
	StatusPending Status = "pending"

	// StatusActive indicates the partner may authenticate and receive deliveries.
	StatusActive Status = "active"

	// StatusSuspended indicates the partner is administratively paused.
	// Suspension is reversible; all other transitions are one-way.
	StatusSuspended Status = "suspended"

	// StatusInactive is the terminal state. Partners are never hard-deleted,
	// so delivery and credential history stays intact for audit.
	StatusInactive Status = "inactive"
)

// Category classifies the counterparty.
type Category string

const (
	CategoryPartner  Category = "partner"
	CategoryVendor   Category = "vendor"
	CategoryProvider Category = "provider"
)

// AuthMethod is the mechanism a partner uses to authenticate inbound requests.
type AuthMethod string

const (
	AuthAPIKey AuthMethod = "api_key"
	AuthOAuth2 AuthMethod = "oauth2"
	AuthBearer AuthMethod = "bearer"
	AuthBasic  AuthMethod = "basic"
)

// Partner represents an external counterparty integrated through the gateway.
type Partner struct {
	entity.Entity

	// ID is the unique TypeID for this partner.
	ID id.ID `json:"id"`

	// Name is the partner's display name.
	Name string `json:"name"`

	// Category classifies the counterparty (partner, vendor, provider).
	Category Category `json:"category"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// AuthMethod is how this partner authenticates inbound requests.
	AuthMethod AuthMethod `json:"auth_method"`

	// RateLimit is the maximum admitted requests per rate-limit window.
	// 0 falls back to the gateway-wide default.
	RateLimit int `json:"rate_limit"`

	// MaxDeliveryAttempts overrides the gateway-wide maximum delivery
	// attempts for this partner's endpoints. 0 uses the default.
	MaxDeliveryAttempts int `json:"max_delivery_attempts"`

	// LastSyncAt is when the partner last completed a successful sync.
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// transitions holds the allowed status transitions. The lifecycle is
// monotonic except active ↔ suspended, which is reversible by administrative
// action only. Inactive is terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusActive, StatusInactive},
	StatusActive:    {StatusSuspended, StatusInactive},
	StatusSuspended: {StatusActive, StatusInactive},
	StatusInactive:  {},
}

// CanTransition reports whether a status change from one state to another is
// permitted by the lifecycle rules.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ListOpts configures filtering and pagination for partner listing.
type ListOpts struct {
	Offset   int
	Limit    int
	Status   *Status
	Category *Category
}
