package gateway

import (
	"errors"

	"github.com/xraph/gateway/credential"
	"github.com/xraph/gateway/ledger"
)

// Sentinel errors returned by Gateway operations.
var (
	// ErrNoStore is returned when a Gateway is created without a store.
	ErrNoStore = errors.New("gateway: store is required")

	// ErrPartnerNotFound is returned when a partner cannot be found.
	ErrPartnerNotFound = errors.New("gateway: partner not found")

	// ErrPartnerNotActive is returned when an operation requires an active partner.
	ErrPartnerNotActive = errors.New("gateway: partner is not active")

	// ErrUnauthorized is the single externally-visible authentication failure.
	// Credential not found, expired, inactive, and mismatched all collapse to
	// this value so callers cannot enumerate partners or credentials.
	ErrUnauthorized = credential.ErrUnauthorized

	// ErrCredentialConflict is returned when creating a credential for a
	// (partner, purpose) pair that already has an active one.
	ErrCredentialConflict = errors.New("gateway: active credential already exists")

	// ErrEndpointNotFound is returned when an endpoint cannot be found.
	ErrEndpointNotFound = errors.New("gateway: endpoint not found")

	// ErrEventTypeNotFound is returned when an event type is not registered in the catalog.
	ErrEventTypeNotFound = errors.New("gateway: event type not found")

	// ErrEventTypeDeprecated is returned when publishing an event with a deprecated type.
	ErrEventTypeDeprecated = errors.New("gateway: event type is deprecated")

	// ErrPayloadValidationFailed is returned when event data fails JSON Schema validation.
	ErrPayloadValidationFailed = errors.New("gateway: payload validation failed")

	// ErrDuplicateIdempotencyKey is returned when an event with the same idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("gateway: duplicate idempotency key")

	// ErrDuplicateDelivery is returned when enqueueing a delivery for an
	// (event, endpoint) pair that already has a pending or retrying row.
	ErrDuplicateDelivery = errors.New("gateway: delivery already in flight")

	// ErrInvalidTransition is returned when a ledger write would overwrite a
	// terminal delivery state or break attempt-count monotonicity. It
	// indicates a logic defect, not a transient condition.
	ErrInvalidTransition = ledger.ErrInvalidTransition

	// ErrEventNotFound is returned when an event cannot be found.
	ErrEventNotFound = errors.New("gateway: event not found")

	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = errors.New("gateway: delivery not found")

	// ErrDLQNotFound is returned when a DLQ entry cannot be found.
	ErrDLQNotFound = errors.New("gateway: dlq entry not found")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("gateway: store is closed")
)
