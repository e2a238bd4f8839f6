// Package delivery drives webhook delivery attempts through their state
// machine: pending → delivered, or pending → retrying… → failed.
package delivery

import (
	"time"

	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
)

// State represents the current state of a delivery.
type State string

const (
	// StatePending indicates the delivery is awaiting its first attempt.
	StatePending State = "pending"

	// StateRetrying indicates at least one attempt failed and another is scheduled.
	StateRetrying State = "retrying"

	// StateDelivered indicates the delivery was successfully sent. Terminal.
	StateDelivered State = "delivered"

	// StateFailed indicates the delivery permanently failed. Terminal.
	StateFailed State = "failed"
)

// Terminal reports whether the state is final. Terminal rows are immutable.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateFailed
}

// Reason explains why a delivery reached the failed state.
type Reason string

const (
	// ReasonExhausted means the retry budget ran out.
	ReasonExhausted Reason = "max_attempts_exhausted"

	// ReasonRejected means the receiver returned a non-retryable client error.
	ReasonRejected Reason = "non_retryable_response"

	// ReasonEndpointGone means the receiver answered 410 and the endpoint was disabled.
	ReasonEndpointGone Reason = "endpoint_gone"

	// ReasonEndpointDisabled means the endpoint was disabled before the attempt fired.
	ReasonEndpointDisabled Reason = "endpoint_disabled"

	// ReasonAbandoned means an operator cancelled the delivery in flight.
	ReasonAbandoned Reason = "abandoned"
)

// Delivery represents the attempts to deliver one event to one endpoint.
// There is exactly one row per (event, endpoint) pair; retries mutate the
// row rather than creating new ones, so the receiving side can deduplicate
// on the event ID.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this delivery.
	ID id.ID `json:"id"`

	// EventID references the event being delivered. Stable across retries.
	EventID id.ID `json:"event_id"`

	// EndpointID references the target endpoint.
	EndpointID id.ID `json:"endpoint_id"`

	// EventType is the event type name, denormalized for filtering.
	EventType string `json:"event_type"`

	// State is the current delivery state.
	State State `json:"state"`

	// AttemptCount is the number of delivery attempts made so far.
	// Strictly increases by one per attempt.
	AttemptCount int `json:"attempt_count"`

	// MaxAttempts is the maximum number of attempts before permanent failure.
	// Read from the row, not from config, so the budget is tunable per partner.
	MaxAttempts int `json:"max_attempts"`

	// NextAttemptAt is when the next delivery attempt should occur.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// FailReason records why the delivery failed. Empty unless failed.
	FailReason Reason `json:"fail_reason,omitempty"`

	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// LastStatusCode is the HTTP status code from the most recent attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// LastResponse is the response body from the most recent attempt (capped at 1KB).
	LastResponse string `json:"last_response,omitempty"`

	// LastLatencyMs is the latency in milliseconds of the most recent attempt.
	LastLatencyMs int `json:"last_latency_ms,omitempty"`

	// CompletedAt is when the delivery reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset int
	Limit  int
	State  *State
}
