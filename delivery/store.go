package delivery

import (
	"context"

	"github.com/xraph/gateway/id"
)

// Store defines the persistence contract for webhook deliveries.
type Store interface {
	// Enqueue creates a pending delivery. Returns a duplicate error when a
	// pending or retrying row already exists for the same (event, endpoint)
	// pair: re-enqueueing an in-flight delivery must never fork a second row.
	Enqueue(ctx context.Context, d *Delivery) error

	// EnqueueBatch creates multiple deliveries atomically (fan-out).
	// Pairs that already have an in-flight row are skipped.
	EnqueueBatch(ctx context.Context, ds []*Delivery) error

	// Dequeue claims due pending/retrying deliveries (concurrent-safe).
	// Implementations must ensure no double-delivery (e.g. SKIP LOCKED):
	// a claimed row is invisible to other workers until its outcome is
	// written back, which is what keeps attempts strictly ordered per row.
	// Claims are leased, not permanent: a claim whose holder never writes
	// an outcome becomes claimable again after the lease runs out.
	Dequeue(ctx context.Context, limit int) ([]*Delivery, error)

	// UpdateDelivery writes a delivery's state back and releases its claim.
	// Rows back in pending/retrying become eligible for Dequeue again.
	// The write is checked against the stored row, not the caller's copy:
	// terminal rows are immutable and attempt counts never move backwards,
	// otherwise the write fails with an invalid-transition error.
	UpdateDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery returns a delivery by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// ListByEndpoint returns delivery history for an endpoint.
	ListByEndpoint(ctx context.Context, epID id.ID, opts ListOpts) ([]*Delivery, error)

	// ListByEvent returns all deliveries for a specific event.
	ListByEvent(ctx context.Context, evtID id.ID) ([]*Delivery, error)

	// CountPending returns the number of deliveries awaiting attempt.
	CountPending(ctx context.Context) (int64, error)
}
