// Package ratelimit implements fixed-window request admission.
//
// Counting is delegated to a CounterStore whose increment is atomic
// (increment-or-create in one step), so concurrent first requests for a key
// resolve to exactly one window even across service instances when backed by
// a shared store.
package ratelimit

import (
	"context"
	"time"
)

// CounterStore is the atomic counter backing the limiter. Incr increments
// the counter for key inside the currently active fixed window, opening a
// new window when none is active, and returns the post-increment count and
// the window end. The increment-or-create must be a single atomic operation.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Decision is the outcome of an admission check. Admission is a point
// decision; the limiter never blocks or retries.
type Decision struct {
	// Allowed reports whether the request is admitted.
	Allowed bool

	// Remaining is how many requests remain in the current window.
	Remaining int64

	// ResetAt is when the current window expires and the count resets.
	ResetAt time.Time
}

// RetryAfter returns how long the caller should wait before retrying.
// Zero when the request was allowed.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Limiter admits requests against per-key fixed windows.
type Limiter struct {
	counters CounterStore
}

// New creates a limiter backed by the given counter store.
func New(counters CounterStore) *Limiter {
	return &Limiter{counters: counters}
}

// Admit counts a request against the active window for key and decides
// admission. A limit of 0 means unlimited (always allowed).
func (l *Limiter) Admit(ctx context.Context, key string, limit int64, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	count, resetAt, err := l.counters.Incr(ctx, key, window)
	if err != nil {
		return Decision{}, err
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
