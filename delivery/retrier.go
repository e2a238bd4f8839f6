package delivery

import (
	"math/rand/v2"
	"time"
)

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the delivery was successful (2xx).
	Delivered Decision = iota

	// Retry means the delivery should be retried later.
	Retry

	// Fail means the delivery has permanently failed.
	Fail

	// DisableEndpoint means the endpoint should be disabled (e.g., 410 Gone).
	DisableEndpoint
)

// Result holds the outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	Error      string
	Response   string
	LatencyMs  int
}

// Backoff computes exponential retry delays: Base doubled per attempt,
// capped at Cap, with a randomized offset of ±Jitter so retries from many
// failed deliveries do not fire in lockstep.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Cap is the maximum delay.
	Cap time.Duration

	// Jitter is the fraction of the delay randomized in [1-j, 1+j].
	// 0 disables jitter.
	Jitter float64
}

// Delay returns the deterministic (un-jittered) delay before the retry that
// follows the given attempt. The schedule is non-decreasing: base × 2^(n−1)
// until it reaches Cap.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := b.Base
	for i := 1; i < attempt; i++ {
		if d >= b.Cap/2 {
			return b.Cap
		}
		d *= 2
	}
	if b.Cap > 0 && d > b.Cap {
		d = b.Cap
	}
	return d
}

// next returns the jittered delay for the retry following the given attempt.
func (b Backoff) next(attempt int) time.Duration {
	d := b.Delay(attempt)
	if b.Jitter <= 0 {
		return d
	}

	factor := 1 + b.Jitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * factor)
}

// Retrier decides what to do after a delivery attempt.
type Retrier struct {
	backoff Backoff
}

// NewRetrier creates a retrier with the given backoff policy.
func NewRetrier(backoff Backoff) *Retrier {
	return &Retrier{backoff: backoff}
}

// Decide determines what to do with a delivery after an attempt.
//
// Decision matrix:
//   - 2xx → Delivered
//   - 410 → DisableEndpoint (and fail the delivery)
//   - 400–499 (except 410, 429) → Fail immediately (client error won't self-correct)
//   - 429 → Retry (rate limited) if attempts remain, else Fail
//   - 500–599 → Retry if attempts remain, else Fail
//   - 0 (connection/timeout error) → Retry if attempts remain, else Fail
func (r *Retrier) Decide(res Result, d *Delivery) Decision {
	code := res.StatusCode

	// 2xx → success
	if code >= 200 && code < 300 {
		return Delivered
	}

	// 410 Gone → disable endpoint
	if code == 410 {
		return DisableEndpoint
	}

	// 429 Too Many Requests → always retry (if within limits)
	if code == 429 {
		return r.retryOrFail(d)
	}

	// 400–499 (client errors) → fail immediately
	if code >= 400 && code < 500 {
		return Fail
	}

	// 500–599 or 0 (network error) → retry if possible
	return r.retryOrFail(d)
}

// retryOrFail returns Retry if the delivery has attempts remaining, otherwise Fail.
func (r *Retrier) retryOrFail(d *Delivery) Decision {
	if d.AttemptCount < d.MaxAttempts {
		return Retry
	}
	return Fail
}

// ComputeNextAttempt returns the time at which the next attempt should be
// made, given how many attempts have already happened.
func (r *Retrier) ComputeNextAttempt(attemptCount int) time.Time {
	return time.Now().UTC().Add(r.backoff.next(attemptCount))
}
