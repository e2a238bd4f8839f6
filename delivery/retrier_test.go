package delivery_test

import (
	"testing"
	"time"

	"github.com/xraph/gateway/delivery"
	"github.com/xraph/gateway/id"
)

func testBackoff() delivery.Backoff {
	return delivery.Backoff{
		Base: 5 * time.Second,
		Cap:  2 * time.Minute,
	}
}

func TestRetrierDecide(t *testing.T) {
	retrier := delivery.NewRetrier(testBackoff())

	tests := []struct {
		name     string
		result   delivery.Result
		delivery *delivery.Delivery
		want     delivery.Decision
	}{
		{
			name:     "200 OK → Delivered",
			result:   delivery.Result{StatusCode: 200},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.Delivered,
		},
		{
			name:     "201 Created → Delivered",
			result:   delivery.Result{StatusCode: 201},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.Delivered,
		},
		{
			name:     "204 No Content → Delivered",
			result:   delivery.Result{StatusCode: 204},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.Delivered,
		},
		{
			name:     "299 → Delivered",
			result:   delivery.Result{StatusCode: 299},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.Delivered,
		},
		{
			name:     "410 Gone → DisableEndpoint",
			result:   delivery.Result{StatusCode: 410},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.DisableEndpoint,
		},
		{
			name:     "429 Too Many Requests → Retry (within limits)",
			result:   delivery.Result{StatusCode: 429},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.Retry,
		},
		{
			name:     "429 Too Many Requests → Fail (exhausted)",
			result:   delivery.Result{StatusCode: 429},
			delivery: &delivery.Delivery{AttemptCount: 5, MaxAttempts: 5},
			want:     delivery.Fail,
		},
		{
			name:     "400 Bad Request → Fail immediately",
			result:   delivery.Result{StatusCode: 400},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.Fail,
		},
		{
			name:     "401 Unauthorized → Fail immediately",
			result:   delivery.Result{StatusCode: 401},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.Fail,
		},
		{
			name:     "403 Forbidden → Fail immediately",
			result:   delivery.Result{StatusCode: 403},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.Fail,
		},
		{
			name:     "404 Not Found → Fail immediately",
			result:   delivery.Result{StatusCode: 404},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.Fail,
		},
		{
			name:     "422 Unprocessable → Fail immediately",
			result:   delivery.Result{StatusCode: 422},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.Fail,
		},
		{
			name:     "500 Internal Server Error → Retry (within limits)",
			result:   delivery.Result{StatusCode: 500},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.Retry,
		},
		{
			name:     "502 Bad Gateway → Retry (within limits)",
			result:   delivery.Result{StatusCode: 502},
			delivery: &delivery.Delivery{AttemptCount: 2, MaxAttempts: 5},
			want:     delivery.Retry,
		},
		{
			name:     "503 Service Unavailable → Retry (within limits)",
			result:   delivery.Result{StatusCode: 503},
			delivery: &delivery.Delivery{AttemptCount: 3, MaxAttempts: 5},
			want:     delivery.Retry,
		},
		{
			name:     "500 → Fail (attempts exhausted)",
			result:   delivery.Result{StatusCode: 500},
			delivery: &delivery.Delivery{AttemptCount: 5, MaxAttempts: 5},
			want:     delivery.Fail,
		},
		{
			name:     "0 (connection error) → Retry (within limits)",
			result:   delivery.Result{StatusCode: 0, Error: "connection refused"},
			delivery: &delivery.Delivery{AttemptCount: 1, MaxAttempts: 5},
			want:     delivery.Retry,
		},
		{
			name:     "0 (timeout) → Fail (attempts exhausted)",
			result:   delivery.Result{StatusCode: 0, Error: "context deadline exceeded"},
			delivery: &delivery.Delivery{AttemptCount: 5, MaxAttempts: 5},
			want:     delivery.Fail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := retrier.Decide(tt.result, tt.delivery)
			if got != tt.want {
				t.Errorf("Decide() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	b := testBackoff()

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"attempt 1 → 5s", 1, 5 * time.Second},
		{"attempt 2 → 10s", 2, 10 * time.Second},
		{"attempt 3 → 20s", 3, 20 * time.Second},
		{"attempt 4 → 40s", 4, 40 * time.Second},
		{"attempt 5 → 80s", 5, 80 * time.Second},
		{"attempt 6 → capped at 2m", 6, 2 * time.Minute},
		{"attempt 10 → capped at 2m", 10, 2 * time.Minute},
		{"attempt 0 treated as 1", 0, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoffMonotonic(t *testing.T) {
	b := testBackoff()
	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := b.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased below %v", attempt, d, prev)
		}
		if d > b.Cap {
			t.Fatalf("Delay(%d) = %v exceeds cap %v", attempt, d, b.Cap)
		}
		prev = d
	}
}

func TestRetrierComputeNextAttempt(t *testing.T) {
	retrier := delivery.NewRetrier(testBackoff())

	tests := []struct {
		name         string
		attemptCount int
		wantDelay    time.Duration
	}{
		{"attempt 1 → 5s", 1, 5 * time.Second},
		{"attempt 2 → 10s", 2, 10 * time.Second},
		{"attempt 6 → 2m (capped)", 6, 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now().UTC()
			next := retrier.ComputeNextAttempt(tt.attemptCount)
			after := time.Now().UTC()

			expectedMin := before.Add(tt.wantDelay)
			expectedMax := after.Add(tt.wantDelay)

			if next.Before(expectedMin.Add(-time.Millisecond)) || next.After(expectedMax.Add(time.Millisecond)) {
				t.Errorf("ComputeNextAttempt(%d) = %v, expected between %v and %v",
					tt.attemptCount, next, expectedMin, expectedMax)
			}
		})
	}
}

func TestComputeNextAttemptJitterBounds(t *testing.T) {
	b := testBackoff()
	b.Jitter = 0.2
	retrier := delivery.NewRetrier(b)

	// With 20% jitter, attempt 1 lands in [4s, 6s] from now.
	for i := 0; i < 50; i++ {
		before := time.Now().UTC()
		next := retrier.ComputeNextAttempt(1)
		delay := next.Sub(before)
		if delay < 4*time.Second-50*time.Millisecond || delay > 6*time.Second+50*time.Millisecond {
			t.Fatalf("jittered delay %v outside [4s, 6s]", delay)
		}
	}
}

func TestRetrierBoundaryAttemptCount(t *testing.T) {
	retrier := delivery.NewRetrier(delivery.Backoff{Base: 5 * time.Second, Cap: 5 * time.Second})

	// Attempt 0 should not panic.
	_ = retrier.ComputeNextAttempt(0)

	// Exactly at max attempts → Fail.
	d := &delivery.Delivery{
		ID:           id.NewDeliveryID(),
		AttemptCount: 3,
		MaxAttempts:  3,
	}
	got := retrier.Decide(delivery.Result{StatusCode: 500}, d)
	if got != delivery.Fail {
		t.Errorf("expected Fail at max attempts, got %d", got)
	}

	// One below max → Retry.
	d.AttemptCount = 2
	got = retrier.Decide(delivery.Result{StatusCode: 500}, d)
	if got != delivery.Retry {
		t.Errorf("expected Retry below max, got %d", got)
	}
}
