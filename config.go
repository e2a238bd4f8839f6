package gateway

import "time"

// Config holds the configuration for a Gateway instance.
type Config struct {
	// Concurrency is the number of delivery worker goroutines.
	Concurrency int

	// PartnerConcurrency caps in-flight deliveries per partner so one noisy
	// partner cannot starve the worker pool. 0 means no per-partner cap.
	PartnerConcurrency int

	// PollInterval is how often the delivery engine checks for due deliveries.
	PollInterval time.Duration

	// BatchSize is the maximum number of deliveries dequeued per poll cycle.
	BatchSize int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// MaxAttempts is the default maximum number of delivery attempts.
	// Partners may override it via Partner.MaxDeliveryAttempts.
	MaxAttempts int

	// RetryBase is the backoff interval before the first retry. Subsequent
	// retries double it up to RetryCap.
	RetryBase time.Duration

	// RetryCap is the maximum backoff interval.
	RetryCap time.Duration

	// RetryJitter is the fraction of the computed backoff randomized in
	// [1-j, 1+j]. 0 disables jitter.
	RetryJitter float64

	// RateLimitWindow is the fixed window duration for request admission.
	RateLimitWindow time.Duration

	// DefaultRateLimit is the per-window request limit applied when a partner
	// has no limit of its own (for example, unauthenticated callers keyed by
	// source address).
	DefaultRateLimit int

	// SkewTolerance is the maximum accepted clock skew when verifying inbound
	// callback signatures.
	SkewTolerance time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries on shutdown.
	ShutdownTimeout time.Duration

	// CacheTTL is the TTL for the catalog's in-memory event type cache.
	// Set to 0 to disable caching.
	CacheTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:        10,
		PartnerConcurrency: 4,
		PollInterval:       1 * time.Second,
		BatchSize:          50,
		RequestTimeout:     30 * time.Second,
		MaxAttempts:        5,
		RetryBase:          5 * time.Second,
		RetryCap:           2 * time.Hour,
		RetryJitter:        0.2,
		RateLimitWindow:    time.Minute,
		DefaultRateLimit:   60,
		SkewTolerance:      5 * time.Minute,
		ShutdownTimeout:    30 * time.Second,
		CacheTTL:           30 * time.Second,
	}
}
