package gateway

import (
	"log/slog"
	"time"

	"github.com/xraph/gateway/auth"
	"github.com/xraph/gateway/catalog"
	"github.com/xraph/gateway/credential"
	"github.com/xraph/gateway/delivery"
	"github.com/xraph/gateway/dlq"
	"github.com/xraph/gateway/endpoint"
	"github.com/xraph/gateway/ledger"
	"github.com/xraph/gateway/observability"
	"github.com/xraph/gateway/partner"
	"github.com/xraph/gateway/ratelimit"
	"github.com/xraph/gateway/store"
)

// Gateway is the root partner integration gateway.
type Gateway struct {
	config    Config
	store     store.Store
	counters  ratelimit.CounterStore
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger

	partnerSvc    *partner.Service
	credentialSvc *credential.Service
	catalog       *catalog.Catalog
	validator     *catalog.Validator
	endpointSvc   *endpoint.Service
	authn         *auth.Authenticator
	ledgerSvc     *ledger.Service
	dlqSvc        *dlq.Service
	engine        *delivery.Engine
}

// Option configures a Gateway instance.
type Option func(*Gateway) error

// New creates a new Gateway with the given options.
func New(opts ...Option) (*Gateway, error) {
	g := &Gateway{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	if g.store == nil {
		return nil, ErrNoStore
	}
	if g.counters == nil {
		g.counters = ratelimit.NewMemoryCounters()
	}
	g.wireServices()
	return g, nil
}

// WithStore sets the persistence backend for the Gateway instance.
func WithStore(s store.Store) Option {
	return func(g *Gateway) error {
		g.store = s
		return nil
	}
}

// WithConfig replaces the entire configuration.
func WithConfig(cfg Config) Option {
	return func(g *Gateway) error {
		g.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger for the Gateway instance.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}

// WithRateLimitStore sets the counter backend used for request admission.
// Defaults to in-process counters; use the redis store for a shared quota
// across gateway instances.
func WithRateLimitStore(cs ratelimit.CounterStore) Option {
	return func(g *Gateway) error {
		g.counters = cs
		return nil
	}
}

// WithMetrics sets the metric instruments recorded by the gateway.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) error {
		g.metrics = m
		return nil
	}
}

// WithTracer sets the tracer used to span delivery attempts.
func WithTracer(t *observability.Tracer) Option {
	return func(g *Gateway) error {
		g.tracer = t
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(g *Gateway) error {
		g.config.Concurrency = n
		return nil
	}
}

// WithPartnerConcurrency caps concurrent deliveries per partner.
func WithPartnerConcurrency(n int) Option {
	return func(g *Gateway) error {
		g.config.PartnerConcurrency = n
		return nil
	}
}

// WithPollInterval sets how often the delivery engine checks for due deliveries.
func WithPollInterval(d time.Duration) Option {
	return func(g *Gateway) error {
		g.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries dequeued per poll cycle.
func WithBatchSize(n int) Option {
	return func(g *Gateway) error {
		g.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(g *Gateway) error {
		g.config.RequestTimeout = d
		return nil
	}
}

// WithMaxAttempts sets the global default for maximum delivery attempts.
func WithMaxAttempts(n int) Option {
	return func(g *Gateway) error {
		g.config.MaxAttempts = n
		return nil
	}
}

// WithBackoff sets the retry backoff curve: base delay, cap, and jitter
// fraction.
func WithBackoff(base, ceiling time.Duration, jitter float64) Option {
	return func(g *Gateway) error {
		g.config.RetryBase = base
		g.config.RetryCap = ceiling
		g.config.RetryJitter = jitter
		return nil
	}
}

// WithRateLimit sets the admission window and the default per-window limit.
func WithRateLimit(window time.Duration, limit int) Option {
	return func(g *Gateway) error {
		g.config.RateLimitWindow = window
		g.config.DefaultRateLimit = limit
		return nil
	}
}

// WithSkewTolerance sets the maximum accepted clock skew when verifying
// inbound callback signatures.
func WithSkewTolerance(d time.Duration) Option {
	return func(g *Gateway) error {
		g.config.SkewTolerance = d
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight deliveries on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(g *Gateway) error {
		g.config.ShutdownTimeout = d
		return nil
	}
}

// WithCacheTTL sets the TTL for the catalog's in-memory event type cache.
func WithCacheTTL(d time.Duration) Option {
	return func(g *Gateway) error {
		g.config.CacheTTL = d
		return nil
	}
}
