// Package auth is the admission gate for inbound partner requests. It runs
// the rate limit check before credential verification so that a partner
// hammering the gateway with bad secrets burns its quota, not CPU.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/gateway/credential"
	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/observability"
	"github.com/xraph/gateway/partner"
	"github.com/xraph/gateway/ratelimit"
)

// RejectReason classifies why a request was denied.
type RejectReason string

const (
	// ReasonRateLimited means the caller exceeded its request quota.
	ReasonRateLimited RejectReason = "rate_limited"

	// ReasonUnauthorized means the credential did not verify. Covers unknown
	// partners, wrong secrets, expired and revoked credentials alike, so a
	// caller cannot probe which partner IDs exist.
	ReasonUnauthorized RejectReason = "unauthorized"

	// ReasonPartnerNotActive means the credential verified but the partner
	// is not in the active status.
	ReasonPartnerNotActive RejectReason = "partner_not_active"
)

// Rejection describes a denied request.
type Rejection struct {
	Reason RejectReason

	// Remaining and ResetAt are populated on rate-limit rejections.
	Remaining int64
	ResetAt   time.Time
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("auth: request rejected (%s)", r.Reason)
}

// RetryAfter returns how long the caller should wait before retrying a
// rate-limited request. Zero for other rejections.
func (r *Rejection) RetryAfter(now time.Time) time.Duration {
	if r.Reason != ReasonRateLimited {
		return 0
	}
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Public returns the reason safe to surface to the caller. Partner status
// collapses into unauthorized so inactive partners are indistinguishable
// from unknown ones.
func (r *Rejection) Public() RejectReason {
	if r.Reason == ReasonPartnerNotActive {
		return ReasonUnauthorized
	}
	return r.Reason
}

// Request carries what the transport layer extracted from an inbound call.
type Request struct {
	// PartnerID is the claimed partner identity. Empty when the caller
	// presented no identity at all.
	PartnerID string

	// Secret is the presented API secret.
	Secret string

	// Purpose selects which credential class must match.
	Purpose credential.Purpose

	// Path is the logical operation being called, used as part of the
	// rate-limit key so quotas are per operation.
	Path string

	// SourceAddr is the remote address, used for rate limiting when the
	// caller presented no partner identity.
	SourceAddr string
}

// Grant is the result of a successful authentication.
type Grant struct {
	Partner *partner.Partner
	Scopes  []string

	// Remaining is the rate-limit budget left in the current window.
	Remaining int64
	ResetAt   time.Time
}

// Config tunes the authenticator.
type Config struct {
	// Window is the fixed rate-limit window length.
	Window time.Duration

	// DefaultLimit applies to callers without a per-partner limit, including
	// unidentified callers keyed by source address.
	DefaultLimit int64
}

// Authenticator admits or rejects inbound partner requests.
type Authenticator struct {
	partners    partner.Store
	credentials *credential.Service
	limiter     *ratelimit.Limiter
	config      Config
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// New creates an authenticator.
func New(partners partner.Store, credentials *credential.Service, limiter *ratelimit.Limiter, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		partners:    partners,
		credentials: credentials,
		limiter:     limiter,
		config:      cfg,
		metrics:     metrics,
		logger:      logger,
	}
}

// Authenticate admits a request or returns a *Rejection. Order matters:
// the rate limit is charged first and counts denied requests too, then the
// credential is verified, then the partner status is checked.
func (a *Authenticator) Authenticate(ctx context.Context, req Request) (*Grant, error) {
	p, limit := a.resolvePartner(ctx, req.PartnerID)

	decision, err := a.limiter.Admit(ctx, a.limitKey(req), limit, a.config.Window)
	if err != nil {
		return nil, fmt.Errorf("auth: rate limit check: %w", err)
	}
	if !decision.Allowed {
		if a.metrics != nil {
			a.metrics.RecordRejection(string(ReasonRateLimited))
			a.metrics.RateLimitDenials.Inc()
		}
		a.logger.WarnContext(ctx, "request rate limited",
			"partner_id", req.PartnerID, "path", req.Path, "reset_at", decision.ResetAt)
		return nil, &Rejection{Reason: ReasonRateLimited, Remaining: 0, ResetAt: decision.ResetAt}
	}

	if p == nil {
		return nil, a.reject(ctx, req, ReasonUnauthorized)
	}

	pid, err := id.ParsePartnerID(req.PartnerID)
	if err != nil {
		return nil, a.reject(ctx, req, ReasonUnauthorized)
	}

	scopes, err := a.credentials.Verify(ctx, pid, req.Secret, req.Purpose)
	if err != nil {
		if errors.Is(err, credential.ErrUnauthorized) {
			return nil, a.reject(ctx, req, ReasonUnauthorized)
		}
		return nil, fmt.Errorf("auth: verify credential: %w", err)
	}

	if p.Status != partner.StatusActive {
		return nil, a.reject(ctx, req, ReasonPartnerNotActive)
	}

	return &Grant{
		Partner:   p,
		Scopes:    scopes,
		Remaining: decision.Remaining,
		ResetAt:   decision.ResetAt,
	}, nil
}

// resolvePartner looks up the claimed partner and its rate limit. Lookup
// failures fall back to the default limit; the credential check later is
// what actually rejects unknown partners.
func (a *Authenticator) resolvePartner(ctx context.Context, partnerID string) (*partner.Partner, int64) {
	if partnerID == "" {
		return nil, a.config.DefaultLimit
	}
	pid, err := id.ParsePartnerID(partnerID)
	if err != nil {
		return nil, a.config.DefaultLimit
	}
	p, err := a.partners.GetPartner(ctx, pid)
	if err != nil {
		return nil, a.config.DefaultLimit
	}
	if p.RateLimit > 0 {
		return p, int64(p.RateLimit)
	}
	return p, a.config.DefaultLimit
}

// limitKey buckets requests per caller and operation. Unidentified callers
// share a bucket per source address.
func (a *Authenticator) limitKey(req Request) string {
	who := req.PartnerID
	if who == "" {
		who = "addr:" + req.SourceAddr
	}
	return who + ":" + req.Path
}

func (a *Authenticator) reject(ctx context.Context, req Request, reason RejectReason) *Rejection {
	if a.metrics != nil {
		a.metrics.RecordRejection(string(reason))
	}
	a.logger.WarnContext(ctx, "request rejected",
		"partner_id", req.PartnerID, "path", req.Path, "reason", reason)
	return &Rejection{Reason: reason}
}
