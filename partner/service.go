package partner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
)

// Service provides partner lifecycle operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new partner service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Input is the creation payload for partners.
type Input struct {
	// Name is the partner's display name.
	Name string `json:"name"`

	// Category classifies the counterparty. Defaults to CategoryPartner.
	Category Category `json:"category"`

	// AuthMethod is how this partner authenticates. Defaults to AuthAPIKey.
	AuthMethod AuthMethod `json:"auth_method"`

	// RateLimit is the maximum admitted requests per rate-limit window.
	RateLimit int `json:"rate_limit"`

	// MaxDeliveryAttempts overrides the default delivery retry budget.
	MaxDeliveryAttempts int `json:"max_delivery_attempts"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Create registers a new partner in the pending state.
func (svc *Service) Create(ctx context.Context, in Input) (*Partner, error) {
	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "required"}
	}

	category := in.Category
	if category == "" {
		category = CategoryPartner
	}
	switch category {
	case CategoryPartner, CategoryVendor, CategoryProvider:
	default:
		return nil, &ValidationError{Field: "category", Message: "unknown category"}
	}

	method := in.AuthMethod
	if method == "" {
		method = AuthAPIKey
	}
	switch method {
	case AuthAPIKey, AuthOAuth2, AuthBearer, AuthBasic:
	default:
		return nil, &ValidationError{Field: "auth_method", Message: "unknown auth method"}
	}

	p := &Partner{
		Entity:              entity.New(),
		ID:                  id.NewPartnerID(),
		Name:                in.Name,
		Category:            category,
		Status:              StatusPending,
		AuthMethod:          method,
		RateLimit:           in.RateLimit,
		MaxDeliveryAttempts: in.MaxDeliveryAttempts,
		Metadata:            in.Metadata,
	}

	if err := svc.store.CreatePartner(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

// Get returns a partner by ID.
func (svc *Service) Get(ctx context.Context, partnerID id.ID) (*Partner, error) {
	return svc.store.GetPartner(ctx, partnerID)
}

// List returns partners, optionally filtered.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Partner, error) {
	return svc.store.ListPartners(ctx, opts)
}

// Activate moves a pending or suspended partner to active.
func (svc *Service) Activate(ctx context.Context, partnerID id.ID) (*Partner, error) {
	return svc.transition(ctx, partnerID, StatusActive)
}

// Suspend administratively pauses an active partner.
func (svc *Service) Suspend(ctx context.Context, partnerID id.ID) (*Partner, error) {
	return svc.transition(ctx, partnerID, StatusSuspended)
}

// Resume reactivates a suspended partner.
func (svc *Service) Resume(ctx context.Context, partnerID id.ID) (*Partner, error) {
	return svc.transition(ctx, partnerID, StatusActive)
}

// Deactivate soft-deletes a partner. The partner record and its delivery
// history are retained; only the status changes, and the change is terminal.
func (svc *Service) Deactivate(ctx context.Context, partnerID id.ID) (*Partner, error) {
	return svc.transition(ctx, partnerID, StatusInactive)
}

// RecordSync stamps the partner's last successful sync time.
func (svc *Service) RecordSync(ctx context.Context, partnerID id.ID, at time.Time) error {
	p, err := svc.store.GetPartner(ctx, partnerID)
	if err != nil {
		return err
	}

	t := at.UTC()
	p.LastSyncAt = &t
	return svc.store.UpdatePartner(ctx, p)
}

// SetRateLimit updates the per-window request limit for a partner.
func (svc *Service) SetRateLimit(ctx context.Context, partnerID id.ID, limit int) error {
	if limit < 0 {
		return &ValidationError{Field: "rate_limit", Message: "must be >= 0"}
	}

	p, err := svc.store.GetPartner(ctx, partnerID)
	if err != nil {
		return err
	}

	p.RateLimit = limit
	return svc.store.UpdatePartner(ctx, p)
}

// transition applies a validated status change.
func (svc *Service) transition(ctx context.Context, partnerID id.ID, to Status) (*Partner, error) {
	p, err := svc.store.GetPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	if p.Status == to {
		return p, nil
	}
	if !CanTransition(p.Status, to) {
		return nil, &TransitionError{From: p.Status, To: to}
	}

	from := p.Status
	p.Status = to
	if err := svc.store.UpdatePartner(ctx, p); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "partner status changed",
		"partner_id", p.ID,
		"from", from,
		"to", to,
	)

	return p, nil
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "partner validation: " + e.Field + ": " + e.Message
}

// TransitionError indicates a status change forbidden by the lifecycle rules.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("partner: cannot transition from %s to %s", e.From, e.To)
}
