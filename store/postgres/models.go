package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/gateway/catalog"
	"github.com/xraph/gateway/credential"
	"github.com/xraph/gateway/delivery"
	"github.com/xraph/gateway/dlq"
	"github.com/xraph/gateway/endpoint"
	"github.com/xraph/gateway/event"
	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
	"github.com/xraph/gateway/partner"
)

// --- Partner models ---

type partnerModel struct {
	grove.BaseModel `grove:"table:gateway_partners"`

	ID                  string            `grove:"id,pk"`
	Name                string            `grove:"name"`
	Category            string            `grove:"category"`
	Status              string            `grove:"status"`
	AuthMethod          string            `grove:"auth_method"`
	RateLimit           int               `grove:"rate_limit"`
	MaxDeliveryAttempts int               `grove:"max_delivery_attempts"`
	LastSyncAt          *time.Time        `grove:"last_sync_at"`
	Metadata            map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt           time.Time         `grove:"created_at"`
	UpdatedAt           time.Time         `grove:"updated_at"`
}

func toPartnerModel(p *partner.Partner) *partnerModel {
	return &partnerModel{
		ID:                  p.ID.String(),
		Name:                p.Name,
		Category:            string(p.Category),
		Status:              string(p.Status),
		AuthMethod:          string(p.AuthMethod),
		RateLimit:           p.RateLimit,
		MaxDeliveryAttempts: p.MaxDeliveryAttempts,
		LastSyncAt:          p.LastSyncAt,
		Metadata:            p.Metadata,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func fromPartnerModel(m *partnerModel) (*partner.Partner, error) {
	partnerID, err := id.ParsePartnerID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse partner ID %q: %w", m.ID, err)
	}
	return &partner.Partner{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                  partnerID,
		Name:                m.Name,
		Category:            partner.Category(m.Category),
		Status:              partner.Status(m.Status),
		AuthMethod:          partner.AuthMethod(m.AuthMethod),
		RateLimit:           m.RateLimit,
		MaxDeliveryAttempts: m.MaxDeliveryAttempts,
		LastSyncAt:          m.LastSyncAt,
		Metadata:            m.Metadata,
	}, nil
}

// --- Credential models ---

type credentialModel struct {
	grove.BaseModel `grove:"table:gateway_credentials"`

	ID         string     `grove:"id,pk"`
	PartnerID  string     `grove:"partner_id"`
	Purpose    string     `grove:"purpose"`
	SecretHash string     `grove:"secret_hash"`
	Scopes     []string   `grove:"scopes,array"`
	ExpiresAt  *time.Time `grove:"expires_at"`
	LastUsedAt *time.Time `grove:"last_used_at"`
	Active     bool       `grove:"active"`
	CreatedAt  time.Time  `grove:"created_at"`
	UpdatedAt  time.Time  `grove:"updated_at"`
}

func toCredentialModel(c *credential.Credential) *credentialModel {
	return &credentialModel{
		ID:         c.ID.String(),
		PartnerID:  c.PartnerID.String(),
		Purpose:    string(c.Purpose),
		SecretHash: c.SecretHash,
		Scopes:     c.Scopes,
		ExpiresAt:  c.ExpiresAt,
		LastUsedAt: c.LastUsedAt,
		Active:     c.Active,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func fromCredentialModel(m *credentialModel) (*credential.Credential, error) {
	credID, err := id.ParseCredentialID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse credential ID %q: %w", m.ID, err)
	}
	partnerID, err := id.ParsePartnerID(m.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("parse partner ID %q: %w", m.PartnerID, err)
	}
	return &credential.Credential{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         credID,
		PartnerID:  partnerID,
		Purpose:    credential.Purpose(m.Purpose),
		SecretHash: m.SecretHash,
		Scopes:     m.Scopes,
		ExpiresAt:  m.ExpiresAt,
		LastUsedAt: m.LastUsedAt,
		Active:     m.Active,
	}, nil
}

// --- Event Type models ---

type eventTypeModel struct {
	grove.BaseModel `grove:"table:gateway_event_types"`

	ID            string            `grove:"id,pk"`
	Name          string            `grove:"name,unique"`
	Description   string            `grove:"description"`
	GroupName     string            `grove:"group_name"`
	Schema        json.RawMessage   `grove:"schema,type:jsonb"`
	SchemaVersion string            `grove:"schema_version"`
	Version       string            `grove:"version"`
	Example       json.RawMessage   `grove:"example,type:jsonb"`
	IsDeprecated  bool              `grove:"is_deprecated"`
	DeprecatedAt  *time.Time        `grove:"deprecated_at"`
	Metadata      map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt     time.Time         `grove:"created_at"`
	UpdatedAt     time.Time         `grove:"updated_at"`
}

func toEventTypeModel(et *catalog.EventType) *eventTypeModel {
	return &eventTypeModel{
		ID:            et.ID.String(),
		Name:          et.Definition.Name,
		Description:   et.Definition.Description,
		GroupName:     et.Definition.Group,
		Schema:        et.Definition.Schema,
		SchemaVersion: et.Definition.SchemaVersion,
		Version:       et.Definition.Version,
		Example:       et.Definition.Example,
		IsDeprecated:  et.IsDeprecated,
		DeprecatedAt:  et.DeprecatedAt,
		Metadata:      et.Metadata,
		CreatedAt:     et.CreatedAt,
		UpdatedAt:     et.UpdatedAt,
	}
}

func fromEventTypeModel(m *eventTypeModel) (*catalog.EventType, error) {
	etID, err := id.ParseEventTypeID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event type ID %q: %w", m.ID, err)
	}
	return &catalog.EventType{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID: etID,
		Definition: catalog.Definition{
			Name:          m.Name,
			Description:   m.Description,
			Group:         m.GroupName,
			Schema:        m.Schema,
			SchemaVersion: m.SchemaVersion,
			Version:       m.Version,
			Example:       m.Example,
		},
		IsDeprecated: m.IsDeprecated,
		DeprecatedAt: m.DeprecatedAt,
		Metadata:     m.Metadata,
	}, nil
}

// --- Endpoint models ---

type endpointModel struct {
	grove.BaseModel `grove:"table:gateway_endpoints"`

	ID          string            `grove:"id,pk"`
	PartnerID   string            `grove:"partner_id"`
	URL         string            `grove:"url"`
	Description string            `grove:"description"`
	Secret      string            `grove:"secret"`
	EventTypes  []string          `grove:"event_types,array"`
	Headers     map[string]string `grove:"headers,type:jsonb"`
	RateLimit   int               `grove:"rate_limit"`
	Enabled     bool              `grove:"enabled"`
	Metadata    map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt   time.Time         `grove:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"`
}

func toEndpointModel(ep *endpoint.Endpoint) *endpointModel {
	return &endpointModel{
		ID:          ep.ID.String(),
		PartnerID:   ep.PartnerID.String(),
		URL:         ep.URL,
		Description: ep.Description,
		Secret:      ep.Secret,
		EventTypes:  ep.EventTypes,
		Headers:     ep.Headers,
		RateLimit:   ep.RateLimit,
		Enabled:     ep.Enabled,
		Metadata:    ep.Metadata,
		CreatedAt:   ep.CreatedAt,
		UpdatedAt:   ep.UpdatedAt,
	}
}

func fromEndpointModel(m *endpointModel) (*endpoint.Endpoint, error) {
	epID, err := id.ParseEndpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.ID, err)
	}
	partnerID, err := id.ParsePartnerID(m.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("parse partner ID %q: %w", m.PartnerID, err)
	}
	return &endpoint.Endpoint{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          epID,
		PartnerID:   partnerID,
		URL:         m.URL,
		Description: m.Description,
		Secret:      m.Secret,
		EventTypes:  m.EventTypes,
		Headers:     m.Headers,
		RateLimit:   m.RateLimit,
		Enabled:     m.Enabled,
		Metadata:    m.Metadata,
	}, nil
}

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:gateway_events"`

	ID             string          `grove:"id,pk"`
	Type           string          `grove:"type"`
	PartnerID      string          `grove:"partner_id"`
	Data           json.RawMessage `grove:"data,type:jsonb"`
	IdempotencyKey string          `grove:"idempotency_key"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	data, _ := json.Marshal(evt.Data) //nolint:errcheck // best-effort serialization
	return &eventModel{
		ID:             evt.ID.String(),
		Type:           evt.Type,
		PartnerID:      evt.PartnerID.String(),
		Data:           data,
		IdempotencyKey: evt.IdempotencyKey,
		CreatedAt:      evt.CreatedAt,
		UpdatedAt:      evt.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	partnerID, err := id.ParsePartnerID(m.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("parse partner ID %q: %w", m.PartnerID, err)
	}
	var data any = m.Data
	return &event.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             evtID,
		Type:           m.Type,
		PartnerID:      partnerID,
		Data:           data,
		IdempotencyKey: m.IdempotencyKey,
	}, nil
}

// --- Delivery models ---

type deliveryModel struct {
	grove.BaseModel `grove:"table:gateway_deliveries"`

	ID             string     `grove:"id,pk"`
	EventID        string     `grove:"event_id"`
	EndpointID     string     `grove:"endpoint_id"`
	EventType      string     `grove:"event_type"`
	State          string     `grove:"state"`
	AttemptCount   int        `grove:"attempt_count"`
	MaxAttempts    int        `grove:"max_attempts"`
	NextAttemptAt  time.Time  `grove:"next_attempt_at"`
	FailReason     string     `grove:"fail_reason"`
	LastError      string     `grove:"last_error"`
	LastStatusCode int        `grove:"last_status_code"`
	LastResponse   string     `grove:"last_response"`
	LastLatencyMs  int        `grove:"last_latency_ms"`
	CompletedAt    *time.Time `grove:"completed_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:             d.ID.String(),
		EventID:        d.EventID.String(),
		EndpointID:     d.EndpointID.String(),
		EventType:      d.EventType,
		State:          string(d.State),
		AttemptCount:   d.AttemptCount,
		MaxAttempts:    d.MaxAttempts,
		NextAttemptAt:  d.NextAttemptAt,
		FailReason:     string(d.FailReason),
		LastError:      d.LastError,
		LastStatusCode: d.LastStatusCode,
		LastResponse:   d.LastResponse,
		LastLatencyMs:  d.LastLatencyMs,
		CompletedAt:    d.CompletedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	epID, err := id.ParseEndpointID(m.EndpointID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.EndpointID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             delID,
		EventID:        evtID,
		EndpointID:     epID,
		EventType:      m.EventType,
		State:          delivery.State(m.State),
		AttemptCount:   m.AttemptCount,
		MaxAttempts:    m.MaxAttempts,
		NextAttemptAt:  m.NextAttemptAt,
		FailReason:     delivery.Reason(m.FailReason),
		LastError:      m.LastError,
		LastStatusCode: m.LastStatusCode,
		LastResponse:   m.LastResponse,
		LastLatencyMs:  m.LastLatencyMs,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// --- DLQ models ---

type dlqEntryModel struct {
	grove.BaseModel `grove:"table:gateway_dlq"`

	ID             string     `grove:"id,pk"`
	DeliveryID     string     `grove:"delivery_id"`
	EventID        string     `grove:"event_id"`
	EndpointID     string     `grove:"endpoint_id"`
	PartnerID      string     `grove:"partner_id"`
	EventType      string     `grove:"event_type"`
	URL            string     `grove:"url"`
	Payload        []byte     `grove:"payload,type:jsonb"`
	Reason         string     `grove:"reason"`
	Error          string     `grove:"error"`
	AttemptCount   int        `grove:"attempt_count"`
	LastStatusCode int        `grove:"last_status_code"`
	ReplayedAt     *time.Time `grove:"replayed_at"`
	FailedAt       time.Time  `grove:"failed_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toDLQEntryModel(e *dlq.Entry) *dlqEntryModel {
	payload, _ := json.Marshal(e.Payload) //nolint:errcheck // best-effort serialization
	return &dlqEntryModel{
		ID:             e.ID.String(),
		DeliveryID:     e.DeliveryID.String(),
		EventID:        e.EventID.String(),
		EndpointID:     e.EndpointID.String(),
		PartnerID:      e.PartnerID.String(),
		EventType:      e.EventType,
		URL:            e.URL,
		Payload:        payload,
		Reason:         string(e.Reason),
		Error:          e.Error,
		AttemptCount:   e.AttemptCount,
		LastStatusCode: e.LastStatusCode,
		ReplayedAt:     e.ReplayedAt,
		FailedAt:       e.FailedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
	dlqID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse DLQ ID %q: %w", m.ID, err)
	}
	delID, err := id.ParseDeliveryID(m.DeliveryID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.DeliveryID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	epID, err := id.ParseEndpointID(m.EndpointID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.EndpointID, err)
	}
	partnerID, err := id.ParsePartnerID(m.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("parse partner ID %q: %w", m.PartnerID, err)
	}
	var payload any = json.RawMessage(m.Payload)
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             dlqID,
		DeliveryID:     delID,
		EventID:        evtID,
		EndpointID:     epID,
		PartnerID:      partnerID,
		EventType:      m.EventType,
		URL:            m.URL,
		Payload:        payload,
		Reason:         delivery.Reason(m.Reason),
		Error:          m.Error,
		AttemptCount:   m.AttemptCount,
		LastStatusCode: m.LastStatusCode,
		ReplayedAt:     m.ReplayedAt,
		FailedAt:       m.FailedAt,
	}, nil
}
