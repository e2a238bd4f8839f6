package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	gateway "github.com/xraph/gateway"
	"github.com/xraph/gateway/credential"
	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
)

// credentialModel is the JSON representation stored in Redis.
type credentialModel struct {
	ID         string     `json:"id"`
	PartnerID  string     `json:"partner_id"`
	Purpose    string     `json:"purpose"`
	SecretHash string     `json:"secret_hash"`
	Scopes     []string   `json:"scopes"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
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

func (s *Store) CreateCredential(ctx context.Context, c *credential.Credential) error {
	m := toCredentialModel(c)
	key := entityKey(prefixCredential, m.ID)

	// SET NX on the active-pair key both detects the conflict and claims the
	// slot in one round trip.
	if m.Active {
		ok, err := s.rdb.SetNX(ctx, credActiveKey(m.PartnerID, m.Purpose), m.ID, 0).Result()
		if err != nil {
			return fmt.Errorf("gateway/redis: create credential active check: %w", err)
		}
		if !ok {
			return gateway.ErrCredentialConflict
		}
	}

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("gateway/redis: create credential: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, zCredPartner+m.PartnerID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID}).Err(); err != nil {
		return fmt.Errorf("gateway/redis: create credential index: %w", err)
	}
	return nil
}

func (s *Store) GetActiveCredential(ctx context.Context, partnerID id.ID, purpose credential.Purpose) (*credential.Credential, error) {
	credID, err := s.rdb.Get(ctx, credActiveKey(partnerID.String(), string(purpose))).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, gateway.ErrUnauthorized
		}
		return nil, fmt.Errorf("gateway/redis: get active credential lookup: %w", err)
	}

	var m credentialModel
	if err := s.getEntity(ctx, entityKey(prefixCredential, credID), &m); err != nil {
		if isNotFound(err) {
			return nil, gateway.ErrUnauthorized
		}
		return nil, fmt.Errorf("gateway/redis: get active credential: %w", err)
	}
	return fromCredentialModel(&m)
}

func (s *Store) GetCredential(ctx context.Context, credID id.ID) (*credential.Credential, error) {
	var m credentialModel
	if err := s.getEntity(ctx, entityKey(prefixCredential, credID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, gateway.ErrUnauthorized
		}
		return nil, fmt.Errorf("gateway/redis: get credential: %w", err)
	}
	return fromCredentialModel(&m)
}

func (s *Store) TouchCredential(ctx context.Context, credID id.ID, usedAt time.Time) error {
	key := entityKey(prefixCredential, credID.String())

	var m credentialModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return gateway.ErrUnauthorized
		}
		return fmt.Errorf("gateway/redis: touch credential get: %w", err)
	}

	m.LastUsedAt = &usedAt
	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("gateway/redis: touch credential: %w", err)
	}
	return nil
}

func (s *Store) DeactivateCredential(ctx context.Context, credID id.ID) error {
	key := entityKey(prefixCredential, credID.String())

	var m credentialModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return gateway.ErrUnauthorized
		}
		return fmt.Errorf("gateway/redis: deactivate credential get: %w", err)
	}

	m.Active = false
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("gateway/redis: deactivate credential: %w", err)
	}

	// Release the active-pair slot only if this credential still holds it.
	slot := credActiveKey(m.PartnerID, m.Purpose)
	holder, err := s.rdb.Get(ctx, slot).Result()
	if err == nil && holder == m.ID {
		s.rdb.Del(ctx, slot)
	}
	return nil
}

func (s *Store) ReactivateCredential(ctx context.Context, credID id.ID) error {
	key := entityKey(prefixCredential, credID.String())

	var m credentialModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return gateway.ErrUnauthorized
		}
		return fmt.Errorf("gateway/redis: reactivate credential get: %w", err)
	}
	if m.Active {
		return nil
	}

	// Re-claim the active-pair slot before flipping the flag; losing the
	// race means another credential became active in the meantime.
	slot := credActiveKey(m.PartnerID, m.Purpose)
	ok, err := s.rdb.SetNX(ctx, slot, m.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("gateway/redis: reactivate credential claim: %w", err)
	}
	if !ok {
		return gateway.ErrCredentialConflict
	}

	m.Active = true
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("gateway/redis: reactivate credential: %w", err)
	}
	return nil
}

func (s *Store) ListCredentials(ctx context.Context, partnerID id.ID) ([]*credential.Credential, error) {
	ids, err := s.rdb.ZRange(ctx, zCredPartner+partnerID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("gateway/redis: list credentials: %w", err)
	}

	result := make([]*credential.Credential, 0, len(ids))
	for _, entryID := range ids {
		var m credentialModel
		if err := s.getEntity(ctx, entityKey(prefixCredential, entryID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		c, err := fromCredentialModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}

	return result, nil
}
