package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	gateway "github.com/xraph/gateway"
	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
	"github.com/xraph/gateway/partner"
)

// partnerModel is the JSON representation stored in Redis.
type partnerModel struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Category            string            `json:"category"`
	Status              string            `json:"status"`
	AuthMethod          string            `json:"auth_method"`
	RateLimit           int               `json:"rate_limit"`
	MaxDeliveryAttempts int               `json:"max_delivery_attempts"`
	LastSyncAt          *time.Time        `json:"last_sync_at,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
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

func (s *Store) CreatePartner(ctx context.Context, p *partner.Partner) error {
	m := toPartnerModel(p)
	key := entityKey(prefixPartner, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("gateway/redis: create partner: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, zPartnerAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID}).Err(); err != nil {
		return fmt.Errorf("gateway/redis: create partner index: %w", err)
	}
	return nil
}

func (s *Store) GetPartner(ctx context.Context, partnerID id.ID) (*partner.Partner, error) {
	var m partnerModel
	if err := s.getEntity(ctx, entityKey(prefixPartner, partnerID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, gateway.ErrPartnerNotFound
		}
		return nil, fmt.Errorf("gateway/redis: get partner: %w", err)
	}
	return fromPartnerModel(&m)
}

func (s *Store) UpdatePartner(ctx context.Context, p *partner.Partner) error {
	key := entityKey(prefixPartner, p.ID.String())

	var existing partnerModel
	if err := s.getEntity(ctx, key, &existing); err != nil {
		if isNotFound(err) {
			return gateway.ErrPartnerNotFound
		}
		return fmt.Errorf("gateway/redis: update partner get: %w", err)
	}

	m := toPartnerModel(p)
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("gateway/redis: update partner: %w", err)
	}
	return nil
}

func (s *Store) ListPartners(ctx context.Context, opts partner.ListOpts) ([]*partner.Partner, error) {
	ids, err := s.rdb.ZRange(ctx, zPartnerAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("gateway/redis: list partners: %w", err)
	}

	result := make([]*partner.Partner, 0, len(ids))
	for _, entryID := range ids {
		var m partnerModel
		if err := s.getEntity(ctx, entityKey(prefixPartner, entryID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.Status != nil && partner.Status(m.Status) != *opts.Status {
			continue
		}
		if opts.Category != nil && partner.Category(m.Category) != *opts.Category {
			continue
		}
		p, err := fromPartnerModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}
