package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	gateway "github.com/xraph/gateway"
	"github.com/xraph/gateway/delivery"
	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
)

// deliveryModel is the JSON representation stored in Redis.
type deliveryModel struct {
	ID             string     `json:"id"`
	EventID        string     `json:"event_id"`
	EndpointID     string     `json:"endpoint_id"`
	EventType      string     `json:"event_type"`
	State          string     `json:"state"`
	AttemptCount   int        `json:"attempt_count"`
	MaxAttempts    int        `json:"max_attempts"`
	NextAttemptAt  time.Time  `json:"next_attempt_at"`
	FailReason     string     `json:"fail_reason,omitempty"`
	LastError      string     `json:"last_error"`
	LastStatusCode int        `json:"last_status_code"`
	LastResponse   string     `json:"last_response"`
	LastLatencyMs  int        `json:"last_latency_ms"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
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

// claimLeaseSeconds bounds how long a claimed delivery stays off the due
// queue. A worker that never writes an outcome (crash, kill -9) loses the
// lease and the row becomes claimable again.
const claimLeaseSeconds = 60

// dequeueScript atomically claims due deliveries. A claim moves the member
// from the due set to the lease set, scored by lease expiry; expired leases
// are returned to the due queue first, so an abandoned claim is never lost.
// KEYS[1] = gw:z:del:due
// KEYS[2] = gw:z:del:leased
// ARGV[1] = current unix timestamp (score threshold)
// ARGV[2] = limit
// ARGV[3] = lease expiry timestamp
var dequeueScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for i, id in ipairs(expired) do
    redis.call('ZREM', KEYS[2], id)
    redis.call('ZADD', KEYS[1], ARGV[1], id)
end
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids == 0 then return {} end
for i, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
    redis.call('ZADD', KEYS[2], ARGV[3], id)
end
return ids
`)

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)

	// SET NX on the pair key guards the one-row-per-(event, endpoint)
	// invariant across concurrent publishers.
	ok, err := s.rdb.SetNX(ctx, deliveryPairKey(m.EventID, m.EndpointID), m.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("gateway/redis: enqueue pair check: %w", err)
	}
	if !ok {
		return gateway.ErrDuplicateDelivery
	}

	return s.writeDelivery(ctx, m)
}

func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error {
	for _, d := range ds {
		m := toDeliveryModel(d)
		ok, err := s.rdb.SetNX(ctx, deliveryPairKey(m.EventID, m.EndpointID), m.ID, 0).Result()
		if err != nil {
			return fmt.Errorf("gateway/redis: enqueue batch pair check: %w", err)
		}
		if !ok {
			continue
		}
		if err := s.writeDelivery(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeDelivery(ctx context.Context, m *deliveryModel) error {
	key := entityKey(prefixDelivery, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("gateway/redis: enqueue delivery: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID})
	pipe.ZAdd(ctx, zDeliveryEP+m.EndpointID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	pipe.ZAdd(ctx, zDeliveryEvt+m.EventID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("gateway/redis: enqueue delivery indexes: %w", err)
	}
	return nil
}

func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	nowScore := fmt.Sprintf("%f", scoreFromTime(now()))
	leaseScore := fmt.Sprintf("%f", scoreFromTime(now().Add(claimLeaseSeconds*time.Second)))
	result, err := dequeueScript.Run(ctx, s.rdb, []string{zDeliveryDue, zDeliveryLeased}, nowScore, limit, leaseScore).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("gateway/redis: dequeue script: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	deliveries := make([]*delivery.Delivery, 0, len(result))
	for _, entryID := range result {
		key := entityKey(prefixDelivery, entryID)
		var m deliveryModel
		if err := s.getEntity(ctx, key, &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("gateway/redis: dequeue get: %w", err)
		}

		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	key := entityKey(prefixDelivery, d.ID.String())

	// The stored row, not the caller's copy, guards the state machine:
	// terminal rows are immutable and attempt counts never move backwards.
	var cur deliveryModel
	if err := s.getEntity(ctx, key, &cur); err != nil {
		if isNotFound(err) {
			return gateway.ErrDeliveryNotFound
		}
		return fmt.Errorf("gateway/redis: update delivery read: %w", err)
	}
	if delivery.State(cur.State).Terminal() || d.AttemptCount < cur.AttemptCount {
		return gateway.ErrInvalidTransition
	}

	m := toDeliveryModel(d)
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("gateway/redis: update delivery: %w", err)
	}

	// The write releases the claim either way.
	s.rdb.ZRem(ctx, zDeliveryLeased, m.ID)

	if d.State.Terminal() {
		// Terminal rows release the pair slot so the event can be redelivered
		// to this endpoint later (DLQ replay).
		s.rdb.Del(ctx, deliveryPairKey(m.EventID, m.EndpointID))
		return nil
	}

	// Non-terminal rows go back on the due queue.
	s.rdb.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID})
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, gateway.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("gateway/redis: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

func (s *Store) ListByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryEP+epID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("gateway/redis: list by endpoint: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, ids[i]), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.State != nil && delivery.State(m.State) != *opts.State {
			continue
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListByEvent(ctx context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryEvt+evtID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("gateway/redis: list by event: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, ids[i]), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return result, nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDeliveryDue).Result()
	if err != nil {
		return 0, fmt.Errorf("gateway/redis: count pending: %w", err)
	}
	return count, nil
}
