// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/gateway"
	"github.com/xraph/gateway/catalog"
	"github.com/xraph/gateway/credential"
	"github.com/xraph/gateway/delivery"
	"github.com/xraph/gateway/dlq"
	"github.com/xraph/gateway/endpoint"
	"github.com/xraph/gateway/event"
	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/partner"
	gwstore "github.com/xraph/gateway/store"
)

// compile-time interface check.
var _ gwstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.RWMutex

	partners        map[string]*partner.Partner       // keyed by ID string
	credentials     map[string]*credential.Credential // keyed by ID string
	eventTypes      map[string]*catalog.EventType     // keyed by name
	eventTypesByID  map[string]*catalog.EventType     // keyed by ID string
	endpoints       map[string]*endpoint.Endpoint     // keyed by ID string
	events          map[string]*event.Event           // keyed by ID string
	eventsByIdemKey map[string]*event.Event           // keyed by idempotency key
	deliveries      map[string]*delivery.Delivery     // keyed by ID string
	claims          map[string]time.Time              // claim times, simulates SKIP LOCKED
	claimLease      time.Duration
	dlqEntries      map[string]*dlq.Entry             // keyed by ID string

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		partners:        make(map[string]*partner.Partner),
		credentials:     make(map[string]*credential.Credential),
		eventTypes:      make(map[string]*catalog.EventType),
		eventTypesByID:  make(map[string]*catalog.EventType),
		endpoints:       make(map[string]*endpoint.Endpoint),
		events:          make(map[string]*event.Event),
		eventsByIdemKey: make(map[string]*event.Event),
		deliveries:      make(map[string]*delivery.Delivery),
		claims:          make(map[string]time.Time),
		claimLease:      claimLease,
		dlqEntries:      make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the in-memory store.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return gateway.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// partner.Store
// ──────────────────────────────────────────────────

// CreatePartner persists a new partner.
func (s *Store) CreatePartner(_ context.Context, p *partner.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partners[p.ID.String()] = p
	return nil
}

// GetPartner returns a partner by ID.
func (s *Store) GetPartner(_ context.Context, partnerID id.ID) (*partner.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.partners[partnerID.String()]
	if !ok {
		return nil, gateway.ErrPartnerNotFound
	}
	return p, nil
}

// UpdatePartner modifies an existing partner.
func (s *Store) UpdatePartner(_ context.Context, p *partner.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.partners[p.ID.String()]; !ok {
		return gateway.ErrPartnerNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	s.partners[p.ID.String()] = p
	return nil
}

// ListPartners returns partners, optionally filtered.
func (s *Store) ListPartners(_ context.Context, opts partner.ListOpts) ([]*partner.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*partner.Partner, 0, len(s.partners))
	for _, p := range s.partners {
		if opts.Status != nil && p.Status != *opts.Status {
			continue
		}
		if opts.Category != nil && p.Category != *opts.Category {
			continue
		}
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ──────────────────────────────────────────────────
// credential.Store
// ──────────────────────────────────────────────────

// CreateCredential persists a new credential. At most one active credential
// per (partner, purpose) pair.
func (s *Store) CreateCredential(_ context.Context, c *credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Active {
		for _, existing := range s.credentials {
			if existing.Active &&
				existing.PartnerID.String() == c.PartnerID.String() &&
				existing.Purpose == c.Purpose {
				return gateway.ErrCredentialConflict
			}
		}
	}

	s.credentials[c.ID.String()] = c
	return nil
}

// GetActiveCredential returns the active credential for a (partner, purpose) pair.
func (s *Store) GetActiveCredential(_ context.Context, partnerID id.ID, purpose credential.Purpose) (*credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.credentials {
		if c.Active && c.PartnerID.String() == partnerID.String() && c.Purpose == purpose {
			return c, nil
		}
	}
	return nil, gateway.ErrUnauthorized
}

// GetCredential returns a credential by ID.
func (s *Store) GetCredential(_ context.Context, credID id.ID) (*credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[credID.String()]
	if !ok {
		return nil, gateway.ErrUnauthorized
	}
	return c, nil
}

// TouchCredential stamps the last-used timestamp.
func (s *Store) TouchCredential(_ context.Context, credID id.ID, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[credID.String()]
	if !ok {
		return gateway.ErrUnauthorized
	}
	c.LastUsedAt = &usedAt
	return nil
}

// DeactivateCredential clears the active flag. The row is retained.
func (s *Store) DeactivateCredential(_ context.Context, credID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[credID.String()]
	if !ok {
		return gateway.ErrUnauthorized
	}
	c.Active = false
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ReactivateCredential restores the active flag, refusing when another
// credential already holds the (partner, purpose) slot.
func (s *Store) ReactivateCredential(_ context.Context, credID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[credID.String()]
	if !ok {
		return gateway.ErrUnauthorized
	}
	if c.Active {
		return nil
	}
	for _, other := range s.credentials {
		if other.Active &&
			other.PartnerID.String() == c.PartnerID.String() &&
			other.Purpose == c.Purpose {
			return gateway.ErrCredentialConflict
		}
	}
	c.Active = true
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ListCredentials returns all credentials for a partner, active or not.
func (s *Store) ListCredentials(_ context.Context, partnerID id.ID) ([]*credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*credential.Credential
	for _, c := range s.credentials {
		if c.PartnerID.String() == partnerID.String() {
			result = append(result, c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// catalog.Store
// ──────────────────────────────────────────────────

// RegisterType creates or updates an event type definition (upsert by name).
func (s *Store) RegisterType(_ context.Context, et *catalog.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.eventTypes[et.Definition.Name]; ok {
		existing.Definition = et.Definition
		existing.UpdatedAt = time.Now().UTC()
		existing.Metadata = et.Metadata
		et.ID = existing.ID
		return nil
	}

	s.eventTypes[et.Definition.Name] = et
	s.eventTypesByID[et.ID.String()] = et
	return nil
}

// GetType returns an event type by name.
func (s *Store) GetType(_ context.Context, name string) (*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return nil, gateway.ErrEventTypeNotFound
	}
	return et, nil
}

// GetTypeByID returns an event type by its TypeID.
func (s *Store) GetTypeByID(_ context.Context, etID id.ID) (*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.eventTypesByID[etID.String()]
	if !ok {
		return nil, gateway.ErrEventTypeNotFound
	}
	return et, nil
}

// ListTypes returns all registered event types, optionally filtered.
func (s *Store) ListTypes(_ context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.EventType, 0, len(s.eventTypes))
	for _, et := range s.eventTypes {
		if !opts.IncludeDeprecated && et.IsDeprecated {
			continue
		}
		if opts.Group != "" && et.Definition.Group != opts.Group {
			continue
		}
		result = append(result, et)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Definition.Name < result[j].Definition.Name
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// DeleteType soft-deletes (deprecates) an event type.
func (s *Store) DeleteType(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return gateway.ErrEventTypeNotFound
	}

	now := time.Now().UTC()
	et.IsDeprecated = true
	et.DeprecatedAt = &now
	et.UpdatedAt = now
	return nil
}

// MatchTypes returns event types matching a glob pattern.
func (s *Store) MatchTypes(_ context.Context, pattern string) ([]*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*catalog.EventType
	for _, et := range s.eventTypes {
		if et.IsDeprecated {
			continue
		}
		if catalog.Match(pattern, et.Definition.Name) {
			result = append(result, et)
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// endpoint.Store
// ──────────────────────────────────────────────────

// CreateEndpoint persists a new endpoint.
func (s *Store) CreateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endpoints[ep.ID.String()] = ep
	return nil
}

// GetEndpoint returns an endpoint by ID.
func (s *Store) GetEndpoint(_ context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return nil, gateway.ErrEndpointNotFound
	}
	return ep, nil
}

// UpdateEndpoint modifies an existing endpoint.
func (s *Store) UpdateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[ep.ID.String()]; !ok {
		return gateway.ErrEndpointNotFound
	}
	ep.UpdatedAt = time.Now().UTC()
	s.endpoints[ep.ID.String()] = ep
	return nil
}

// ListEndpoints returns endpoints for a partner, optionally filtered.
func (s *Store) ListEndpoints(_ context.Context, partnerID id.ID, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*endpoint.Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		if ep.PartnerID.String() != partnerID.String() {
			continue
		}
		if opts.Enabled != nil && ep.Enabled != *opts.Enabled {
			continue
		}
		result = append(result, ep)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// Resolve finds all enabled endpoints of a partner subscribed to an event type.
func (s *Store) Resolve(_ context.Context, partnerID id.ID, eventType string) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*endpoint.Endpoint
	for _, ep := range s.endpoints {
		if ep.PartnerID.String() != partnerID.String() || !ep.Enabled {
			continue
		}
		for _, pattern := range ep.EventTypes {
			if catalog.Match(pattern, eventType) {
				result = append(result, ep)
				break
			}
		}
	}
	return result, nil
}

// SetEnabled enables or disables an endpoint.
func (s *Store) SetEnabled(_ context.Context, epID id.ID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return gateway.ErrEndpointNotFound
	}
	ep.Enabled = enabled
	ep.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// CreateEvent persists an event. Returns ErrDuplicateIdempotencyKey on conflict.
func (s *Store) CreateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.IdempotencyKey != "" {
		if _, ok := s.eventsByIdemKey[evt.IdempotencyKey]; ok {
			return gateway.ErrDuplicateIdempotencyKey
		}
		s.eventsByIdemKey[evt.IdempotencyKey] = evt
	}

	s.events[evt.ID.String()] = evt
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[evtID.String()]
	if !ok {
		return nil, gateway.ErrEventNotFound
	}
	return evt, nil
}

// GetEventByIdempotencyKey returns the event that first claimed a key.
func (s *Store) GetEventByIdempotencyKey(_ context.Context, key string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.eventsByIdemKey[key]
	if !ok {
		return nil, gateway.ErrEventNotFound
	}
	return evt, nil
}

// ListEvents returns events, optionally filtered.
func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if !matchEventOpts(evt, opts) {
			continue
		}
		result = append(result, evt)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListEventsByPartner returns events for a specific partner.
func (s *Store) ListEventsByPartner(_ context.Context, partnerID id.ID, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if evt.PartnerID.String() != partnerID.String() {
			continue
		}
		if !matchEventOpts(evt, opts) {
			continue
		}
		result = append(result, evt)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// Enqueue creates a pending delivery. One in-flight row per (event, endpoint).
func (s *Store) Enqueue(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasInFlight(d.EventID, d.EndpointID) {
		return gateway.ErrDuplicateDelivery
	}

	s.deliveries[d.ID.String()] = d
	return nil
}

// EnqueueBatch creates multiple deliveries. Pairs with an in-flight row are skipped.
func (s *Store) EnqueueBatch(_ context.Context, ds []*delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range ds {
		if s.hasInFlight(d.EventID, d.EndpointID) {
			continue
		}
		s.deliveries[d.ID.String()] = d
	}
	return nil
}

// hasInFlight reports whether a pending or retrying row exists for the pair.
// Callers must hold the lock.
func (s *Store) hasInFlight(eventID, endpointID id.ID) bool {
	for _, existing := range s.deliveries {
		if existing.State.Terminal() {
			continue
		}
		if existing.EventID.String() == eventID.String() &&
			existing.EndpointID.String() == endpointID.String() {
			return true
		}
	}
	return false
}

// copyDelivery returns a shallow copy of the delivery.
func copyDelivery(d *delivery.Delivery) *delivery.Delivery {
	cp := *d
	return &cp
}

// claimLease bounds how long a dequeued delivery stays invisible. A claim
// whose holder never wrote an outcome (crash, missed release) is reclaimed
// by a later Dequeue once the lease runs out.
const claimLease = time.Minute

// Dequeue claims due pending and retrying deliveries (concurrent-safe).
// Returns copies so callers can mutate without holding a lock.
func (s *Store) Dequeue(_ context.Context, limit int) ([]*delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	candidates := make([]*delivery.Delivery, 0, len(s.deliveries))

	for _, d := range s.deliveries {
		if d.State != delivery.StatePending && d.State != delivery.StateRetrying {
			continue
		}
		if d.NextAttemptAt.After(now) {
			continue
		}
		if at, held := s.claims[d.ID.String()]; held && now.Sub(at) < s.claimLease {
			continue
		}
		candidates = append(candidates, d)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextAttemptAt.Before(candidates[j].NextAttemptAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	result := make([]*delivery.Delivery, 0, len(candidates))
	for _, d := range candidates {
		s.claims[d.ID.String()] = now
		result = append(result, copyDelivery(d))
	}

	return result, nil
}

// UpdateDelivery writes a delivery back and releases its claim. The write
// is refused when the stored row is already terminal or the incoming
// attempt count would move backwards: the stored row, not the caller's
// copy, is what the state machine protects.
func (s *Store) UpdateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.deliveries[d.ID.String()]
	if !ok {
		return gateway.ErrDeliveryNotFound
	}
	if cur.State.Terminal() || d.AttemptCount < cur.AttemptCount {
		return gateway.ErrInvalidTransition
	}
	d.UpdatedAt = time.Now().UTC()
	s.deliveries[d.ID.String()] = d
	delete(s.claims, d.ID.String())
	return nil
}

// GetDelivery returns a copy of the delivery by ID.
func (s *Store) GetDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return nil, gateway.ErrDeliveryNotFound
	}
	return copyDelivery(d), nil
}

// ListByEndpoint returns delivery history for an endpoint.
func (s *Store) ListByEndpoint(_ context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		if d.EndpointID.String() != epID.String() {
			continue
		}
		if opts.State != nil && d.State != *opts.State {
			continue
		}
		result = append(result, copyDelivery(d))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListByEvent returns all deliveries for a specific event.
func (s *Store) ListByEvent(_ context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		if d.EventID.String() != evtID.String() {
			continue
		}
		result = append(result, copyDelivery(d))
	}
	return result, nil
}

// CountPending returns the number of deliveries awaiting attempt.
func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, d := range s.deliveries {
		if d.State == delivery.StatePending || d.State == delivery.StateRetrying {
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// Push moves a permanently failed delivery into the DLQ.
func (s *Store) Push(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dlqEntries[entry.ID.String()] = entry
	return nil
}

// ListDLQ returns DLQ entries, optionally filtered.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(s.dlqEntries))
	for _, e := range s.dlqEntries {
		if opts.PartnerID != nil && e.PartnerID.String() != opts.PartnerID.String() {
			continue
		}
		if opts.EndpointID != nil && e.EndpointID.String() != opts.EndpointID.String() {
			continue
		}
		if opts.From != nil && e.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && e.FailedAt.After(*opts.To) {
			continue
		}
		result = append(result, e)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FailedAt.After(result[j].FailedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// GetDLQ returns a DLQ entry by ID.
func (s *Store) GetDLQ(_ context.Context, dlqID id.ID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return nil, gateway.ErrDLQNotFound
	}
	return e, nil
}

// Replay marks a DLQ entry for redelivery and re-enqueues the delivery.
func (s *Store) Replay(_ context.Context, dlqID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return gateway.ErrDLQNotFound
	}

	now := time.Now().UTC()
	e.ReplayedAt = &now
	s.replayLocked(e, now)
	return nil
}

// replayLocked re-enqueues a fresh delivery row for a DLQ entry. The retry
// budget carries over from the failed row when it still exists.
func (s *Store) replayLocked(e *dlq.Entry, now time.Time) {
	maxAttempts := 5
	if orig, ok := s.deliveries[e.DeliveryID.String()]; ok {
		maxAttempts = orig.MaxAttempts
	}

	if s.hasInFlight(e.EventID, e.EndpointID) {
		return
	}

	d := &delivery.Delivery{
		Entity:        gateway.NewEntity(),
		ID:            id.NewDeliveryID(),
		EventID:       e.EventID,
		EndpointID:    e.EndpointID,
		EventType:     e.EventType,
		State:         delivery.StatePending,
		AttemptCount:  0,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now,
	}
	s.deliveries[d.ID.String()] = d
}

// ReplayBulk replays all DLQ entries in a time window.
func (s *Store) ReplayBulk(_ context.Context, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var count int64

	for _, e := range s.dlqEntries {
		if e.FailedAt.Before(from) || e.FailedAt.After(to) {
			continue
		}
		if e.ReplayedAt != nil {
			continue
		}

		e.ReplayedAt = &now
		s.replayLocked(e, now)
		count++
	}
	return count, nil
}

// Purge deletes DLQ entries older than a threshold.
func (s *Store) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for k, e := range s.dlqEntries {
		if e.CreatedAt.Before(before) {
			delete(s.dlqEntries, k)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of DLQ entries.
func (s *Store) CountDLQ(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.dlqEntries)), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func matchEventOpts(evt *event.Event, opts event.ListOpts) bool {
	if opts.Type != "" && evt.Type != opts.Type {
		return false
	}
	if opts.From != nil && evt.CreatedAt.Before(*opts.From) {
		return false
	}
	if opts.To != nil && evt.CreatedAt.After(*opts.To) {
		return false
	}
	return true
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) {
		return nil
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
