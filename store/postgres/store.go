// Package postgres provides a PostgreSQL-backed store for the gateway,
// built on the Grove ORM with orchestrated migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	gateway "github.com/xraph/gateway"
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

// compile-time interface check
var _ gwstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("gateway/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("gateway/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Partner Store ====================

func (s *Store) CreatePartner(ctx context.Context, p *partner.Partner) error {
	m := toPartnerModel(p)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetPartner(ctx context.Context, partnerID id.ID) (*partner.Partner, error) {
	m := new(partnerModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", partnerID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, gateway.ErrPartnerNotFound
		}
		return nil, err
	}
	return fromPartnerModel(m)
}

func (s *Store) UpdatePartner(ctx context.Context, p *partner.Partner) error {
	m := toPartnerModel(p)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pg.NewUpdate(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return gateway.ErrPartnerNotFound
	}
	return nil
}

func (s *Store) ListPartners(ctx context.Context, opts partner.ListOpts) ([]*partner.Partner, error) {
	var models []partnerModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Status != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(*opts.Status))
	}
	if opts.Category != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("category = $%d", argIdx), string(*opts.Category))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*partner.Partner, len(models))
	for i := range models {
		p, err := fromPartnerModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Credential Store ====================

func (s *Store) CreateCredential(ctx context.Context, c *credential.Credential) error {
	m := toCredentialModel(c)

	if c.Active {
		// The partial unique index allows one active credential per
		// (partner, purpose). ON CONFLICT DO NOTHING surfaces the
		// collision as zero affected rows.
		res, err := s.pg.NewInsert(m).
			OnConflict("(partner_id, purpose) WHERE active DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return gateway.ErrCredentialConflict
		}
		return nil
	}

	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetActiveCredential(ctx context.Context, partnerID id.ID, purpose credential.Purpose) (*credential.Credential, error) {
	m := new(credentialModel)
	err := s.pg.NewSelect(m).
		Where("partner_id = $1", partnerID.String()).
		Where("purpose = $2", string(purpose)).
		Where("active = true").
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, gateway.ErrUnauthorized
		}
		return nil, err
	}
	return fromCredentialModel(m)
}

func (s *Store) GetCredential(ctx context.Context, credID id.ID) (*credential.Credential, error) {
	m := new(credentialModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", credID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, gateway.ErrUnauthorized
		}
		return nil, err
	}
	return fromCredentialModel(m)
}

func (s *Store) TouchCredential(ctx context.Context, credID id.ID, usedAt time.Time) error {
	res, err := s.pg.NewUpdate((*credentialModel)(nil)).
		Set("last_used_at = $1", usedAt).
		Set("updated_at = $2", time.Now().UTC()).
		Where("id = $3", credID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return gateway.ErrUnauthorized
	}
	return nil
}

func (s *Store) DeactivateCredential(ctx context.Context, credID id.ID) error {
	res, err := s.pg.NewUpdate((*credentialModel)(nil)).
		Set("active = false").
		Set("updated_at = $1", time.Now().UTC()).
		Where("id = $2", credID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return gateway.ErrUnauthorized
	}
	return nil
}

func (s *Store) ReactivateCredential(ctx context.Context, credID id.ID) error {
	// The guarded UPDATE only flips the flag when no other credential holds
	// the active slot for the same (partner, purpose), so the partial unique
	// index never fires.
	var restored []credentialModel
	err := s.pg.NewRaw(`
		UPDATE gateway_credentials
		SET active = true, updated_at = NOW()
		WHERE id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM gateway_credentials other
		      WHERE other.partner_id = gateway_credentials.partner_id
		        AND other.purpose = gateway_credentials.purpose
		        AND other.active
		        AND other.id != $1
		  )
		RETURNING *
	`, credID.String()).Scan(ctx, &restored)
	if err != nil {
		return err
	}
	if len(restored) == 0 {
		if _, getErr := s.GetCredential(ctx, credID); getErr != nil {
			return gateway.ErrUnauthorized
		}
		return gateway.ErrCredentialConflict
	}
	return nil
}

func (s *Store) ListCredentials(ctx context.Context, partnerID id.ID) ([]*credential.Credential, error) {
	var models []credentialModel
	if err := s.pg.NewSelect(&models).
		Where("partner_id = $1", partnerID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*credential.Credential, len(models))
	for i := range models {
		c, err := fromCredentialModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ==================== Catalog Store ====================

func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	m := toEventTypeModel(et)
	_, err := s.pg.NewInsert(m).
		OnConflict("(name) DO UPDATE").
		Set("description = EXCLUDED.description").
		Set("group_name = EXCLUDED.group_name").
		Set("schema = EXCLUDED.schema").
		Set("schema_version = EXCLUDED.schema_version").
		Set("version = EXCLUDED.version").
		Set("example = EXCLUDED.example").
		Set("metadata = EXCLUDED.metadata").
		Set("is_deprecated = false").
		Set("deprecated_at = NULL").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	m := new(eventTypeModel)
	err := s.pg.NewSelect(m).
		Where("name = $1", name).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, gateway.ErrEventTypeNotFound
		}
		return nil, err
	}
	return fromEventTypeModel(m)
}

func (s *Store) GetTypeByID(ctx context.Context, etID id.ID) (*catalog.EventType, error) {
	m := new(eventTypeModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", etID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, gateway.ErrEventTypeNotFound
		}
		return nil, err
	}
	return fromEventTypeModel(m)
}

func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	var models []eventTypeModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Group != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("group_name = $%d", argIdx), opts.Group)
	}
	if !opts.IncludeDeprecated {
		q = q.Where("is_deprecated = false")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*catalog.EventType, len(models))
	for i := range models {
		et, err := fromEventTypeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = et
	}
	return result, nil
}

func (s *Store) DeleteType(ctx context.Context, name string) error {
	now := time.Now().UTC()
	res, err := s.pg.NewUpdate((*eventTypeModel)(nil)).
		Set("is_deprecated = true").
		Set("deprecated_at = $1", now).
		Set("updated_at = $2", now).
		Where("name = $3", name).
		Where("is_deprecated = false").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return gateway.ErrEventTypeNotFound
	}
	return nil
}

func (s *Store) MatchTypes(ctx context.Context, pattern string) ([]*catalog.EventType, error) {
	var models []eventTypeModel
	if err := s.pg.NewSelect(&models).
		Where("is_deprecated = false").
		Scan(ctx); err != nil {
		return nil, err
	}

	var result []*catalog.EventType
	for i := range models {
		et, err := fromEventTypeModel(&models[i])
		if err != nil {
			return nil, err
		}
		if catalog.Match(pattern, et.Definition.Name) {
			result = append(result, et)
		}
	}
	return result, nil
}

// ==================== Endpoint Store ====================

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	m := new(endpointModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", epID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, gateway.ErrEndpointNotFound
		}
		return nil, err
	}
	return fromEndpointModel(m)
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pg.NewUpdate(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return gateway.ErrEndpointNotFound
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, partnerID id.ID, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	q := s.pg.NewSelect(&models).Where("partner_id = $1", partnerID.String())
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*endpoint.Endpoint, len(models))
	for i := range models {
		ep, err := fromEndpointModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = ep
	}
	return result, nil
}

func (s *Store) Resolve(ctx context.Context, partnerID id.ID, eventType string) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	if err := s.pg.NewSelect(&models).
		Where("partner_id = $1", partnerID.String()).
		Where("enabled = true").
		Scan(ctx); err != nil {
		return nil, err
	}

	var result []*endpoint.Endpoint
	for i := range models {
		for _, pattern := range models[i].EventTypes {
			if catalog.Match(pattern, eventType) {
				ep, err := fromEndpointModel(&models[i])
				if err != nil {
					return nil, err
				}
				result = append(result, ep)
				break
			}
		}
	}
	return result, nil
}

func (s *Store) SetEnabled(ctx context.Context, epID id.ID, enabled bool) error {
	now := time.Now().UTC()
	res, err := s.pg.NewUpdate((*endpointModel)(nil)).
		Set("enabled = $1", enabled).
		Set("updated_at = $2", now).
		Where("id = $3", epID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return gateway.ErrEndpointNotFound
	}
	return nil
}

// ==================== Event Store ====================

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)

	if evt.IdempotencyKey != "" {
		// Use ON CONFLICT DO NOTHING for idempotency.
		res, err := s.pg.NewInsert(m).
			OnConflict("(idempotency_key) WHERE idempotency_key != '' DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return gateway.ErrDuplicateIdempotencyKey
		}
		return nil
	}

	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", evtID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, gateway.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) GetEventByIdempotencyKey(ctx context.Context, key string) (*event.Event, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("idempotency_key = $1", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, gateway.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("type = $%d", argIdx), opts.Type)
	}
	if opts.From != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("created_at >= $%d", argIdx), *opts.From)
	}
	if opts.To != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("created_at <= $%d", argIdx), *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}

	return result, nil
}

func (s *Store) ListEventsByPartner(ctx context.Context, partnerID id.ID, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models).Where("partner_id = $1", partnerID.String())

	argIdx := 1
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("type = $%d", argIdx), opts.Type)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}

	return result, nil
}

// ==================== Delivery Store ====================

// inFlightConflict matches the partial unique index that enforces one
// in-flight delivery per (event, endpoint) pair.
const inFlightConflict = "(event_id, endpoint_id) WHERE state IN ('pending', 'retrying', 'delivering') DO NOTHING"

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	res, err := s.pg.NewInsert(m).
		OnConflict(inFlightConflict).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return gateway.ErrDuplicateDelivery
	}
	return nil
}

func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}
	models := make([]deliveryModel, len(ds))
	for i, d := range ds {
		models[i] = *toDeliveryModel(d)
	}
	// Conflicting pairs are silently skipped.
	_, err := s.pg.NewInsert(&models).
		OnConflict(inFlightConflict).
		Exec(ctx)
	return err
}

func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	// Claims whose worker never wrote an outcome (crash, kill -9) would sit
	// in 'delivering' forever; requeue them once the lease runs out.
	var reclaimed []deliveryModel
	err := s.pg.NewRaw(`
		UPDATE gateway_deliveries
		SET state = 'retrying', updated_at = NOW()
		WHERE state = 'delivering' AND updated_at < NOW() - INTERVAL '1 minute'
		RETURNING *
	`).Scan(ctx, &reclaimed)
	if err != nil {
		return nil, err
	}

	// FOR UPDATE SKIP LOCKED lets concurrent engines claim disjoint
	// batches. The transient 'delivering' state marks claimed rows until
	// the ledger records the attempt outcome via UpdateDelivery.
	var models []deliveryModel
	err = s.pg.NewRaw(`
		UPDATE gateway_deliveries
		SET state = 'delivering', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM gateway_deliveries
			WHERE state IN ('pending', 'retrying') AND next_attempt_at <= NOW()
			ORDER BY next_attempt_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)

	// The stored row guards the state machine: the conditional write
	// refuses to touch terminal rows or move the attempt count backwards,
	// no matter how stale the caller's copy is.
	var updated []deliveryModel
	err := s.pg.NewRaw(`
		UPDATE gateway_deliveries
		SET state = $1, attempt_count = $2, max_attempts = $3,
		    next_attempt_at = $4, fail_reason = $5, last_error = $6,
		    last_status_code = $7, last_response = $8, last_latency_ms = $9,
		    completed_at = $10, updated_at = NOW()
		WHERE id = $11
		  AND state NOT IN ('delivered', 'failed')
		  AND attempt_count <= $2
		RETURNING *
	`, m.State, m.AttemptCount, m.MaxAttempts, m.NextAttemptAt, m.FailReason,
		m.LastError, m.LastStatusCode, m.LastResponse, m.LastLatencyMs,
		m.CompletedAt, m.ID).Scan(ctx, &updated)
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		if _, getErr := s.GetDelivery(ctx, d.ID); getErr != nil {
			return getErr
		}
		return gateway.ErrInvalidTransition
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", delID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, gateway.ErrDeliveryNotFound
		}
		return nil, err
	}

	return fromDeliveryModel(m)
}

func (s *Store) ListByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.pg.NewSelect(&models).Where("endpoint_id = $1", epID.String())

	if opts.State != nil {
		q = q.Where("state = $2", string(*opts.State))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}

	return result, nil
}

func (s *Store) ListByEvent(ctx context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	if err := s.pg.NewSelect(&models).
		Where("event_id = $1", evtID.String()).
		OrderExpr("created_at DESC").
		Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.pg.NewSelect((*deliveryModel)(nil)).
		Where("state IN ($1, $2)", string(delivery.StatePending), string(delivery.StateRetrying)).
		Count(ctx)
	return count, err
}

// ==================== DLQ Store ====================

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQEntryModel(entry)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []dlqEntryModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.PartnerID != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("partner_id = $%d", argIdx), opts.PartnerID.String())
	}
	if opts.EndpointID != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("endpoint_id = $%d", argIdx), opts.EndpointID.String())
	}
	if opts.From != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("failed_at >= $%d", argIdx), *opts.From)
	}
	if opts.To != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("failed_at <= $%d", argIdx), *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("failed_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*dlq.Entry, len(models))
	for i := range models {
		entry, err := fromDLQEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = entry
	}
	return result, nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	m := new(dlqEntryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", dlqID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, gateway.ErrDLQNotFound
		}
		return nil, err
	}
	return fromDLQEntryModel(m)
}

func (s *Store) Replay(ctx context.Context, dlqID id.ID) error {
	entry, err := s.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}

	if err := s.replayEntry(ctx, entry); err != nil {
		return err
	}

	_, err = s.pg.NewDelete((*dlqEntryModel)(nil)).
		Where("id = $1", dlqID.String()).
		Exec(ctx)
	return err
}

func (s *Store) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	var models []dlqEntryModel
	if err := s.pg.NewSelect(&models).
		Where("failed_at >= $1", from).
		Where("failed_at <= $2", to).
		Scan(ctx); err != nil {
		return 0, err
	}

	var count int64
	for i := range models {
		entry, err := fromDLQEntryModel(&models[i])
		if err != nil {
			return count, err
		}
		if err := s.replayEntry(ctx, entry); err != nil {
			return count, err
		}
		if _, err := s.pg.NewDelete((*dlqEntryModel)(nil)).
			Where("id = $1", models[i].ID).
			Exec(ctx); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

// replayEntry re-enqueues a fresh delivery for a dead-lettered pair. The
// attempt budget of the original row carries over when it still exists.
func (s *Store) replayEntry(ctx context.Context, entry *dlq.Entry) error {
	maxAttempts := 5
	if orig, err := s.GetDelivery(ctx, entry.DeliveryID); err == nil {
		maxAttempts = orig.MaxAttempts
	}

	now := time.Now().UTC()
	d := &delivery.Delivery{
		ID:            id.NewDeliveryID(),
		EventID:       entry.EventID,
		EndpointID:    entry.EndpointID,
		EventType:     entry.EventType,
		State:         delivery.StatePending,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now,
	}
	d.CreatedAt = now
	d.UpdatedAt = now

	if err := s.Enqueue(ctx, d); err != nil {
		// An in-flight row for the pair already exists; the replay is moot.
		if errors.Is(err, gateway.ErrDuplicateDelivery) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*dlqEntryModel)(nil)).
		Where("failed_at < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return rows, nil
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.pg.NewSelect((*dlqEntryModel)(nil)).
		Count(ctx)
	return count, err
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
