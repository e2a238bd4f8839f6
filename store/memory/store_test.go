package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/xraph/gateway"
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

func ctx() context.Context { return context.Background() }

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	s := New()

	if err := s.Migrate(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, gateway.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// partner.Store
// ──────────────────────────────────────────────────

func newPartner(name string) *partner.Partner {
	return &partner.Partner{
		Entity:     entity.New(),
		ID:         id.NewPartnerID(),
		Name:       name,
		Category:   partner.CategoryPartner,
		Status:     partner.StatusActive,
		AuthMethod: partner.AuthAPIKey,
	}
}

func TestPartnerCRUD(t *testing.T) {
	s := New()

	p := newPartner("Acme Corp")

	// Create
	if err := s.CreatePartner(ctx(), p); err != nil {
		t.Fatal(err)
	}

	// Get
	got, err := s.GetPartner(ctx(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Acme Corp" {
		t.Fatalf("got name %q", got.Name)
	}

	// Get not found
	_, err = s.GetPartner(ctx(), id.NewPartnerID())
	if !errors.Is(err, gateway.ErrPartnerNotFound) {
		t.Fatalf("expected ErrPartnerNotFound, got %v", err)
	}

	// Update
	p.Status = partner.StatusSuspended
	if err := s.UpdatePartner(ctx(), p); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetPartner(ctx(), p.ID)
	if got.Status != partner.StatusSuspended {
		t.Fatalf("expected suspended, got %s", got.Status)
	}

	// Update not found
	if err := s.UpdatePartner(ctx(), newPartner("Ghost")); !errors.Is(err, gateway.ErrPartnerNotFound) {
		t.Fatalf("expected ErrPartnerNotFound, got %v", err)
	}
}

func TestPartnerListFilters(t *testing.T) {
	s := New()

	active := newPartner("Active Inc")
	suspended := newPartner("Suspended Ltd")
	suspended.Status = partner.StatusSuspended
	vendor := newPartner("Vendor Co")
	vendor.Category = partner.CategoryVendor

	for _, p := range []*partner.Partner{active, suspended, vendor} {
		_ = s.CreatePartner(ctx(), p)
	}

	status := partner.StatusActive
	list, _ := s.ListPartners(ctx(), partner.ListOpts{Status: &status})
	if len(list) != 2 {
		t.Fatalf("expected 2 active, got %d", len(list))
	}

	cat := partner.CategoryVendor
	list, _ = s.ListPartners(ctx(), partner.ListOpts{Category: &cat})
	if len(list) != 1 {
		t.Fatalf("expected 1 vendor, got %d", len(list))
	}

	// Sorted by name.
	list, _ = s.ListPartners(ctx(), partner.ListOpts{})
	if list[0].Name != "Active Inc" {
		t.Fatalf("expected name sort, got %q first", list[0].Name)
	}
}

// ──────────────────────────────────────────────────
// credential.Store
// ──────────────────────────────────────────────────

func newCredential(partnerID id.ID, purpose credential.Purpose) *credential.Credential {
	return &credential.Credential{
		Entity:     entity.New(),
		ID:         id.NewCredentialID(),
		PartnerID:  partnerID,
		Purpose:    purpose,
		SecretHash: "hash",
		Active:     true,
	}
}

func TestCredentialCRUD(t *testing.T) {
	s := New()
	partnerID := id.NewPartnerID()

	c := newCredential(partnerID, credential.PurposeAPI)

	// Create
	if err := s.CreateCredential(ctx(), c); err != nil {
		t.Fatal(err)
	}

	// Get active
	got, err := s.GetActiveCredential(ctx(), partnerID, credential.PurposeAPI)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != c.ID {
		t.Fatal("wrong credential returned")
	}

	// Get by ID
	got, err = s.GetCredential(ctx(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != c.ID {
		t.Fatal("wrong credential returned")
	}

	// Touch
	usedAt := time.Now().UTC()
	if err := s.TouchCredential(ctx(), c.ID, usedAt); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetCredential(ctx(), c.ID)
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(usedAt) {
		t.Fatal("expected LastUsedAt to be stamped")
	}

	// Deactivate
	if err := s.DeactivateCredential(ctx(), c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetActiveCredential(ctx(), partnerID, credential.PurposeAPI); !errors.Is(err, gateway.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after deactivation, got %v", err)
	}

	// The row itself is retained.
	list, _ := s.ListCredentials(ctx(), partnerID)
	if len(list) != 1 {
		t.Fatalf("expected 1 credential, got %d", len(list))
	}
	if list[0].Active {
		t.Fatal("expected inactive")
	}
}

func TestCredentialOneActivePerPurpose(t *testing.T) {
	s := New()
	partnerID := id.NewPartnerID()

	if err := s.CreateCredential(ctx(), newCredential(partnerID, credential.PurposeAPI)); err != nil {
		t.Fatal(err)
	}

	// Second active credential for the same (partner, purpose) conflicts.
	err := s.CreateCredential(ctx(), newCredential(partnerID, credential.PurposeAPI))
	if !errors.Is(err, gateway.ErrCredentialConflict) {
		t.Fatalf("expected ErrCredentialConflict, got %v", err)
	}

	// Different purpose is fine.
	if err := s.CreateCredential(ctx(), newCredential(partnerID, credential.Purpose("reporting"))); err != nil {
		t.Fatal(err)
	}

	// Inactive duplicate is fine.
	inactive := newCredential(partnerID, credential.PurposeAPI)
	inactive.Active = false
	if err := s.CreateCredential(ctx(), inactive); err != nil {
		t.Fatal(err)
	}
}

func TestCredentialReactivate(t *testing.T) {
	s := New()
	partnerID := id.NewPartnerID()

	c := newCredential(partnerID, credential.PurposeAPI)
	if err := s.CreateCredential(ctx(), c); err != nil {
		t.Fatal(err)
	}
	if err := s.DeactivateCredential(ctx(), c.ID); err != nil {
		t.Fatal(err)
	}

	if err := s.ReactivateCredential(ctx(), c.ID); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetActiveCredential(ctx(), partnerID, credential.PurposeAPI)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != c.ID {
		t.Fatal("wrong credential active after reactivation")
	}

	// Reactivation refuses to create a second active pair.
	if err := s.DeactivateCredential(ctx(), c.ID); err != nil {
		t.Fatal(err)
	}
	replacement := newCredential(partnerID, credential.PurposeAPI)
	if err := s.CreateCredential(ctx(), replacement); err != nil {
		t.Fatal(err)
	}
	if err := s.ReactivateCredential(ctx(), c.ID); !errors.Is(err, gateway.ErrCredentialConflict) {
		t.Fatalf("expected ErrCredentialConflict, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// catalog.Store
// ──────────────────────────────────────────────────

func TestCatalogCRUD(t *testing.T) {
	s := New()

	et := &catalog.EventType{
		Entity: entity.New(),
		ID:     id.NewEventTypeID(),
		Definition: catalog.Definition{
			Name:        "invoice.created",
			Description: "Invoice was created",
			Group:       "invoice",
		},
	}

	// Register
	if err := s.RegisterType(ctx(), et); err != nil {
		t.Fatal(err)
	}

	// Get by name
	got, err := s.GetType(ctx(), "invoice.created")
	if err != nil {
		t.Fatal(err)
	}
	if got.Definition.Name != "invoice.created" {
		t.Fatalf("got name %q", got.Definition.Name)
	}

	// Get by ID
	got, err = s.GetTypeByID(ctx(), et.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Definition.Name != "invoice.created" {
		t.Fatalf("got name %q", got.Definition.Name)
	}

	// Get not found
	_, err = s.GetType(ctx(), "does.not.exist")
	if !errors.Is(err, gateway.ErrEventTypeNotFound) {
		t.Fatalf("expected ErrEventTypeNotFound, got %v", err)
	}

	// List
	list, err := s.ListTypes(ctx(), catalog.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 type, got %d", len(list))
	}

	// Upsert (re-register same name)
	et2 := &catalog.EventType{
		Entity: entity.New(),
		ID:     id.NewEventTypeID(),
		Definition: catalog.Definition{
			Name:        "invoice.created",
			Description: "Updated description",
			Group:       "invoice",
		},
	}
	if err := s.RegisterType(ctx(), et2); err != nil {
		t.Fatal(err)
	}

	got, _ = s.GetType(ctx(), "invoice.created")
	if got.Definition.Description != "Updated description" {
		t.Fatalf("expected updated description, got %q", got.Definition.Description)
	}
	// ID should be preserved from original registration.
	if et2.ID != et.ID {
		t.Fatal("expected ID to be preserved on upsert")
	}

	// Delete (soft-delete)
	if err := s.DeleteType(ctx(), "invoice.created"); err != nil {
		t.Fatal(err)
	}

	// Listed without IncludeDeprecated → empty
	list, _ = s.ListTypes(ctx(), catalog.ListOpts{})
	if len(list) != 0 {
		t.Fatalf("expected 0 types after delete, got %d", len(list))
	}

	// Listed with IncludeDeprecated → 1
	list, _ = s.ListTypes(ctx(), catalog.ListOpts{IncludeDeprecated: true})
	if len(list) != 1 {
		t.Fatalf("expected 1 type with IncludeDeprecated, got %d", len(list))
	}

	// Delete not found
	if err := s.DeleteType(ctx(), "does.not.exist"); !errors.Is(err, gateway.ErrEventTypeNotFound) {
		t.Fatalf("expected ErrEventTypeNotFound, got %v", err)
	}
}

func TestCatalogListWithGroupFilter(t *testing.T) {
	s := New()

	for _, name := range []string{"invoice.created", "invoice.paid", "user.created"} {
		group := "invoice"
		if name == "user.created" {
			group = "user"
		}
		et := &catalog.EventType{
			Entity: entity.New(),
			ID:     id.NewEventTypeID(),
			Definition: catalog.Definition{
				Name:  name,
				Group: group,
			},
		}
		if err := s.RegisterType(ctx(), et); err != nil {
			t.Fatal(err)
		}
	}

	list, _ := s.ListTypes(ctx(), catalog.ListOpts{Group: "invoice"})
	if len(list) != 2 {
		t.Fatalf("expected 2 invoice types, got %d", len(list))
	}
}

func TestCatalogListPagination(t *testing.T) {
	s := New()

	for _, name := range []string{"a.type", "b.type", "c.type", "d.type"} {
		et := &catalog.EventType{
			Entity:     entity.New(),
			ID:         id.NewEventTypeID(),
			Definition: catalog.Definition{Name: name},
		}
		if err := s.RegisterType(ctx(), et); err != nil {
			t.Fatal(err)
		}
	}

	list, _ := s.ListTypes(ctx(), catalog.ListOpts{Offset: 1, Limit: 2})
	if len(list) != 2 {
		t.Fatalf("expected 2, got %d", len(list))
	}
	if list[0].Definition.Name != "b.type" || list[1].Definition.Name != "c.type" {
		t.Fatalf("unexpected pagination results: %q, %q", list[0].Definition.Name, list[1].Definition.Name)
	}
}

func TestCatalogMatchTypes(t *testing.T) {
	s := New()

	for _, name := range []string{"invoice.created", "invoice.paid", "user.created"} {
		et := &catalog.EventType{
			Entity:     entity.New(),
			ID:         id.NewEventTypeID(),
			Definition: catalog.Definition{Name: name},
		}
		_ = s.RegisterType(ctx(), et)
	}

	result, _ := s.MatchTypes(ctx(), "invoice.*")
	if len(result) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(result))
	}

	result, _ = s.MatchTypes(ctx(), "*")
	if len(result) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(result))
	}
}

// ──────────────────────────────────────────────────
// endpoint.Store
// ──────────────────────────────────────────────────

func newTestEndpoint(partnerID id.ID, eventTypes []string) *endpoint.Endpoint {
	return &endpoint.Endpoint{
		Entity:     entity.New(),
		ID:         id.NewEndpointID(),
		PartnerID:  partnerID,
		URL:        "https://example.com/webhook",
		Secret:     "whsec_test",
		EventTypes: eventTypes,
		Enabled:    true,
	}
}

func TestEndpointCRUD(t *testing.T) {
	s := New()
	partnerID := id.NewPartnerID()

	ep := newTestEndpoint(partnerID, []string{"invoice.*"})

	// Create
	if err := s.CreateEndpoint(ctx(), ep); err != nil {
		t.Fatal(err)
	}

	// Get
	got, err := s.GetEndpoint(ctx(), ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PartnerID != partnerID {
		t.Fatalf("got partner %v", got.PartnerID)
	}

	// Get not found
	_, err = s.GetEndpoint(ctx(), id.NewEndpointID())
	if !errors.Is(err, gateway.ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}

	// Update
	ep.Description = "Updated"
	if err := s.UpdateEndpoint(ctx(), ep); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetEndpoint(ctx(), ep.ID)
	if got.Description != "Updated" {
		t.Fatal("expected updated description")
	}

	// Update not found
	fake := newTestEndpoint(partnerID, nil)
	if err := s.UpdateEndpoint(ctx(), fake); !errors.Is(err, gateway.ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}

	// List
	list, err := s.ListEndpoints(ctx(), partnerID, endpoint.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1, got %d", len(list))
	}
}

func TestEndpointSetEnabled(t *testing.T) {
	s := New()

	ep := newTestEndpoint(id.NewPartnerID(), []string{"*"})
	_ = s.CreateEndpoint(ctx(), ep)

	if err := s.SetEnabled(ctx(), ep.ID, false); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetEndpoint(ctx(), ep.ID)
	if got.Enabled {
		t.Fatal("expected disabled")
	}

	if err := s.SetEnabled(ctx(), id.NewEndpointID(), true); !errors.Is(err, gateway.ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}
}

func TestEndpointResolve(t *testing.T) {
	s := New()
	p1 := id.NewPartnerID()
	p2 := id.NewPartnerID()

	ep1 := newTestEndpoint(p1, []string{"invoice.*"})
	ep2 := newTestEndpoint(p1, []string{"user.*"})
	ep3 := newTestEndpoint(p1, []string{"*"})
	epDisabled := newTestEndpoint(p1, []string{"*"})
	epDisabled.Enabled = false
	epOtherPartner := newTestEndpoint(p2, []string{"*"})

	for _, ep := range []*endpoint.Endpoint{ep1, ep2, ep3, epDisabled, epOtherPartner} {
		_ = s.CreateEndpoint(ctx(), ep)
	}

	// invoice.created → ep1 + ep3 (not ep2, not disabled, not other partner)
	result, err := s.Resolve(ctx(), p1, "invoice.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 resolved, got %d", len(result))
	}
}

func TestEndpointListFilters(t *testing.T) {
	s := New()
	partnerID := id.NewPartnerID()

	ep1 := newTestEndpoint(partnerID, []string{"*"})
	ep2 := newTestEndpoint(partnerID, []string{"*"})
	ep2.Enabled = false
	_ = s.CreateEndpoint(ctx(), ep1)
	_ = s.CreateEndpoint(ctx(), ep2)

	enabled := true
	list, _ := s.ListEndpoints(ctx(), partnerID, endpoint.ListOpts{Enabled: &enabled})
	if len(list) != 1 {
		t.Fatalf("expected 1 enabled, got %d", len(list))
	}
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

func newTestEvent(partnerID id.ID, eventType string) *event.Event {
	return &event.Event{
		Entity:    entity.New(),
		ID:        id.NewEventID(),
		Type:      eventType,
		PartnerID: partnerID,
		Data:      json.RawMessage(`{"key":"value"}`),
	}
}

func TestEventCRUD(t *testing.T) {
	s := New()

	evt := newTestEvent(id.NewPartnerID(), "invoice.created")

	// Create
	if err := s.CreateEvent(ctx(), evt); err != nil {
		t.Fatal(err)
	}

	// Get
	got, err := s.GetEvent(ctx(), evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != "invoice.created" {
		t.Fatalf("got type %q", got.Type)
	}

	// Get not found
	_, err = s.GetEvent(ctx(), id.NewEventID())
	if !errors.Is(err, gateway.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestEventIdempotencyKey(t *testing.T) {
	s := New()
	partnerID := id.NewPartnerID()

	evt := newTestEvent(partnerID, "invoice.created")
	evt.IdempotencyKey = "unique-key-1"

	if err := s.CreateEvent(ctx(), evt); err != nil {
		t.Fatal(err)
	}

	// Duplicate idempotency key
	evt2 := newTestEvent(partnerID, "invoice.created")
	evt2.IdempotencyKey = "unique-key-1"
	if err := s.CreateEvent(ctx(), evt2); !errors.Is(err, gateway.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}

	// Empty idempotency key is fine
	evt3 := newTestEvent(partnerID, "invoice.created")
	if err := s.CreateEvent(ctx(), evt3); err != nil {
		t.Fatal(err)
	}
}

func TestEventListFilters(t *testing.T) {
	s := New()
	partnerID := id.NewPartnerID()

	for _, typ := range []string{"invoice.created", "invoice.paid", "user.created"} {
		_ = s.CreateEvent(ctx(), newTestEvent(partnerID, typ))
	}

	// Filter by type
	list, _ := s.ListEvents(ctx(), event.ListOpts{Type: "invoice.created"})
	if len(list) != 1 {
		t.Fatalf("expected 1, got %d", len(list))
	}

	// All
	list, _ = s.ListEvents(ctx(), event.ListOpts{})
	if len(list) != 3 {
		t.Fatalf("expected 3, got %d", len(list))
	}
}

func TestEventListByPartner(t *testing.T) {
	s := New()
	p1 := id.NewPartnerID()
	p2 := id.NewPartnerID()

	_ = s.CreateEvent(ctx(), newTestEvent(p1, "a"))
	_ = s.CreateEvent(ctx(), newTestEvent(p1, "b"))
	_ = s.CreateEvent(ctx(), newTestEvent(p2, "c"))

	list, _ := s.ListEventsByPartner(ctx(), p1, event.ListOpts{})
	if len(list) != 2 {
		t.Fatalf("expected 2, got %d", len(list))
	}
}

func TestEventListTimeFilter(t *testing.T) {
	s := New()

	_ = s.CreateEvent(ctx(), newTestEvent(id.NewPartnerID(), "a"))

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	list, _ := s.ListEvents(ctx(), event.ListOpts{From: &past, To: &future})
	if len(list) != 1 {
		t.Fatalf("expected 1, got %d", len(list))
	}

	list, _ = s.ListEvents(ctx(), event.ListOpts{From: &future})
	if len(list) != 0 {
		t.Fatalf("expected 0, got %d", len(list))
	}
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

func newTestDelivery(evtID, epID id.ID) *delivery.Delivery {
	return &delivery.Delivery{
		Entity:        entity.New(),
		ID:            id.NewDeliveryID(),
		EventID:       evtID,
		EndpointID:    epID,
		EventType:     "test.event",
		State:         delivery.StatePending,
		AttemptCount:  0,
		MaxAttempts:   5,
		NextAttemptAt: time.Now().Add(-time.Second), // ready for dequeue
	}
}

func TestDeliveryCRUD(t *testing.T) {
	s := New()

	d := newTestDelivery(id.NewEventID(), id.NewEndpointID())

	// Enqueue
	if err := s.Enqueue(ctx(), d); err != nil {
		t.Fatal(err)
	}

	// Get
	got, err := s.GetDelivery(ctx(), d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != delivery.StatePending {
		t.Fatalf("expected pending, got %s", got.State)
	}

	// Update
	d.State = delivery.StateDelivered
	if err := s.UpdateDelivery(ctx(), d); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetDelivery(ctx(), d.ID)
	if got.State != delivery.StateDelivered {
		t.Fatalf("expected delivered, got %s", got.State)
	}

	// Get not found
	_, err = s.GetDelivery(ctx(), id.NewDeliveryID())
	if !errors.Is(err, gateway.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestDeliveryInFlightGuard(t *testing.T) {
	s := New()

	evtID := id.NewEventID()
	epID := id.NewEndpointID()

	if err := s.Enqueue(ctx(), newTestDelivery(evtID, epID)); err != nil {
		t.Fatal(err)
	}

	// Second row for the same (event, endpoint) pair is rejected while the
	// first is still in flight.
	err := s.Enqueue(ctx(), newTestDelivery(evtID, epID))
	if !errors.Is(err, gateway.ErrDuplicateDelivery) {
		t.Fatalf("expected ErrDuplicateDelivery, got %v", err)
	}

	// Batch enqueue silently skips the conflicting pair.
	dup := newTestDelivery(evtID, epID)
	fresh := newTestDelivery(evtID, id.NewEndpointID())
	if err := s.EnqueueBatch(ctx(), []*delivery.Delivery{dup, fresh}); err != nil {
		t.Fatal(err)
	}
	count, _ := s.CountPending(ctx())
	if count != 2 {
		t.Fatalf("expected 2 pending, got %d", count)
	}

	// Once the first row is terminal, re-enqueueing the pair is allowed.
	batch, _ := s.Dequeue(ctx(), 10)
	for _, d := range batch {
		if d.EndpointID == epID {
			d.State = delivery.StateFailed
			_ = s.UpdateDelivery(ctx(), d)
		}
	}
	if err := s.Enqueue(ctx(), newTestDelivery(evtID, epID)); err != nil {
		t.Fatalf("expected re-enqueue after terminal state, got %v", err)
	}
}

func TestDeliveryEnqueueBatch(t *testing.T) {
	s := New()

	evtID := id.NewEventID()
	ds := []*delivery.Delivery{
		newTestDelivery(evtID, id.NewEndpointID()),
		newTestDelivery(evtID, id.NewEndpointID()),
		newTestDelivery(evtID, id.NewEndpointID()),
	}

	if err := s.EnqueueBatch(ctx(), ds); err != nil {
		t.Fatal(err)
	}

	count, _ := s.CountPending(ctx())
	if count != 3 {
		t.Fatalf("expected 3 pending, got %d", count)
	}
}

func TestDeliveryDequeue(t *testing.T) {
	s := New()

	evtID := id.NewEventID()
	for i := 0; i < 5; i++ {
		_ = s.Enqueue(ctx(), newTestDelivery(evtID, id.NewEndpointID()))
	}

	// Dequeue with limit
	batch, err := s.Dequeue(ctx(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3, got %d", len(batch))
	}

	// Second dequeue should get remaining 2 (first 3 are claimed)
	batch2, _ := s.Dequeue(ctx(), 10)
	if len(batch2) != 2 {
		t.Fatalf("expected 2, got %d", len(batch2))
	}

	// Third dequeue should get 0 (all claimed)
	batch3, _ := s.Dequeue(ctx(), 10)
	if len(batch3) != 0 {
		t.Fatalf("expected 0, got %d", len(batch3))
	}

	// Update (release claim) on first batch item, then dequeue again
	batch[0].State = delivery.StateDelivered
	_ = s.UpdateDelivery(ctx(), batch[0])

	batch4, _ := s.Dequeue(ctx(), 10)
	// The delivered item shouldn't be dequeued (terminal state)
	if len(batch4) != 0 {
		t.Fatalf("expected 0 (delivered items not dequeued), got %d", len(batch4))
	}
}

func TestDeliveryDequeueClaimsRetrying(t *testing.T) {
	s := New()

	d := newTestDelivery(id.NewEventID(), id.NewEndpointID())
	d.State = delivery.StateRetrying
	d.AttemptCount = 1
	_ = s.Enqueue(ctx(), d)

	batch, _ := s.Dequeue(ctx(), 10)
	if len(batch) != 1 {
		t.Fatalf("expected retrying row to be claimed, got %d", len(batch))
	}
	if batch[0].State != delivery.StateRetrying {
		t.Fatalf("expected retrying, got %s", batch[0].State)
	}
}

func TestDeliveryDequeueClaimExpires(t *testing.T) {
	s := New()
	s.claimLease = 20 * time.Millisecond

	d := newTestDelivery(id.NewEventID(), id.NewEndpointID())
	_ = s.Enqueue(ctx(), d)

	batch, _ := s.Dequeue(ctx(), 10)
	if len(batch) != 1 {
		t.Fatalf("expected 1, got %d", len(batch))
	}

	// The claim holds until the lease runs out, then the row is
	// claimable again even though no outcome was ever written.
	batch, _ = s.Dequeue(ctx(), 10)
	if len(batch) != 0 {
		t.Fatalf("expected claimed row to be skipped, got %d", len(batch))
	}

	time.Sleep(30 * time.Millisecond)
	batch, _ = s.Dequeue(ctx(), 10)
	if len(batch) != 1 {
		t.Fatalf("expected expired claim to be reclaimed, got %d", len(batch))
	}
	if batch[0].ID != d.ID {
		t.Fatal("wrong delivery reclaimed")
	}
}

func TestDeliveryUpdateGuardsStoredRow(t *testing.T) {
	s := New()

	d := newTestDelivery(id.NewEventID(), id.NewEndpointID())
	_ = s.Enqueue(ctx(), d)

	stale, _ := s.GetDelivery(ctx(), d.ID)

	// Terminal write lands.
	done, _ := s.GetDelivery(ctx(), d.ID)
	done.State = delivery.StateFailed
	done.FailReason = delivery.ReasonAbandoned
	if err := s.UpdateDelivery(ctx(), done); err != nil {
		t.Fatal(err)
	}

	// A write against the now-terminal stored row is refused, whatever the
	// caller's copy says.
	stale.State = delivery.StateDelivered
	stale.AttemptCount = 1
	if err := s.UpdateDelivery(ctx(), stale); !errors.Is(err, gateway.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	got, _ := s.GetDelivery(ctx(), d.ID)
	if got.State != delivery.StateFailed || got.FailReason != delivery.ReasonAbandoned {
		t.Fatalf("terminal row mutated: %s/%s", got.State, got.FailReason)
	}
}

func TestDeliveryUpdateRejectsAttemptCountRegression(t *testing.T) {
	s := New()

	d := newTestDelivery(id.NewEventID(), id.NewEndpointID())
	_ = s.Enqueue(ctx(), d)

	ahead, _ := s.GetDelivery(ctx(), d.ID)
	ahead.State = delivery.StateRetrying
	ahead.AttemptCount = 2
	if err := s.UpdateDelivery(ctx(), ahead); err != nil {
		t.Fatal(err)
	}

	behind, _ := s.GetDelivery(ctx(), d.ID)
	behind.AttemptCount = 1
	if err := s.UpdateDelivery(ctx(), behind); !errors.Is(err, gateway.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestDeliveryDequeueRespectsNextAttemptAt(t *testing.T) {
	s := New()

	d := newTestDelivery(id.NewEventID(), id.NewEndpointID())
	d.NextAttemptAt = time.Now().Add(time.Hour) // future
	_ = s.Enqueue(ctx(), d)

	batch, _ := s.Dequeue(ctx(), 10)
	if len(batch) != 0 {
		t.Fatalf("expected 0 (not ready), got %d", len(batch))
	}
}

func TestDeliveryListByEndpoint(t *testing.T) {
	s := New()

	epID := id.NewEndpointID()

	d1 := newTestDelivery(id.NewEventID(), epID)
	d2 := newTestDelivery(id.NewEventID(), epID)
	d3 := newTestDelivery(id.NewEventID(), id.NewEndpointID()) // different endpoint

	_ = s.Enqueue(ctx(), d1)
	_ = s.Enqueue(ctx(), d2)
	_ = s.Enqueue(ctx(), d3)

	list, _ := s.ListByEndpoint(ctx(), epID, delivery.ListOpts{})
	if len(list) != 2 {
		t.Fatalf("expected 2, got %d", len(list))
	}

	// Filter by state
	state := delivery.StateDelivered
	list, _ = s.ListByEndpoint(ctx(), epID, delivery.ListOpts{State: &state})
	if len(list) != 0 {
		t.Fatalf("expected 0 delivered, got %d", len(list))
	}
}

func TestDeliveryListByEvent(t *testing.T) {
	s := New()

	evtID := id.NewEventID()
	d1 := newTestDelivery(evtID, id.NewEndpointID())
	d2 := newTestDelivery(evtID, id.NewEndpointID())
	d3 := newTestDelivery(id.NewEventID(), id.NewEndpointID()) // different event

	_ = s.Enqueue(ctx(), d1)
	_ = s.Enqueue(ctx(), d2)
	_ = s.Enqueue(ctx(), d3)

	list, _ := s.ListByEvent(ctx(), evtID)
	if len(list) != 2 {
		t.Fatalf("expected 2, got %d", len(list))
	}
}

func TestDeliveryCountPending(t *testing.T) {
	s := New()

	d1 := newTestDelivery(id.NewEventID(), id.NewEndpointID())
	d2 := newTestDelivery(id.NewEventID(), id.NewEndpointID())
	_ = s.Enqueue(ctx(), d1)
	_ = s.Enqueue(ctx(), d2)

	// Mark one as delivered
	d1.State = delivery.StateDelivered
	_ = s.UpdateDelivery(ctx(), d1)

	count, _ := s.CountPending(ctx())
	if count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

func newDLQEntry(partnerID, evtID, epID id.ID) *dlq.Entry {
	return &dlq.Entry{
		Entity:         entity.New(),
		ID:             id.NewDLQID(),
		DeliveryID:     id.NewDeliveryID(),
		EventID:        evtID,
		EndpointID:     epID,
		PartnerID:      partnerID,
		Reason:         delivery.ReasonExhausted,
		Payload:        []byte(`{"test":true}`),
		Error:          "connection refused",
		LastStatusCode: 500,
		FailedAt:       time.Now().UTC(),
	}
}

func TestDLQCRUD(t *testing.T) {
	s := New()

	entry := newDLQEntry(id.NewPartnerID(), id.NewEventID(), id.NewEndpointID())

	// Push
	if err := s.Push(ctx(), entry); err != nil {
		t.Fatal(err)
	}

	// Get
	got, err := s.GetDLQ(ctx(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Error != "connection refused" {
		t.Fatalf("got error %q", got.Error)
	}

	// Get not found
	_, err = s.GetDLQ(ctx(), id.NewDLQID())
	if !errors.Is(err, gateway.ErrDLQNotFound) {
		t.Fatalf("expected ErrDLQNotFound, got %v", err)
	}

	// Count
	count, _ := s.CountDLQ(ctx())
	if count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
}

func TestDLQList(t *testing.T) {
	s := New()
	partnerID := id.NewPartnerID()
	epID := id.NewEndpointID()

	_ = s.Push(ctx(), newDLQEntry(partnerID, id.NewEventID(), epID))
	_ = s.Push(ctx(), newDLQEntry(partnerID, id.NewEventID(), id.NewEndpointID()))
	_ = s.Push(ctx(), newDLQEntry(id.NewPartnerID(), id.NewEventID(), id.NewEndpointID()))

	// Filter by partner
	list, _ := s.ListDLQ(ctx(), dlq.ListOpts{PartnerID: &partnerID})
	if len(list) != 2 {
		t.Fatalf("expected 2, got %d", len(list))
	}

	// Filter by endpoint
	list, _ = s.ListDLQ(ctx(), dlq.ListOpts{EndpointID: &epID})
	if len(list) != 1 {
		t.Fatalf("expected 1, got %d", len(list))
	}
}

func TestDLQReplay(t *testing.T) {
	s := New()

	entry := newDLQEntry(id.NewPartnerID(), id.NewEventID(), id.NewEndpointID())
	_ = s.Push(ctx(), entry)

	// Before replay, 0 pending deliveries
	count, _ := s.CountPending(ctx())
	if count != 0 {
		t.Fatalf("expected 0 pending, got %d", count)
	}

	// Replay
	if err := s.Replay(ctx(), entry.ID); err != nil {
		t.Fatal(err)
	}

	// After replay, 1 pending delivery
	count, _ = s.CountPending(ctx())
	if count != 1 {
		t.Fatalf("expected 1 pending, got %d", count)
	}

	// Entry should have ReplayedAt set
	got, _ := s.GetDLQ(ctx(), entry.ID)
	if got.ReplayedAt == nil {
		t.Fatal("expected ReplayedAt to be set")
	}

	// Replay not found
	if err := s.Replay(ctx(), id.NewDLQID()); !errors.Is(err, gateway.ErrDLQNotFound) {
		t.Fatalf("expected ErrDLQNotFound, got %v", err)
	}
}

func TestDLQReplaySkipsInFlightPair(t *testing.T) {
	s := New()

	evtID := id.NewEventID()
	epID := id.NewEndpointID()

	// An in-flight row already exists for the pair.
	_ = s.Enqueue(ctx(), newTestDelivery(evtID, epID))

	entry := newDLQEntry(id.NewPartnerID(), evtID, epID)
	_ = s.Push(ctx(), entry)

	if err := s.Replay(ctx(), entry.ID); err != nil {
		t.Fatal(err)
	}

	// No second row was queued.
	count, _ := s.CountPending(ctx())
	if count != 1 {
		t.Fatalf("expected 1 pending, got %d", count)
	}
}

func TestDLQReplayBulk(t *testing.T) {
	s := New()

	_ = s.Push(ctx(), newDLQEntry(id.NewPartnerID(), id.NewEventID(), id.NewEndpointID()))
	_ = s.Push(ctx(), newDLQEntry(id.NewPartnerID(), id.NewEventID(), id.NewEndpointID()))

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)

	count, err := s.ReplayBulk(ctx(), from, to)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}

	// Replaying again should return 0 (already replayed)
	count, _ = s.ReplayBulk(ctx(), from, to)
	if count != 0 {
		t.Fatalf("expected 0 on second replay, got %d", count)
	}
}

func TestDLQPurge(t *testing.T) {
	s := New()

	_ = s.Push(ctx(), newDLQEntry(id.NewPartnerID(), id.NewEventID(), id.NewEndpointID()))
	_ = s.Push(ctx(), newDLQEntry(id.NewPartnerID(), id.NewEventID(), id.NewEndpointID()))

	// Purge entries created before "far future" → all
	count, _ := s.Purge(ctx(), time.Now().Add(time.Hour))
	if count != 2 {
		t.Fatalf("expected 2 purged, got %d", count)
	}

	remaining, _ := s.CountDLQ(ctx())
	if remaining != 0 {
		t.Fatalf("expected 0, got %d", remaining)
	}
}
