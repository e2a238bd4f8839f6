package endpoint_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/gateway"
	"github.com/xraph/gateway/endpoint"
	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/store/memory"
)

func ctx() context.Context { return context.Background() }

func newService() (*endpoint.Service, *memory.Store) {
	s := memory.New()
	return endpoint.NewService(s, nil), s
}

func TestEndpointServiceCreate(t *testing.T) {
	svc, _ := newService()

	ep, err := svc.Create(ctx(), endpoint.Input{
		PartnerID:  id.NewPartnerID(),
		URL:        "https://example.com/webhook",
		EventTypes: []string{"invoice.*"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if ep.ID.String() == "" {
		t.Fatal("expected non-empty ID")
	}
	if !strings.HasPrefix(ep.Secret, "whsec_") {
		t.Fatalf("expected auto-generated secret, got %q", ep.Secret)
	}
	if !ep.Enabled {
		t.Fatal("expected enabled by default")
	}
}

func TestEndpointServiceCreateValidation(t *testing.T) {
	svc, _ := newService()
	partnerID := id.NewPartnerID()

	// Missing URL
	_, err := svc.Create(ctx(), endpoint.Input{
		PartnerID:  partnerID,
		EventTypes: []string{"*"},
	})
	if err == nil {
		t.Fatal("expected error for missing URL")
	}

	// Missing partner ID
	_, err = svc.Create(ctx(), endpoint.Input{
		URL:        "https://example.com",
		EventTypes: []string{"*"},
	})
	if err == nil {
		t.Fatal("expected error for missing partner_id")
	}

	// Missing event types
	_, err = svc.Create(ctx(), endpoint.Input{
		PartnerID: partnerID,
		URL:       "https://example.com",
	})
	if err == nil {
		t.Fatal("expected error for missing event_types")
	}

	// Non-http scheme
	_, err = svc.Create(ctx(), endpoint.Input{
		PartnerID:  partnerID,
		URL:        "ftp://example.com/webhook",
		EventTypes: []string{"*"},
	})
	if err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}

func TestEndpointServiceGetAndUpdate(t *testing.T) {
	svc, _ := newService()
	partnerID := id.NewPartnerID()

	ep, _ := svc.Create(ctx(), endpoint.Input{
		PartnerID:  partnerID,
		URL:        "https://example.com/webhook",
		EventTypes: []string{"*"},
	})

	// Get
	got, err := svc.Get(ctx(), ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "https://example.com/webhook" {
		t.Fatalf("got URL %q", got.URL)
	}

	// Update
	updated, err := svc.Update(ctx(), ep.ID, endpoint.Input{
		Description: "Updated description",
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Description != "Updated description" {
		t.Fatalf("expected updated description, got %q", updated.Description)
	}

	// Partial update keeps the rest intact.
	if updated.URL != "https://example.com/webhook" {
		t.Fatalf("URL changed unexpectedly: %q", updated.URL)
	}
}

func TestEndpointServiceUpdateNotFound(t *testing.T) {
	svc, _ := newService()

	_, err := svc.Update(ctx(), id.NewEndpointID(), endpoint.Input{Description: "x"})
	if !errors.Is(err, gateway.ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}
}

func TestEndpointServiceList(t *testing.T) {
	svc, _ := newService()
	p1 := id.NewPartnerID()
	p2 := id.NewPartnerID()

	for i := 0; i < 3; i++ {
		_, _ = svc.Create(ctx(), endpoint.Input{
			PartnerID:  p1,
			URL:        "https://example.com/webhook",
			EventTypes: []string{"*"},
		})
	}
	_, _ = svc.Create(ctx(), endpoint.Input{
		PartnerID:  p2,
		URL:        "https://example.com/webhook",
		EventTypes: []string{"*"},
	})

	list, err := svc.List(ctx(), p1, endpoint.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3, got %d", len(list))
	}
}

func TestEndpointServiceSetEnabled(t *testing.T) {
	svc, _ := newService()

	ep, _ := svc.Create(ctx(), endpoint.Input{
		PartnerID:  id.NewPartnerID(),
		URL:        "https://example.com/webhook",
		EventTypes: []string{"*"},
	})

	if err := svc.SetEnabled(ctx(), ep.ID, false); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.Get(ctx(), ep.ID)
	if got.Enabled {
		t.Fatal("expected disabled")
	}
}

func TestEndpointServiceRotateSecret(t *testing.T) {
	svc, _ := newService()

	ep, _ := svc.Create(ctx(), endpoint.Input{
		PartnerID:  id.NewPartnerID(),
		URL:        "https://example.com/webhook",
		EventTypes: []string{"*"},
	})

	oldSecret := ep.Secret
	newSecret, err := svc.RotateSecret(ctx(), ep.ID)
	if err != nil {
		t.Fatal(err)
	}

	if newSecret == oldSecret {
		t.Fatal("expected different secret after rotation")
	}
	if !strings.HasPrefix(newSecret, "whsec_") {
		t.Fatalf("expected whsec_ prefix, got %q", newSecret)
	}

	got, _ := svc.Get(ctx(), ep.ID)
	if got.Secret != newSecret {
		t.Fatal("secret not persisted after rotation")
	}
}

func TestEndpointServiceRotateSecretNotFound(t *testing.T) {
	svc, _ := newService()

	_, err := svc.RotateSecret(ctx(), id.NewEndpointID())
	if !errors.Is(err, gateway.ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}
}

func TestStoreResolve(t *testing.T) {
	svc, s := newService()
	partnerID := id.NewPartnerID()

	invoices, _ := svc.Create(ctx(), endpoint.Input{
		PartnerID:  partnerID,
		URL:        "https://example.com/invoices",
		EventTypes: []string{"invoice.*"},
	})
	_, _ = svc.Create(ctx(), endpoint.Input{
		PartnerID:  partnerID,
		URL:        "https://example.com/users",
		EventTypes: []string{"user.created"},
	})
	catchAll, _ := svc.Create(ctx(), endpoint.Input{
		PartnerID:  partnerID,
		URL:        "https://example.com/all",
		EventTypes: []string{"*"},
	})
	// Disabled endpoints never resolve, even on a match.
	disabled, _ := svc.Create(ctx(), endpoint.Input{
		PartnerID:  partnerID,
		URL:        "https://example.com/disabled",
		EventTypes: []string{"invoice.*"},
	})
	_ = svc.SetEnabled(ctx(), disabled.ID, false)
	// Another partner's endpoint is invisible.
	_, _ = svc.Create(ctx(), endpoint.Input{
		PartnerID:  id.NewPartnerID(),
		URL:        "https://example.com/other",
		EventTypes: []string{"invoice.*"},
	})

	got, err := s.Resolve(ctx(), partnerID, "invoice.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(got))
	}

	ids := map[string]bool{}
	for _, ep := range got {
		ids[ep.ID.String()] = true
	}
	if !ids[invoices.ID.String()] || !ids[catchAll.ID.String()] {
		t.Fatalf("resolved wrong endpoints: %v", ids)
	}
}
