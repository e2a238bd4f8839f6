// Package gateway provides a composable partner integration gateway for Go.
//
// Gateway is a library, not a service. Import it into your application to
// get partner onboarding with hashed credentials, fixed-window rate limiting,
// signed webhook delivery with exponential-backoff retries, and a durable
// delivery ledger for audit and replay.
//
// Key features:
//   - Partner lifecycle management (pending → active → suspended/inactive)
//   - Credential verification with constant-time hash comparison
//   - Fixed-window rate limiting backed by an atomic counter store
//   - HMAC-SHA256 signing on every delivery, skew-checked verification of
//     inbound partner callbacks
//   - Exponential backoff retries with jitter and a dead letter queue
//   - Append-only delivery ledger with enforced state transitions
//   - Composable store pattern with multiple backends (Postgres, Redis, Memory)
//
// Quick start:
//
//	gw, err := gateway.New(
//	    gateway.WithStore(memoryStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := gw.Onboard(ctx, gateway.OnboardInput{
//	    Name:     "Acme Corp",
//	    Category: partner.CategoryPartner,
//	})
//
//	gw.Publish(ctx, &event.Event{
//	    Type:      "invoice.created",
//	    PartnerID: res.Partner.ID,
//	    Data:      map[string]any{"invoice_id": "inv_01h..."},
//	})
package gateway
