// Package store defines the composite Store interface for all gateway
// persistence.
//
// Each subsystem defines its own store interface, and the aggregate Store
// composes them all, so a backend implements one flat surface and services
// depend only on the slice they need.
package store

import (
	"context"

	"github.com/xraph/gateway/catalog"
	"github.com/xraph/gateway/credential"
	"github.com/xraph/gateway/delivery"
	"github.com/xraph/gateway/dlq"
	"github.com/xraph/gateway/endpoint"
	"github.com/xraph/gateway/event"
	"github.com/xraph/gateway/partner"
)

// Store is the aggregate persistence interface.
type Store interface {
	partner.Store
	credential.Store
	catalog.Store
	endpoint.Store
	event.Store
	delivery.Store
	dlq.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
