package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/gateway/id"
	"github.com/xraph/gateway/internal/entity"
)

// Config configures the catalog service.
type Config struct {
	// CacheTTL bounds how long a cached event type is served without a
	// store read. Zero disables expiry.
	CacheTTL time.Duration
}

// Catalog manages event type definitions with a read-through cache in
// front of the store. Writes go to the store first and update the cache
// on success.
type Catalog struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	et        *EventType
	fetchedAt time.Time
}

func (e cacheEntry) fresh(ttl time.Duration) bool {
	return ttl == 0 || time.Since(e.fetchedAt) <= ttl
}

// NewCatalog creates a Catalog backed by the given store.
func NewCatalog(store Store, cfg Config, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:   store,
		ttl:     cfg.CacheTTL,
		logger:  logger,
		entries: make(map[string]cacheEntry),
	}
}

// RegisterOption configures RegisterType behavior.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	metadata map[string]string
}

// WithMetadata sets metadata on a registered event type.
func WithMetadata(m map[string]string) RegisterOption {
	return func(o *registerOptions) { o.metadata = m }
}

// RegisterType registers or updates an event type definition. Registering
// a name that already exists replaces its definition in place.
func (c *Catalog) RegisterType(ctx context.Context, def Definition, opts ...RegisterOption) (*EventType, error) {
	var ro registerOptions
	for _, o := range opts {
		o(&ro)
	}

	et := &EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: def,
		Metadata:   ro.metadata,
	}
	if err := c.store.RegisterType(ctx, et); err != nil {
		return nil, err
	}

	c.remember(def.Name, et)
	return et, nil
}

// GetType returns an event type by name. Cached entries are served until
// their TTL elapses.
func (c *Catalog) GetType(ctx context.Context, name string) (*EventType, error) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if ok && entry.fresh(c.ttl) {
		return entry.et, nil
	}

	et, err := c.store.GetType(ctx, name)
	if err != nil {
		return nil, err
	}
	c.remember(name, et)
	return et, nil
}

// ListTypes returns registered event types.
func (c *Catalog) ListTypes(ctx context.Context, opts ListOpts) ([]*EventType, error) {
	return c.store.ListTypes(ctx, opts)
}

// MatchTypesForEvent returns all non-deprecated event types whose name
// matches the given pattern.
func (c *Catalog) MatchTypesForEvent(ctx context.Context, eventType string) ([]*EventType, error) {
	return c.store.MatchTypes(ctx, eventType)
}

// DeleteType deprecates an event type. The record survives in the store
// so existing events keep a valid reference; it stops matching new
// publishes.
func (c *Catalog) DeleteType(ctx context.Context, name string) error {
	if err := c.store.DeleteType(ctx, name); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
	return nil
}

// WarmCache preloads every non-deprecated type into the cache.
func (c *Catalog) WarmCache(ctx context.Context) error {
	types, err := c.store.ListTypes(ctx, ListOpts{IncludeDeprecated: false})
	if err != nil {
		return err
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry, len(types))
	for _, et := range types {
		c.entries[et.Definition.Name] = cacheEntry{et: et, fetchedAt: now}
	}
	return nil
}

// InvalidateCache drops all cached entries, forcing fresh store reads.
func (c *Catalog) InvalidateCache() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *Catalog) remember(name string, et *EventType) {
	c.mu.Lock()
	c.entries[name] = cacheEntry{et: et, fetchedAt: time.Now()}
	c.mu.Unlock()
}
