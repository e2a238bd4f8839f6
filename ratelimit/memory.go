package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryCounters is an in-process CounterStore. Suitable for single-instance
// deployments and tests; multi-instance deployments should use a shared
// backend (see store/redis) so all instances count against the same window.
type MemoryCounters struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int64
	resetAt time.Time
}

// NewMemoryCounters creates an in-memory counter store.
func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{
		windows: make(map[string]*window),
	}
}

// Incr atomically increments the active window for key, opening a new window
// when none is active or the prior one has expired.
func (m *MemoryCounters) Incr(_ context.Context, key string, windowDur time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(windowDur)}
		m.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}

// Reset clears the window for a key.
func (m *MemoryCounters) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, key)
}

// Sweep drops expired windows. Callers may run it periodically to bound
// memory on high-cardinality key spaces.
func (m *MemoryCounters) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}
