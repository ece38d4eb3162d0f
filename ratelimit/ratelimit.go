// Package ratelimit provides per-key request limiting behind a pluggable
// counter store. The in-memory store is correct for a single instance;
// multi-replica deployments should plug in the Redis store so all
// replicas share one window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore records one hit against a key and reports how many hits
// the key has inside the current window, including this one.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter admits requests while a key's windowed hit count stays at or
// under the cap.
type Limiter struct {
	store  CounterStore
	limit  int
	window time.Duration
}

func New(store CounterStore, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window}
}

// Allow records a hit for key and reports whether it is admitted.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		return false, err
	}
	return count <= int64(l.limit), nil
}

// Keys with no hit newer than this are dropped by the janitor.
const staleKeyAfter = 10 * time.Minute

// MemoryCounterStore is the process-local default: a sliding window of
// hit timestamps per key.
type MemoryCounterStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

func (m *MemoryCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-window)

	kept := m.hits[key][:0]
	for _, t := range m.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	m.hits[key] = kept

	return int64(len(kept)), nil
}

// Run prunes idle keys until the context is canceled. Start it once per
// process alongside the server.
func (m *MemoryCounterStore) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pruneStale()
		}
	}
}

func (m *MemoryCounterStore) pruneStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-staleKeyAfter)
	for key, hits := range m.hits {
		if len(hits) == 0 || hits[len(hits)-1].Before(cutoff) {
			delete(m.hits, key)
		}
	}
}
