package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 256

type bucket struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps buckets in process memory. Buckets are not shared between
// instances.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	hits    int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucket),
	}
}

func (m *MemoryStore) Hit(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hits++
	if m.hits%sweepEvery == 0 {
		m.sweep(now)
	}

	b, ok := m.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{resetAt: now.Add(window)}
		m.buckets[key] = b
	}
	b.count++
	return b.count, b.resetAt, nil
}

// Len returns the number of live buckets.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// sweep drops elapsed windows. Callers hold mu.
func (m *MemoryStore) sweep(now time.Time) {
	for k, b := range m.buckets {
		if now.After(b.resetAt) {
			delete(m.buckets, k)
		}
	}
}
