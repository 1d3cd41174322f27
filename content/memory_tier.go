package content

import (
	"sync"
	"time"
)

type memoryBody struct {
	snapshot  Snapshot
	fetchedAt time.Time
}

// MemoryTier holds the last ETag and decoded body seen per upstream key.
// It is a per-instance accelerator; losing it only costs a refetch.
type MemoryTier struct {
	lock   sync.RWMutex
	etags  map[string]string
	bodies map[string]memoryBody
}

func NewMemoryTier() *MemoryTier {
	return &MemoryTier{
		etags:  make(map[string]string),
		bodies: make(map[string]memoryBody),
	}
}

func (m *MemoryTier) ETag(key string) string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.etags[key]
}

// Body returns the cached snapshot and when it was last confirmed current.
func (m *MemoryTier) Body(key string) (Snapshot, time.Time, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	b, ok := m.bodies[key]
	return b.snapshot, b.fetchedAt, ok
}

func (m *MemoryTier) Store(key, etag string, snap Snapshot, at time.Time) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if etag != "" {
		m.etags[key] = etag
	} else {
		delete(m.etags, key)
	}
	m.bodies[key] = memoryBody{snapshot: snap, fetchedAt: at}
}

// Touch marks the cached body as confirmed current at the given time.
func (m *MemoryTier) Touch(key string, at time.Time) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if b, ok := m.bodies[key]; ok {
		b.fetchedAt = at
		m.bodies[key] = b
	}
}

func (m *MemoryTier) Forget(key string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.etags, key)
	delete(m.bodies, key)
}
