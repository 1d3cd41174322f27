package content

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EdgeCache is the shared tier, visible to every instance. Entries are
// opaque encoded snapshots.
type EdgeCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

var (
	_ EdgeCache = (*MemoryEdgeCache)(nil)
	_ EdgeCache = (*RedisEdgeCache)(nil)
)

type edgeEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryEdgeCache is a process-local EdgeCache for single-instance
// deployments and tests.
type MemoryEdgeCache struct {
	lock    sync.RWMutex
	entries map[string]edgeEntry
	now     func() time.Time
}

func NewMemoryEdgeCache(now func() time.Time) *MemoryEdgeCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryEdgeCache{entries: make(map[string]edgeEntry), now: now}
}

func (c *MemoryEdgeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.lock.RLock()
	e, ok := c.entries[key]
	c.lock.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.lock.Lock()
		if cur, still := c.entries[key]; still && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.lock.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *MemoryEdgeCache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entries[key] = edgeEntry{value: append([]byte(nil), value...), expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryEdgeCache) Delete(_ context.Context, key string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.entries, key)
	return nil
}

const redisEdgePrefix = "amq:content:"

// RedisEdgeCache shares snapshots between instances through Redis.
type RedisEdgeCache struct {
	rdb redis.UniversalClient
}

func NewRedisEdgeCache(rdb redis.UniversalClient) *RedisEdgeCache {
	return &RedisEdgeCache{rdb: rdb}
}

func (c *RedisEdgeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, redisEdgePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("[RedisEdgeCache Get] %w", err)
	}
	return b, true, nil
}

func (c *RedisEdgeCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, redisEdgePrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("[RedisEdgeCache Put] %w", err)
	}
	return nil
}

func (c *RedisEdgeCache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, redisEdgePrefix+key).Err(); err != nil {
		return fmt.Errorf("[RedisEdgeCache Delete] %w", err)
	}
	return nil
}
