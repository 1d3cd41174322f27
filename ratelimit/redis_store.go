package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "amq:ratelimit:"

// RedisStore shares buckets between instances. The window starts with the
// first INCR of a key and ends when the key expires.
type RedisStore struct {
	rdb redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKeyPrefix+key)
		pipe.ExpireNX(ctx, redisKeyPrefix+key, window)
		pttl = pipe.PTTL(ctx, redisKeyPrefix+key)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("[RedisStore Hit] %w", err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		ttl = window
	}
	return int(incr.Val()), now.Add(ttl), nil
}
