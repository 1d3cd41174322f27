//go:build integration

package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/amq-songs-gateway/content"
	"github.com/jrsteele09/amq-songs-gateway/internal/config"
	"github.com/jrsteele09/amq-songs-gateway/ratelimit"
	"github.com/jrsteele09/amq-songs-gateway/server"
	"github.com/jrsteele09/amq-songs-gateway/upstream/storefake"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

func startRedis(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	ctx := context.Background()

	container, err := redis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	connectionString, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opt, err := goredis.ParseURL(connectionString)
	require.NoError(t, err)

	rdb := goredis.NewClient(opt)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestRedisIntegration(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()

	t.Run("RateLimitStore", func(t *testing.T) {
		store := ratelimit.NewRedisStore(rdb)
		now := time.Now()

		count, resetAt, err := store.Hit(ctx, "commit|198.51.100.1", time.Minute, now)
		require.NoError(t, err)
		require.Equal(t, 1, count)
		require.WithinDuration(t, now.Add(time.Minute), resetAt, 2*time.Second)

		count, _, err = store.Hit(ctx, "commit|198.51.100.1", time.Minute, now)
		require.NoError(t, err)
		require.Equal(t, 2, count)

		count, _, err = store.Hit(ctx, "commit|198.51.100.2", time.Minute, now)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("EdgeCache", func(t *testing.T) {
		edge := content.NewRedisEdgeCache(rdb)

		_, ok, err := edge.Get(ctx, "missing")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, edge.Put(ctx, "k", []byte(`{"content":[],"sha":"abc"}`), time.Minute))
		value, ok, err := edge.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		require.JSONEq(t, `{"content":[],"sha":"abc"}`, string(value))

		require.NoError(t, edge.Delete(ctx, "k"))
		_, ok, err = edge.Get(ctx, "k")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("SharedAcrossInstances", func(t *testing.T) {
		require.NoError(t, rdb.FlushDB(ctx).Err())
		t.Setenv("ENV", "TEST")
		t.Setenv("RATE_LIMIT_DEVICE_CODE", "1")
		c, err := config.New()
		require.NoError(t, err)

		store := storefake.New(`[{"id":"1"}]`)
		newInstance := func() *server.Server {
			return server.New(c, store,
				server.WithEdgeCache(content.NewRedisEdgeCache(rdb)),
				server.WithRateLimitStore(ratelimit.NewRedisStore(rdb)),
			)
		}
		first, second := newInstance(), newInstance()

		serve := func(s *server.Server, req *http.Request) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			return rec
		}

		rec := serve(first, httptest.NewRequest(http.MethodGet, "/content", nil))
		require.Equal(t, "upstream", rec.Header().Get("X-Content-Source"))
		rec = serve(second, httptest.NewRequest(http.MethodGet, "/content", nil))
		require.Equal(t, "edge", rec.Header().Get("X-Content-Source"))
		require.Equal(t, 1, store.GetFileCalls())

		deviceCode := func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/oauth/device-code", strings.NewReader(`{"client_id":"Iv1.x"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Origin", prodOrigin)
			return req
		}
		require.Equal(t, http.StatusOK, serve(first, deviceCode()).Code)
		require.Equal(t, http.StatusTooManyRequests, serve(second, deviceCode()).Code)
	})
}
