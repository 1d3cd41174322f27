package content

import (
	"context"
	"net/http"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
	"github.com/jrsteele09/amq-songs-gateway/upstream/storefake"
	"github.com/stretchr/testify/require"
)

const testKey = "Monofly/AMQ-Missing-Songs@main:data/anime_songs.json"

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type countingObserver map[string]int

func (o countingObserver) CacheLookup(tier, outcome string) { o[tier+":"+outcome]++ }

func newTestPipeline(store *storefake.FakeStore, withEdge bool) (*Pipeline, *MemoryEdgeCache, *testClock, countingObserver) {
	clock := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	obs := countingObserver{}
	opts := []Option{WithClock(clock.Now), WithObserver(obs), WithVersionTTL(15 * time.Second)}
	var edge *MemoryEdgeCache
	if withEdge {
		edge = NewMemoryEdgeCache(clock.Now)
		opts = append(opts, WithEdgeCache(edge, 5*time.Minute))
	}
	return NewPipeline(store, testKey, opts...), edge, clock, obs
}

func TestGetContent_Idempotent(t *testing.T) {
	store := storefake.New(`[{"id":"1","score":1.50}]`)
	p, _, _, obs := newTestPipeline(store, true)
	ctx := context.Background()

	first, err := p.GetContent(ctx, false)
	require.NoError(t, err)
	require.Equal(t, SourceUpstream, first.Source)

	second, err := p.GetContent(ctx, false)
	require.NoError(t, err)
	require.Equal(t, SourceEdge, second.Source)
	require.Equal(t, first.SHA, second.SHA)
	require.Equal(t, first.Items, second.Items)
	require.Equal(t, 1, store.GetFileCalls())
	require.Equal(t, 1, obs["edge:hit"])
}

func TestGetContent_NotModifiedFallsBackToMemory(t *testing.T) {
	store := storefake.New(`[{"id":"1"}]`)
	p, _, _, obs := newTestPipeline(store, false)
	ctx := context.Background()

	first, err := p.GetContent(ctx, false)
	require.NoError(t, err)

	second, err := p.GetContent(ctx, false)
	require.NoError(t, err)
	require.Equal(t, SourceMemory, second.Source)
	require.Equal(t, first.Items, second.Items)
	require.Equal(t, first.SHA, second.SHA)
	require.Equal(t, 2, store.GetFileCalls())
	require.Equal(t, 1, obs["upstream:not_modified"])
}

func TestGetContent_NotModifiedPrefersEdgeRefreshedElsewhere(t *testing.T) {
	store := storefake.New(`[{"id":"1"}]`)
	p, _, _, _ := newTestPipeline(store, false)
	ctx := context.Background()

	_, err := p.GetContent(ctx, false)
	require.NoError(t, err)

	// another instance populated the shared tier after our edge miss
	p.edge = &lateEdge{MemoryEdgeCache: NewMemoryEdgeCache(nil), doc: []byte(`{"content":[{"id":"from-edge"}],"sha":"edge-sha"}`)}

	snap, err := p.GetContent(ctx, false)
	require.NoError(t, err)
	require.Equal(t, SourceEdge, snap.Source)
	require.Equal(t, "edge-sha", snap.SHA)
}

// lateEdge misses on the first lookup and hits afterwards.
type lateEdge struct {
	*MemoryEdgeCache
	doc   []byte
	calls int
}

func (e *lateEdge) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e.calls++
	if e.calls == 1 {
		return nil, false, nil
	}
	return e.doc, true, nil
}

func TestGetContent_NotModifiedWithoutBodyRefetchesOnce(t *testing.T) {
	store := storefake.New(`[{"id":"1"}]`)
	p, _, _, _ := newTestPipeline(store, false)
	ctx := context.Background()

	snap, err := p.GetContent(ctx, false)
	require.NoError(t, err)

	// keep the validator but lose the body
	etag := p.memory.ETag(testKey)
	p.memory.Forget(testKey)
	p.memory.etags[testKey] = etag

	again, err := p.GetContent(ctx, false)
	require.NoError(t, err)
	require.Equal(t, SourceUpstream, again.Source)
	require.Equal(t, snap.SHA, again.SHA)
	require.Equal(t, 3, store.GetFileCalls())
}

func TestGetContent_ForceFreshBypassesEdge(t *testing.T) {
	store := storefake.New(`[{"id":"1"}]`)
	p, edge, _, _ := newTestPipeline(store, true)
	ctx := context.Background()

	cached, err := p.GetContent(ctx, false)
	require.NoError(t, err)

	store.SetContent(`[{"id":"1"},{"id":"2"}]`)

	fresh, err := p.GetContent(ctx, true)
	require.NoError(t, err)
	require.Equal(t, SourceUpstream, fresh.Source)
	require.Len(t, fresh.Items, 2)
	require.NotEqual(t, cached.SHA, fresh.SHA)

	// edge keeps the old copy, memory has the new one
	raw, ok, err := edge.Get(ctx, testKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, string(raw), cached.SHA)
	mem, _, ok := p.memory.Body(testKey)
	require.True(t, ok)
	require.Equal(t, fresh.SHA, mem.SHA)
}

func TestGetContent_UpstreamError(t *testing.T) {
	store := storefake.New(`[]`)
	store.FailGetFile(http.StatusBadGateway, "bad gateway")
	p, _, _, _ := newTestPipeline(store, true)

	_, err := p.GetContent(context.Background(), false)
	require.ErrorIs(t, err, apperrors.ErrUpstream)
	require.Equal(t, http.StatusInternalServerError, apperrors.StatusCode(err))
	require.Contains(t, apperrors.Message(err), "bad gateway")
}

func TestGetContent_UnreadableUpstream(t *testing.T) {
	store := storefake.New(`{"not":"an array"}`)
	p, _, _, _ := newTestPipeline(store, false)

	_, err := p.GetContent(context.Background(), false)
	require.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestGetVersion(t *testing.T) {
	store := storefake.New(`[{"id":"1"}]`)
	p, edge, clock, _ := newTestPipeline(store, true)
	ctx := context.Background()

	sha, err := p.GetVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, store.SHA(), sha)
	require.Equal(t, 1, store.GetFileCalls())

	again, err := p.GetVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, sha, again)
	require.Equal(t, 1, store.GetFileCalls(), "a fresh memory body answers locally")

	clock.Advance(20 * time.Second)
	again, err = p.GetVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, sha, again)
	require.Equal(t, 2, store.GetFileCalls(), "expired body revalidates with a conditional read")

	// an external change is noticed after the TTL and drops the edge copy
	_, err = p.GetContent(ctx, false)
	require.NoError(t, err)
	_, ok, err := edge.Get(ctx, testKey)
	require.NoError(t, err)
	require.True(t, ok)
	store.SetContent(`[]`)
	clock.Advance(20 * time.Second)
	changed, err := p.GetVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, store.SHA(), changed)
	require.NotEqual(t, sha, changed)
	_, ok, err = edge.Get(ctx, testKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	store := storefake.New(`[{"id":"1"}]`)
	p, edge, _, _ := newTestPipeline(store, true)
	ctx := context.Background()

	_, err := p.GetContent(ctx, false)
	require.NoError(t, err)

	require.NoError(t, p.Invalidate(ctx))
	require.Empty(t, p.memory.ETag(testKey))
	_, _, ok := p.memory.Body(testKey)
	require.False(t, ok)
	_, ok, err = edge.Get(ctx, testKey)
	require.NoError(t, err)
	require.False(t, ok)

	snap, err := p.GetContent(ctx, false)
	require.NoError(t, err)
	require.Equal(t, SourceUpstream, snap.Source)
	require.Equal(t, 2, store.GetFileCalls())
}

func TestMemoryEdgeCache_Expiry(t *testing.T) {
	clock := &testClock{t: time.Unix(0, 0)}
	c := NewMemoryEdgeCache(clock.Now)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(v))

	clock.Advance(time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}
