// Package content serves the dataset through three tiers: a shared edge
// cache, a per-instance ETag and body memory, and conditional upstream reads.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/amq-songs-gateway/dataset"
	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
	"github.com/jrsteele09/amq-songs-gateway/upstream"
	"github.com/rs/zerolog/log"
)

// Source names the tier that answered a read.
type Source string

const (
	SourceEdge     Source = "edge"
	SourceMemory   Source = "memory"
	SourceUpstream Source = "upstream"
)

// Snapshot is the decoded dataset at one revision. Items must be treated
// as read-only; they may be shared with other readers.
type Snapshot struct {
	Items  []dataset.Item
	SHA    string
	Source Source
}

// Observer receives one call per tier consulted, e.g. ("edge", "hit").
type Observer interface {
	CacheLookup(tier, outcome string)
}

type nopObserver struct{}

func (nopObserver) CacheLookup(string, string) {}

// edgeDocument is the shape stored in the edge tier, matching the response
// body of a content read.
type edgeDocument struct {
	Content []dataset.Item `json:"content"`
	SHA     string         `json:"sha"`
}

type Pipeline struct {
	store      upstream.Store
	key        string
	readToken  string
	edge       EdgeCache
	edgeTTL    time.Duration
	memory     *MemoryTier
	versionTTL time.Duration
	now        func() time.Time
	observer   Observer
}

type Option func(*Pipeline)

// WithEdgeCache enables the shared tier. Without it reads go straight to
// the memory tier and upstream.
func WithEdgeCache(edge EdgeCache, ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.edge = edge
		p.edgeTTL = ttl
	}
}

func WithMemoryTier(m *MemoryTier) Option {
	return func(p *Pipeline) { p.memory = m }
}

// WithReadToken sets the credential used for reads, raising the upstream
// rate limit for anonymous visitors.
func WithReadToken(token string) Option {
	return func(p *Pipeline) { p.readToken = token }
}

// WithVersionTTL bounds how long GetVersion trusts the memory tier before
// revalidating upstream.
func WithVersionTTL(ttl time.Duration) Option {
	return func(p *Pipeline) { p.versionTTL = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// NewPipeline reads the file behind store. key identifies the content path
// in every cache tier.
func NewPipeline(store upstream.Store, key string, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		key:        key,
		edgeTTL:    5 * time.Minute,
		versionTTL: 15 * time.Second,
		now:        time.Now,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.memory == nil {
		p.memory = NewMemoryTier()
	}
	return p
}

// GetContent returns the current dataset. forceFresh skips the edge tier
// and the conditional header, but the result still refreshes the memory tier.
func (p *Pipeline) GetContent(ctx context.Context, forceFresh bool) (Snapshot, error) {
	if !forceFresh {
		if snap, ok := p.edgeLookup(ctx); ok {
			return snap, nil
		}
	}

	etag := ""
	if !forceFresh {
		etag = p.memory.ETag(p.key)
	}
	snap, err := p.fetch(ctx, etag)
	if errors.Is(err, apperrors.ErrNotModified) {
		p.observer.CacheLookup("upstream", "not_modified")
		return p.afterNotModified(ctx)
	}
	if err != nil {
		p.observer.CacheLookup("upstream", "error")
		return Snapshot{}, apperrors.Wrapf(err, "[content GetContent]")
	}
	p.observer.CacheLookup("upstream", "fetched")

	if !forceFresh {
		p.edgeStore(ctx, snap)
	}
	return snap, nil
}

// afterNotModified recovers a body after a 304: the edge tier may have been
// refreshed by another instance, then the memory tier, then one
// unconditional read.
func (p *Pipeline) afterNotModified(ctx context.Context) (Snapshot, error) {
	if snap, ok := p.edgeLookup(ctx); ok {
		return snap, nil
	}
	if snap, _, ok := p.memory.Body(p.key); ok {
		p.memory.Touch(p.key, p.now())
		p.observer.CacheLookup("memory", "hit")
		p.edgeStore(ctx, snap)
		snap.Source = SourceMemory
		return snap, nil
	}
	p.observer.CacheLookup("memory", "miss")

	snap, err := p.fetch(ctx, "")
	if err != nil {
		return Snapshot{}, apperrors.Wrapf(err, "[content GetContent] refetch after 304")
	}
	p.edgeStore(ctx, snap)
	return snap, nil
}

// GetVersion returns the current sha. A memory-tier body younger than the
// version TTL answers without a network call.
func (p *Pipeline) GetVersion(ctx context.Context) (string, error) {
	cached, fetchedAt, ok := p.memory.Body(p.key)
	if ok && p.now().Sub(fetchedAt) < p.versionTTL {
		p.observer.CacheLookup("memory", "hit")
		return cached.SHA, nil
	}

	snap, err := p.fetch(ctx, p.memory.ETag(p.key))
	if errors.Is(err, apperrors.ErrNotModified) {
		p.observer.CacheLookup("upstream", "not_modified")
		if ok {
			p.memory.Touch(p.key, p.now())
			return cached.SHA, nil
		}
		if snap, err = p.fetch(ctx, ""); err != nil {
			return "", apperrors.Wrapf(err, "[content GetVersion] refetch after 304")
		}
		return snap.SHA, nil
	}
	if err != nil {
		p.observer.CacheLookup("upstream", "error")
		return "", apperrors.Wrapf(err, "[content GetVersion]")
	}
	p.observer.CacheLookup("upstream", "fetched")

	if ok && cached.SHA != snap.SHA && p.edge != nil {
		// the edge copy predates a change made elsewhere
		if err := p.edge.Delete(ctx, p.key); err != nil {
			log.Warn().Err(err).Str("key", p.key).Msg("Failed to drop stale edge cache entry")
		}
	}
	return snap.SHA, nil
}

// Invalidate drops the content path from every tier.
func (p *Pipeline) Invalidate(ctx context.Context) error {
	p.memory.Forget(p.key)
	if p.edge == nil {
		return nil
	}
	if err := p.edge.Delete(ctx, p.key); err != nil {
		return apperrors.Wrapf(err, "[content Invalidate]")
	}
	return nil
}

// fetch reads upstream and records the result in the memory tier.
func (p *Pipeline) fetch(ctx context.Context, etag string) (Snapshot, error) {
	file, err := p.store.GetFile(ctx, upstream.FileRequest{Token: p.readToken, ETag: etag})
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotModified) {
			log.Error().Err(err).Str("key", p.key).Msg("Upstream content read failed")
		}
		return Snapshot{}, err
	}

	items, err := dataset.Decode(file.Content)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: upstream content is unreadable: %w", apperrors.ErrUpstream, err)
	}

	snap := Snapshot{Items: items, SHA: file.SHA, Source: SourceUpstream}
	p.memory.Store(p.key, file.ETag, snap, p.now())
	return snap, nil
}

func (p *Pipeline) edgeLookup(ctx context.Context) (Snapshot, bool) {
	if p.edge == nil {
		return Snapshot{}, false
	}
	raw, ok, err := p.edge.Get(ctx, p.key)
	if err != nil {
		log.Warn().Err(err).Str("key", p.key).Msg("Edge cache read failed")
		p.observer.CacheLookup("edge", "error")
		return Snapshot{}, false
	}
	if !ok {
		p.observer.CacheLookup("edge", "miss")
		return Snapshot{}, false
	}

	var doc edgeDocument
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		log.Warn().Err(err).Str("key", p.key).Msg("Discarding undecodable edge cache entry")
		p.observer.CacheLookup("edge", "error")
		return Snapshot{}, false
	}
	p.observer.CacheLookup("edge", "hit")
	if doc.Content == nil {
		doc.Content = []dataset.Item{}
	}
	return Snapshot{Items: doc.Content, SHA: doc.SHA, Source: SourceEdge}, true
}

func (p *Pipeline) edgeStore(ctx context.Context, snap Snapshot) {
	if p.edge == nil {
		return
	}
	raw, err := json.Marshal(edgeDocument{Content: snap.Items, SHA: snap.SHA})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode edge cache entry")
		return
	}
	if err := p.edge.Put(ctx, p.key, raw, p.edgeTTL); err != nil {
		log.Warn().Err(err).Str("key", p.key).Msg("Edge cache write failed")
	}
}
