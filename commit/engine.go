// Package commit applies one mutation to the dataset and writes it back
// with an optimistic-concurrency check against the upstream revision.
package commit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jrsteele09/amq-songs-gateway/dataset"
	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
	"github.com/jrsteele09/amq-songs-gateway/upstream"
	"github.com/rs/zerolog/log"
)

// Request is the body of a commit call. Exactly one of BulkUpdate, a
// Target (edit or delete) or a bare Change (add) drives the mutation.
type Request struct {
	Change     json.RawMessage `json:"change"`
	Target     dataset.Item    `json:"target"`
	BulkUpdate json.RawMessage `json:"bulkUpdate"`
	Message    string          `json:"message"`
	// BaseSHA is the revision the caller last saw. It is advisory.
	BaseSHA string `json:"baseSha"`
}

type Result struct {
	SHA       string
	CommitSHA string
	Kind      Kind
	Attempts  int
}

// Invalidator drops cached copies of the dataset after a write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Observer is told the outcome of every commit: ok, conflict, rejected or
// error.
type Observer interface {
	CommitOutcome(kind Kind, outcome string)
}

type nopObserver struct{}

func (nopObserver) CommitOutcome(Kind, string) {}

const (
	DefaultMaxPayloadBytes = 500_000
	defaultMaxAttempts     = 2
)

type Engine struct {
	store       upstream.Store
	cache       Invalidator
	maxPayload  int
	maxAttempts int
	linkRules   []dataset.LinkRule
	newID       func() string
	observer    Observer
}

type Option func(*Engine)

func WithMaxPayloadBytes(n int) Option {
	return func(e *Engine) { e.maxPayload = n }
}

func WithLinkRules(rules []dataset.LinkRule) Option {
	return func(e *Engine) { e.linkRules = rules }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func NewEngine(store upstream.Store, cache Invalidator, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		cache:       cache,
		maxPayload:  DefaultMaxPayloadBytes,
		maxAttempts: defaultMaxAttempts,
		linkRules:   dataset.DefaultLinkRules,
		newID:       dataset.NewID,
		observer:    nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Commit applies req on behalf of the holder of token. A write rejected as
// stale is retried once against a freshly read base; a second rejection is
// returned as ErrConflict.
func (e *Engine) Commit(ctx context.Context, token string, req Request) (*Result, error) {
	if token == "" {
		return nil, apperrors.Newf(apperrors.ErrUnauthorized, "Unauthorized")
	}
	if req.Message == "" {
		return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "Missing commit message")
	}
	m, err := parseMutation(req)
	if err != nil {
		e.observer.CommitOutcome("", "rejected")
		return nil, apperrors.Wrapf(err, "[commit Commit]")
	}
	if m.kind == KindBulk {
		// a replacement does not depend on the base, so check it before reading
		if _, err := e.validate(m.bulk); err != nil {
			e.observer.CommitOutcome(m.kind, "rejected")
			return nil, apperrors.Wrapf(err, "[commit Commit]")
		}
	}

	for attempt := 1; ; attempt++ {
		res, err := e.attempt(ctx, token, req, m, attempt)
		if err == nil {
			e.observer.CommitOutcome(m.kind, "ok")
			if err := e.cache.Invalidate(ctx); err != nil {
				log.Warn().Err(err).Msg("Commit succeeded but cache invalidation failed")
			}
			res.Attempts = attempt
			return res, nil
		}
		if errors.Is(err, apperrors.ErrConflict) && attempt < e.maxAttempts {
			log.Warn().Int("attempt", attempt).Str("kind", string(m.kind)).Msg("Commit rejected as stale, retrying against the latest revision")
			continue
		}

		switch {
		case errors.Is(err, apperrors.ErrConflict):
			e.observer.CommitOutcome(m.kind, "conflict")
		case errors.Is(err, apperrors.ErrUpstream):
			e.observer.CommitOutcome(m.kind, "error")
		default:
			e.observer.CommitOutcome(m.kind, "rejected")
		}
		return nil, apperrors.Wrapf(err, "[commit Commit]")
	}
}

// attempt runs one read-mutate-validate-write cycle. Nothing is written
// unless every check passes.
func (e *Engine) attempt(ctx context.Context, token string, req Request, m *mutation, n int) (*Result, error) {
	base, err := e.store.GetFile(ctx, upstream.FileRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("reading base revision: %w", err)
	}
	items, err := dataset.Decode(base.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: base revision is unreadable: %w", apperrors.ErrUpstream, err)
	}
	if n == 1 && req.BaseSHA != "" && req.BaseSHA != base.SHA {
		log.Info().Str("client_sha", req.BaseSHA).Str("upstream_sha", base.SHA).Msg("Commit based on an older revision")
	}

	next, err := m.apply(items, e.newID)
	if err != nil {
		return nil, err
	}
	payload, err := e.validate(next)
	if err != nil {
		return nil, err
	}

	put, err := e.store.PutFile(ctx, upstream.PutRequest{
		Token:   token,
		Message: req.Message,
		Content: payload,
		SHA:     base.SHA,
	})
	if err != nil {
		return nil, fmt.Errorf("writing revision %s: %w", base.SHA, err)
	}
	return &Result{SHA: put.SHA, CommitSHA: put.CommitSHA, Kind: m.kind}, nil
}

// validate checks links and size, returning the encoded collection.
func (e *Engine) validate(items []dataset.Item) ([]byte, error) {
	if err := dataset.ValidateLinks(items, e.linkRules); err != nil {
		return nil, err
	}
	payload, err := dataset.Encode(items)
	if err != nil {
		return nil, err
	}
	if len(payload) > e.maxPayload {
		return nil, apperrors.Newf(apperrors.ErrPayloadTooLarge, "Payload too large")
	}
	return payload, nil
}
