// Package ratelimit implements a fixed-window request counter keyed by
// (route, client). Routes without a rule are never limited.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// Rule is the per-route budget: Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the
// Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Store holds the buckets. Hit counts one request against key, starting a
// fresh window when none exists or the previous one has elapsed.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (count int, resetAt time.Time, err error)
}

// Limiter applies Rules to requests.
type Limiter struct {
	rules map[string]Rule
	store Store
	now   func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(store Store, rules map[string]Rule, opts ...Option) *Limiter {
	l := &Limiter{
		rules: rules,
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts a request on route from client. A store failure lets the
// request through.
func (l *Limiter) Check(ctx context.Context, route, client string) Decision {
	rule, ok := l.rules[route]
	if !ok || rule.Limit <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()
	count, resetAt, err := l.store.Hit(ctx, Key(route, client), rule.Window, now)
	if err != nil {
		log.Err(err).Str("route", route).Msg("Rate limit store unavailable, allowing request")
		return Decision{Allowed: true}
	}
	if count > rule.Limit {
		return Decision{Allowed: false, RetryAfter: resetAt.Sub(now)}
	}
	return Decision{Allowed: true}
}

// Key is the bucket key for route and client.
func Key(route, client string) string {
	return route + "|" + client
}
