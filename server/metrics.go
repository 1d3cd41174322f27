package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jrsteele09/amq-songs-gateway/commit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the gateway. Each instance
// owns its registry so several servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	CacheLookups        *prometheus.CounterVec
	Commits             *prometheus.CounterVec
	RateLimited         *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amq_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "amq_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amq_content_cache_lookups_total",
				Help: "Content cache lookups by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		Commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amq_commits_total",
				Help: "Dataset commits by mutation kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amq_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
	}
	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CacheLookups,
		m.Commits,
		m.RateLimited,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// CacheLookup implements content.Observer.
func (m *Metrics) CacheLookup(tier, outcome string) {
	m.CacheLookups.WithLabelValues(tier, outcome).Inc()
}

// CommitOutcome implements commit.Observer.
func (m *Metrics) CommitOutcome(kind commit.Kind, outcome string) {
	k := string(kind)
	if k == "" {
		k = "unknown"
	}
	m.Commits.WithLabelValues(k, outcome).Inc()
}
