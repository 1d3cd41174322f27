package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/amq-songs-gateway/commit"
	"github.com/jrsteele09/amq-songs-gateway/content"
	"github.com/jrsteele09/amq-songs-gateway/csrf"
	"github.com/jrsteele09/amq-songs-gateway/deviceflow"
	"github.com/jrsteele09/amq-songs-gateway/internal/config"
	"github.com/jrsteele09/amq-songs-gateway/ratelimit"
	"github.com/jrsteele09/amq-songs-gateway/security"
	"github.com/jrsteele09/amq-songs-gateway/upstream"
	"github.com/rs/zerolog/log"
)

const deviceFlowScope = "public_repo"

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	apiPaths   map[string][]string // path -> allowed methods
	fileServer http.Handler
	config     config.Config

	store   upstream.Store
	policy  *security.Policy
	csrf    *csrf.Verifier
	limiter *ratelimit.Limiter
	content *content.Pipeline
	commits *commit.Engine
	devices *deviceflow.Bridge
	metrics *Metrics
	now     func() time.Time

	trustCFConnectingIP bool
}

type Option func(*options)

type options struct {
	edge      content.EdgeCache
	rateStore ratelimit.Store
	metrics   *Metrics
	now       func() time.Time
}

// WithEdgeCache shares the content tier between instances. The default is
// process-local.
func WithEdgeCache(edge content.EdgeCache) Option {
	return func(o *options) { o.edge = edge }
}

// WithRateLimitStore shares rate buckets between instances. The default is
// process-local.
func WithRateLimitStore(store ratelimit.Store) Option {
	return func(o *options) { o.rateStore = store }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now in the caches and the rate limiter.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New wires the gateway components for the dataset behind store.
func New(c config.Config, store upstream.Store, opts ...Option) *Server {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.edge == nil {
		o.edge = content.NewMemoryEdgeCache(o.now)
	}
	if o.rateStore == nil {
		o.rateStore = ratelimit.NewMemoryStore()
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}

	pipeline := content.NewPipeline(store, c.GetContentKey(),
		content.WithEdgeCache(o.edge, c.GetEdgeCacheTTL()),
		content.WithReadToken(c.GetReadToken()),
		content.WithVersionTTL(c.GetVersionCacheTTL()),
		content.WithClock(o.now),
		content.WithObserver(o.metrics),
	)

	window := c.GetRateLimitWindow()
	limiter := ratelimit.New(o.rateStore, map[string]ratelimit.Rule{
		RouteDeviceCode: {Limit: c.GetDeviceCodeRateLimit(), Window: window},
		RoutePoll:       {Limit: c.GetPollRateLimit(), Window: window},
		RouteCommit:     {Limit: c.GetCommitRateLimit(), Window: window},
	}, ratelimit.WithClock(o.now))

	s := &Server{
		env:      c.GetEnv(),
		mux:      http.NewServeMux(),
		apiPaths: make(map[string][]string),
		config:   c,
		store:    store,
		policy: security.NewPolicy(c.GetProdOrigin(), c.GetPreviewOriginPattern(), c.GetDevOrigins(),
			c.GetAllowedMethods(), c.GetAllowedHeaders()),
		csrf:    csrf.NewVerifier(c.GetAllowNoOriginCSRF()),
		limiter: limiter,
		content: pipeline,
		commits: commit.NewEngine(store, pipeline,
			commit.WithMaxPayloadBytes(c.GetMaxPayloadBytes()),
			commit.WithObserver(o.metrics),
		),
		devices: deviceflow.NewBridge(store,
			deviceflow.WithDefaultClientID(c.GetDefaultClientID()),
			deviceflow.WithDefaultScope(deviceFlowScope),
		),
		metrics: o.metrics,
		now:     o.now,
	}
	s.trustCFConnectingIP = c.GetTrustCFConnectingIP()
	if dir := c.GetStaticDir(); dir != "" {
		s.fileServer = s.staticSiteHandler(StaticFileHandler(dir))
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colouredMethod(method), path)
}
