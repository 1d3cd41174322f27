package server

import (
	"net/http"
	"slices"
	"sort"
	"strings"
)

// route is one entry of the API table. Flags select the cross-cutting
// checks applied before the handler.
type route struct {
	method  string
	path    string
	handler http.HandlerFunc
	// safeRead skips the origin check for reads carrying a session cookie.
	safeRead bool
	// limited counts the request against the route's rate limit rule.
	limited bool
	// csrf requires a valid X-CSRF-Token.
	csrf bool
}

func (s *Server) routeTable() []route {
	return []route{
		{method: http.MethodGet, path: RouteCSRF, handler: s.CSRFHandler(), safeRead: true},
		{method: http.MethodPost, path: RouteDeviceCode, handler: s.DeviceCodeHandler(), limited: true},
		{method: http.MethodPost, path: RoutePoll, handler: s.PollHandler(), limited: true},
		{method: http.MethodGet, path: RouteAuthMe, handler: s.AuthMeHandler(), safeRead: true},
		{method: http.MethodPost, path: RouteLogout, handler: s.LogoutHandler(), csrf: true},
		{method: http.MethodGet, path: RouteContent, handler: s.ContentHandler(), safeRead: true},
		{method: http.MethodGet, path: RouteContentMeta, handler: s.ContentMetaHandler()},
		{method: http.MethodPost, path: RouteCommit, handler: s.CommitHandler(), limited: true, csrf: true},
	}
}

func (s *Server) initRoutes() {
	for _, rt := range s.routeTable() {
		s.apiPaths[rt.path] = append(s.apiPaths[rt.path], rt.method)
		s.RegisterRouteHandler(rt.method+" "+rt.path, ChainMiddleware(rt.handler, s.APIMiddleware(rt)...))
	}
	s.RegisterRouteFunc("GET "+RouteMetrics, ChainMiddleware(s.metrics.Handler().ServeHTTP, s.RecoverMiddleware))

	// Preflight is answered for any path without further processing
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.PreflightHandler(), s.RecoverMiddleware, s.LoggingMiddleware("")))
	s.RegisterRouteHandler("/", ChainMiddleware(s.FallbackHandler(), s.RecoverMiddleware, s.LoggingMiddleware("")))
}

// APIMiddleware is the chain for one API route, outermost first.
func (s *Server) APIMiddleware(rt route) []func(http.HandlerFunc) http.HandlerFunc {
	mw := []func(http.HandlerFunc) http.HandlerFunc{
		s.RecoverMiddleware,
		s.LoggingMiddleware(rt.path),
		s.HeadersMiddleware,
		s.OriginMiddleware(rt.safeRead),
	}
	if rt.method == http.MethodPost {
		mw = append(mw, s.JSONContentTypeMiddleware)
	}
	if rt.limited {
		mw = append(mw, s.RateLimitMiddleware(rt.path))
	}
	if rt.csrf {
		mw = append(mw, s.CSRFMiddleware)
	}
	return mw
}

// allowedMethods returns the methods registered for an API path, or nil
// when the path is not part of the API.
func (s *Server) allowedMethods(path string) []string {
	methods, ok := s.apiPaths[path]
	if !ok {
		return nil
	}
	allowed := slices.Clone(methods)
	if slices.Contains(allowed, http.MethodGet) {
		allowed = append(allowed, http.MethodHead)
	}
	allowed = append(allowed, http.MethodOptions)
	sort.Strings(allowed)
	return allowed
}

// FallbackHandler answers everything the route table does not: a JSON 405
// for a known API path, else the static site when configured, else a JSON
// 404.
func (s *Server) FallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if methods := s.allowedMethods(r.URL.Path); methods != nil && r.Method != http.MethodOptions {
			s.setAPIHeaders(w, r)
			w.Header().Set("Allow", strings.Join(methods, ", "))
			writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.fileServer != nil && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
			s.fileServer.ServeHTTP(w, r)
			return
		}
		s.setAPIHeaders(w, r)
		writeJSONError(w, "Not found", http.StatusNotFound)
	}
}

// PreflightHandler answers CORS preflight for API paths. Other paths get
// the fallback.
func (s *Server) PreflightHandler() http.HandlerFunc {
	fallback := s.FallbackHandler()
	return func(w http.ResponseWriter, r *http.Request) {
		if s.allowedMethods(r.URL.Path) == nil {
			fallback(w, r)
			return
		}
		s.setAPIHeaders(w, r)
		w.WriteHeader(http.StatusNoContent)
	}
}
