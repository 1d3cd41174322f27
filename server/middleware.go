package server

import (
	"mime"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/google/uuid"
	"github.com/jrsteele09/amq-songs-gateway/security"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-ID"

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler) // Call the middleware function
	}
	return chainedHandler
}

// statusRecorder remembers the status written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RecoverMiddleware turns a panic into a JSON 500 carrying the usual
// headers.
func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
				s.setAPIHeaders(w, r)
				writeJSONError(w, "Internal error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

// LoggingMiddleware tags the request with an id, logs its outcome and
// records it under routeLabel. An empty label groups unrouted paths.
func (s *Server) LoggingMiddleware(routeLabel string) func(http.HandlerFunc) http.HandlerFunc {
	if routeLabel == "" {
		routeLabel = "other"
	}
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := s.now()
			requestID := uuid.New().String()
			w.Header().Set(requestIDHeader, requestID)

			logger := log.With().Str("request_id", requestID).Logger()
			r = r.WithContext(logger.WithContext(r.Context()))

			rec := &statusRecorder{ResponseWriter: w}
			next(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			elapsed := s.now().Sub(start)
			s.metrics.observeRequest(r.Method, routeLabel, rec.status, elapsed)

			event := logger.Info()
			if rec.status >= http.StatusInternalServerError {
				event = logger.Error()
			}
			if s.env == "DEV" {
				event = event.Str("method", colouredMethod(r.Method))
			} else {
				event = event.Str("method", r.Method)
			}
			event.Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", elapsed).
				Str("client_ip", s.clientIP(r)).
				Msg("request")
		}
	}
}

// HeadersMiddleware adds the baseline security and CORS headers to every
// API response.
func (s *Server) HeadersMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.setAPIHeaders(w, r)
		next(w, r)
	}
}

func (s *Server) setAPIHeaders(w http.ResponseWriter, r *http.Request) {
	security.SetBaselineHeaders(w.Header())
	s.policy.CORSHeaders(w.Header(), r.Header.Get("Origin"))
}

// OriginMiddleware rejects state-changing or cookie-bearing requests that do
// not come from a trusted site. Safe reads are exempt.
func (s *Server) OriginMiddleware(safeRead bool) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			isRead := r.Method == http.MethodGet || r.Method == http.MethodHead
			needsCheck := !(safeRead && isRead) && (!isRead || r.Header.Get("Cookie") != "")
			if needsCheck && !s.policy.IsFromAllowedSite(r) {
				writeJSONError(w, "Forbidden origin", http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}

// JSONContentTypeMiddleware requires an application/json body.
func (s *Server) JSONContentTypeMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			writeJSONError(w, "Unsupported content type", http.StatusUnsupportedMediaType)
			return
		}
		next(w, r)
	}
}

// RateLimitMiddleware counts the request against route. A limited poll is
// answered as slow_down so device-flow clients back off.
func (s *Server) RateLimitMiddleware(route string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			decision := s.limiter.Check(r.Context(), route, s.clientIP(r))
			if decision.Allowed {
				next(w, r)
				return
			}
			s.metrics.RateLimited.WithLabelValues(route).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
			if route == RoutePoll {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"status": "slow_down"})
				return
			}
			writeJSONError(w, "rate_limited", http.StatusTooManyRequests)
		}
	}
}

// CSRFMiddleware requires a token derived from the session credential.
func (s *Server) CSRFMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.csrf.Verify(r) {
			writeJSONError(w, "CSRF check failed", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// clientIP identifies the caller for rate limiting: the socket peer, or the
// edge proxy's CF-Connecting-IP when the deployment is configured to trust it.
func (s *Server) clientIP(r *http.Request) string {
	if s.trustCFConnectingIP {
		if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return "0.0.0.0"
	}
	return host
}
