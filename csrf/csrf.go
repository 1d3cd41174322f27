// Package csrf derives and verifies CSRF tokens from the session credential.
// Tokens are never stored: token = base64url(SHA-256(credential + "|" + binder)),
// recomputed on every mutating request.
package csrf

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	// HeaderName carries the token on mutating requests.
	HeaderName = "X-CSRF-Token"
	// FallbackBinder is the constant binder accepted for clients that cannot
	// send an Origin. It narrows the binding to the credential alone.
	FallbackBinder = "no-origin"
)

// DeriveToken returns the token bound to credential and binder.
func DeriveToken(credential, binder string) string {
	sum := sha256.Sum256([]byte(credential + "|" + binder))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Binder returns the value mixed into the token for r: its Origin header,
// else the origin the request was addressed to.
func Binder(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	if r.Host == "" {
		return FallbackBinder
	}
	return getScheme(r) + "://" + r.Host
}

// Verifier checks the X-CSRF-Token header of mutating requests.
type Verifier struct {
	allowFallback bool
}

// NewVerifier returns a Verifier. allowFallback enables the FallbackBinder
// compatibility path.
func NewVerifier(allowFallback bool) *Verifier {
	return &Verifier{allowFallback: allowFallback}
}

// Verify reports whether r carries a session credential and a CSRF header
// matching the token derived for it. A missing credential or header is a
// plain false.
func (v *Verifier) Verify(r *http.Request) bool {
	credential := SessionCredential(r)
	if credential == "" {
		return false
	}
	header := r.Header.Get(HeaderName)
	if header == "" {
		return false
	}
	if tokensEqual(header, DeriveToken(credential, Binder(r))) {
		return true
	}
	if !v.allowFallback {
		return false
	}
	if tokensEqual(header, DeriveToken(credential, FallbackBinder)) {
		log.Warn().Str("path", r.URL.Path).Msg("CSRF accepted via no-origin fallback binder")
		return true
	}
	return false
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
