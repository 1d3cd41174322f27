package csrf

import (
	"net/http"
	"time"
)

// SessionCookieName holds the upstream bearer credential. The __Host- prefix
// pins it to this host, the root path and Secure transport.
const SessionCookieName = "__Host-gh_at"

// SessionCredential returns the session credential carried by r, or "".
func SessionCredential(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetSessionCookie stores credential in an HTTP-only, Secure, Strict
// same-site cookie scoped to the whole site.
func SetSessionCookie(w http.ResponseWriter, credential string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    credential,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
