package security

import "net/http"

// baselineHeaders go on every API response.
var baselineHeaders = map[string]string{
	"X-Content-Type-Options":       "nosniff",
	"Referrer-Policy":              "no-referrer",
	"Permissions-Policy":           "camera=(), microphone=(), geolocation=()",
	"X-Frame-Options":              "DENY",
	"Cross-Origin-Resource-Policy": "same-site",
}

// SetBaselineHeaders writes the fixed security headers.
func SetBaselineHeaders(h http.Header) {
	for k, v := range baselineHeaders {
		h.Set(k, v)
	}
}
