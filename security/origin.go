// Package security decides which browser origins may talk to the API and
// builds the CORS headers answered to them.
package security

import (
	"net/http"
	"net/url"
	"strings"
)

// Policy holds the trusted origins: one exact production origin, an optional
// single-wildcard preview pattern and a set of exact development origins.
type Policy struct {
	prod          string
	previewPrefix string
	previewSuffix string
	dev           map[string]struct{}

	allowMethods string
	allowHeaders string
}

// NewPolicy builds a Policy. previewPattern takes the form
// "https://*.example.pages.dev"; an empty pattern disables preview matching.
func NewPolicy(prod, previewPattern string, dev []string, allowMethods, allowHeaders string) *Policy {
	p := &Policy{
		prod:         prod,
		dev:          make(map[string]struct{}, len(dev)),
		allowMethods: allowMethods,
		allowHeaders: allowHeaders,
	}
	if prefix, suffix, ok := strings.Cut(previewPattern, "*"); ok {
		p.previewPrefix, p.previewSuffix = prefix, suffix
	}
	for _, o := range dev {
		if o = strings.TrimSpace(o); o != "" {
			p.dev[o] = struct{}{}
		}
	}
	return p
}

// ProdOrigin is the canonical origin CORS falls back to.
func (p *Policy) ProdOrigin() string {
	return p.prod
}

// IsAllowedOrigin reports whether origin is trusted. Only https origins match
// the production host and preview pattern; the dev set is matched verbatim.
func (p *Policy) IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	if origin == p.prod {
		return true
	}
	if _, ok := p.dev[origin]; ok {
		return true
	}
	return p.matchesPreview(origin)
}

// matchesPreview binds the wildcard to the host label(s) between the prefix
// and the suffix, so "https://x.preview.dev.attacker.com" never matches
// "https://*.preview.dev".
func (p *Policy) matchesPreview(origin string) bool {
	if p.previewSuffix == "" || !strings.HasPrefix(p.previewPrefix, "https://") {
		return false
	}
	if !strings.HasPrefix(origin, p.previewPrefix) || !strings.HasSuffix(origin, p.previewSuffix) {
		return false
	}
	if len(origin) <= len(p.previewPrefix)+len(p.previewSuffix) {
		return false
	}
	middle := origin[len(p.previewPrefix) : len(origin)-len(p.previewSuffix)]
	for _, r := range middle {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
		default:
			return false
		}
	}
	return !strings.HasPrefix(middle, ".") && !strings.HasPrefix(middle, "-")
}

// IsFromAllowedSite applies the trust checks in order: the Origin header if
// present, else the origin of the Referer, else the browser's Sec-Fetch-Site
// signal.
func (p *Policy) IsFromAllowedSite(r *http.Request) bool {
	if origin := r.Header.Get("Origin"); origin != "" {
		return p.IsAllowedOrigin(origin)
	}
	if refOrigin := RefererOrigin(r); refOrigin != "" {
		return p.IsAllowedOrigin(refOrigin)
	}
	switch strings.ToLower(r.Header.Get("Sec-Fetch-Site")) {
	case "same-origin", "same-site":
		return true
	}
	return false
}

// RefererOrigin returns scheme://host of the Referer header, or "" when the
// header is missing or unparsable.
func RefererOrigin(r *http.Request) string {
	ref := r.Header.Get("Referer")
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// CORSHeaders writes the CORS response headers. A trusted Origin is
// reflected, anything else gets the production origin.
func (p *Policy) CORSHeaders(h http.Header, origin string) {
	allowOrigin := p.prod
	if p.IsAllowedOrigin(origin) {
		allowOrigin = origin
	}
	h.Set("Access-Control-Allow-Origin", allowOrigin)
	h.Set("Access-Control-Allow-Methods", p.allowMethods)
	h.Set("Access-Control-Allow-Headers", p.allowHeaders)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Max-Age", "86400")
	h.Add("Vary", "Origin")
}
