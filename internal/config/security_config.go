package config

import "time"

type SecurityConfig interface {
	GetSessionTTL() time.Duration
	GetAllowNoOriginCSRF() bool
	GetMaxPayloadBytes() int
	GetEdgeCacheTTL() time.Duration
	GetVersionCacheTTL() time.Duration
	GetRateLimitWindow() time.Duration
	GetDeviceCodeRateLimit() int
	GetPollRateLimit() int
	GetCommitRateLimit() int
	GetTrustCFConnectingIP() bool
}

type Security struct {
	SessionTTL          time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	AllowNoOriginCSRF   bool          `envconfig:"CSRF_ALLOW_NO_ORIGIN" default:"true"`
	MaxPayloadBytes     int           `envconfig:"MAX_PAYLOAD_BYTES" default:"500000"`
	EdgeCacheTTL        time.Duration `envconfig:"EDGE_CACHE_TTL" default:"5m"`
	VersionCacheTTL     time.Duration `envconfig:"VERSION_CACHE_TTL" default:"15s"`
	RateLimitWindow     time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	DeviceCodeRateLimit int           `envconfig:"RATE_LIMIT_DEVICE_CODE" default:"20"`
	PollRateLimit       int           `envconfig:"RATE_LIMIT_POLL" default:"60"`
	CommitRateLimit     int           `envconfig:"RATE_LIMIT_COMMIT" default:"30"`
	TrustCFConnectingIP bool          `envconfig:"TRUST_CF_CONNECTING_IP" default:"false"`
}

var _ SecurityConfig = Security{}

func (s Security) GetSessionTTL() time.Duration {
	return s.SessionTTL
}

// GetAllowNoOriginCSRF reports whether tokens derived with the constant
// "no-origin" binder are accepted alongside origin-bound ones.
func (s Security) GetAllowNoOriginCSRF() bool {
	return s.AllowNoOriginCSRF
}

func (s Security) GetMaxPayloadBytes() int {
	return s.MaxPayloadBytes
}

func (s Security) GetEdgeCacheTTL() time.Duration {
	return s.EdgeCacheTTL
}

func (s Security) GetVersionCacheTTL() time.Duration {
	return s.VersionCacheTTL
}

func (s Security) GetRateLimitWindow() time.Duration {
	return s.RateLimitWindow
}

func (s Security) GetDeviceCodeRateLimit() int {
	return s.DeviceCodeRateLimit
}

func (s Security) GetPollRateLimit() int {
	return s.PollRateLimit
}

func (s Security) GetCommitRateLimit() int {
	return s.CommitRateLimit
}

// GetTrustCFConnectingIP reports whether the CF-Connecting-IP header names
// the client. Only enable it when every request arrives through Cloudflare.
func (s Security) GetTrustCFConnectingIP() bool {
	return s.TrustCFConnectingIP
}
