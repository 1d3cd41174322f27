package config

import (
	"strings"
)

type EnvVars struct {
	Port      string `envconfig:"PORT" default:"8080"`
	AppName   string `envconfig:"APP_NAME" default:"AMQ Songs"`
	Env       string `envconfig:"ENV" default:"DEV"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	StaticDir string `envconfig:"STATIC_DIR"`
	RedisURL  string `envconfig:"REDIS_URL"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	if strings.HasPrefix(e.Port, ":") {
		return e.Port
	}
	return ":" + e.Port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// GetStaticDir returns the directory static assets are served from. Empty
// disables the static fallback.
func (e EnvVars) GetStaticDir() string {
	return e.StaticDir
}

// GetRedisURL returns the shared cache URL. Empty keeps the edge cache and
// rate-limit buckets in process memory.
func (e EnvVars) GetRedisURL() string {
	return e.RedisURL
}
