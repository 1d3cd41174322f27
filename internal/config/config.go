package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config interface {
	EnvConfig
	RepoConfig
	CorsConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetStaticDir() string
	GetRedisURL() string
}

type mainConfig struct {
	EnvVars
	Repo
	Cors
	Security
}

// New reads the configuration from the environment, applying defaults for
// anything unset.
func New() (Config, error) {
	var c mainConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("[config New] %w", err)
	}
	if err := c.Cors.validate(); err != nil {
		return nil, fmt.Errorf("[config New] %w", err)
	}
	return c, nil
}
