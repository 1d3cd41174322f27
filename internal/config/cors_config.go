package config

import (
	"fmt"
	"strings"
)

type CorsConfig interface {
	GetProdOrigin() string
	GetPreviewOriginPattern() string
	GetDevOrigins() []string
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type Cors struct {
	ProdOrigin           string   `envconfig:"PROD_ORIGIN" default:"https://monofly-amq.pages.dev"`
	PreviewOriginPattern string   `envconfig:"PREVIEW_ORIGIN_PATTERN" default:"https://*.monofly-amq.pages.dev"`
	DevOrigins           []string `envconfig:"DEV_ORIGINS" default:"http://localhost:8788,http://127.0.0.1:8788"`
}

var _ CorsConfig = Cors{}

func (c Cors) validate() error {
	if !strings.HasPrefix(c.ProdOrigin, "https://") {
		return fmt.Errorf("PROD_ORIGIN must be an https origin, got %q", c.ProdOrigin)
	}
	if c.PreviewOriginPattern != "" && strings.Count(c.PreviewOriginPattern, "*") != 1 {
		return fmt.Errorf("PREVIEW_ORIGIN_PATTERN must hold exactly one '*', got %q", c.PreviewOriginPattern)
	}
	return nil
}

func (c Cors) GetProdOrigin() string {
	return c.ProdOrigin
}

func (c Cors) GetPreviewOriginPattern() string {
	return c.PreviewOriginPattern
}

func (c Cors) GetDevOrigins() []string {
	return c.DevOrigins
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, OPTIONS, HEAD"
}

func (Cors) GetAllowedHeaders() string {
	return "content-type, accept, x-csrf-token"
}
