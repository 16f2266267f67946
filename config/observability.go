package config

import "strings"

// ObservabilityConfig groups configuration that controls metrics exposure.
type ObservabilityConfig struct {
	Prometheus PrometheusConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Prometheus.Sanitize()
}

// PrometheusConfig controls the scrape endpoint. The path is served by the gateway router
// and is never subject to anti-forgery checks.
type PrometheusConfig struct {
	Enabled bool   `env:"OBSERVABILITY_PROMETHEUS_ENABLED" envDefault:"true"`
	Path    string `env:"OBSERVABILITY_PROMETHEUS_PATH"    envDefault:"/metrics"`
}

// Sanitize normalises the scrape path.
func (c *PrometheusConfig) Sanitize() {
	c.Path = strings.TrimSpace(c.Path)
	if c.Path == "" {
		c.Path = "/metrics"
	}
	if !strings.HasPrefix(c.Path, "/") {
		c.Path = "/" + c.Path
	}
	c.Path = strings.TrimRight(c.Path, "/")
	if c.Path == "" {
		c.Path = "/metrics"
	}
}
