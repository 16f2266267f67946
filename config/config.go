package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Identity provider and BFF session behavior
//   - database.go: Database, Redis and session backend configuration
//   - http.go: HTTP server and remote API configuration
//   - services.go: Service mode and session cleanup configuration
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// SessionEncryptionKeys seals tickets and session cookies.
	// Comma-separated "kid:hexkey" entries, first is primary. Required outside development.
	SessionEncryptionKeys string `env:"SESSION_ENCRYPTION_KEYS"`

	// Authentication configuration
	Auth AuthConfig
	BFF  BFFConfig `envPrefix:"BFF_"`

	// Database configuration
	Postgres     DBConfig    `envPrefix:"DB_"`
	Redis        RedisConfig `envPrefix:"REDIS_"`
	SessionStore SessionStoreConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Session cleanup configuration
	SessionCleanup SessionCleanupConfig

	// Observability configuration
	Observability ObservabilityConfig

	Log LogConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.BFF.Sanitize()
	c.SessionStore.Sanitize()
	c.SessionCleanup.Sanitize()
	c.Observability.Sanitize()
	c.Log.Sanitize()

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsSessionCleanupEnabled returns true if the session cleanup service is enabled,
// either through SERVICES or SESSION_CLEANUP_ENABLED.
func (c *AppConfig) IsSessionCleanupEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeSessionCleanup] || c.SessionCleanup.Enabled
}
