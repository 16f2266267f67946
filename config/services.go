package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP gateway.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeSessionCleanup runs the expired session cleanup loop.
	ServiceModeSessionCleanup ServiceMode = "session-cleanup"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeSessionCleanup,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeSessionCleanup:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, session-cleanup)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

const (
	// DefaultSessionCleanupInterval is the pause between cleanup passes.
	DefaultSessionCleanupInterval = 10 * time.Minute
	// MinSessionCleanupInterval keeps replicas from hammering the store.
	MinSessionCleanupInterval = time.Minute
	// DefaultSessionCleanupBatchSize bounds the rows removed per batch.
	DefaultSessionCleanupBatchSize = 100
	// MaxSessionCleanupBatchSize caps the batch size.
	MaxSessionCleanupBatchSize = 10000
)

// SessionCleanupConfig contains expired session cleanup configuration.
type SessionCleanupConfig struct {
	// Enabled starts the cleanup loop in-process even when SERVICES does not name it.
	Enabled bool `env:"SESSION_CLEANUP_ENABLED" envDefault:"false"`

	// Interval is the pause between cleanup passes.
	Interval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"10m"`

	// BatchSize is the number of expired sessions removed per batch.
	BatchSize int `env:"SESSION_CLEANUP_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to session cleanup configuration values.
func (c *SessionCleanupConfig) Sanitize() {
	if c.Interval <= 0 {
		c.Interval = DefaultSessionCleanupInterval
	}
	if c.Interval < MinSessionCleanupInterval {
		c.Interval = MinSessionCleanupInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultSessionCleanupBatchSize
	}
	if c.BatchSize > MaxSessionCleanupBatchSize {
		c.BatchSize = MaxSessionCleanupBatchSize
	}
}
