package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/target/mmk-bff/config"
)

// NewLogger builds a slog logger writing to w in the configured format and level.
func NewLogger(w io.Writer, lc config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	if lc.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// InitLogger installs a JSON info logger on stdout for use before configuration is loaded.
func InitLogger() *slog.Logger {
	return ConfigureLogger(config.LogConfig{Level: "info", Format: "json"})
}

// ConfigureLogger replaces the default logger according to lc.
func ConfigureLogger(lc config.LogConfig) *slog.Logger {
	logger := NewLogger(os.Stdout, lc)
	slog.SetDefault(logger)
	return logger
}

// LoadConfig reads an optional .env file, then parses and sanitizes the environment.
func LoadConfig() (config.AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
	}

	cfg, err := env.ParseAs[config.AppConfig]()
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig rejects configurations that cannot run: no enabled service, or
// development-only settings outside development. All problems are reported together.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}

	var problems []error
	services, err := cfg.GetEnabledServices()
	switch {
	case err != nil:
		problems = append(problems, fmt.Errorf("invalid service configuration: %w", err))
	case len(services) == 0:
		problems = append(problems, errors.New("no services enabled"))
	}

	if !cfg.IsDev {
		if cfg.SessionEncryptionKeys == "" {
			problems = append(problems, errors.New("SESSION_ENCRYPTION_KEYS is required outside development"))
		}
		if cfg.SessionStore.Backend == config.SessionBackendMemory {
			problems = append(problems, errors.New("the memory session store is for development only"))
		}
		if cfg.Auth.Mode == config.AuthModeMock {
			problems = append(problems, errors.New("AUTH_MODE=mock is for development only"))
		}
	}
	return errors.Join(problems...)
}

// EnabledServiceNames lists enabled services in sorted order, or nothing when the
// configuration is invalid.
func EnabledServiceNames(cfg *config.AppConfig) []string {
	if cfg == nil {
		return nil
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(services))
	for svc, on := range services {
		if on {
			names = append(names, string(svc))
		}
	}
	sort.Strings(names)
	return names
}
