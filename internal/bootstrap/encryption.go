package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-bff/config"
	"github.com/target/mmk-bff/internal/data/cryptoutil"
)

// Key ring purposes. Tickets and cookies are sealed with keys derived for each purpose so a
// value from one can never be replayed as the other.
const (
	ticketPurpose = "bff.tickets"
	cookiePurpose = "bff.cookie"
)

// Encryptors holds the sealers derived from SESSION_ENCRYPTION_KEYS.
type Encryptors struct {
	Tickets cryptoutil.Encryptor
	Cookies cryptoutil.Encryptor
}

// CreateEncryptors builds the ticket and cookie sealers from the configured key ring.
// In development an empty key list falls back to the noop encryptor with a warning;
// elsewhere it is an error.
func CreateEncryptors(cfg *config.AppConfig, logger *slog.Logger) (Encryptors, error) {
	if cfg == nil {
		return Encryptors{}, errors.New("config is required")
	}
	keys, err := config.ParseEncryptionKeys(cfg.SessionEncryptionKeys)
	if err != nil {
		return Encryptors{}, fmt.Errorf("parse session encryption keys: %w", err)
	}
	if len(keys) == 0 {
		if !cfg.IsDev {
			return Encryptors{}, errors.New("session encryption keys are required")
		}
		if logger != nil {
			logger.Warn("session encryption keys are empty, using noop encryptor; tickets and cookies are NOT protected")
		}
		return Encryptors{Tickets: cryptoutil.NoopEncryptor{}, Cookies: cryptoutil.NoopEncryptor{}}, nil
	}

	ring, err := cryptoutil.NewKeyRing(ticketPurpose, keys...)
	if err != nil {
		return Encryptors{}, fmt.Errorf("create key ring: %w", err)
	}
	if logger != nil {
		logger.Info("session key ring loaded", "keys", len(keys), "primary_kid", ring.PrimaryKeyID())
	}
	return Encryptors{Tickets: ring, Cookies: ring.WithPurpose(cookiePurpose)}, nil
}
