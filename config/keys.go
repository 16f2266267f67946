package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/target/mmk-bff/internal/data/cryptoutil"
)

// ParseEncryptionKeys parses SESSION_ENCRYPTION_KEYS. Entries are comma-separated "kid:hexkey"
// pairs with the primary first; a single bare hex key is accepted under kid "k1".
// Empty input returns no keys.
func ParseEncryptionKeys(raw string) ([]cryptoutil.Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	entries := strings.Split(raw, ",")
	keys := make([]cryptoutil.Key, 0, len(entries))
	for i, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kid, secretHex, ok := strings.Cut(entry, ":")
		if !ok {
			if len(entries) > 1 {
				return nil, fmt.Errorf("encryption key %d: expected kid:hexkey", i+1)
			}
			kid, secretHex = "k1", entry
		}
		secret, err := hex.DecodeString(strings.TrimSpace(secretHex))
		if err != nil {
			return nil, fmt.Errorf("encryption key %q: invalid hex: %w", kid, err)
		}
		keys = append(keys, cryptoutil.Key{ID: strings.TrimSpace(kid), Secret: secret})
	}
	return keys, nil
}
