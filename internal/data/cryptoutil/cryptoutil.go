package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Encryptor seals and opens opaque payloads such as session tickets and cookie values.
// Implementations must be safe for concurrent use.
type Encryptor interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// ErrDecrypt marks ciphertext that could not be opened: unknown format, unknown key, or a failed
// authentication tag. Callers use it to tell tampering or key loss apart from other failures.
var ErrDecrypt = errors.New("decrypt failed")

const (
	// Versioned prefix; the key id follows it so keys can rotate without data migrations.
	cipherPrefixV1 = "v1:"
	noopPrefix     = "noop:"
	keySize        = 32
)

// Key is a named AES-256 key.
type Key struct {
	ID     string
	Secret []byte
}

// KeyRing implements Encryptor using AES-256-GCM over a set of named keys.
// It encrypts with the primary (first) key and decrypts with whichever key the ciphertext names.
// The purpose string is bound as additional authenticated data, so ciphertext produced for one
// purpose cannot be opened under another.
type KeyRing struct {
	primary string
	aeads   map[string]cipher.AEAD
	purpose []byte
}

var _ Encryptor = (*KeyRing)(nil)

// NewKeyRing constructs a KeyRing. At least one key is required; each must be 32 bytes.
func NewKeyRing(purpose string, keys ...Key) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one key is required")
	}
	ring := &KeyRing{
		primary: keys[0].ID,
		aeads:   make(map[string]cipher.AEAD, len(keys)),
		purpose: []byte(purpose),
	}
	for _, k := range keys {
		if k.ID == "" || strings.Contains(k.ID, ":") {
			return nil, fmt.Errorf("invalid key id %q", k.ID)
		}
		if len(k.Secret) != keySize {
			return nil, fmt.Errorf("aes-gcm key %q must be 32 bytes, got %d", k.ID, len(k.Secret))
		}
		if _, dup := ring.aeads[k.ID]; dup {
			return nil, fmt.Errorf("duplicate key id %q", k.ID)
		}
		block, err := aes.NewCipher(append([]byte(nil), k.Secret...))
		if err != nil {
			return nil, err
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		ring.aeads[k.ID] = gcm
	}
	return ring, nil
}

// WithPurpose returns a ring sharing the same keys but bound to a different purpose.
func (r *KeyRing) WithPurpose(purpose string) *KeyRing {
	return &KeyRing{primary: r.primary, aeads: r.aeads, purpose: []byte(purpose)}
}

// PrimaryKeyID returns the id of the key used for new ciphertext.
func (r *KeyRing) PrimaryKeyID() string { return r.primary }

// Encrypt seals plaintext with a random nonce and returns "v1:<kid>:<base64(nonce||ct)>".
func (r *KeyRing) Encrypt(plaintext []byte) (string, error) {
	gcm := r.aeads[r.primary]
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	// nonce||ciphertext
	buf := gcm.Seal(nonce, nonce, plaintext, r.purpose)
	return cipherPrefixV1 + r.primary + ":" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Decrypt opens ciphertext produced by Encrypt with any key in the ring.
func (r *KeyRing) Decrypt(ciphertext string) ([]byte, error) {
	rest, ok := strings.CutPrefix(ciphertext, cipherPrefixV1)
	if !ok {
		return nil, fmt.Errorf("%w: unknown ciphertext version (prefix: %s)", ErrDecrypt, safePrefix(ciphertext))
	}
	kid, b64, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("%w: missing key id", ErrDecrypt)
	}
	gcm, ok := r.aeads[kid]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key id %q", ErrDecrypt, kid)
	}
	data, err := base64.RawURLEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	pt, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], r.purpose)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return pt, nil
}

func safePrefix(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

// NoopEncryptor is useful for tests and local development; it stores plaintext with a prefix marker.
type NoopEncryptor struct{}

func (NoopEncryptor) Encrypt(plaintext []byte) (string, error) {
	return noopPrefix + base64.RawURLEncoding.EncodeToString(plaintext), nil
}

func (NoopEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	b64, ok := strings.CutPrefix(ciphertext, noopPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: invalid noop ciphertext", ErrDecrypt)
	}
	pt, err := base64.RawURLEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return pt, nil
}
