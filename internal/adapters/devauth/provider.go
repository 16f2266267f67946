package devauth

// Package devauth provides a simple, config-driven AuthProvider for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/segmentio/ksuid"
	domainauth "github.com/target/mmk-bff/internal/domain/auth"
	"github.com/target/mmk-bff/internal/domain/bff"
	"github.com/target/mmk-bff/internal/domain/session"
	"github.com/target/mmk-bff/internal/ports"
)

// Config controls the dev auth provider behavior.
// UserID and Email are required.
type Config struct {
	UserID       string
	Email        string
	Name         string
	CallbackPath string        // default /bff/callback
	TokenExpiry  time.Duration // default 8h when zero
}

// Provider implements ports.AuthProvider for local development.
// It short-circuits the OAuth flow by redirecting back to our own callback
// with locally generated state and nonce.
// Exchange ignores the code and returns the configured identity with a fresh IdP session id.
type Provider struct {
	cfg Config
	now func() time.Time
}

var _ ports.AuthProvider = (*Provider)(nil)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = "/bff/callback"
	}
	if cfg.TokenExpiry == 0 {
		cfg.TokenExpiry = 8 * time.Hour
	}
	return &Provider{cfg: cfg, now: time.Now}, nil
}

// Begin returns a local callback URL and cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	q := url.Values{"code": {"dev"}, "state": {state}}
	return p.cfg.CallbackPath + "?" + q.Encode(), state, nonce, nil
}

// Exchange ignores the provided code/state/nonce (validation handled by handler) and returns the dev identity.
func (p *Provider) Exchange(_ context.Context, _ ports.ExchangeInput) (domainauth.Identity, error) {
	accessToken, err := randomString(32)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("generate access token: %w", err)
	}
	claims := []session.Claim{{Type: "email", Value: p.cfg.Email}}
	if p.cfg.Name != "" {
		claims = append([]session.Claim{{Type: session.ClaimName, Value: p.cfg.Name}}, claims...)
	}
	return domainauth.Identity{
		Subject:   p.cfg.UserID,
		SessionID: "dev-" + ksuid.New().String(),
		Name:      p.cfg.Name,
		Claims:    claims,
		Tokens: session.TokenSet{
			AccessToken: "dev-" + accessToken,
			TokenType:   bff.TokenTypeBearer,
			Expiry:      p.now().Add(p.cfg.TokenExpiry),
		},
	}, nil
}

// EndSessionURL returns empty: there is no upstream session to end.
func (p *Provider) EndSessionURL(string, string) string { return "" }

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least n base64 URL chars
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
