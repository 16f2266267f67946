package oidc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/target/mmk-bff/internal/ports"
)

// RevokerConfig configures an RFC 7009 token revocation client.
type RevokerConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

// Revoker revokes refresh tokens at the identity provider.
type Revoker struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

var _ ports.TokenRevoker = (*Revoker)(nil)

// ErrNoRevocationEndpoint is returned when the identity provider does not advertise revocation.
var ErrNoRevocationEndpoint = errors.New("identity provider has no revocation endpoint")

// NewRevoker constructs a Revoker.
func NewRevoker(cfg RevokerConfig) (*Revoker, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNoRevocationEndpoint
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Revoker{
		endpoint:     cfg.Endpoint,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   client,
	}, nil
}

// RevokeRefreshToken posts the token with a refresh_token hint. Any non-2xx response is an error.
func (r *Revoker) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return errors.New("refresh token is required")
	}

	form := url.Values{}
	form.Set("token", refreshToken)
	form.Set("token_type_hint", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(url.QueryEscape(r.clientID), url.QueryEscape(r.clientSecret))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revocation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("revocation endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
