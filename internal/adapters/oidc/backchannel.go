package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/target/mmk-bff/internal/ports"
)

const backchannelLogoutEvent = "http://schemas.openid.net/event/backchannel-logout"

// LogoutTokenValidator validates OIDC back-channel logout tokens.
type LogoutTokenValidator struct {
	verifier *gooidc.IDTokenVerifier
}

var _ ports.LogoutTokenValidator = (*LogoutTokenValidator)(nil)

// NewLogoutTokenValidator wraps a verifier configured for this client's audience.
func NewLogoutTokenValidator(verifier *gooidc.IDTokenVerifier) *LogoutTokenValidator {
	return &LogoutTokenValidator{verifier: verifier}
}

type logoutTokenClaims struct {
	Subject   string                     `json:"sub"`
	SessionID string                     `json:"sid"`
	Nonce     *string                    `json:"nonce"`
	Events    map[string]json.RawMessage `json:"events"`
}

// ValidateLogoutToken verifies signature, issuer, audience and expiry, then the logout-specific claims.
func (v *LogoutTokenValidator) ValidateLogoutToken(ctx context.Context, raw string) (ports.LogoutTokenClaims, error) {
	if raw == "" {
		return ports.LogoutTokenClaims{}, errors.New("logout token is required")
	}
	tok, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return ports.LogoutTokenClaims{}, fmt.Errorf("verify logout token: %w", err)
	}

	var c logoutTokenClaims
	if err := tok.Claims(&c); err != nil {
		return ports.LogoutTokenClaims{}, fmt.Errorf("parse logout token claims: %w", err)
	}
	if _, ok := c.Events[backchannelLogoutEvent]; !ok {
		return ports.LogoutTokenClaims{}, errors.New("logout token is missing the back-channel logout event")
	}
	if c.Nonce != nil {
		return ports.LogoutTokenClaims{}, errors.New("logout token must not contain a nonce")
	}
	if c.Subject == "" && c.SessionID == "" {
		return ports.LogoutTokenClaims{}, errors.New("logout token must contain sub or sid")
	}
	return ports.LogoutTokenClaims{Subject: c.Subject, SessionID: c.SessionID}, nil
}
