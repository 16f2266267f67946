package ports

// Package ports defines interfaces (hexagonal ports) for the gateway's auth and session behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/target/mmk-bff/internal/domain/auth"
	"github.com/target/mmk-bff/internal/domain/bff"
)

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying the nonce, and returns the identity with its tokens.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)

	// EndSessionURL returns the IdP logout URL for the given id token, or empty when unsupported.
	EndSessionURL(idToken, postLogoutRedirect string) string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// LogoutTokenClaims are the validated claims of an OIDC back-channel logout token.
type LogoutTokenClaims struct {
	Subject   string
	SessionID string
}

// LogoutTokenValidator validates back-channel logout tokens.
type LogoutTokenValidator interface {
	ValidateLogoutToken(ctx context.Context, raw string) (LogoutTokenClaims, error)
}

// TokenRevoker revokes refresh tokens at the identity provider.
type TokenRevoker interface {
	RevokeRefreshToken(ctx context.Context, refreshToken string) error
}

// TokenManager mints or refreshes access tokens.
// Implementations return bff.ErrNoToken when no token can be produced.
type TokenManager interface {
	GetUserAccessToken(ctx context.Context, user *bff.Principal, params *bff.TokenParameters) (bff.Token, error)
	GetClientAccessToken(ctx context.Context, params *bff.TokenParameters) (bff.Token, error)
}

// AccessTokenRetriever decides which token, if any, accompanies a proxied request.
type AccessTokenRetriever interface {
	GetAccessToken(ctx context.Context, rc bff.AccessTokenRetrievalContext) bff.AccessTokenResult
}
