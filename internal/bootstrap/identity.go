package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/mmk-bff/config"
	"github.com/target/mmk-bff/internal/adapters/devauth"
	"github.com/target/mmk-bff/internal/adapters/oidc"
	"github.com/target/mmk-bff/internal/ports"
)

// Identity groups the identity provider adapters.
type Identity struct {
	Provider ports.AuthProvider
	Tokens   *oidc.TokenManager
	// Revoker is nil when the provider does not advertise revocation.
	Revoker ports.TokenRevoker
	// LogoutTokens is nil when back-channel logout is unavailable.
	LogoutTokens ports.LogoutTokenValidator
	// DPoP is nil unless a proof key is configured.
	DPoP *oidc.DPoPSigner
}

// IdentityDeps groups dependencies for BuildIdentity.
type IdentityDeps struct {
	Config  *config.AppConfig
	Tickets ports.TicketStore
	Logger  *slog.Logger
}

// BuildIdentity creates the identity provider and token manager for the configured auth mode.
func BuildIdentity(ctx context.Context, deps IdentityDeps) (Identity, error) {
	if deps.Config == nil {
		return Identity{}, errors.New("config is required")
	}
	if deps.Tickets == nil {
		return Identity{}, errors.New("ticket store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch deps.Config.Auth.Mode {
	case config.AuthModeMock:
		return buildDevIdentity(deps, logger)
	case config.AuthModeOAuth:
		return buildOAuthIdentity(ctx, deps, logger)
	default:
		return Identity{}, fmt.Errorf("unsupported auth mode %q", deps.Config.Auth.Mode)
	}
}

func buildDevIdentity(deps IdentityDeps, logger *slog.Logger) (Identity, error) {
	cfg := deps.Config
	prov, err := devauth.NewProvider(devauth.Config{
		UserID:       cfg.Auth.DevAuth.UserID,
		Email:        cfg.Auth.DevAuth.Email,
		Name:         cfg.Auth.DevAuth.Name,
		CallbackPath: cfg.BFF.ManagementBasePath + "/callback",
		TokenExpiry:  cfg.BFF.SessionLifetime,
	})
	if err != nil {
		return Identity{}, fmt.Errorf("create dev auth provider: %w", err)
	}
	logger.Warn("dev auth mode enabled; every login signs in the configured dev user", "user_id", cfg.Auth.DevAuth.UserID)

	// Dev tokens cannot be refreshed; the ticket's token is used until it expires.
	tokens, err := oidc.NewTokenManager(oidc.TokenManagerOptions{
		Tickets: deps.Tickets,
		Skew:    cfg.BFF.TokenRefreshSkew,
		Logger:  logger,
	})
	if err != nil {
		return Identity{}, err
	}
	return Identity{Provider: prov, Tokens: tokens}, nil
}

func buildOAuthIdentity(ctx context.Context, deps IdentityDeps, logger *slog.Logger) (Identity, error) {
	cfg := deps.Config
	oauth := cfg.Auth.OAuth
	if oauth.DiscoveryURL == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
		return Identity{}, fmt.Errorf("AUTH_MODE=oauth requires discovery URL, client ID and client secret (discovery_url_empty=%t client_id_empty=%t client_secret_empty=%t)",
			oauth.DiscoveryURL == "", oauth.ClientID == "", oauth.ClientSecret == "")
	}

	var signer *oidc.DPoPSigner
	if cfg.BFF.DPoPJWKFile != "" {
		s, err := oidc.LoadDPoPSigner(cfg.BFF.DPoPJWKFile)
		if err != nil {
			return Identity{}, fmt.Errorf("load DPoP key: %w", err)
		}
		signer = s
		logger.Info("DPoP enabled", "key_file", cfg.BFF.DPoPJWKFile)
	}

	prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		RedirectURL:  oauth.RedirectURL,
		Scope:        oauth.Scope,
		DiscoveryURL: oauth.DiscoveryURL,
		DPoP:         signer,
	})
	if err != nil {
		return Identity{}, fmt.Errorf("create OIDC provider: %w", err)
	}

	id := Identity{Provider: prov, DPoP: signer, LogoutTokens: prov.LogoutTokenValidator()}

	revoker, err := prov.Revoker()
	switch {
	case errors.Is(err, oidc.ErrNoRevocationEndpoint):
		logger.Warn("identity provider has no revocation endpoint; refresh tokens are not revoked on logout")
	case err != nil:
		return Identity{}, fmt.Errorf("create token revoker: %w", err)
	default:
		id.Revoker = revoker
	}

	id.Tokens, err = oidc.NewTokenManager(oidc.TokenManagerOptions{
		OAuth:             prov.OAuth2Config(),
		ClientCredentials: prov.ClientCredentialsConfig(strings.Fields(oauth.ClientScope)),
		Tickets:           deps.Tickets,
		HTTPClient:        prov.HTTPClient(),
		DPoP:              signer,
		Skew:              cfg.BFF.TokenRefreshSkew,
		Logger:            logger,
	})
	if err != nil {
		return Identity{}, fmt.Errorf("create token manager: %w", err)
	}
	return id, nil
}
