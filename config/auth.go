package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"mmk-bff"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"mmk-bff"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/bff/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email offline_access"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	// PostLogoutRedirectURL is sent to the IdP end-session endpoint.
	PostLogoutRedirectURL string `env:"POST_LOGOUT_REDIRECT_URL"`
	// ClientScope is requested for client credentials tokens. Empty requests the client's defaults.
	ClientScope string `env:"CLIENT_SCOPE"`
}

// Scopes splits Scope on whitespace.
func (c OAuthConfig) Scopes() []string {
	return strings.Fields(c.Scope)
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID string `env:"USER_ID" envDefault:"dev-user"`
	Email  string `env:"EMAIL"   envDefault:"dev@example.com"`
	Name   string `env:"NAME"    envDefault:"Dev User"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

const (
	defaultAntiForgeryHeaderName  = "X-CSRF"
	defaultAntiForgeryHeaderValue = "1"
	defaultManagementBasePath     = "/bff"
	defaultSessionCookieName      = "__Host-bff"
	defaultSessionLifetime        = 8 * time.Hour
	defaultTokenRefreshSkew       = 60 * time.Second
)

// BFFConfig controls gateway session and token custody behavior.
type BFFConfig struct {
	// RevokeRefreshTokenOnLogout revokes refresh tokens at the IdP when sessions are revoked.
	RevokeRefreshTokenOnLogout bool `env:"REVOKE_REFRESH_TOKEN_ON_LOGOUT" envDefault:"true"`

	// BackchannelLogoutAllUserSessions widens back-channel logout to every session of the subject.
	BackchannelLogoutAllUserSessions bool `env:"BACKCHANNEL_LOGOUT_ALL_USER_SESSIONS" envDefault:"false"`

	AntiForgeryHeaderName  string `env:"ANTI_FORGERY_HEADER_NAME"  envDefault:"X-CSRF"`
	AntiForgeryHeaderValue string `env:"ANTI_FORGERY_HEADER_VALUE" envDefault:"1"`

	// ManagementBasePath prefixes login, callback, logout, user and backchannel endpoints.
	ManagementBasePath string `env:"MANAGEMENT_BASE_PATH" envDefault:"/bff"`

	// AppDiscriminator partitions the session store between applications sharing it.
	AppDiscriminator string `env:"APP_DISCRIMINATOR"`

	SessionCookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"__Host-bff"`
	SessionLifetime   time.Duration `env:"SESSION_LIFETIME"    envDefault:"8h"`
	SlidingExpiration bool          `env:"SLIDING_EXPIRATION"  envDefault:"true"`

	// DPoPJWKFile points at a private JWK used to bind tokens with DPoP. Optional.
	DPoPJWKFile string `env:"DPOP_JWK_FILE"`

	// TokenRefreshSkew refreshes user access tokens this long before they expire.
	TokenRefreshSkew time.Duration `env:"TOKEN_REFRESH_SKEW" envDefault:"60s"`

	// DisableAntiForgeryCheck is for local tooling only.
	DisableAntiForgeryCheck bool `env:"DISABLE_ANTI_FORGERY_CHECK" envDefault:"false"`
}

// Sanitize applies guardrails to BFF configuration values.
func (c *BFFConfig) Sanitize() {
	c.AntiForgeryHeaderName = strings.TrimSpace(c.AntiForgeryHeaderName)
	if c.AntiForgeryHeaderName == "" {
		c.AntiForgeryHeaderName = defaultAntiForgeryHeaderName
	}
	if c.AntiForgeryHeaderValue == "" {
		c.AntiForgeryHeaderValue = defaultAntiForgeryHeaderValue
	}

	c.ManagementBasePath = "/" + strings.Trim(strings.TrimSpace(c.ManagementBasePath), "/")
	if c.ManagementBasePath == "/" {
		c.ManagementBasePath = defaultManagementBasePath
	}

	c.SessionCookieName = strings.TrimSpace(c.SessionCookieName)
	if c.SessionCookieName == "" {
		c.SessionCookieName = defaultSessionCookieName
	}
	if c.SessionLifetime <= 0 {
		c.SessionLifetime = defaultSessionLifetime
	}
	if c.TokenRefreshSkew < 0 {
		c.TokenRefreshSkew = defaultTokenRefreshSkew
	}
	c.AppDiscriminator = strings.TrimSpace(c.AppDiscriminator)
	c.DPoPJWKFile = strings.TrimSpace(c.DPoPJWKFile)
}
