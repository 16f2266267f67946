package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/target/mmk-bff/internal/domain/bff"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://app.example.com").
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain. Must be empty for __Host- cookies.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// RemoteAPIs lists proxied APIs as "path=url[:token]" entries separated by ";".
	// token is one of user, client, user_or_client or optional_user.
	RemoteAPIs RemoteAPIs `env:"REMOTE_APIS"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.Addr = strings.TrimSpace(h.Addr)
	if h.Addr == "" {
		h.Addr = ":8080"
	}
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	h.CookieDomain = strings.TrimSpace(h.CookieDomain)
}

// RemoteAPI is a single proxied upstream.
type RemoteAPI struct {
	LocalPath         string
	Target            *url.URL
	RequiredToken     bff.RequiredTokenType
	OptionalUserToken bool
}

// RemoteAPIs is the parsed REMOTE_APIS value.
type RemoteAPIs []RemoteAPI

const optionalUserTokenSuffix = "optional_user"

// UnmarshalText implements encoding.TextUnmarshaler for RemoteAPIs.
func (r *RemoteAPIs) UnmarshalText(text []byte) error {
	parsed, err := ParseRemoteAPIs(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRemoteAPIs parses "path=url[:token];..." entries. Empty input yields no routes.
func ParseRemoteAPIs(raw string) (RemoteAPIs, error) {
	var out RemoteAPIs
	seen := make(map[string]bool)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		api, err := parseRemoteAPI(entry)
		if err != nil {
			return nil, err
		}
		if seen[api.LocalPath] {
			return nil, fmt.Errorf("duplicate remote API path %q", api.LocalPath)
		}
		seen[api.LocalPath] = true
		out = append(out, api)
	}
	return out, nil
}

func parseRemoteAPI(entry string) (RemoteAPI, error) {
	path, target, ok := strings.Cut(entry, "=")
	path, target = strings.TrimSpace(path), strings.TrimSpace(target)
	if !ok || path == "" || target == "" {
		return RemoteAPI{}, fmt.Errorf("invalid remote API %q: expected path=url", entry)
	}
	if !strings.HasPrefix(path, "/") {
		return RemoteAPI{}, fmt.Errorf("invalid remote API %q: path must start with /", entry)
	}

	api := RemoteAPI{LocalPath: strings.TrimRight(path, "/")}
	if api.LocalPath == "" {
		return RemoteAPI{}, fmt.Errorf("invalid remote API %q: path cannot be /", entry)
	}

	// A trailing ":<token>" is only a requirement when it names one; otherwise it is a port.
	if i := strings.LastIndex(target, ":"); i > 0 {
		suffix := strings.ToLower(target[i+1:])
		switch {
		case suffix == optionalUserTokenSuffix:
			api.OptionalUserToken = true
			target = target[:i]
		case !strings.HasPrefix(suffix, "//"):
			if req, err := bff.ParseRequiredTokenType(suffix); err == nil && req != bff.TokenTypeNone {
				api.RequiredToken = req
				target = target[:i]
			}
		}
	}

	u, err := url.Parse(target)
	if err != nil {
		return RemoteAPI{}, fmt.Errorf("invalid remote API %q: %w", entry, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return RemoteAPI{}, fmt.Errorf("invalid remote API %q: url must be absolute http(s)", entry)
	}
	api.Target = u
	return api, nil
}
