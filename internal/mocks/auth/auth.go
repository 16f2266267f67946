package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/target/mmk-bff/internal/domain/auth"
	"github.com/target/mmk-bff/internal/domain/session"
	"github.com/target/mmk-bff/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider         = (*MockAuthProvider)(nil)
	_ ports.TokenRevoker         = (*RecordingRevoker)(nil)
	_ ports.SessionMetrics       = (*CountingMetrics)(nil)
	_ ports.SessionRevoker       = (*RecordingSessionRevoker)(nil)
	_ ports.LogoutTokenValidator = (*StaticLogoutTokenValidator)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	AuthURL       string
	EndSessionURI string
	StatePrefix   string
	NoncePrefix   string
	DefaultUser   domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:       "https://mock-idp/auth",
		EndSessionURI: "https://mock-idp/logout",
		StatePrefix:   "state",
		NoncePrefix:   "nonce",
		DefaultUser: domainauth.Identity{
			Subject:   "mock-user-1",
			SessionID: "mock-sid-1",
			Name:      "Mock User",
			Claims:    []session.Claim{{Type: session.ClaimName, Value: "Mock User"}},
			Tokens: session.TokenSet{
				AccessToken:  "mock-access-token",
				RefreshToken: "mock-refresh-token",
				IDToken:      "mock-id-token",
				TokenType:    "Bearer",
			},
		},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}
	return authURL, fmt.Sprintf("%s-%d", statePrefix, n), fmt.Sprintf("%s-%d", noncePrefix, n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	user := m.DefaultUser
	if user.Subject == "" {
		user = NewMockAuthProvider().DefaultUser
	}
	user.Tokens.Expiry = time.Now().Add(time.Hour)
	return user, nil
}

func (m *MockAuthProvider) EndSessionURL(idToken, postLogoutRedirect string) string {
	if m.EndSessionURI == "" {
		return ""
	}
	q := url.Values{}
	if idToken != "" {
		q.Set("id_token_hint", idToken)
	}
	if postLogoutRedirect != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirect)
	}
	if len(q) == 0 {
		return m.EndSessionURI
	}
	return m.EndSessionURI + "?" + q.Encode()
}

// RecordingRevoker records every refresh token it is asked to revoke.
type RecordingRevoker struct {
	// Err, when set, is returned for every call after recording it.
	Err error

	mu      sync.Mutex
	revoked []string
}

func (r *RecordingRevoker) RevokeRefreshToken(_ context.Context, refreshToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, refreshToken)
	return r.Err
}

// Revoked returns a copy of the recorded tokens in call order.
func (r *RecordingRevoker) Revoked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.revoked...)
}

// CountingMetrics counts session lifecycle events.
type CountingMetrics struct {
	started atomic.Int64
	ended   atomic.Int64
}

func (c *CountingMetrics) SessionStarted()           { c.started.Add(1) }
func (c *CountingMetrics) SessionsEnded(count int64) { c.ended.Add(count) }

// Started returns the number of SessionStarted calls.
func (c *CountingMetrics) Started() int64 { return c.started.Load() }

// Ended returns the sum of SessionsEnded counts.
func (c *CountingMetrics) Ended() int64 { return c.ended.Load() }

// RecordingSessionRevoker records revocation filters and reports Removed for each call.
type RecordingSessionRevoker struct {
	Removed int64
	Err     error

	mu      sync.Mutex
	filters []session.Filter
}

func (r *RecordingSessionRevoker) Revoke(_ context.Context, filter session.Filter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = append(r.filters, filter)
	return r.Removed, r.Err
}

// Filters returns a copy of the recorded filters.
func (r *RecordingSessionRevoker) Filters() []session.Filter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Filter(nil), r.filters...)
}

// StaticLogoutTokenValidator accepts exactly one raw token.
type StaticLogoutTokenValidator struct {
	Token  string
	Claims ports.LogoutTokenClaims
}

func (v StaticLogoutTokenValidator) ValidateLogoutToken(_ context.Context, raw string) (ports.LogoutTokenClaims, error) {
	if raw == "" || raw != v.Token {
		return ports.LogoutTokenClaims{}, fmt.Errorf("invalid logout token")
	}
	return v.Claims, nil
}
