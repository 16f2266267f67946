package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/target/mmk-bff/internal/domain/session"
	"github.com/target/mmk-bff/internal/ports"
)

// DefaultAuthScheme names tickets issued by interactive login.
const DefaultAuthScheme = "cookie"

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider   // Required
	Revoker  ports.SessionRevoker // Required for Logout
	Metrics  ports.SessionMetrics // Optional: counts logins; the revoker counts ended sessions
	Scheme   string
	// Lifetime is the absolute session lifetime written into new tickets. Zero means no expiry.
	Lifetime           time.Duration
	PostLogoutRedirect string
	Now                func() time.Time
}

// AuthService orchestrates the login and logout flows around the IdP and the session revoker.
type AuthService struct {
	provider           ports.AuthProvider
	revoker            ports.SessionRevoker
	metrics            ports.SessionMetrics
	scheme             string
	lifetime           time.Duration
	postLogoutRedirect string
	now                func() time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	scheme := opts.Scheme
	if scheme == "" {
		scheme = DefaultAuthScheme
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		provider:           opts.Provider,
		revoker:            opts.Revoker,
		metrics:            opts.Metrics,
		scheme:             scheme,
		lifetime:           opts.Lifetime,
		postLogoutRedirect: opts.PostLogoutRedirect,
		now:                now,
	}
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an authentication flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLogin exchanges the authorization code and builds the ticket for the new session.
// The caller signs the ticket in.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (session.Ticket, error) {
	switch {
	case input.Code == "":
		return session.Ticket{}, errors.New("authorization code is required")
	case input.State == "":
		return session.Ticket{}, errors.New("state parameter is required")
	case input.Nonce == "":
		return session.Ticket{}, errors.New("nonce parameter is required")
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput(input))
	if err != nil {
		return session.Ticket{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	if identity.Subject == "" {
		return session.Ticket{}, errors.New("identity provider returned no subject")
	}

	ticket := identity.Ticket(s.scheme)
	issued := s.now().UTC()
	ticket.SetIssuedAt(issued)
	if s.lifetime > 0 {
		ticket.SetExpiresAt(issued.Add(s.lifetime))
	}
	if s.metrics != nil {
		s.metrics.SessionStarted()
	}
	return ticket, nil
}

// Logout revokes the sessions behind ticket and returns the IdP end-session URL, which may be empty.
// A revocation error is returned alongside the URL; the sessions have been deleted regardless.
func (s *AuthService) Logout(ctx context.Context, ticket session.Ticket) (string, error) {
	if s.revoker == nil {
		return "", errors.New("session revoker is not configured")
	}
	endSession := s.provider.EndSessionURL(ticket.Tokens().IDToken, s.postLogoutRedirect)

	filter := session.Filter{SubjectID: ticket.SubjectID(), SessionID: ticket.SessionID()}
	if _, err := s.revoker.Revoke(ctx, filter); err != nil {
		return endSession, fmt.Errorf("revoke sessions: %w", err)
	}
	return endSession, nil
}
