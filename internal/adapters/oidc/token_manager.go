package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/target/mmk-bff/internal/domain/bff"
	"github.com/target/mmk-bff/internal/domain/session"
	"github.com/target/mmk-bff/internal/ports"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshSkew refreshes user tokens this long before they expire.
const DefaultRefreshSkew = 60 * time.Second

// TokenManagerOptions groups dependencies for TokenManager.
type TokenManagerOptions struct {
	// OAuth refreshes user tokens. Nil disables refresh: stored tokens are used until they expire.
	OAuth *oauth2.Config
	// ClientCredentials obtains the gateway's own tokens. Nil makes client tokens unavailable.
	ClientCredentials *clientcredentials.Config
	// Tickets receives refreshed tokens. Required when OAuth is set.
	Tickets    ports.TicketStore
	HTTPClient *http.Client
	DPoP       *DPoPSigner
	Skew       time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// TokenManager hands out user tokens from the session ticket, refreshing them near expiry,
// and caches client credentials tokens per resource and scope set.
type TokenManager struct {
	oauth      *oauth2.Config
	cc         *clientcredentials.Config
	tickets    ports.TicketStore
	httpClient *http.Client
	dpop       *DPoPSigner
	skew       time.Duration
	logger     *slog.Logger
	now        func() time.Time

	refreshes singleflight.Group
	fetches   singleflight.Group

	mu     sync.Mutex
	client map[string]*oauth2.Token
}

var _ ports.TokenManager = (*TokenManager)(nil)

// NewTokenManager constructs a TokenManager.
func NewTokenManager(opts TokenManagerOptions) (*TokenManager, error) {
	if opts.OAuth != nil && opts.Tickets == nil {
		return nil, errors.New("ticket store is required to persist refreshed tokens")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = WithDPoP(&http.Client{Timeout: 30 * time.Second}, opts.DPoP)
	}
	skew := opts.Skew
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &TokenManager{
		oauth:      opts.OAuth,
		cc:         opts.ClientCredentials,
		tickets:    opts.Tickets,
		httpClient: httpClient,
		dpop:       opts.DPoP,
		skew:       skew,
		logger:     logger.With("component", "token_manager"),
		now:        now,
		client:     make(map[string]*oauth2.Token),
	}, nil
}

// GetUserAccessToken returns the signed-in user's access token, refreshing it when it is about to expire.
func (m *TokenManager) GetUserAccessToken(ctx context.Context, user *bff.Principal, params *bff.TokenParameters) (bff.Token, error) {
	if user == nil {
		return bff.Token{}, bff.ErrNoToken
	}
	stored := user.Ticket.Tokens()
	if stored.AccessToken == "" && stored.RefreshToken == "" {
		return bff.Token{}, bff.ErrNoToken
	}

	force := params != nil && params.ForceRenewal
	if !force && stored.AccessToken != "" && !m.expiresSoon(stored.Expiry) {
		return m.userToken(stored), nil
	}

	if m.oauth == nil || stored.RefreshToken == "" {
		if stored.AccessToken != "" && !m.expired(stored.Expiry) {
			return m.userToken(stored), nil
		}
		return bff.Token{}, bff.ErrNoToken
	}

	v, err, _ := m.refreshes.Do(user.Key, func() (any, error) {
		return m.refresh(ctx, user)
	})
	if err != nil {
		return bff.Token{}, err
	}
	return m.userToken(v.(session.TokenSet)), nil
}

func (m *TokenManager) refresh(ctx context.Context, user *bff.Principal) (session.TokenSet, error) {
	stored := user.Ticket.Tokens()
	ctx = gooidc.ClientContext(ctx, m.httpClient)
	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: stored.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		m.logger.ErrorContext(ctx, "user token refresh failed",
			"subject_id", user.Ticket.SubjectID(), "session_id", user.Ticket.SessionID(), "error", err)
		return session.TokenSet{}, fmt.Errorf("refresh user token: %w", err)
	}

	refreshed := session.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: firstNonEmpty(tok.RefreshToken, stored.RefreshToken),
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		refreshed.IDToken = idToken
	}

	ticket := user.Ticket.Clone()
	ticket.StoreTokens(refreshed)
	if user.Key != "" {
		if err := m.tickets.Renew(ctx, user.Key, ticket); err != nil {
			// The new token is still valid for this request; the next one refreshes again.
			m.logger.WarnContext(ctx, "failed to persist refreshed tokens",
				"subject_id", ticket.SubjectID(), "error", err)
		}
	}
	user.Ticket = ticket
	return refreshed, nil
}

// GetClientAccessToken returns a cached client credentials token, fetching a new one near expiry.
func (m *TokenManager) GetClientAccessToken(ctx context.Context, params *bff.TokenParameters) (bff.Token, error) {
	if m.cc == nil {
		return bff.Token{}, bff.ErrNoToken
	}
	key := clientCacheKey(params)
	force := params != nil && params.ForceRenewal

	if !force {
		m.mu.Lock()
		cached, ok := m.client[key]
		m.mu.Unlock()
		if ok && !m.expiresSoon(cached.Expiry) {
			return m.clientToken(cached), nil
		}
	}

	v, err, _ := m.fetches.Do(key, func() (any, error) {
		return m.fetchClientToken(ctx, params)
	})
	if err != nil {
		return bff.Token{}, err
	}
	tok := v.(*oauth2.Token)
	m.mu.Lock()
	m.client[key] = tok
	m.mu.Unlock()
	return m.clientToken(tok), nil
}

func (m *TokenManager) fetchClientToken(ctx context.Context, params *bff.TokenParameters) (*oauth2.Token, error) {
	cfg := *m.cc
	if params != nil {
		if len(params.Scopes) > 0 {
			cfg.Scopes = params.Scopes
		}
		if params.Resource != "" {
			cfg.EndpointParams = map[string][]string{"resource": {params.Resource}}
		}
	}
	ctx = gooidc.ClientContext(ctx, m.httpClient)
	tok, err := cfg.Token(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "client credentials token request failed", "error", err)
		return nil, fmt.Errorf("client credentials: %w", err)
	}
	return tok, nil
}

func (m *TokenManager) expiresSoon(expiry time.Time) bool {
	return !expiry.IsZero() && !m.now().Add(m.skew).Before(expiry)
}

func (m *TokenManager) expired(expiry time.Time) bool {
	return !expiry.IsZero() && !m.now().Before(expiry)
}

func (m *TokenManager) userToken(ts session.TokenSet) bff.Token {
	return m.boundToken(ts.AccessToken, ts.TokenType, ts.Expiry)
}

func (m *TokenManager) clientToken(tok *oauth2.Token) bff.Token {
	return m.boundToken(tok.AccessToken, tok.Type(), tok.Expiry)
}

func (m *TokenManager) boundToken(accessToken, tokenType string, expiry time.Time) bff.Token {
	t := bff.Token{AccessToken: accessToken, TokenType: bff.TokenTypeBearer, Expiry: expiry}
	if strings.EqualFold(tokenType, bff.TokenTypeDPoP) && m.dpop != nil {
		t.TokenType = bff.TokenTypeDPoP
		t.JWK = m.dpop.PublicKey()
	}
	return t
}

func clientCacheKey(params *bff.TokenParameters) string {
	if params == nil {
		return ""
	}
	scopes := append([]string(nil), params.Scopes...)
	sort.Strings(scopes)
	return params.Resource + "|" + strings.Join(scopes, " ")
}
