package oidc

// Package oidc provides OIDC/OAuth adapters for the gateway: the interactive login provider,
// the token manager, refresh token revocation and back-channel logout token validation.

import (
	"context"
	"crypto"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/target/mmk-bff/internal/domain/auth"
	"github.com/target/mmk-bff/internal/domain/session"
	"github.com/target/mmk-bff/internal/ports"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Provider implements ports.AuthProvider using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	dpop       *DPoPSigner

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier

	endSessionEndpoint string
	revocationEndpoint string
}

var _ ports.AuthProvider = (*Provider)(nil)

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
	DPoP         *DPoPSigner  // Optional, binds tokens to a proof-of-possession key
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`
}

// NewProvider creates a new OIDC provider.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	httpClient = WithDPoP(httpClient, config.DPoP)

	p := &Provider{
		httpClient: httpClient,
		dpop:       config.DPoP,
	}

	// Single discovery fetch for the provider, verifier and extra endpoints.
	ctx = gooidc.ClientContext(ctx, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, ".well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	var extra DiscoveryDocument
	if err := op.Claims(&extra); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}
	p.endSessionEndpoint = extra.EndSessionEndpoint
	p.revocationEndpoint = extra.RevocationEndpoint

	// Configure OAuth2 using discovered endpoints
	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Scopes:       strings.Fields(config.Scope),
		Endpoint:     op.Endpoint(),
	}

	return p, nil
}

// OAuth2Config returns the authorization code configuration, used for refreshing user tokens.
func (p *Provider) OAuth2Config() *oauth2.Config { return p.config }

// HTTPClient returns the client used for IdP calls, including DPoP proofs when configured.
func (p *Provider) HTTPClient() *http.Client { return p.httpClient }

// ClientCredentialsConfig returns the client credentials configuration for the gateway's own tokens.
func (p *Provider) ClientCredentialsConfig(scopes []string) *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		TokenURL:     p.config.Endpoint.TokenURL,
		Scopes:       scopes,
		AuthStyle:    p.config.Endpoint.AuthStyle,
	}
}

// Revoker returns a refresh token revoker for the discovered revocation endpoint.
func (p *Provider) Revoker() (*Revoker, error) {
	return NewRevoker(RevokerConfig{
		Endpoint:     p.revocationEndpoint,
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		HTTPClient:   p.httpClient,
	})
}

// LogoutTokenValidator returns a validator for back-channel logout tokens issued to this client.
func (p *Provider) LogoutTokenValidator() *LogoutTokenValidator {
	return NewLogoutTokenValidator(p.oidcProvider.Verifier(&gooidc.Config{ClientID: p.config.ClientID}))
}

// Begin starts the authorization code flow.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	// Generate cryptographically secure state and nonce
	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}

	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// redirect_uri stays the configured RedirectURL so it matches the client registration.
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
	}
	if p.dpop != nil {
		if thumb, err := p.dpop.PublicKey().Thumbprint(crypto.SHA256); err == nil {
			opts = append(opts, oauth2.SetAuthURLParam("dpop_jkt", base64.RawURLEncoding.EncodeToString(thumb)))
		}
	}
	authURL := p.config.AuthCodeURL(state, opts...)

	return authURL, state, nonce, nil
}

// Exchange redeems the authorization code and returns the verified identity with its tokens.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return domainauth.Identity{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	fields, rawID, err := p.extractFromIDToken(ctx, token, in.Nonce)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", err)
	}

	// Fill missing fields from UserInfo
	if fields.subject == "" || fields.email == "" {
		if fillErr := p.fillFromUserInfo(ctx, token.AccessToken, &fields); fillErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}
	if fields.subject == "" {
		return domainauth.Identity{}, errors.New("identity provider returned no subject")
	}

	return domainauth.Identity{
		Subject:   fields.subject,
		SessionID: fields.sessionID,
		Name:      fields.name,
		Claims:    fields.claims(),
		Tokens: session.TokenSet{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			IDToken:      rawID,
			TokenType:    token.Type(),
			Expiry:       token.Expiry,
		},
	}, nil
}

// EndSessionURL builds the RP-initiated logout URL, or returns empty when the IdP has none.
func (p *Provider) EndSessionURL(idToken, postLogoutRedirect string) string {
	if p.endSessionEndpoint == "" {
		return ""
	}
	u, err := url.Parse(p.endSessionEndpoint)
	if err != nil {
		return ""
	}
	q := u.Query()
	if idToken != "" {
		q.Set("id_token_hint", idToken)
	}
	if postLogoutRedirect != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirect)
	}
	q.Set("client_id", p.config.ClientID)
	u.RawQuery = q.Encode()
	return u.String()
}

// UserInfo represents the user information from the OIDC userinfo endpoint.
type UserInfo struct {
	Subject           string `json:"sub"`
	Name              string `json:"name"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
}

func (p *Provider) getUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	var userInfo UserInfo
	if claimsErr := ui.Claims(&userInfo); claimsErr != nil {
		return nil, fmt.Errorf("decode user info: %w", claimsErr)
	}
	return &userInfo, nil
}

// internal helper types and functions to keep Exchange small

type idFields struct {
	subject           string
	sessionID         string
	name              string
	givenName         string
	familyName        string
	email             string
	preferredUsername string
}

// claims lists the principal claims other than sub and sid, which the ticket adds itself.
func (f idFields) claims() []session.Claim {
	var out []session.Claim
	add := func(t, v string) {
		if v != "" {
			out = append(out, session.Claim{Type: t, Value: v})
		}
	}
	add(session.ClaimName, f.name)
	add("given_name", f.givenName)
	add("family_name", f.familyName)
	add("email", f.email)
	add("preferred_username", f.preferredUsername)
	return out
}

func (p *Provider) extractFromIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (idFields, string, error) {
	var f idFields
	if !p.hasOpenIDScope() {
		return f, "", nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return f, "", err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return f, "", fmt.Errorf("verify id_token: %w", err)
	}
	var claims idTokenClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return f, "", fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	if expectedNonce != "" && claims.Nonce != expectedNonce {
		return f, "", errors.New("invalid nonce")
	}
	return mapIDTokenClaims(claims), rawID, nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, accessToken string, f *idFields) error {
	ui, err := p.getUserInfo(ctx, accessToken)
	if err != nil {
		return err
	}
	fillFromUserInfoClaims(f, *ui)
	return nil
}

// idTokenClaims is the subset of standard OIDC claims mapped into the ticket principal.
type idTokenClaims struct {
	Sub               string `json:"sub"`
	Sid               string `json:"sid"`
	Name              string `json:"name"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Nonce             string `json:"nonce"`
}

func mapIDTokenClaims(c idTokenClaims) idFields {
	return idFields{
		subject:           c.Sub,
		sessionID:         c.Sid,
		name:              firstNonEmpty(c.Name, strings.TrimSpace(c.GivenName+" "+c.FamilyName)),
		givenName:         c.GivenName,
		familyName:        c.FamilyName,
		email:             c.Email,
		preferredUsername: c.PreferredUsername,
	}
}

// fillFromUserInfoClaims fills missing fields from a UserInfo payload.
// The subject is only taken when the id token provided none.
func fillFromUserInfoClaims(f *idFields, ui UserInfo) {
	if f.subject == "" {
		f.subject = ui.Subject
	}
	if f.name == "" {
		f.name = firstNonEmpty(ui.Name, strings.TrimSpace(ui.GivenName+" "+ui.FamilyName))
	}
	if f.givenName == "" {
		f.givenName = ui.GivenName
	}
	if f.familyName == "" {
		f.familyName = ui.FamilyName
	}
	if f.email == "" {
		f.email = ui.Email
	}
	if f.preferredUsername == "" {
		f.preferredUsername = ui.PreferredUsername
	}
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < length {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:length], nil
}

// hasOpenIDScope reports whether the configured scopes include "openid".
func (p *Provider) hasOpenIDScope() bool {
	return slices.Contains(p.config.Scopes, "openid")
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
