package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

const testClientID = "test-client"

// fakeIdP is a minimal OIDC provider: discovery, JWKS, token, userinfo and revocation.
type fakeIdP struct {
	t      *testing.T
	server *httptest.Server
	key    jwk.Key

	mu            sync.Mutex
	nonce         string
	subject       string
	sessionID     string
	tokenType     string
	omitRefresh   bool
	omitEmail     bool
	refreshGate   chan struct{}
	refreshCalls  int
	clientCalls   int
	lastClientReq url.Values
	dpopProofs    []string
	revoked       []string
	revokeStatus  int
	userInfo      UserInfo
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key"))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))

	f := &fakeIdP{t: t, key: key, subject: "alice", sessionID: "idp-sid-1", tokenType: "Bearer"}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("/jwks", f.jwks)
	mux.HandleFunc("/token", f.token)
	mux.HandleFunc("/userinfo", f.userinfo)
	mux.HandleFunc("/revoke", f.revoke)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIdP) issuer() string { return f.server.URL }

func (f *fakeIdP) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DiscoveryDocument{
		Issuer:                f.issuer(),
		AuthorizationEndpoint: f.issuer() + "/authorize",
		TokenEndpoint:         f.issuer() + "/token",
		UserinfoEndpoint:      f.issuer() + "/userinfo",
		JwksURI:               f.issuer() + "/jwks",
		EndSessionEndpoint:    f.issuer() + "/logout",
		RevocationEndpoint:    f.issuer() + "/revoke",
	})
}

func (f *fakeIdP) jwks(w http.ResponseWriter, _ *http.Request) {
	pub, err := f.key.PublicKey()
	require.NoError(f.t, err)
	set := jwk.NewSet()
	require.NoError(f.t, set.AddKey(pub))
	writeJSON(w, http.StatusOK, set)
}

func (f *fakeIdP) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	if proof := r.Header.Get(DPoPHeaderName); proof != "" {
		f.dpopProofs = append(f.dpopProofs, proof)
	}
	tokenType := f.tokenType
	f.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		f.mu.Lock()
		claims := map[string]any{"nonce": f.nonce, "sub": f.subject, "sid": f.sessionID, "name": "Alice Example"}
		if !f.omitEmail {
			claims["email"] = "alice@example.com"
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "at-initial",
			"refresh_token": "rt-initial",
			"token_type":    tokenType,
			"expires_in":    3600,
			"id_token":      f.signIDToken(claims),
		})
	case "refresh_token":
		f.mu.Lock()
		f.refreshCalls++
		n := f.refreshCalls
		gate := f.refreshGate
		omit := f.omitRefresh
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if r.PostForm.Get("refresh_token") == "revoked" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		resp := map[string]any{
			"access_token": fmt.Sprintf("at-refreshed-%d", n),
			"token_type":   tokenType,
			"expires_in":   3600,
		}
		if !omit {
			resp["refresh_token"] = fmt.Sprintf("rt-refreshed-%d", n)
		}
		writeJSON(w, http.StatusOK, resp)
	case "client_credentials":
		f.mu.Lock()
		f.clientCalls++
		n := f.clientCalls
		f.lastClientReq = r.PostForm
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": fmt.Sprintf("client-at-%d", n),
			"token_type":   tokenType,
			"expires_in":   3600,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (f *fakeIdP) userinfo(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, f.userInfo)
}

func (f *fakeIdP) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, r.PostForm.Get("token"))
	if f.revokeStatus != 0 {
		w.WriteHeader(f.revokeStatus)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// signIDToken signs claims with the IdP key, adding iss, aud, iat and exp unless present.
func (f *fakeIdP) signIDToken(claims map[string]any) string {
	f.t.Helper()
	tok := jwt.New()
	now := time.Now()
	defaults := map[string]any{
		jwt.IssuerKey:     f.issuer(),
		jwt.AudienceKey:   []string{testClientID},
		jwt.IssuedAtKey:   now,
		jwt.ExpirationKey: now.Add(5 * time.Minute),
	}
	for k, v := range defaults {
		if _, ok := claims[k]; !ok {
			require.NoError(f.t, tok.Set(k, v))
		}
	}
	for k, v := range claims {
		require.NoError(f.t, tok.Set(k, v))
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, f.key))
	require.NoError(f.t, err)
	return string(signed)
}

func (f *fakeIdP) provider(t *testing.T, dpop *DPoPSigner) *Provider {
	t.Helper()
	p, err := NewProvider(context.Background(), ProviderConfig{
		ClientID:     testClientID,
		ClientSecret: "test-secret",
		RedirectURL:  "https://app.example.com/bff/callback",
		Scope:        "openid profile email offline_access",
		DiscoveryURL: f.issuer() + "/.well-known/openid-configuration",
		DPoP:         dpop,
	})
	require.NoError(t, err)
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
