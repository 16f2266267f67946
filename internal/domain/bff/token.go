package bff

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/target/mmk-bff/internal/domain/session"
)

// ErrNoToken is returned by token managers when no token can be produced,
// for example an anonymous caller asking for a user token.
var ErrNoToken = errors.New("no access token available")

// Token type names as returned by the identity provider.
const (
	TokenTypeBearer = "Bearer"
	TokenTypeDPoP   = "DPoP"
)

// TokenParameters are optional per-request overrides for token acquisition.
type TokenParameters struct {
	Resource     string
	Scopes       []string
	ForceRenewal bool
}

// Principal is the resolved, authenticated user for a request.
type Principal struct {
	Key    string
	Ticket session.Ticket
}

// Token is an access token produced by a token manager.
type Token struct {
	AccessToken string
	TokenType   string
	Expiry      time.Time
	JWK         jwk.Key
}

// IsDPoP reports whether the token is bound to a proof-of-possession key.
func (t Token) IsDPoP() bool { return t.TokenType == TokenTypeDPoP && t.JWK != nil }

// AccessTokenRetrievalContext is the read-only input of a retrieval call.
type AccessTokenRetrievalContext struct {
	Request    *http.Request
	Principal  *Principal
	Metadata   EndpointMetadata
	Parameters *TokenParameters
	LocalPath  string
	APIAddress *url.URL
}

// AccessTokenResult is one of NoAccessTokenResult, BearerTokenResult,
// DPoPTokenResult or AccessTokenRetrievalError.
type AccessTokenResult interface {
	accessTokenResult()
}

// NoAccessTokenResult means the request is forwarded without a token.
type NoAccessTokenResult struct{}

// BearerTokenResult carries a bearer access token.
type BearerTokenResult struct {
	AccessToken string
}

// DPoPTokenResult carries a DPoP-bound access token and the public key it is bound to.
type DPoPTokenResult struct {
	AccessToken string
	JWK         jwk.Key
}

// AccessTokenRetrievalError reports why no usable token could be produced.
type AccessTokenRetrievalError struct {
	Reason string
	Err    error
}

func (NoAccessTokenResult) accessTokenResult()       {}
func (BearerTokenResult) accessTokenResult()         {}
func (DPoPTokenResult) accessTokenResult()           {}
func (AccessTokenRetrievalError) accessTokenResult() {}

func (e AccessTokenRetrievalError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e AccessTokenRetrievalError) Unwrap() error { return e.Err }
