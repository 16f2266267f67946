package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/target/mmk-bff/internal/domain/bff"
	"github.com/target/mmk-bff/internal/ports"
)

// DefaultAccessTokenRetriever picks the token for a proxied request from endpoint metadata:
// a required token type is mandatory, an optional user token degrades to none, and anything
// else is forwarded anonymously.
type DefaultAccessTokenRetriever struct {
	tokens ports.TokenManager
	logger *slog.Logger
}

var _ ports.AccessTokenRetriever = (*DefaultAccessTokenRetriever)(nil)

// NewDefaultAccessTokenRetriever constructs a DefaultAccessTokenRetriever.
func NewDefaultAccessTokenRetriever(tokens ports.TokenManager, logger *slog.Logger) *DefaultAccessTokenRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultAccessTokenRetriever{tokens: tokens, logger: logger.With("component", "access_token_retriever")}
}

// GetAccessToken implements ports.AccessTokenRetriever.
func (r *DefaultAccessTokenRetriever) GetAccessToken(ctx context.Context, rc bff.AccessTokenRetrievalContext) bff.AccessTokenResult {
	md := rc.Metadata
	switch {
	case md.RequiredToken != bff.TokenTypeNone:
		token, err := r.requiredToken(ctx, rc)
		if err != nil {
			r.logger.DebugContext(ctx, "required access token unavailable",
				"required_token", md.RequiredToken, "local_path", rc.LocalPath, "error", err)
			return bff.AccessTokenRetrievalError{Reason: "required " + string(md.RequiredToken) + " token unavailable", Err: err}
		}
		return toResult(token)

	case md.OptionalUserToken:
		if rc.Principal == nil {
			return bff.NoAccessTokenResult{}
		}
		token, err := r.tokens.GetUserAccessToken(ctx, rc.Principal, rc.Parameters)
		if err != nil {
			if !errors.Is(err, bff.ErrNoToken) {
				r.logger.WarnContext(ctx, "optional user token unavailable; forwarding without token",
					"local_path", rc.LocalPath, "error", err)
			}
			return bff.NoAccessTokenResult{}
		}
		if token.AccessToken == "" {
			return bff.NoAccessTokenResult{}
		}
		return toResult(token)

	default:
		return bff.NoAccessTokenResult{}
	}
}

func (r *DefaultAccessTokenRetriever) requiredToken(ctx context.Context, rc bff.AccessTokenRetrievalContext) (bff.Token, error) {
	var (
		token bff.Token
		err   error
	)
	switch rc.Metadata.RequiredToken {
	case bff.TokenTypeUser:
		if rc.Principal == nil {
			return bff.Token{}, bff.ErrNoToken
		}
		token, err = r.tokens.GetUserAccessToken(ctx, rc.Principal, rc.Parameters)
	case bff.TokenTypeClient:
		token, err = r.tokens.GetClientAccessToken(ctx, rc.Parameters)
	case bff.TokenTypeUserOrClient:
		if rc.Principal != nil {
			token, err = r.tokens.GetUserAccessToken(ctx, rc.Principal, rc.Parameters)
		} else {
			token, err = r.tokens.GetClientAccessToken(ctx, rc.Parameters)
		}
	default:
		return bff.Token{}, errors.New("unknown required token type " + string(rc.Metadata.RequiredToken))
	}
	if err != nil {
		return bff.Token{}, err
	}
	if token.AccessToken == "" {
		return bff.Token{}, bff.ErrNoToken
	}
	return token, nil
}

func toResult(t bff.Token) bff.AccessTokenResult {
	if t.IsDPoP() {
		return bff.DPoPTokenResult{AccessToken: t.AccessToken, JWK: t.JWK}
	}
	return bff.BearerTokenResult{AccessToken: t.AccessToken}
}
