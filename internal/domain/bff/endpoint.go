package bff

// Package bff contains request-scoped gateway types shared by the HTTP layer and the
// access token retrieval policy: endpoint metadata, token requirements and results.

import (
	"fmt"
	"strings"
)

// RequiredTokenType names the kind of access token an endpoint needs.
type RequiredTokenType string

const (
	// TokenTypeNone means no token requirement was declared.
	TokenTypeNone RequiredTokenType = ""
	// TokenTypeUser requires the signed-in user's access token.
	TokenTypeUser RequiredTokenType = "user"
	// TokenTypeClient requires a client-credentials token for the gateway itself.
	TokenTypeClient RequiredTokenType = "client"
	// TokenTypeUserOrClient uses the user token when signed in, otherwise a client token.
	TokenTypeUserOrClient RequiredTokenType = "user_or_client"
)

// ParseRequiredTokenType parses a configured requirement.
func ParseRequiredTokenType(v string) (RequiredTokenType, error) {
	switch RequiredTokenType(strings.ToLower(strings.TrimSpace(v))) {
	case TokenTypeNone:
		return TokenTypeNone, nil
	case TokenTypeUser:
		return TokenTypeUser, nil
	case TokenTypeClient:
		return TokenTypeClient, nil
	case TokenTypeUserOrClient:
		return TokenTypeUserOrClient, nil
	default:
		return TokenTypeNone, fmt.Errorf("invalid token type %q (valid options: user, client, user_or_client)", v)
	}
}

// EndpointKind classifies a routed endpoint for the gateway.
type EndpointKind int

const (
	// EndpointUnclassified endpoints are left alone by the gateway.
	EndpointUnclassified EndpointKind = iota
	// EndpointAPI endpoints are called by script and must never receive redirects.
	EndpointAPI
	// EndpointManagement endpoints are meant for full-page browser navigation.
	EndpointManagement
)

// EndpointMetadata is the routing-layer description of an endpoint.
type EndpointMetadata struct {
	Name                 string
	Kind                 EndpointKind
	SkipAntiForgery      bool
	SkipResponseHandling bool
	RequiredToken        RequiredTokenType
	OptionalUserToken    bool
}

// IsAPI reports whether the endpoint is a protected API endpoint.
func (m EndpointMetadata) IsAPI() bool { return m.Kind == EndpointAPI }

// IsManagement reports whether the endpoint is an interactive management endpoint.
func (m EndpointMetadata) IsManagement() bool { return m.Kind == EndpointManagement }
