package auth

// Package auth contains domain-level types for the interactive login flow.
// It is pure and free of framework/adapter concerns.

import (
	"github.com/target/mmk-bff/internal/domain/session"
)

// Identity is the authenticated principal returned by an IdP after a code exchange.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	Subject   string // "sub" claim
	SessionID string // "sid" claim, empty when the IdP does not issue one
	Name      string
	Claims    []session.Claim
	Tokens    session.TokenSet
}

// Ticket builds the authentication ticket persisted for this identity.
// The principal always starts with sub and sid so stores can index them.
func (id Identity) Ticket(scheme string) session.Ticket {
	principal := make([]session.Claim, 0, len(id.Claims)+2)
	principal = append(principal, session.Claim{Type: session.ClaimSubject, Value: id.Subject})
	if id.SessionID != "" {
		principal = append(principal, session.Claim{Type: session.ClaimSessionID, Value: id.SessionID})
	}
	for _, c := range id.Claims {
		if c.Type == session.ClaimSubject || c.Type == session.ClaimSessionID {
			continue
		}
		principal = append(principal, c)
	}

	t := session.Ticket{Scheme: scheme, Principal: principal}
	t.StoreTokens(id.Tokens)
	return t
}
