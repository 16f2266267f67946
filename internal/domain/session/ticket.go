package session

import "time"

// Well-known claim types read from a ticket principal.
const (
	ClaimSubject   = "sub"
	ClaimSessionID = "sid"
	ClaimName      = "name"
)

// Well-known ticket property keys.
const (
	PropIssued         = ".issued"
	PropExpires        = ".expires"
	PropAccessToken    = ".token.access_token"
	PropRefreshToken   = ".token.refresh_token"
	PropIDToken        = ".token.id_token"
	PropTokenType      = ".token.token_type"
	PropTokenExpiresAt = ".token.expires_at"
	PropRedirectURI    = ".redirect"
)

// CurrentEnvelopeVersion is the envelope format written by the ticket codec.
const CurrentEnvelopeVersion = 1

const propertyTimeLayout = time.RFC3339Nano

// Claim is a single statement about the authenticated principal.
type Claim struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	ValueType string `json:"value_type,omitempty"`
}

// Property is an ordered key/value item carried alongside the principal.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Ticket is the authenticated-session payload persisted server-side.
type Ticket struct {
	Scheme     string     `json:"scheme"`
	Principal  []Claim    `json:"principal"`
	Properties []Property `json:"properties"`
}

// Envelope wraps an encrypted ticket with its format version.
type Envelope struct {
	Version int    `json:"version"`
	Payload string `json:"payload"`
}

// Clone returns a deep copy so callers can mutate properties without aliasing.
func (t Ticket) Clone() Ticket {
	out := Ticket{Scheme: t.Scheme}
	if t.Principal != nil {
		out.Principal = append([]Claim(nil), t.Principal...)
	}
	if t.Properties != nil {
		out.Properties = append([]Property(nil), t.Properties...)
	}
	return out
}

// FindClaim returns the first claim value of the given type.
func (t Ticket) FindClaim(claimType string) (string, bool) {
	for _, c := range t.Principal {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// SubjectID returns the "sub" claim value or empty.
func (t Ticket) SubjectID() string {
	v, _ := t.FindClaim(ClaimSubject)
	return v
}

// SessionID returns the "sid" claim value or empty.
func (t Ticket) SessionID() string {
	v, _ := t.FindClaim(ClaimSessionID)
	return v
}

// Property returns the value stored under key.
func (t Ticket) Property(key string) (string, bool) {
	for _, p := range t.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// SetProperty replaces the value for key in place, or appends it, keeping order stable.
func (t *Ticket) SetProperty(key, value string) {
	for i := range t.Properties {
		if t.Properties[i].Key == key {
			t.Properties[i].Value = value
			return
		}
	}
	t.Properties = append(t.Properties, Property{Key: key, Value: value})
}

// RemoveProperty deletes key if present.
func (t *Ticket) RemoveProperty(key string) {
	out := make([]Property, 0, len(t.Properties))
	for _, p := range t.Properties {
		if p.Key != key {
			out = append(out, p)
		}
	}
	t.Properties = out
}

// IssuedAt returns the ticket issue time, if recorded.
func (t Ticket) IssuedAt() (time.Time, bool) {
	return t.timeProperty(PropIssued)
}

// ExpiresAt returns the ticket expiry, if recorded.
func (t Ticket) ExpiresAt() (time.Time, bool) {
	return t.timeProperty(PropExpires)
}

// SetIssuedAt records the ticket issue time.
func (t *Ticket) SetIssuedAt(at time.Time) {
	t.SetProperty(PropIssued, at.UTC().Format(propertyTimeLayout))
}

// SetExpiresAt records the ticket expiry.
func (t *Ticket) SetExpiresAt(at time.Time) {
	t.SetProperty(PropExpires, at.UTC().Format(propertyTimeLayout))
}

// AccessToken returns the stored user access token.
func (t Ticket) AccessToken() string {
	v, _ := t.Property(PropAccessToken)
	return v
}

// RefreshToken returns the stored refresh token.
func (t Ticket) RefreshToken() string {
	v, _ := t.Property(PropRefreshToken)
	return v
}

// TokenType returns the stored access token type (Bearer or DPoP).
func (t Ticket) TokenType() string {
	v, _ := t.Property(PropTokenType)
	return v
}

// TokenExpiresAt returns the access token expiry, if recorded.
func (t Ticket) TokenExpiresAt() (time.Time, bool) {
	return t.timeProperty(PropTokenExpiresAt)
}

// TokenSet is the token material obtained from the identity provider.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	Expiry       time.Time
}

// StoreTokens writes token material into the ticket properties.
// Empty values remove the corresponding property so stale tokens are not kept.
func (t *Ticket) StoreTokens(ts TokenSet) {
	t.setOrRemove(PropAccessToken, ts.AccessToken)
	t.setOrRemove(PropRefreshToken, ts.RefreshToken)
	if ts.IDToken != "" {
		t.SetProperty(PropIDToken, ts.IDToken)
	}
	t.setOrRemove(PropTokenType, ts.TokenType)
	if ts.Expiry.IsZero() {
		t.RemoveProperty(PropTokenExpiresAt)
	} else {
		t.SetProperty(PropTokenExpiresAt, ts.Expiry.UTC().Format(propertyTimeLayout))
	}
}

// ClearTokens removes all token material from the ticket.
func (t *Ticket) ClearTokens() {
	for _, k := range []string{PropAccessToken, PropRefreshToken, PropIDToken, PropTokenType, PropTokenExpiresAt} {
		t.RemoveProperty(k)
	}
}

// Tokens reads the token material stored in the ticket.
func (t Ticket) Tokens() TokenSet {
	idToken, _ := t.Property(PropIDToken)
	exp, _ := t.TokenExpiresAt()
	return TokenSet{
		AccessToken:  t.AccessToken(),
		RefreshToken: t.RefreshToken(),
		IDToken:      idToken,
		TokenType:    t.TokenType(),
		Expiry:       exp,
	}
}

func (t *Ticket) setOrRemove(key, value string) {
	if value == "" {
		t.RemoveProperty(key)
		return
	}
	t.SetProperty(key, value)
}

func (t Ticket) timeProperty(key string) (time.Time, bool) {
	raw, ok := t.Property(key)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(propertyTimeLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
