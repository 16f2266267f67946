package session

// Package session contains domain-level types for server-side sessions and the
// authentication tickets they carry. It is pure and free of storage and transport concerns.

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrInvalidFilter is returned when a Filter has neither a subject nor a session id.
	ErrInvalidFilter = errors.New("session filter requires a subject id or a session id")
	// ErrEmptyKey is returned when an operation is given an empty session key.
	ErrEmptyKey = errors.New("session key cannot be empty")
)

// Session is the durable server-side record backing a ticket.
// Key is opaque and unique; SessionID is the identity provider's logical session identifier.
// A nil Expires means the session never expires on its own.
type Session struct {
	Key              string     `json:"key"`
	AppDiscriminator string     `json:"app_discriminator,omitempty"`
	SubjectID        string     `json:"subject_id"`
	SessionID        string     `json:"session_id,omitempty"`
	Created          time.Time  `json:"created"`
	Renewed          time.Time  `json:"renewed"`
	Expires          *time.Time `json:"expires,omitempty"`
	Ticket           string     `json:"ticket"`
}

// IsExpired reports whether the session has an expiry at or before now.
func (s Session) IsExpired(now time.Time) bool {
	return s.Expires != nil && !s.Expires.After(now)
}

// Filter selects sessions by subject and/or IdP session id.
type Filter struct {
	SubjectID string
	SessionID string
}

// Validate ensures at least one criterion is set so a query can never match every row.
func (f Filter) Validate() error {
	if strings.TrimSpace(f.SubjectID) == "" && strings.TrimSpace(f.SessionID) == "" {
		return ErrInvalidFilter
	}
	return nil
}

// Matches reports whether s satisfies every non-empty criterion of f.
func (f Filter) Matches(s Session) bool {
	if f.SubjectID != "" && s.SubjectID != f.SubjectID {
		return false
	}
	if f.SessionID != "" && s.SessionID != f.SessionID {
		return false
	}
	return true
}

// Update carries a partial change applied to an existing session by key.
// Nil fields are left untouched. ClearExpires resets Expires to null and wins over Expires.
type Update struct {
	SubjectID    *string
	SessionID    *string
	Created      *time.Time
	Renewed      *time.Time
	Expires      *time.Time
	ClearExpires bool
	Ticket       *string
}

// Apply returns a copy of s with the update applied.
func (u Update) Apply(s Session) Session {
	if u.SubjectID != nil {
		s.SubjectID = *u.SubjectID
	}
	if u.SessionID != nil {
		s.SessionID = *u.SessionID
	}
	if u.Created != nil {
		s.Created = *u.Created
	}
	if u.Renewed != nil {
		s.Renewed = *u.Renewed
	}
	switch {
	case u.ClearExpires:
		s.Expires = nil
	case u.Expires != nil:
		exp := *u.Expires
		s.Expires = &exp
	}
	if u.Ticket != nil {
		s.Ticket = *u.Ticket
	}
	return s
}
