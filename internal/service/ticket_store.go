package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-bff/internal/domain/session"
	"github.com/target/mmk-bff/internal/ports"
)

// TicketStoreOptions groups dependencies for TicketStore.
type TicketStoreOptions struct {
	Sessions ports.SessionStore // Required
	Codec    *TicketCodec       // Required
	Logger   *slog.Logger
	// NewKey generates opaque session keys. Defaults to NewSessionKey.
	NewKey func() string
	Now    func() time.Time
}

// TicketStore persists authentication tickets in a SessionStore, keyed by an opaque value
// handed to the cookie pipeline. Undecodable rows are evicted when encountered.
type TicketStore struct {
	sessions ports.SessionStore
	codec    *TicketCodec
	logger   *slog.Logger
	newKey   func() string
	now      func() time.Time
}

var (
	_ ports.TicketStore       = (*TicketStore)(nil)
	_ ports.UserTicketQuerier = (*TicketStore)(nil)
)

// NewTicketStore constructs a TicketStore.
func NewTicketStore(opts TicketStoreOptions) (*TicketStore, error) {
	if opts.Sessions == nil {
		return nil, errors.New("SessionStore is required")
	}
	if opts.Codec == nil {
		return nil, errors.New("TicketCodec is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newKey := opts.NewKey
	if newKey == nil {
		newKey = NewSessionKey
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &TicketStore{
		sessions: opts.Sessions,
		codec:    opts.Codec,
		logger:   logger.With("component", "ticket_store"),
		newKey:   newKey,
		now:      now,
	}, nil
}

// NewSessionKey returns 128 random bits as lowercase hex.
func NewSessionKey() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Store persists ticket under a new key. Existing rows for the same subject and IdP session
// are removed first so a re-login does not leave a stale row behind.
func (s *TicketStore) Store(ctx context.Context, ticket session.Ticket) (string, error) {
	sub, sid := ticket.SubjectID(), ticket.SessionID()
	if sid != "" {
		if _, err := s.sessions.DeleteMany(ctx, session.Filter{SubjectID: sub, SessionID: sid}); err != nil {
			return "", fmt.Errorf("remove previous sessions: %w", err)
		}
	}
	key := s.newKey()
	if err := s.create(ctx, key, ticket); err != nil {
		return "", err
	}
	return key, nil
}

func (s *TicketStore) create(ctx context.Context, key string, ticket session.Ticket) error {
	encoded, err := s.codec.Serialize(ticket)
	if err != nil {
		return err
	}
	issued, ok := ticket.IssuedAt()
	if !ok {
		issued = s.now()
	}
	row := session.Session{
		Key:       key,
		SubjectID: ticket.SubjectID(),
		SessionID: ticket.SessionID(),
		Created:   issued,
		Renewed:   issued,
		Ticket:    encoded,
	}
	if exp, ok := ticket.ExpiresAt(); ok {
		row.Expires = &exp
	}
	if err := s.sessions.Create(ctx, row); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Retrieve returns the ticket stored under key, or nil when there is none.
// The row's expiry wins over the one inside the ticket: an expired row is deleted and
// reported as absent, and a live row's expiry is copied into the returned ticket.
// A row whose ticket cannot be decoded is deleted and reported as absent.
func (s *TicketStore) Retrieve(ctx context.Context, key string) (*session.Ticket, error) {
	row, err := s.sessions.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	if row.IsExpired(s.now()) {
		s.logger.DebugContext(ctx, "session row expired; removing",
			"subject_id", row.SubjectID, "session_id", row.SessionID)
		if err := s.sessions.Delete(ctx, row.Key); err != nil {
			s.logger.ErrorContext(ctx, "failed to remove expired session", "error", err)
		}
		return nil, nil
	}
	ticket := s.codec.Deserialize(ctx, row.Ticket)
	if ticket == nil {
		s.evict(ctx, row.Key)
		return nil, nil
	}
	if row.Expires != nil {
		if exp, ok := ticket.ExpiresAt(); !ok || !exp.Equal(*row.Expires) {
			ticket.SetExpiresAt(*row.Expires)
		}
	}
	return ticket, nil
}

// Renew rewrites the row for key with ticket. When the row has vanished, typically removed by
// cleanup between resolution and renewal, it is recreated under the same key.
func (s *TicketStore) Renew(ctx context.Context, key string, ticket session.Ticket) error {
	row, err := s.sessions.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if row == nil {
		s.logger.DebugContext(ctx, "session missing on renew; recreating",
			"subject_id", ticket.SubjectID(), "session_id", ticket.SessionID())
		return s.create(ctx, key, ticket)
	}

	encoded, err := s.codec.Serialize(ticket)
	if err != nil {
		return err
	}
	renewed, ok := ticket.IssuedAt()
	if !ok {
		renewed = s.now()
	}
	sub, sid := ticket.SubjectID(), ticket.SessionID()
	update := session.Update{Renewed: &renewed, Ticket: &encoded}
	if row.SubjectID != sub || row.SessionID != sid {
		// A different principal in the same cookie is a fresh login.
		update.SubjectID = &sub
		update.SessionID = &sid
		update.Created = &renewed
	}
	if exp, ok := ticket.ExpiresAt(); ok {
		update.Expires = &exp
	} else {
		update.ClearExpires = true
	}
	if err := s.sessions.Update(ctx, key, update); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Remove deletes the row for key. Removing a missing key succeeds.
func (s *TicketStore) Remove(ctx context.Context, key string) error {
	if err := s.sessions.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// GetUserTickets returns the decodable tickets matching filter, evicting any that cannot be decoded.
func (s *TicketStore) GetUserTickets(ctx context.Context, filter session.Filter) ([]session.Ticket, error) {
	rows, err := s.sessions.GetMany(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	out := make([]session.Ticket, 0, len(rows))
	for _, row := range rows {
		ticket := s.codec.Deserialize(ctx, row.Ticket)
		if ticket == nil {
			s.evict(ctx, row.Key)
			continue
		}
		out = append(out, *ticket)
	}
	return out, nil
}

func (s *TicketStore) evict(ctx context.Context, key string) {
	s.logger.WarnContext(ctx, "evicting session with unreadable ticket")
	if err := s.sessions.Delete(ctx, key); err != nil {
		s.logger.ErrorContext(ctx, "failed to evict unreadable session", "error", err)
	}
}
