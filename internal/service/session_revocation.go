package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-bff/internal/domain/session"
	"github.com/target/mmk-bff/internal/ports"
)

// SessionRevocationOptions groups dependencies for SessionRevocationService.
type SessionRevocationOptions struct {
	Sessions ports.SessionStore      // Required
	Tickets  ports.UserTicketQuerier // Required when RevokeRefreshToken is set
	Revoker  ports.TokenRevoker      // Required when RevokeRefreshToken is set
	Metrics  ports.SessionMetrics    // Optional: receives the number of sessions deleted
	Logger   *slog.Logger

	// RevokeAllUserSessions widens every revocation to all of the subject's sessions.
	RevokeAllUserSessions bool
	// RevokeRefreshToken revokes refresh tokens at the IdP before the sessions are deleted.
	RevokeRefreshToken bool
}

// SessionRevocationService deletes sessions by filter, optionally revoking their refresh tokens.
type SessionRevocationService struct {
	sessions  ports.SessionStore
	tickets   ports.UserTicketQuerier
	revoker   ports.TokenRevoker
	metrics   ports.SessionMetrics
	logger    *slog.Logger
	revokeAll bool
	revokeRT  bool
}

var _ ports.SessionRevoker = (*SessionRevocationService)(nil)

// NewSessionRevocationService constructs a SessionRevocationService.
func NewSessionRevocationService(opts SessionRevocationOptions) (*SessionRevocationService, error) {
	if opts.Sessions == nil {
		return nil, errors.New("SessionStore is required")
	}
	if opts.RevokeRefreshToken && (opts.Tickets == nil || opts.Revoker == nil) {
		return nil, errors.New("refresh token revocation requires a ticket querier and a token revoker")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRevocationService{
		sessions:  opts.Sessions,
		tickets:   opts.Tickets,
		revoker:   opts.Revoker,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "session_revocation"),
		revokeAll: opts.RevokeAllUserSessions,
		revokeRT:  opts.RevokeRefreshToken,
	}, nil
}

// Revoke deletes the sessions matching filter and returns how many were removed. Refresh token
// revocation failures are returned joined with any deletion error, but deletion is always
// attempted and its count is reported either way.
func (s *SessionRevocationService) Revoke(ctx context.Context, filter session.Filter) (int64, error) {
	if s.revokeAll {
		filter.SessionID = ""
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	var errs []error
	if s.revokeRT {
		errs = append(errs, s.revokeRefreshTokens(ctx, filter)...)
	}

	removed, err := s.sessions.DeleteMany(ctx, filter)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete sessions: %w", err))
	} else {
		s.logger.InfoContext(ctx, "revoked sessions",
			"subject_id", filter.SubjectID, "session_id", filter.SessionID, "count", removed)
	}
	if removed > 0 && s.metrics != nil {
		s.metrics.SessionsEnded(removed)
	}
	return removed, errors.Join(errs...)
}

func (s *SessionRevocationService) revokeRefreshTokens(ctx context.Context, filter session.Filter) []error {
	tickets, err := s.tickets.GetUserTickets(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load tickets for refresh token revocation", "error", err)
		return []error{fmt.Errorf("load tickets: %w", err)}
	}

	var errs []error
	seen := make(map[string]struct{}, len(tickets))
	for _, t := range tickets {
		rt := t.RefreshToken()
		if rt == "" {
			continue
		}
		if _, dup := seen[rt]; dup {
			continue
		}
		seen[rt] = struct{}{}
		if err := s.revoker.RevokeRefreshToken(ctx, rt); err != nil {
			s.logger.ErrorContext(ctx, "refresh token revocation failed",
				"subject_id", t.SubjectID(), "session_id", t.SessionID(), "error", err)
			errs = append(errs, fmt.Errorf("revoke refresh token: %w", err))
		}
	}
	return errs
}
