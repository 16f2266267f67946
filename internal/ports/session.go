package ports

import (
	"context"

	"github.com/target/mmk-bff/internal/domain/session"
)

// SessionStore is durable CRUD and filtered query over session records.
// Missing keys are not errors: Get returns (nil, nil); Update and Delete are no-ops.
type SessionStore interface {
	Create(ctx context.Context, s session.Session) error
	Get(ctx context.Context, key string) (*session.Session, error)
	GetMany(ctx context.Context, filter session.Filter) ([]session.Session, error)
	Update(ctx context.Context, key string, update session.Update) error
	Delete(ctx context.Context, key string) error
	// DeleteMany removes every match and returns how many rows it removed.
	DeleteMany(ctx context.Context, filter session.Filter) (int64, error)
}

// ExpiredSessionCleaner removes sessions whose expiry has passed.
type ExpiredSessionCleaner interface {
	// DeleteExpired removes expired sessions in bounded batches and returns the total removed.
	DeleteExpired(ctx context.Context) (int64, error)
}

// TicketStore is the ticket-by-key contract used by the cookie authentication pipeline.
type TicketStore interface {
	Store(ctx context.Context, ticket session.Ticket) (string, error)
	Retrieve(ctx context.Context, key string) (*session.Ticket, error)
	Renew(ctx context.Context, key string, ticket session.Ticket) error
	Remove(ctx context.Context, key string) error
}

// UserTicketQuerier lists the decodable tickets that match a filter.
type UserTicketQuerier interface {
	GetUserTickets(ctx context.Context, filter session.Filter) ([]session.Ticket, error)
}

// SessionRevoker deletes sessions by filter and reports how many were removed.
type SessionRevoker interface {
	Revoke(ctx context.Context, filter session.Filter) (int64, error)
}

// SessionMetrics receives session lifecycle events.
type SessionMetrics interface {
	SessionStarted()
	SessionsEnded(count int64)
}
