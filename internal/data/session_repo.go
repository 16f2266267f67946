package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/target/mmk-bff/internal/data/pgxutil"
	"github.com/target/mmk-bff/internal/domain/session"
	apperrors "github.com/target/mmk-bff/internal/errors"
	"github.com/target/mmk-bff/internal/ports"
)

// Advisory lock for session cleanup; major 2000 is reserved for session bookkeeping.
var sessionExpiryLock = pgxutil.AdvisoryLock{Major: 2000, Minor: 1}

const (
	// DefaultSessionCleanupBatchSize bounds each DeleteExpired pass.
	DefaultSessionCleanupBatchSize = 100

	constraintSessionAppSID = "user_sessions_app_sid_key"

	sessionColumns = "key, app_discriminator, subject_id, session_id, created, renewed, expires, ticket"
)

// SessionRepoConfig configures a SessionRepo.
type SessionRepoConfig struct {
	// AppDiscriminator scopes every row so several applications can share one table.
	AppDiscriminator string
	// BatchSize caps rows removed per DeleteExpired pass. Defaults to 100.
	BatchSize int
	// Now decides which rows have expired. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// SessionRepo is the Postgres-backed session store.
type SessionRepo struct {
	DB        *sql.DB
	app       string
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

var (
	_ ports.SessionStore          = (*SessionRepo)(nil)
	_ ports.ExpiredSessionCleaner = (*SessionRepo)(nil)
)

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(db *sql.DB, cfg SessionRepoConfig) *SessionRepo {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultSessionCleanupBatchSize
	}
	return &SessionRepo{
		DB:        db,
		app:       cfg.AppDiscriminator,
		batchSize: batch,
		now:       now,
		logger:    logger.With("component", "session_repo"),
	}
}

// Create inserts a session. A uniqueness conflict on (app_discriminator, session_id) is a benign
// login race and is logged, not returned.
func (r *SessionRepo) Create(ctx context.Context, s session.Session) error {
	if s.Key == "" {
		return session.ErrEmptyKey
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO user_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.Key, r.app, s.SubjectID, nullString(s.SessionID),
		s.Created.UTC(), s.Renewed.UTC(), utcPtr(s.Expires), s.Ticket)
	if err != nil {
		if apperrors.IsUniqueViolation(err, constraintSessionAppSID) {
			r.logger.DebugContext(ctx, "session already exists for sid; ignoring duplicate insert",
				"subject_id", s.SubjectID, "session_id", s.SessionID)
			return nil
		}
		return fmt.Errorf("insert session: %w", apperrors.MapDBError(err))
	}
	return nil
}

// Get returns the session stored under key, or nil when there is none.
func (r *SessionRepo) Get(ctx context.Context, key string) (*session.Session, error) {
	if key == "" {
		return nil, session.ErrEmptyKey
	}
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE app_discriminator = $1 AND key = $2
	`, r.app, key)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.DebugContext(ctx, "no session found for key")
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", apperrors.MapDBError(err))
	}
	return s, nil
}

// GetMany returns sessions matching filter in insertion order.
func (r *SessionRepo) GetMany(ctx context.Context, filter session.Filter) ([]session.Session, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	where, args := r.filterClause(filter)
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE `+where+`
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", apperrors.MapDBError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []session.Session
	for rows.Next() {
		s, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan session: %w", scanErr)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Update applies a partial change to the session stored under key. A missing row is a no-op.
func (r *SessionRepo) Update(ctx context.Context, key string, u session.Update) error {
	if key == "" {
		return session.ErrEmptyKey
	}
	sets, args := updateAssignments(u)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, r.app, key)
	n := len(args)
	query := "UPDATE user_sessions SET " + strings.Join(sets, ", ") +
		" WHERE app_discriminator = $" + strconv.Itoa(n-1) + " AND key = $" + strconv.Itoa(n)

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		if apperrors.IsUniqueViolation(err, constraintSessionAppSID) {
			r.logger.DebugContext(ctx, "session update collided with another row for the same sid; ignoring",
				"session_id", derefString(u.SessionID))
			return nil
		}
		return fmt.Errorf("update session: %w", apperrors.MapDBError(err))
	}
	if ra, raErr := res.RowsAffected(); raErr == nil && ra == 0 {
		r.logger.DebugContext(ctx, "no session found to update")
	}
	return nil
}

// Delete removes the session stored under key. A missing row is a no-op.
func (r *SessionRepo) Delete(ctx context.Context, key string) error {
	if key == "" {
		return session.ErrEmptyKey
	}
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM user_sessions WHERE app_discriminator = $1 AND key = $2`, r.app, key)
	if err != nil {
		return fmt.Errorf("delete session: %w", apperrors.MapDBError(err))
	}
	if ra, raErr := res.RowsAffected(); raErr == nil && ra == 0 {
		r.logger.DebugContext(ctx, "no session found to delete")
	}
	return nil
}

// DeleteMany removes every session matching filter and returns the number removed.
func (r *SessionRepo) DeleteMany(ctx context.Context, filter session.Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	where, args := r.filterClause(filter)
	res, err := r.DB.ExecContext(ctx, `DELETE FROM user_sessions WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete sessions rows affected: %w", err)
	}
	r.logger.DebugContext(ctx, "deleted sessions by filter",
		"subject_id", filter.SubjectID, "session_id", filter.SessionID, "count", n)
	return n, nil
}

// DeleteExpired removes sessions whose expiry has passed, in batches ordered by insertion,
// until a batch comes back short. Concurrent instances skip the pass when another holds the lock.
// Returns the total removed.
func (r *SessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, locked, err := r.deleteExpiredBatch(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if !locked {
			r.logger.DebugContext(ctx, "session cleanup lock held elsewhere; skipping pass")
			return total, nil
		}
		if n < int64(r.batchSize) {
			return total, nil
		}
	}
}

func (r *SessionRepo) deleteExpiredBatch(ctx context.Context) (int64, bool, error) {
	var (
		deleted int64
		locked  bool
	)
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var err error
			if locked, err = pgxutil.TryXactLock(ctx, tx, sessionExpiryLock); err != nil || !locked {
				return err
			}

			res, err := tx.ExecContext(ctx, `
				DELETE FROM user_sessions
				WHERE id IN (
					SELECT id FROM user_sessions
					WHERE app_discriminator = $1
					  AND expires IS NOT NULL
					  AND expires < $2
					ORDER BY id
					LIMIT $3
				)
			`, r.app, r.now().UTC(), r.batchSize)
			if err != nil {
				return fmt.Errorf("delete expired sessions: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			deleted = ra
			return nil
		},
	})
	if err != nil {
		return 0, false, err
	}
	return deleted, locked, nil
}

func (r *SessionRepo) filterClause(f session.Filter) (string, []any) {
	clauses := []string{"app_discriminator = $1"}
	args := []any{r.app}
	if sub := strings.TrimSpace(f.SubjectID); sub != "" {
		args = append(args, sub)
		clauses = append(clauses, "subject_id = $"+strconv.Itoa(len(args)))
	}
	if sid := strings.TrimSpace(f.SessionID); sid != "" {
		args = append(args, sid)
		clauses = append(clauses, "session_id = $"+strconv.Itoa(len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func updateAssignments(u session.Update) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if u.SubjectID != nil {
		add("subject_id", *u.SubjectID)
	}
	if u.SessionID != nil {
		add("session_id", nullString(*u.SessionID))
	}
	if u.Created != nil {
		add("created", u.Created.UTC())
	}
	if u.Renewed != nil {
		add("renewed", u.Renewed.UTC())
	}
	switch {
	case u.ClearExpires:
		sets = append(sets, "expires = NULL")
	case u.Expires != nil:
		add("expires", u.Expires.UTC())
	}
	if u.Ticket != nil {
		add("ticket", *u.Ticket)
	}
	return sets, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		s       session.Session
		sid     sql.NullString
		expires sql.NullTime
	)
	if err := row.Scan(&s.Key, &s.AppDiscriminator, &s.SubjectID, &sid,
		&s.Created, &s.Renewed, &expires, &s.Ticket); err != nil {
		return nil, err
	}
	s.SessionID = sid.String
	if expires.Valid {
		exp := expires.Time
		s.Expires = &exp
	}
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
