package memory

// Package memory provides process-local adapters for development and tests.

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/target/mmk-bff/internal/domain/session"
	"github.com/target/mmk-bff/internal/ports"
)

var (
	_ ports.SessionStore          = (*SessionStore)(nil)
	_ ports.ExpiredSessionCleaner = (*SessionStore)(nil)
)

// DefaultBatchSize bounds each DeleteExpired pass.
const DefaultBatchSize = 100

type entry struct {
	seq  uint64
	sess session.Session
}

// SessionStore keeps sessions in a mutex-guarded map. Sessions are lost on restart,
// so it only suits single-instance development setups and tests.
type SessionStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	seq     uint64
	batch   int
	now     func() time.Time
	logger  *slog.Logger
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore(logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		entries: make(map[string]entry),
		batch:   DefaultBatchSize,
		now:     time.Now,
		logger:  logger.With("component", "memory_session_store"),
	}
}

// SetClock overrides the time source used by DeleteExpired.
func (m *SessionStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetBatchSize caps the rows removed per DeleteExpired pass. Values below 1 are ignored.
func (m *SessionStore) SetBatchSize(n int) {
	if n < 1 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batch = n
}

func (m *SessionStore) Create(ctx context.Context, s session.Session) error {
	if s.Key == "" {
		return session.ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.SessionID != "" && m.ownerOfLocked(s.SessionID) != "" {
		m.logger.DebugContext(ctx, "session already exists for sid; ignoring duplicate insert",
			"subject_id", s.SubjectID, "session_id", s.SessionID)
		return nil
	}
	m.seq++
	m.entries[s.Key] = entry{seq: m.seq, sess: s}
	return nil
}

func (m *SessionStore) ownerOfLocked(sid string) string {
	for k, e := range m.entries {
		if e.sess.SessionID == sid {
			return k
		}
	}
	return ""
}

func (m *SessionStore) Get(ctx context.Context, key string) (*session.Session, error) {
	if key == "" {
		return nil, session.ErrEmptyKey
	}
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		m.logger.DebugContext(ctx, "no session found for key")
		return nil, nil
	}
	out := e.sess
	return &out, nil
}

func (m *SessionStore) GetMany(_ context.Context, filter session.Filter) ([]session.Session, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	matched := m.matchLocked(filter)
	m.mu.RUnlock()

	out := make([]session.Session, 0, len(matched))
	for _, e := range matched {
		out = append(out, e.sess)
	}
	return out, nil
}

func (m *SessionStore) matchLocked(filter session.Filter) []entry {
	var out []entry
	for _, e := range m.entries {
		if filter.Matches(e.sess) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (m *SessionStore) Update(ctx context.Context, key string, u session.Update) error {
	if key == "" {
		return session.ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.logger.DebugContext(ctx, "no session found to update")
		return nil
	}
	next := u.Apply(e.sess)
	if next.SessionID != "" && next.SessionID != e.sess.SessionID {
		if owner := m.ownerOfLocked(next.SessionID); owner != "" && owner != key {
			m.logger.DebugContext(ctx, "session update collided with another row for the same sid; ignoring",
				"session_id", next.SessionID)
			return nil
		}
	}
	e.sess = next
	m.entries[key] = e
	return nil
}

func (m *SessionStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return session.ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		m.logger.DebugContext(ctx, "no session found to delete")
		return nil
	}
	delete(m.entries, key)
	return nil
}

func (m *SessionStore) DeleteMany(ctx context.Context, filter session.Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := m.matchLocked(filter)
	for _, e := range matched {
		delete(m.entries, e.sess.Key)
	}
	m.logger.DebugContext(ctx, "deleted sessions by filter",
		"subject_id", filter.SubjectID, "session_id", filter.SessionID, "count", len(matched))
	return int64(len(matched)), nil
}

// DeleteExpired removes sessions whose expiry is before now, oldest insertion first,
// one batch per lock acquisition until a batch comes back short.
func (m *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.RLock()
	now, limit := m.now(), m.batch
	m.mu.RUnlock()

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n := m.deleteExpiredBatch(now, limit)
		total += n
		if n < int64(limit) {
			return total, nil
		}
	}
}

func (m *SessionStore) deleteExpiredBatch(now time.Time, limit int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []entry
	for _, e := range m.entries {
		if e.sess.Expires != nil && e.sess.Expires.Before(now) {
			expired = append(expired, e)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].seq < expired[j].seq })
	if len(expired) > limit {
		expired = expired[:limit]
	}
	for _, e := range expired {
		delete(m.entries, e.sess.Key)
	}
	return int64(len(expired))
}

// Len returns the number of stored sessions.
func (m *SessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
