package redis

// Package redis provides Redis-based adapters for the gateway.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-bff/internal/domain/session"
	"github.com/target/mmk-bff/internal/ports"
)

// DefaultBatchSize bounds each DeleteExpired pass.
const DefaultBatchSize = 100

// SessionStore is a Redis-backed session store.
//
// Layout under the prefix:
//
//	s:<key>        JSON record
//	sub:<subject>  set of keys for a subject
//	sid:<sid>      key owning an IdP session id
//	seq            insertion counter
//	exp            sorted set of keys scored by expiry (unix ms)
//
// Sessions carry no Redis TTL; DeleteExpired owns removal so counts stay exact.
type SessionStore struct {
	client    redis.UniversalClient
	prefix    string
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

var (
	_ ports.SessionStore          = (*SessionStore)(nil)
	_ ports.ExpiredSessionCleaner = (*SessionStore)(nil)
)

// SessionStoreOptions configures a SessionStore.
type SessionStoreOptions struct {
	// Prefix namespaces all keys. Defaults to "bff:sessions:". The app discriminator is appended when set.
	Prefix           string
	AppDiscriminator string
	BatchSize        int
	Now              func() time.Time
	Logger           *slog.Logger
}

type record struct {
	session.Session
	Seq int64 `json:"seq"`
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient, opts SessionStoreOptions) *SessionStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "bff:sessions:"
	}
	if opts.AppDiscriminator != "" {
		prefix += opts.AppDiscriminator + ":"
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		client:    client,
		prefix:    prefix,
		batchSize: batch,
		now:       now,
		logger:    logger.With("component", "redis_session_store"),
	}
}

func (s *SessionStore) dataKey(key string) string { return s.prefix + "s:" + key }
func (s *SessionStore) subKey(sub string) string  { return s.prefix + "sub:" + sub }
func (s *SessionStore) sidKey(sid string) string  { return s.prefix + "sid:" + sid }
func (s *SessionStore) seqKey() string            { return s.prefix + "seq" }
func (s *SessionStore) expKey() string            { return s.prefix + "exp" }

// Create stores a new session. A second session claiming a live IdP session id is ignored.
func (s *SessionStore) Create(ctx context.Context, sess session.Session) error {
	if sess.Key == "" {
		return session.ErrEmptyKey
	}
	if sess.SessionID != "" {
		claimed, err := s.claimSessionID(ctx, sess.SessionID, sess.Key)
		if err != nil {
			return err
		}
		if !claimed {
			s.logger.DebugContext(ctx, "session already exists for sid; ignoring duplicate insert",
				"subject_id", sess.SubjectID, "session_id", sess.SessionID)
			return nil
		}
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	return s.write(ctx, record{Session: sess, Seq: seq}, nil)
}

// claimSessionID points the sid index at key unless a live session already owns it.
func (s *SessionStore) claimSessionID(ctx context.Context, sid, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.sidKey(sid), key, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return true, nil
	}
	owner, err := s.client.Get(ctx, s.sidKey(sid)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("redis get: %w", err)
	}
	if owner == key {
		return true, nil
	}
	if owner != "" {
		exists, existsErr := s.client.Exists(ctx, s.dataKey(owner)).Result()
		if existsErr != nil {
			return false, fmt.Errorf("redis exists: %w", existsErr)
		}
		if exists > 0 {
			return false, nil
		}
	}
	// Stale index entry left by an interrupted delete.
	if setErr := s.client.Set(ctx, s.sidKey(sid), key, 0).Err(); setErr != nil {
		return false, fmt.Errorf("redis set: %w", setErr)
	}
	return true, nil
}

func (s *SessionStore) write(ctx context.Context, rec record, prev *record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.dataKey(rec.Key), data, 0)
		if prev != nil && prev.SubjectID != rec.SubjectID {
			p.SRem(ctx, s.subKey(prev.SubjectID), rec.Key)
		}
		p.SAdd(ctx, s.subKey(rec.SubjectID), rec.Key)
		if prev != nil && prev.SessionID != "" && prev.SessionID != rec.SessionID {
			p.Del(ctx, s.sidKey(prev.SessionID))
		}
		if rec.SessionID != "" {
			p.Set(ctx, s.sidKey(rec.SessionID), rec.Key, 0)
		}
		if rec.Expires != nil {
			p.ZAdd(ctx, s.expKey(), redis.Z{Score: float64(rec.Expires.UnixMilli()), Member: rec.Key})
		} else {
			p.ZRem(ctx, s.expKey(), rec.Key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write session: %w", err)
	}
	return nil
}

func (s *SessionStore) load(ctx context.Context, key string) (*record, error) {
	data, err := s.client.Get(ctx, s.dataKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var rec record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &rec, nil
}

// Get returns the session stored under key, or nil when there is none.
func (s *SessionStore) Get(ctx context.Context, key string) (*session.Session, error) {
	if key == "" {
		return nil, session.ErrEmptyKey
	}
	rec, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		s.logger.DebugContext(ctx, "no session found for key")
		return nil, nil
	}
	out := rec.Session
	return &out, nil
}

// GetMany returns sessions matching filter in insertion order.
func (s *SessionStore) GetMany(ctx context.Context, filter session.Filter) ([]session.Session, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	recs, err := s.query(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]session.Session, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Session)
	}
	return out, nil
}

func (s *SessionStore) query(ctx context.Context, filter session.Filter) ([]record, error) {
	var keys []string
	if filter.SessionID != "" {
		owner, err := s.client.Get(ctx, s.sidKey(filter.SessionID)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis get: %w", err)
		}
		if owner != "" {
			keys = []string{owner}
		}
	} else {
		members, err := s.client.SMembers(ctx, s.subKey(filter.SubjectID)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis smembers: %w", err)
		}
		keys = members
	}
	if len(keys) == 0 {
		return nil, nil
	}

	dataKeys := make([]string, len(keys))
	for i, k := range keys {
		dataKeys[i] = s.dataKey(k)
	}
	values, err := s.client.MGet(ctx, dataKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	var out []record
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry outlived its record.
			s.dropIndexes(ctx, keys[i], filter)
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		if filter.Matches(rec.Session) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *SessionStore) dropIndexes(ctx context.Context, key string, filter session.Filter) {
	if filter.SubjectID != "" {
		_ = s.client.SRem(ctx, s.subKey(filter.SubjectID), key).Err()
	}
	if filter.SessionID != "" {
		_ = s.client.Del(ctx, s.sidKey(filter.SessionID)).Err()
	}
}

// Update applies a partial change to the session stored under key. A missing key is a no-op.
func (s *SessionStore) Update(ctx context.Context, key string, u session.Update) error {
	if key == "" {
		return session.ErrEmptyKey
	}
	prev, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	if prev == nil {
		s.logger.DebugContext(ctx, "no session found to update")
		return nil
	}
	next := record{Session: u.Apply(prev.Session), Seq: prev.Seq}
	if next.SessionID != "" && next.SessionID != prev.SessionID {
		claimed, claimErr := s.claimSessionID(ctx, next.SessionID, key)
		if claimErr != nil {
			return claimErr
		}
		if !claimed {
			s.logger.DebugContext(ctx, "session update collided with another row for the same sid; ignoring",
				"session_id", next.SessionID)
			return nil
		}
	}
	return s.write(ctx, next, prev)
}

// Delete removes the session stored under key. A missing key is a no-op.
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return session.ErrEmptyKey
	}
	_, err := s.remove(ctx, key)
	return err
}

func (s *SessionStore) remove(ctx context.Context, key string) (bool, error) {
	rec, err := s.load(ctx, key)
	if err != nil {
		return false, err
	}
	if rec == nil {
		s.logger.DebugContext(ctx, "no session found to delete")
		return false, s.client.ZRem(ctx, s.expKey(), key).Err()
	}

	sidOwner := ""
	if rec.SessionID != "" {
		sidOwner, err = s.client.Get(ctx, s.sidKey(rec.SessionID)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return false, fmt.Errorf("redis get: %w", err)
		}
	}

	var removed *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		removed = p.Del(ctx, s.dataKey(key))
		p.SRem(ctx, s.subKey(rec.SubjectID), key)
		if sidOwner == key {
			p.Del(ctx, s.sidKey(rec.SessionID))
		}
		p.ZRem(ctx, s.expKey(), key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis delete session: %w", err)
	}
	// Zero means a concurrent delete won the race.
	return removed.Val() > 0, nil
}

// DeleteMany removes every session matching filter and returns the number removed. Rows a
// concurrent delete got to first are not counted.
func (s *SessionStore) DeleteMany(ctx context.Context, filter session.Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	recs, err := s.query(ctx, filter)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range recs {
		removed, err := s.remove(ctx, r.Key)
		if err != nil {
			return n, err
		}
		if removed {
			n++
		}
	}
	s.logger.DebugContext(ctx, "deleted sessions by filter",
		"subject_id", filter.SubjectID, "session_id", filter.SessionID, "count", n)
	return n, nil
}

// DeleteExpired removes sessions whose expiry has passed, in batches ordered by expiry,
// until a batch comes back short. Returns the total removed.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	var total int64
	upper := strconv.FormatInt(s.now().UnixMilli()-1, 10)
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		keys, err := s.client.ZRangeByScore(ctx, s.expKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   upper,
			Count: int64(s.batchSize),
		}).Result()
		if err != nil {
			return total, fmt.Errorf("redis zrangebyscore: %w", err)
		}
		for _, k := range keys {
			removed, err := s.remove(ctx, k)
			if err != nil {
				return total, err
			}
			if removed {
				total++
			}
		}
		if len(keys) < s.batchSize {
			return total, nil
		}
	}
}
