package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-bff/internal/domain/session"
)

func sess(key, sub, sid string, expires *time.Time) session.Session {
	return session.Session{Key: key, SubjectID: sub, SessionID: sid, Expires: expires, Ticket: "t-" + key}
}

func TestSessionStore_CRUD(t *testing.T) {
	store := NewSessionStore(nil)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sess("k1", "alice", "sid1", nil)))

	got, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.SubjectID)

	ticket := "t2"
	require.NoError(t, store.Update(ctx, "k1", session.Update{Ticket: &ticket}))
	got, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "t2", got.Ticket)

	require.NoError(t, store.Delete(ctx, "k1"))
	require.NoError(t, store.Delete(ctx, "k1"))
	got, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Update(ctx, "k1", session.Update{Ticket: &ticket}))
	assert.Zero(t, store.Len())
}

func TestSessionStore_DuplicateSessionID(t *testing.T) {
	store := NewSessionStore(nil)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sess("k1", "alice", "sid1", nil)))
	require.NoError(t, store.Create(ctx, sess("k2", "alice", "sid1", nil)))
	assert.Equal(t, 1, store.Len())
}

func TestSessionStore_GetManyOrder(t *testing.T) {
	store := NewSessionStore(nil)
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, store.Create(ctx, sess(fmt.Sprintf("k%d", 4-i), "alice", "", nil)))
	}

	rows, err := store.GetMany(ctx, session.Filter{SubjectID: "alice"})
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "k4", rows[0].Key)
	assert.Equal(t, "k0", rows[4].Key)

	_, err = store.GetMany(ctx, session.Filter{})
	assert.ErrorIs(t, err, session.ErrInvalidFilter)
	_, err = store.DeleteMany(ctx, session.Filter{})
	assert.ErrorIs(t, err, session.ErrInvalidFilter)

	removed, err := store.DeleteMany(ctx, session.Filter{SubjectID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), removed)
	assert.Zero(t, store.Len())
}

func TestSessionStore_DeleteExpired(t *testing.T) {
	store := NewSessionStore(nil)
	now := time.Now()
	store.SetClock(func() time.Time { return now })
	ctx := context.Background()
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	for i := range 4 {
		require.NoError(t, store.Create(ctx, sess(fmt.Sprintf("old%d", i), "alice", "", &past)))
	}
	require.NoError(t, store.Create(ctx, sess("live", "alice", "", &future)))
	require.NoError(t, store.Create(ctx, sess("forever", "alice", "", nil)))

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, store.Len())
}

func TestSessionStore_DeleteExpiredBatchesByInsertion(t *testing.T) {
	store := NewSessionStore(nil)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	store.SetBatchSize(2)
	ctx := context.Background()

	// Earlier inserts carry later expiries so insertion order differs from expiry order.
	for i := range 5 {
		exp := now.Add(-time.Duration(10-i) * time.Minute)
		if i < 2 {
			exp = now.Add(-time.Duration(i+1) * time.Second)
		}
		require.NoError(t, store.Create(ctx, sess(fmt.Sprintf("e%d", i), "alice", "", &exp)))
	}
	live := now.Add(time.Hour)
	require.NoError(t, store.Create(ctx, sess("live", "alice", "", &live)))

	assert.Equal(t, int64(2), store.deleteExpiredBatch(now, 2))
	for _, key := range []string{"e0", "e1"} {
		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got, key)
	}
	assert.Equal(t, 4, store.Len())

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, store.Len())

	store.SetBatchSize(0)
	n, err = store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "ignored batch size keeps the previous one")
}

func TestSessionStore_DeleteExpiredHonorsCancel(t *testing.T) {
	store := NewSessionStore(nil)
	past := time.Now().Add(-time.Minute)
	require.NoError(t, store.Create(context.Background(), sess("old", "alice", "", &past)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := store.DeleteExpired(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.Equal(t, 1, store.Len())
}

func TestSessionStore_ConcurrentAccess(t *testing.T) {
	store := NewSessionStore(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			_ = store.Create(ctx, sess(key, "alice", "", nil))
			_, _ = store.Get(ctx, key)
			_, _ = store.GetMany(ctx, session.Filter{SubjectID: "alice"})
			if i%2 == 0 {
				_ = store.Delete(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, store.Len())
}
