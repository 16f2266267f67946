package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-bff/internal/domain/session"
)

// setupTestStore returns a store backed by an in-process miniredis server.
func setupTestStore(t *testing.T, now func() time.Time) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client, SessionStoreOptions{BatchSize: 3, Now: now}), mr
}

func testSession(key, sub, sid string, expires *time.Time) session.Session {
	now := time.Now().UTC()
	return session.Session{Key: key, SubjectID: sub, SessionID: sid, Created: now, Renewed: now, Expires: expires, Ticket: "t-" + key}
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	store, _ := setupTestStore(t, nil)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).UTC()

	require.NoError(t, store.Create(ctx, testSession("k1", "alice", "sid1", &exp)))

	got, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.SubjectID)
	assert.Equal(t, "t-k1", got.Ticket)
	require.NotNil(t, got.Expires)
	assert.WithinDuration(t, exp, *got.Expires, time.Millisecond)

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSessionStore_DuplicateSessionID(t *testing.T) {
	store, _ := setupTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("k1", "alice", "sid1", nil)))
	require.NoError(t, store.Create(ctx, testSession("k2", "alice", "sid1", nil)))

	rows, err := store.GetMany(ctx, session.Filter{SessionID: "sid1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "k1", rows[0].Key)

	// Once the owner is gone the sid can be claimed again.
	require.NoError(t, store.Delete(ctx, "k1"))
	require.NoError(t, store.Create(ctx, testSession("k3", "alice", "sid1", nil)))
	rows, err = store.GetMany(ctx, session.Filter{SessionID: "sid1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "k3", rows[0].Key)
}

func TestSessionStore_GetManyOrderAndFilter(t *testing.T) {
	store, _ := setupTestStore(t, nil)
	ctx := context.Background()

	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, store.Create(ctx, testSession(k, "alice", "sid-"+k, nil)))
	}
	require.NoError(t, store.Create(ctx, testSession("z", "bob", "sid-z", nil)))

	_, err := store.GetMany(ctx, session.Filter{})
	require.ErrorIs(t, err, session.ErrInvalidFilter)

	rows, err := store.GetMany(ctx, session.Filter{SubjectID: "alice"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{rows[0].Key, rows[1].Key, rows[2].Key})

	rows, err = store.GetMany(ctx, session.Filter{SubjectID: "bob", SessionID: "sid-a"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSessionStore_Update(t *testing.T) {
	store, _ := setupTestStore(t, nil)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, testSession("k1", "alice", "sid1", nil)))

	newSID := "sid2"
	ticket := "t-new"
	exp := time.Now().Add(time.Hour)
	require.NoError(t, store.Update(ctx, "k1", session.Update{SessionID: &newSID, Ticket: &ticket, Expires: &exp}))

	rows, err := store.GetMany(ctx, session.Filter{SessionID: "sid1"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = store.GetMany(ctx, session.Filter{SessionID: "sid2"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "t-new", rows[0].Ticket)

	require.NoError(t, store.Update(ctx, "missing", session.Update{Ticket: &ticket}))
}

func TestSessionStore_DeleteMany(t *testing.T) {
	store, mr := setupTestStore(t, nil)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, testSession("a1", "alice", "sid1", nil)))
	require.NoError(t, store.Create(ctx, testSession("a2", "alice", "sid2", nil)))
	require.NoError(t, store.Create(ctx, testSession("b1", "bob", "sid3", nil)))

	removed, err := store.DeleteMany(ctx, session.Filter{SubjectID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	rows, err := store.GetMany(ctx, session.Filter{SubjectID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.False(t, mr.Exists("bff:sessions:sid:sid1"))

	removed, err = store.DeleteMany(ctx, session.Filter{SubjectID: "alice"})
	require.NoError(t, err)
	assert.Zero(t, removed, "nothing left to remove")
	assert.True(t, mr.Exists("bff:sessions:s:b1"))

	require.NoError(t, store.Delete(ctx, "a1"), "deleting twice is a no-op")
}

func TestSessionStore_DeleteExpired(t *testing.T) {
	now := time.Now()
	store, _ := setupTestStore(t, func() time.Time { return now })
	ctx := context.Background()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	const expired = 7
	for i := range expired {
		require.NoError(t, store.Create(ctx, testSession(fmt.Sprintf("old-%d", i), "alice", fmt.Sprintf("sid-%d", i), &past)))
	}
	require.NoError(t, store.Create(ctx, testSession("live", "alice", "sid-live", &future)))
	require.NoError(t, store.Create(ctx, testSession("forever", "alice", "sid-forever", nil)))

	count, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(expired), count)

	count, err = store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	rows, err := store.GetMany(ctx, session.Filter{SubjectID: "alice"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSessionStore_DeleteExpiredCanceled(t *testing.T) {
	store, _ := setupTestStore(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.DeleteExpired(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSessionStore_AppDiscriminatorIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	a := NewSessionStore(client, SessionStoreOptions{AppDiscriminator: "app-a"})
	b := NewSessionStore(client, SessionStoreOptions{AppDiscriminator: "app-b"})

	require.NoError(t, a.Create(ctx, testSession("k1", "alice", "sid1", nil)))
	require.NoError(t, b.Create(ctx, testSession("k2", "alice", "sid1", nil)))

	rows, err := b.GetMany(ctx, session.Filter{SubjectID: "alice"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "k2", rows[0].Key)
}
