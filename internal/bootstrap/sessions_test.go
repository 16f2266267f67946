package bootstrap

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-bff/config"
)

func TestBuildSessionBackend(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		backend, err := BuildSessionBackend(SessionBackendDeps{Config: devConfig(), Logger: discardLogger()})
		require.NoError(t, err)
		assert.Equal(t, config.SessionBackendMemory, backend.Name)
		assert.NotNil(t, backend.Store)
		assert.NotNil(t, backend.Cleaner)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		cfg := devConfig()
		cfg.SessionStore.Backend = config.SessionBackendRedis
		backend, err := BuildSessionBackend(SessionBackendDeps{Config: cfg, RedisClient: client, Logger: discardLogger()})
		require.NoError(t, err)
		assert.Equal(t, config.SessionBackendRedis, backend.Name)
	})

	t.Run("redis without client", func(t *testing.T) {
		cfg := devConfig()
		cfg.SessionStore.Backend = config.SessionBackendRedis
		_, err := BuildSessionBackend(SessionBackendDeps{Config: cfg})
		require.Error(t, err)
	})

	t.Run("postgres without database", func(t *testing.T) {
		cfg := devConfig()
		cfg.SessionStore.Backend = config.SessionBackendPostgres
		_, err := BuildSessionBackend(SessionBackendDeps{Config: cfg})
		require.Error(t, err)
	})

	t.Run("missing config", func(t *testing.T) {
		_, err := BuildSessionBackend(SessionBackendDeps{})
		require.Error(t, err)
	})
}

func TestNeedsConnections(t *testing.T) {
	cfg := devConfig()
	assert.False(t, NeedsDatabase(cfg))
	assert.False(t, NeedsRedis(cfg))

	cfg.SessionStore.Backend = config.SessionBackendPostgres
	assert.True(t, NeedsDatabase(cfg))

	cfg.SessionStore.Backend = config.SessionBackendRedis
	assert.True(t, NeedsRedis(cfg))

	assert.False(t, NeedsDatabase(nil))
}

func TestConnectSessionInfra(t *testing.T) {
	t.Run("memory needs nothing", func(t *testing.T) {
		db, client, err := ConnectSessionInfra(devConfig(), discardLogger())
		require.NoError(t, err)
		assert.Nil(t, db)
		assert.Nil(t, client)
		require.NoError(t, CloseSessionInfra(db, client))
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := devConfig()
		cfg.SessionStore.Backend = config.SessionBackendRedis
		cfg.Redis.URI = mr.Addr()

		db, client, err := ConnectSessionInfra(cfg, discardLogger())
		require.NoError(t, err)
		assert.Nil(t, db)
		require.NotNil(t, client)
		require.NoError(t, CloseSessionInfra(db, client))
	})

	t.Run("missing config", func(t *testing.T) {
		_, _, err := ConnectSessionInfra(nil, nil)
		require.Error(t, err)
	})
}
