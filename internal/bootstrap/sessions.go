package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-bff/config"
	"github.com/target/mmk-bff/internal/adapters/memory"
	redisadapter "github.com/target/mmk-bff/internal/adapters/redis"
	"github.com/target/mmk-bff/internal/data"
	"github.com/target/mmk-bff/internal/ports"
)

// SessionBackend is the selected session persistence: the store itself and its expiry cleaner.
type SessionBackend struct {
	Store   ports.SessionStore
	Cleaner ports.ExpiredSessionCleaner
	Name    config.SessionBackend
}

// SessionBackendDeps groups the connections a session backend may need.
type SessionBackendDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildSessionBackend selects the session store from SESSION_STORE_BACKEND.
func BuildSessionBackend(deps SessionBackendDeps) (SessionBackend, error) {
	if deps.Config == nil {
		return SessionBackend{}, errors.New("config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	app := cfg.BFF.AppDiscriminator
	batch := cfg.SessionCleanup.BatchSize

	switch cfg.SessionStore.Backend {
	case config.SessionBackendPostgres:
		if deps.DB == nil {
			return SessionBackend{}, errors.New("postgres session store requires a database connection")
		}
		repo := data.NewSessionRepo(deps.DB, data.SessionRepoConfig{
			AppDiscriminator: app,
			BatchSize:        batch,
			Logger:           logger,
		})
		return SessionBackend{Store: repo, Cleaner: repo, Name: config.SessionBackendPostgres}, nil

	case config.SessionBackendRedis:
		if deps.RedisClient == nil {
			return SessionBackend{}, errors.New("redis session store requires a redis client")
		}
		store := redisadapter.NewSessionStore(deps.RedisClient, redisadapter.SessionStoreOptions{
			Prefix:           cfg.SessionStore.RedisPrefix,
			AppDiscriminator: app,
			BatchSize:        batch,
			Logger:           logger,
		})
		return SessionBackend{Store: store, Cleaner: store, Name: config.SessionBackendRedis}, nil

	case config.SessionBackendMemory:
		logger.Warn("using in-memory session store; sessions are lost on restart and not shared between replicas")
		store := memory.NewSessionStore(logger)
		store.SetBatchSize(batch)
		return SessionBackend{Store: store, Cleaner: store, Name: config.SessionBackendMemory}, nil

	default:
		return SessionBackend{}, fmt.Errorf("unsupported session backend %q", cfg.SessionStore.Backend)
	}
}

// NeedsDatabase reports whether the configured backend reads from Postgres.
func NeedsDatabase(cfg *config.AppConfig) bool {
	return cfg != nil && cfg.SessionStore.Backend == config.SessionBackendPostgres
}

// NeedsRedis reports whether the configured backend reads from Redis.
func NeedsRedis(cfg *config.AppConfig) bool {
	return cfg != nil && cfg.SessionStore.Backend == config.SessionBackendRedis
}

// ConnectSessionInfra opens only the connections the configured session backend reads from.
// Either return value may be nil.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func ConnectSessionInfra(cfg *config.AppConfig, logger *slog.Logger) (*sql.DB, redis.UniversalClient, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is required")
	}
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	var db *sql.DB
	if NeedsDatabase(cfg) {
		conn, err := ConnectDB(dbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect db: %w", err)
		}
		db = conn
	}

	if !NeedsRedis(cfg) {
		return db, nil, nil
	}
	client, err := ConnectRedis(dbCfg)
	if err != nil {
		if db != nil {
			if cerr := db.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
			}
		}
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return db, client, nil
}

// CloseSessionInfra closes whatever ConnectSessionInfra opened.
func CloseSessionInfra(db *sql.DB, client redis.UniversalClient) error {
	var closeErr error
	if db != nil {
		if err := db.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if client != nil {
		if err := client.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}
