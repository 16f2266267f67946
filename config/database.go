package config

import (
	"fmt"
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"mmk_bff"`
	Password string `env:"PASSWORD"                envDefault:"mmk_bff"`
	Name     string `env:"NAME"                    envDefault:"mmk_bff"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// Pool sizing. Session lookups are short point queries, so a small pool suffices.
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	ApplicationName string        `env:"APPLICATION_NAME"  envDefault:"mmk-bff"`
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// SessionBackend selects where server-side sessions are persisted.
type SessionBackend string

const (
	// SessionBackendPostgres stores sessions in the user_sessions table.
	SessionBackendPostgres SessionBackend = "postgres"
	// SessionBackendRedis stores sessions in Redis.
	SessionBackendRedis SessionBackend = "redis"
	// SessionBackendMemory keeps sessions in process memory (development only).
	SessionBackendMemory SessionBackend = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionBackend.
func (b *SessionBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch SessionBackend(v) {
	case SessionBackendPostgres, SessionBackendRedis, SessionBackendMemory:
		*b = SessionBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid SessionBackend: %q (valid options: postgres, redis, memory)", v)
	}
}

// SessionStoreConfig contains session persistence configuration.
type SessionStoreConfig struct {
	Backend SessionBackend `env:"SESSION_STORE_BACKEND" envDefault:"postgres"`
	// RedisPrefix namespaces session keys when Backend=redis.
	RedisPrefix string `env:"SESSION_STORE_REDIS_PREFIX" envDefault:"bff:sessions:"`
}

// Sanitize applies guardrails to session store configuration values.
func (c *SessionStoreConfig) Sanitize() {
	if c.Backend == "" {
		c.Backend = SessionBackendPostgres
	}
	if strings.TrimSpace(c.RedisPrefix) == "" {
		c.RedisPrefix = "bff:sessions:"
	}
}
