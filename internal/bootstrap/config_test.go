package bootstrap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-bff/config"
	"github.com/target/mmk-bff/internal/data/cryptoutil"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestValidateServiceConfig(t *testing.T) {
	prod := func() *config.AppConfig {
		return &config.AppConfig{
			Services:              "http",
			SessionEncryptionKeys: "k1:" + testKeyHex,
			Auth:                  config.AuthConfig{Mode: config.AuthModeOAuth},
			SessionStore:          config.SessionStoreConfig{Backend: config.SessionBackendPostgres},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.AppConfig)
		wantErr string
	}{
		{name: "valid production"},
		{name: "no services", mutate: func(c *config.AppConfig) { c.Services = "" }, wantErr: "invalid service configuration"},
		{name: "missing keys", mutate: func(c *config.AppConfig) { c.SessionEncryptionKeys = "" }, wantErr: "SESSION_ENCRYPTION_KEYS"},
		{name: "memory store", mutate: func(c *config.AppConfig) { c.SessionStore.Backend = config.SessionBackendMemory }, wantErr: "development only"},
		{name: "mock auth", mutate: func(c *config.AppConfig) { c.Auth.Mode = config.AuthModeMock }, wantErr: "development only"},
		{name: "dev allows everything", mutate: func(c *config.AppConfig) {
			c.IsDev = true
			c.SessionEncryptionKeys = ""
			c.SessionStore.Backend = config.SessionBackendMemory
			c.Auth.Mode = config.AuthModeMock
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := prod()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := ValidateServiceConfig(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	require.Error(t, ValidateServiceConfig(nil))
}

func TestValidateServiceConfig_ReportsAllProblems(t *testing.T) {
	err := ValidateServiceConfig(&config.AppConfig{
		Services:     "http",
		Auth:         config.AuthConfig{Mode: config.AuthModeMock},
		SessionStore: config.SessionStoreConfig{Backend: config.SessionBackendMemory},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_ENCRYPTION_KEYS")
	assert.Contains(t, err.Error(), "memory session store")
	assert.Contains(t, err.Error(), "AUTH_MODE=mock")
}

func TestEnabledServiceNames(t *testing.T) {
	got := EnabledServiceNames(&config.AppConfig{Services: "session-cleanup, http"})
	assert.Equal(t, []string{"http", "session-cleanup"}, got)

	assert.Empty(t, EnabledServiceNames(&config.AppConfig{Services: "bogus"}))
	assert.Empty(t, EnabledServiceNames(nil))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, config.LogConfig{Level: "warn", Format: "text"})

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "k=v")

	buf.Reset()
	NewLogger(&buf, config.LogConfig{Level: "info", Format: "json"}).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestCreateEncryptors(t *testing.T) {
	t.Run("dev falls back to noop", func(t *testing.T) {
		enc, err := CreateEncryptors(&config.AppConfig{IsDev: true}, discardLogger())
		require.NoError(t, err)
		assert.IsType(t, cryptoutil.NoopEncryptor{}, enc.Tickets)
		assert.IsType(t, cryptoutil.NoopEncryptor{}, enc.Cookies)
	})

	t.Run("production requires keys", func(t *testing.T) {
		_, err := CreateEncryptors(&config.AppConfig{}, discardLogger())
		require.Error(t, err)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := CreateEncryptors(&config.AppConfig{SessionEncryptionKeys: "k1:zz"}, discardLogger())
		require.Error(t, err)
	})

	t.Run("key ring seals per purpose", func(t *testing.T) {
		enc, err := CreateEncryptors(&config.AppConfig{SessionEncryptionKeys: "k1:" + testKeyHex}, discardLogger())
		require.NoError(t, err)

		sealed, err := enc.Tickets.Encrypt([]byte("ticket"))
		require.NoError(t, err)
		assert.NotContains(t, sealed, "ticket")

		plain, err := enc.Tickets.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, "ticket", string(plain))

		_, err = enc.Cookies.Decrypt(sealed)
		require.Error(t, err, "a ticket payload must not open as a cookie")
	})
}
