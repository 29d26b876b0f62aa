package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaultsWithSecretFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENCRYPTION_KEY", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Crypto.Secret)
	assert.Equal(t, "salt", cfg.Crypto.Salt)
	assert.Equal(t, "auth-session", cfg.Session.CookieName)
	assert.Equal(t, 60*time.Second, cfg.Presence.TTL)
	assert.Equal(t, 30*time.Second, cfg.Presence.HeartbeatInterval)
	assert.Equal(t, "conversation_unread_changed", cfg.Notify.Channel)
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.HTTP.DebugRoutes)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	yamlBody := "presence:\n  ttl: 120s\n  heartbeat_interval: 40s\nredis:\n  addr: cache:6379\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlBody), 0o600))
	t.Setenv("ENCRYPTION_KEY", "k")
	t.Setenv("REDIS_ADDR", "override:6379")
	t.Setenv("PERSIST_TIMEOUT", "2s")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DEBUG_ROUTES", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 120*time.Second, cfg.Presence.TTL)
	assert.Equal(t, 40*time.Second, cfg.Presence.HeartbeatInterval)
	assert.Equal(t, "override:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.PersistTimeout)
	assert.Equal(t, "production", cfg.Env)
	assert.True(t, cfg.HTTP.DebugRoutes)
}

func TestLoadRequiresSecret(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENCRYPTION_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crypto.secret")
}

func TestValidateHeartbeatShorterThanTTL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Crypto.Secret = "x"
	cfg.Presence.HeartbeatInterval = cfg.Presence.TTL

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat_interval")
}

func TestOrigins(t *testing.T) {
	ws := WSConfig{AllowedOrigins: " http://a.test , ,http://b.test"}
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, ws.Origins())
	assert.Empty(t, WSConfig{}.Origins())
}
