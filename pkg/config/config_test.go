package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.HTTP.MaxConcurrent = 5
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxConcurrent = 10
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 65536
	return cfg
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Poll.Interval)
	assert.Equal(t, WatchlistBackendFile, cfg.Watchlist.Backend)
	assert.Equal(t, "streamers.json", cfg.Watchlist.Path)
	assert.True(t, cfg.UsesDefaultToken())
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty server address", mutate: func(c *Config) { c.Server.Address = "" }},
		{name: "signal path without slash", mutate: func(c *Config) { c.Signal.Path = "ws" }},
		{name: "pong timeout not above ping interval", mutate: func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval }},
		{name: "poll interval below one second", mutate: func(c *Config) { c.Poll.Interval = 500 * time.Millisecond }},
		{name: "unknown watch-list backend", mutate: func(c *Config) { c.Watchlist.Backend = "sqlite" }},
		{name: "file backend without path", mutate: func(c *Config) { c.Watchlist.Path = "" }},
		{name: "redis backend while redis disabled", mutate: func(c *Config) { c.Watchlist.Backend = WatchlistBackendRedis }},
		{name: "empty auth token", mutate: func(c *Config) { c.Auth.Token = "" }},
		{name: "redis without key", mutate: func(c *Config) { c.Redis.Enabled = true; c.Redis.Key = "" }},
		{name: "tracing sample rate above one", mutate: func(c *Config) { c.Tracing.Enabled = true; c.Tracing.SampleRate = 2 }},
		{name: "negative profile cache ttl", mutate: func(c *Config) { c.Twitch.ProfileCacheTTL = -time.Second }},
		{name: "breaker without cooldown", mutate: func(c *Config) { c.Twitch.BreakerCooldown = 0 }},
		{name: "backup interval below a minute", mutate: func(c *Config) { c.Backup.Enabled = true; c.Backup.Interval = time.Second }},
		{name: "negative backup retention", mutate: func(c *Config) { c.Backup.Keep = -1 }},
		{name: "http rps must be > 0", mutate: func(c *Config) { c.RateLimiting.HTTP.RequestsPerSecond = 0 }},
		{name: "http burst must be > 0", mutate: func(c *Config) { c.RateLimiting.HTTP.Burst = 0 }},
		{name: "http max concurrent must be >= 0", mutate: func(c *Config) { c.RateLimiting.HTTP.MaxConcurrent = -1 }},
		{name: "ws messages per second must be > 0", mutate: func(c *Config) { c.RateLimiting.WebSocket.MessagesPerSecond = 0 }},
		{name: "ws burst must be > 0", mutate: func(c *Config) { c.RateLimiting.WebSocket.Burst = 0 }},
		{name: "ws max message size must be >= 0", mutate: func(c *Config) { c.RateLimiting.WebSocket.MaxMessageSizeBytes = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			require.NoError(t, cfg.Validate())
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRequireTwitch(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.RequireTwitch())

	cfg.Twitch.ClientID = "id"
	assert.Error(t, cfg.RequireTwitch())

	cfg.Twitch.ClientSecret = "secret"
	assert.NoError(t, cfg.RequireTwitch())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("does-not-exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Address, cfg.Server.Address)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "config.yaml")
	yamlData := []byte(`
poll:
  interval: 10s
watchlist:
  backend: memory
logging:
  level: debug
  format: console
`)
	require.NoError(t, os.WriteFile(path, yamlData, 0o644))

	t.Setenv("CLIENT_ID", "env-id")
	t.Setenv("CLIENT_SECRET", "env-secret")
	t.Setenv("WEBSERVER_PORT", "4000")
	t.Setenv("WEBSOCKET_PORT", "4001")
	t.Setenv("AUTH_TOKEN", "s3cret")
	t.Setenv("STREAMWATCH_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.Equal(t, WatchlistBackendMemory, cfg.Watchlist.Backend)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "env-id", cfg.Twitch.ClientID)
	assert.Equal(t, "env-secret", cfg.Twitch.ClientSecret)
	assert.Equal(t, ":4000", cfg.Server.Address)
	assert.Equal(t, ":4001", cfg.Signal.Address)
	assert.Equal(t, "s3cret", cfg.Auth.Token)
	assert.False(t, cfg.UsesDefaultToken())
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AUTH_TOKEN=from-dotenv\n"), 0o600))
	// godotenv never overrides the real environment, so make sure the
	// variable is unset for the duration of the test.
	t.Setenv("AUTH_TOKEN", "")
	require.NoError(t, os.Unsetenv("AUTH_TOKEN"))

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.Token)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir for older toolchains).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
