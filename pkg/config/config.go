package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	WatchlistBackendFile   = "file"
	WatchlistBackendRedis  = "redis"
	WatchlistBackendMemory = "memory"

	defaultAuthToken = "default_token"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		Address         string        `yaml:"address"`
		Path            string        `yaml:"path"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"signal"`

	Twitch struct {
		ClientID       string        `yaml:"client_id"`
		ClientSecret   string        `yaml:"client_secret"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		// ProfileCacheTTL of 0 fetches profiles on every poll cycle.
		ProfileCacheTTL time.Duration `yaml:"profile_cache_ttl"`
		// BreakerThreshold of 0 disables the circuit breaker.
		BreakerThreshold int           `yaml:"breaker_threshold"`
		BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	} `yaml:"twitch"`

	Poll struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"poll"`

	Watchlist struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"watchlist"`

	Auth struct {
		Token          string   `yaml:"token"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"auth"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		Key      string `yaml:"key"`
	} `yaml:"redis"`

	Backup struct {
		Enabled  bool          `yaml:"enabled"`
		Dir      string        `yaml:"dir"`
		Interval time.Duration `yaml:"interval"`
		Keep     int           `yaml:"keep"`
	} `yaml:"backup"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			MessagesPerSecond   float64 `yaml:"messages_per_second"`
			Burst               int     `yaml:"burst"`
			MaxConcurrent       int     `yaml:"max_concurrent_connections"`
			MaxMessageSizeBytes int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.Address == "" {
		return fmt.Errorf("signal.address must not be empty")
	}
	if !strings.HasPrefix(c.Signal.Path, "/") {
		return fmt.Errorf("signal.path must start with /")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be greater than signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.ShutdownTimeout <= 0 {
		return fmt.Errorf("signal.shutdown_timeout must be > 0")
	}

	// Twitch
	if c.Twitch.RequestTimeout <= 0 {
		return fmt.Errorf("twitch.request_timeout must be > 0")
	}
	if c.Twitch.ProfileCacheTTL < 0 {
		return fmt.Errorf("twitch.profile_cache_ttl must be >= 0")
	}
	if c.Twitch.BreakerThreshold < 0 {
		return fmt.Errorf("twitch.breaker_threshold must be >= 0")
	}
	if c.Twitch.BreakerThreshold > 0 && c.Twitch.BreakerCooldown <= 0 {
		return fmt.Errorf("twitch.breaker_cooldown must be > 0 when the breaker is enabled")
	}

	// Poll
	if c.Poll.Interval < time.Second {
		return fmt.Errorf("poll.interval must be >= 1s")
	}

	// Watch-list
	switch c.Watchlist.Backend {
	case WatchlistBackendFile:
		if c.Watchlist.Path == "" {
			return fmt.Errorf("watchlist.path must not be empty for the file backend")
		}
	case WatchlistBackendRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("watchlist.backend=redis requires redis.enabled=true")
		}
	case WatchlistBackendMemory:
	default:
		return fmt.Errorf("watchlist.backend must be one of file, redis, memory")
	}

	// Auth
	if c.Auth.Token == "" {
		return fmt.Errorf("auth.token must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.Key == "" {
			return fmt.Errorf("redis.key must not be empty when redis.enabled=true")
		}
	}

	// Backup
	if c.Backup.Dir == "" {
		return fmt.Errorf("backup.dir must not be empty")
	}
	if c.Backup.Enabled && c.Backup.Interval < time.Minute {
		return fmt.Errorf("backup.interval must be at least 1m when backups are enabled")
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("backup.keep must be >= 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
	}
	if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0")
	}

	return nil
}

// RequireTwitch reports whether the remote API credentials are present. Only
// the commands that poll need them.
func (c *Config) RequireTwitch() error {
	if c.Twitch.ClientID == "" {
		return fmt.Errorf("twitch.client_id (CLIENT_ID) must not be empty")
	}
	if c.Twitch.ClientSecret == "" {
		return fmt.Errorf("twitch.client_secret (CLIENT_SECRET) must not be empty")
	}
	return nil
}

// UsesDefaultToken reports whether the access token was left at its
// well-known default.
func (c *Config) UsesDefaultToken() bool {
	return c.Auth.Token == defaultAuthToken
}

// Load reads configuration from YAML file, applies defaults, a .env file in the
// working directory and env overrides.
func Load(configPath string) (*Config, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// fall back to defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":3000"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Signal.Address = ":8080"
	cfg.Signal.Path = "/"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.ShutdownTimeout = 10 * time.Second

	cfg.Twitch.RequestTimeout = 10 * time.Second
	cfg.Twitch.ProfileCacheTTL = 10 * time.Minute
	cfg.Twitch.BreakerThreshold = 5
	cfg.Twitch.BreakerCooldown = 30 * time.Second

	cfg.Poll.Interval = 5 * time.Second

	cfg.Watchlist.Backend = WatchlistBackendFile
	cfg.Watchlist.Path = "streamers.json"

	cfg.Auth.Token = defaultAuthToken
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.Key = "streamwatch:watchlist"

	cfg.Backup.Enabled = false
	cfg.Backup.Dir = "backups"
	cfg.Backup.Interval = time.Hour
	cfg.Backup.Keep = 24

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "streamwatch"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 20
	cfg.RateLimiting.WebSocket.Burst = 40
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 64 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if id := os.Getenv("CLIENT_ID"); id != "" {
		c.Twitch.ClientID = id
	}
	if secret := os.Getenv("CLIENT_SECRET"); secret != "" {
		c.Twitch.ClientSecret = secret
	}
	if port := os.Getenv("WEBSERVER_PORT"); port != "" {
		c.Server.Address = ":" + port
	}
	if port := os.Getenv("WEBSOCKET_PORT"); port != "" {
		c.Signal.Address = ":" + port
	}
	if token := os.Getenv("AUTH_TOKEN"); token != "" {
		c.Auth.Token = token
	}
	if level := os.Getenv("STREAMWATCH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("STREAMWATCH_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if path := os.Getenv("STREAMWATCH_WATCHLIST_PATH"); path != "" {
		c.Watchlist.Path = path
	}
}
