package repositories

import (
	"context"
	"fmt"
	"time"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"
	"streamwatch/internal/infrastructure/repositories/file"
	"streamwatch/internal/infrastructure/repositories/memory"
	redisrepo "streamwatch/internal/infrastructure/repositories/redis"
	"streamwatch/pkg/config"
	"streamwatch/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates the watch-list repository with fallback support
type RepositoryFactory struct {
	cfg         *config.Config
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to Redis when enabled. A failed connection
// falls back to the file repository rather than aborting start-up.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		cfg:      cfg,
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			cfg.Redis.Key,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to file repository",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
		}
	}

	return factory, nil
}

// CreateWatchlistRepository returns the repository for the configured backend.
func (f *RepositoryFactory) CreateWatchlistRepository() (ports.WatchlistRepository, error) {
	switch f.cfg.Watchlist.Backend {
	case config.WatchlistBackendMemory:
		f.logger.Info("using memory watch-list repository")
		return memory.NewWatchlistRepository(domain.DefaultChannel), nil

	case config.WatchlistBackendRedis:
		if f.useRedis && f.redisClient != nil {
			f.logger.Infow("using Redis watch-list repository", "key", f.cfg.Redis.Key)
			return redisrepo.NewWatchlistRepository(f.redisClient, f.cfg.Redis.Key), nil
		}
		f.logger.Warnw("Redis unavailable, using file watch-list repository", "path", f.cfg.Watchlist.Path)
	}

	repo, err := file.NewWatchlistRepository(f.cfg.Watchlist.Path, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open watch-list: %w", err)
	}
	return repo, nil
}

// Lock returns a Redis lock under the configured key prefix. ok is false when
// the watch-list is not shared through Redis, in which case no coordination
// between instances is needed.
func (f *RepositoryFactory) Lock(name string, ttl time.Duration) (lock *distributed.Lock, ok bool) {
	if f.cfg.Watchlist.Backend != config.WatchlistBackendRedis || !f.useRedis || f.redisClient == nil {
		return nil, false
	}
	return distributed.NewLock(f.redisClient, f.cfg.Redis.Key+":lock:"+name, ttl), true
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
