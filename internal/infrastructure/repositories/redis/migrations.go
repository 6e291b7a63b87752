package redis

import (
	"context"
	"errors"
	"fmt"

	"streamwatch/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = "streamwatch:schema:version"
	currentSchemaVersion = 1
)

// Migration represents a schema migration of the keys owned by this service.
type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client, watchlistKey string) error
}

// Migrate runs all pending migrations
func Migrate(ctx context.Context, client *redis.Client, watchlistKey string, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Debugw("schema is up to date",
				"current_version", currentVersion,
				"target_version", currentSchemaVersion,
			)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", migration.Version)
		}

		if err := migration.Up(ctx, client, watchlistKey); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	if logger != nil {
		logger.Infow("all migrations completed", "final_version", currentSchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// 1: seed the watch-list with the default channel when it was
			// never created.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client, watchlistKey string) error {
				exists, err := client.Exists(ctx, watchlistKey).Result()
				if err != nil {
					return err
				}
				if exists > 0 {
					return nil
				}
				return client.RPush(ctx, watchlistKey, domain.DefaultChannel).Err()
			},
		},
	}
}
