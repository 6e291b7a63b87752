package redis

import (
	"context"
	"errors"
	"fmt"

	"streamwatch/internal/core/ports"
	"streamwatch/internal/infrastructure/repositories/memory"

	"github.com/redis/go-redis/v9"
)

// maxTxAttempts bounds optimistic retries when another writer touches the
// watch-list key between WATCH and EXEC.
const maxTxAttempts = 5

// WatchlistRepository stores the watch-list as a Redis list.
type WatchlistRepository struct {
	client *redis.Client
	key    string
}

func NewWatchlistRepository(client *redis.Client, key string) *WatchlistRepository {
	return &WatchlistRepository{
		client: client,
		key:    key,
	}
}

func (r *WatchlistRepository) List(ctx context.Context) ([]string, error) {
	logins, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read watch-list from Redis: %w", err)
	}
	return logins, nil
}

func (r *WatchlistRepository) Add(ctx context.Context, login string) error {
	return r.update(ctx, func(current []string) (func(redis.Pipeliner) error, error) {
		next, err := memory.AppendLogin(current, login)
		if err != nil {
			return nil, err
		}
		added := next[len(next)-1]
		return func(p redis.Pipeliner) error {
			p.RPush(ctx, r.key, added)
			return nil
		}, nil
	})
}

func (r *WatchlistRepository) Remove(ctx context.Context, login string) error {
	return r.update(ctx, func(current []string) (func(redis.Pipeliner) error, error) {
		next, err := memory.RemoveLogin(current, login)
		if err != nil {
			return nil, err
		}
		return func(p redis.Pipeliner) error {
			p.Del(ctx, r.key)
			if len(next) > 0 {
				values := make([]interface{}, len(next))
				for i, v := range next {
					values[i] = v
				}
				p.RPush(ctx, r.key, values...)
			}
			return nil
		}, nil
	})
}

type mutation func(current []string) (func(redis.Pipeliner) error, error)

// update reads the list under WATCH and applies the pipeline built by mutate
// atomically, retrying when a concurrent writer wins the race.
func (r *WatchlistRepository) update(ctx context.Context, mutate mutation) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.LRange(ctx, r.key, 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		apply, err := mutate(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, apply)
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, r.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("watch-list update aborted after %d conflicting attempts", maxTxAttempts)
}

var _ ports.WatchlistRepository = (*WatchlistRepository)(nil)
