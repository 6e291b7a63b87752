package ports

import (
	"context"
)

// WatchlistRepository persists the ordered, duplicate-free set of watched
// channel logins. Every mutation is durable before it returns.
type WatchlistRepository interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, login string) error
	Remove(ctx context.Context, login string) error
}
