package memory

import (
	"context"
	"sync"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"
)

// WatchlistRepository keeps the watch-list in process memory. It is also the
// in-memory model behind the file repository.
type WatchlistRepository struct {
	logins []string
	mu     sync.RWMutex
}

func NewWatchlistRepository(initial ...string) *WatchlistRepository {
	r := &WatchlistRepository{}
	r.Replace(initial)
	return r
}

func (r *WatchlistRepository) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.logins))
	copy(out, r.logins)
	return out, nil
}

func (r *WatchlistRepository) Add(ctx context.Context, login string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := AppendLogin(r.logins, login)
	if err != nil {
		return err
	}
	r.logins = next
	return nil
}

func (r *WatchlistRepository) Remove(ctx context.Context, login string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := RemoveLogin(r.logins, login)
	if err != nil {
		return err
	}
	r.logins = next
	return nil
}

// Replace swaps the whole list, dropping duplicates and anything past capacity.
func (r *WatchlistRepository) Replace(logins []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logins = Dedupe(logins)
}

// AppendLogin returns a new list with login appended, enforcing uniqueness
// and capacity. list itself is never modified.
func AppendLogin(list []string, login string) ([]string, error) {
	key := domain.NormalizeLogin(login)
	if key == "" {
		return nil, domain.ErrInvalidChannel
	}
	if indexOf(list, key) >= 0 {
		return nil, domain.ErrAlreadyWatched
	}
	if len(list) >= domain.WatchlistCapacity {
		return nil, domain.ErrWatchlistFull
	}

	next := make([]string, len(list), len(list)+1)
	copy(next, list)
	return append(next, key), nil
}

// RemoveLogin returns a new list without login. list itself is never modified.
func RemoveLogin(list []string, login string) ([]string, error) {
	i := indexOf(list, domain.NormalizeLogin(login))
	if i < 0 {
		return nil, domain.ErrNotWatched
	}

	next := make([]string, 0, len(list)-1)
	next = append(next, list[:i]...)
	return append(next, list[i+1:]...), nil
}

// Dedupe normalizes logins, keeps first occurrences in order and truncates to
// capacity.
func Dedupe(logins []string) []string {
	out := make([]string, 0, len(logins))
	for _, login := range logins {
		key := domain.NormalizeLogin(login)
		if key == "" || indexOf(out, key) >= 0 {
			continue
		}
		if len(out) == domain.WatchlistCapacity {
			break
		}
		out = append(out, key)
	}
	return out
}

func indexOf(list []string, key string) int {
	for i, existing := range list {
		if domain.NormalizeLogin(existing) == key {
			return i
		}
	}
	return -1
}

var _ ports.WatchlistRepository = (*WatchlistRepository)(nil)
