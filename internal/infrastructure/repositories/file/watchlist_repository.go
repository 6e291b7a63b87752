package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"
	"streamwatch/internal/infrastructure/repositories/memory"

	"go.uber.org/zap"
)

// WatchlistRepository persists the watch-list as a JSON array of logins.
// Every mutation rewrites the file before returning.
type WatchlistRepository struct {
	path   string
	logins []string
	mu     sync.RWMutex
	logger *zap.SugaredLogger
}

// NewWatchlistRepository loads path, creating it with the default channel
// when it does not exist yet.
func NewWatchlistRepository(path string, logger *zap.SugaredLogger) (*WatchlistRepository, error) {
	r := &WatchlistRepository{
		path:   path,
		logger: logger,
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.logins = []string{domain.DefaultChannel}
		if err := r.persist(r.logins); err != nil {
			return nil, err
		}
		logger.Infow("watch-list file created", "path", path, "default", domain.DefaultChannel)
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read watch-list %s: %w", path, err)
	}

	var logins []string
	if err := json.Unmarshal(data, &logins); err != nil {
		return nil, fmt.Errorf("failed to parse watch-list %s: %w", path, err)
	}
	r.logins = memory.Dedupe(logins)
	if len(r.logins) != len(logins) {
		logger.Warnw("watch-list contained duplicate or excess entries",
			"path", path,
			"read", len(logins),
			"kept", len(r.logins),
		)
	}

	logger.Infow("watch-list loaded", "path", path, "channels", len(r.logins))
	return r, nil
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

	next, err := memory.AppendLogin(r.logins, login)
	if err != nil {
		return err
	}
	if err := r.persist(next); err != nil {
		return err
	}
	r.logins = next
	return nil
}

func (r *WatchlistRepository) Remove(ctx context.Context, login string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := memory.RemoveLogin(r.logins, login)
	if err != nil {
		return err
	}
	if err := r.persist(next); err != nil {
		return err
	}
	r.logins = next
	return nil
}

// persist writes logins to a temporary file next to path and renames it over
// path, so readers never observe a partial file.
func (r *WatchlistRepository) persist(logins []string) error {
	data, err := json.MarshalIndent(logins, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode watch-list: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".watchlist-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary watch-list: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set watch-list permissions: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write watch-list: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync watch-list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close watch-list: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("failed to replace watch-list %s: %w", r.path, err)
	}
	return nil
}

var _ ports.WatchlistRepository = (*WatchlistRepository)(nil)
