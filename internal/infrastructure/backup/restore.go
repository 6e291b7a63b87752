package backup

import (
	"context"
	"errors"
	"fmt"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"
	"streamwatch/pkg/backup"

	"go.uber.org/zap"
)

type RestoreOptions struct {
	// Merge keeps channels that are watched now but absent from the backup.
	Merge bool
	// DryRun computes the changes without applying them.
	DryRun bool
}

type RestoreResult struct {
	Added   []string
	Removed []string
	// Skipped holds backup entries that could not be added, such as once the
	// watch-list is full.
	Skipped []string
}

// RestoreService reconciles the watch-list with a backup through the
// administrative path, so capacity and validation rules still apply.
type RestoreService struct {
	backupService *backup.BackupService
	watchlist     ports.WatchlistService
	logger        *zap.SugaredLogger
}

func NewRestoreService(backupService *backup.BackupService, watchlist ports.WatchlistService, logger *zap.SugaredLogger) *RestoreService {
	return &RestoreService{
		backupService: backupService,
		watchlist:     watchlist,
		logger:        logger,
	}
}

// RestoreFromBackup applies backupName. An empty name selects the newest
// backup.
func (rs *RestoreService) RestoreFromBackup(ctx context.Context, backupName string, options RestoreOptions) (*RestoreResult, error) {
	if backupName == "" {
		latest, err := rs.backupService.Latest(ctx)
		if err != nil {
			return nil, err
		}
		if latest == "" {
			return nil, fmt.Errorf("no backups found")
		}
		backupName = latest
	}
	rs.logger.Infow("starting restore", "backup_name", backupName, "merge", options.Merge, "dry_run", options.DryRun)

	data, err := rs.backupService.RestoreBackup(ctx, backupName)
	if err != nil {
		return nil, err
	}

	current, err := rs.watchlist.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read watch-list: %w", err)
	}

	wanted := make(map[string]struct{}, len(data.Watchlist))
	for _, login := range data.Watchlist {
		wanted[domain.NormalizeLogin(login)] = struct{}{}
	}
	have := make(map[string]struct{}, len(current))
	for _, login := range current {
		have[login] = struct{}{}
	}

	result := &RestoreResult{}

	// Removals first so a full watch-list has room for the backup entries.
	if !options.Merge {
		for _, login := range current {
			if _, ok := wanted[login]; ok {
				continue
			}
			if !options.DryRun {
				if err := rs.watchlist.Remove(ctx, login); err != nil && !errors.Is(err, domain.ErrNotWatched) {
					return result, fmt.Errorf("failed to remove %s: %w", login, err)
				}
			}
			result.Removed = append(result.Removed, login)
		}
	}

	for _, login := range data.Watchlist {
		key := domain.NormalizeLogin(login)
		if _, ok := have[key]; ok {
			continue
		}
		have[key] = struct{}{}
		if options.DryRun {
			result.Added = append(result.Added, key)
			continue
		}
		if _, err := rs.watchlist.Add(ctx, key); err != nil {
			if errors.Is(err, domain.ErrWatchlistFull) || errors.Is(err, domain.ErrInvalidChannel) || errors.Is(err, domain.ErrAlreadyWatched) {
				rs.logger.Warnw("skipping backup entry", "login", key, "error", err)
				result.Skipped = append(result.Skipped, key)
				continue
			}
			return result, fmt.Errorf("failed to add %s: %w", key, err)
		}
		result.Added = append(result.Added, key)
	}

	rs.logger.Infow("restore finished",
		"backup_name", backupName,
		"added", len(result.Added),
		"removed", len(result.Removed),
		"skipped", len(result.Skipped),
	)
	return result, nil
}
