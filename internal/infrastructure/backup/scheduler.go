package backup

import (
	"context"
	"time"

	"streamwatch/internal/core/ports"
	"streamwatch/pkg/backup"

	"go.uber.org/zap"
)

// Locker serialises scheduled backups across instances sharing one
// watch-list.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Scheduler periodically saves the watch-list and prunes old backups.
type Scheduler struct {
	backupService *backup.BackupService
	watchlist     ports.WatchlistRepository
	interval      time.Duration
	keep          int
	lock          Locker
	logger        *zap.SugaredLogger
}

type Config struct {
	Interval time.Duration
	// Keep is how many backups survive pruning; 0 keeps all.
	Keep int
	// Lock is optional. When set, a run that cannot take it is skipped.
	Lock Locker
}

func NewScheduler(backupService *backup.BackupService, watchlist ports.WatchlistRepository, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		backupService: backupService,
		watchlist:     watchlist,
		interval:      cfg.Interval,
		keep:          cfg.Keep,
		lock:          cfg.Lock,
		logger:        logger,
	}
}

// Run takes a backup immediately and then once per interval until ctx is
// done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.TryLock(ctx)
		if err != nil {
			s.logger.Errorw("backup skipped, lock unavailable", "error", err)
			return
		}
		if !acquired {
			s.logger.Debug("backup skipped, another instance holds the lock")
			return
		}
		defer func() {
			if err := s.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warnw("failed to release backup lock", "error", err)
			}
		}()
	}

	logins, err := s.watchlist.List(ctx)
	if err != nil {
		s.logger.Errorw("backup skipped, watch-list unreadable", "error", err)
		return
	}

	name, err := s.backupService.CreateBackup(ctx, logins)
	if err != nil {
		s.logger.Errorw("backup failed", "error", err)
		return
	}
	s.logger.Infow("watch-list backed up", "backup_name", name, "channels", len(logins))

	if s.keep <= 0 {
		return
	}
	removed, err := s.backupService.Prune(ctx, s.keep)
	if err != nil {
		s.logger.Warnw("failed to prune old backups", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Debugw("pruned old backups", "removed", removed)
	}
}
