package main

import (
	"context"
	"fmt"
	"time"

	"streamwatch/internal/core/services"
	backupinfra "streamwatch/internal/infrastructure/backup"
	"streamwatch/internal/infrastructure/repositories"
	"streamwatch/pkg/backup"
	"streamwatch/pkg/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	watchlistCmdTimeout = 30 * time.Second
	backupVersion       = "1"
)

// watchlistEnv is what the offline watch-list commands operate on: the
// configured store behind a WatchlistService with no poll engine attached.
type watchlistEnv struct {
	cfg *config.Config
	svc *services.WatchlistService
	log *zap.SugaredLogger
}

func (e watchlistEnv) backups() (*backup.BackupService, error) {
	storage, err := backup.NewFileStorage(e.cfg.Backup.Dir)
	if err != nil {
		return nil, err
	}
	return backup.NewBackupService(storage, backupVersion), nil
}

func withWatchlist(cfgPath string, fn func(ctx context.Context, env watchlistEnv) error) error {
	cfg, zapLogger, err := setup(cfgPath)
	if err != nil {
		return err
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	factory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		return err
	}
	defer factory.Close()

	repo, err := factory.CreateWatchlistRepository()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), watchlistCmdTimeout)
	defer cancel()
	return fn(ctx, watchlistEnv{
		cfg: cfg,
		svc: services.NewWatchlistService(repo, nil, log),
		log: log,
	})
}

func watchlistCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchlist",
		Short: "Inspect or edit the persisted watch-list",
	}
	cmd.AddCommand(
		watchlistListCmd(cfgPath),
		watchlistAddCmd(cfgPath),
		watchlistRemoveCmd(cfgPath),
		watchlistBackupCmd(cfgPath),
		watchlistRestoreCmd(cfgPath),
	)
	return cmd
}

func watchlistListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the watched channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWatchlist(*cfgPath, func(ctx context.Context, env watchlistEnv) error {
				logins, err := env.svc.List(ctx)
				if err != nil {
					return err
				}
				for _, login := range logins {
					fmt.Fprintln(cmd.OutOrStdout(), login)
				}
				return nil
			})
		},
	}
}

func watchlistAddCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <login>",
		Short: "Add a channel to the watch-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWatchlist(*cfgPath, func(ctx context.Context, env watchlistEnv) error {
				if _, err := env.svc.Add(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", args[0])
				return nil
			})
		},
	}
}

func watchlistRemoveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <login>",
		Short: "Remove a channel from the watch-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWatchlist(*cfgPath, func(ctx context.Context, env watchlistEnv) error {
				if err := env.svc.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}

func watchlistBackupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Save the watch-list to the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWatchlist(*cfgPath, func(ctx context.Context, env watchlistEnv) error {
				backups, err := env.backups()
				if err != nil {
					return err
				}
				logins, err := env.svc.List(ctx)
				if err != nil {
					return err
				}
				name, err := backups.CreateBackup(ctx, logins)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d channels)\n", name, len(logins))
				return nil
			})
		},
	}
}

func watchlistRestoreCmd(cfgPath *string) *cobra.Command {
	var opts backupinfra.RestoreOptions

	cmd := &cobra.Command{
		Use:   "restore [backup-name]",
		Short: "Restore the watch-list from a backup (newest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return withWatchlist(*cfgPath, func(ctx context.Context, env watchlistEnv) error {
				backups, err := env.backups()
				if err != nil {
					return err
				}
				result, err := backupinfra.NewRestoreService(backups, env.svc, env.log).RestoreFromBackup(ctx, name, opts)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, login := range result.Added {
					fmt.Fprintf(out, "+ %s\n", login)
				}
				for _, login := range result.Removed {
					fmt.Fprintf(out, "- %s\n", login)
				}
				for _, login := range result.Skipped {
					fmt.Fprintf(out, "! %s (skipped)\n", login)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Merge, "merge", false, "keep channels that are not in the backup")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the changes without applying them")
	return cmd
}
