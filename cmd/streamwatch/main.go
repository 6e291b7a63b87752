package main

import (
	"os"

	"streamwatch/pkg/config"
	"streamwatch/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:          "streamwatch",
		Short:        "Twitch live-status watcher with WebSocket notifications",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath, "config file (yaml)")

	root.AddCommand(serveCmd(&cfgPath))
	root.AddCommand(watchlistCmd(&cfgPath))
	return root
}

// setup loads configuration and builds the process logger.
func setup(cfgPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, zapLogger, nil
}
