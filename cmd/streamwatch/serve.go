package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"
	"streamwatch/internal/core/services"
	httphandlers "streamwatch/internal/handlers/http"
	backupinfra "streamwatch/internal/infrastructure/backup"
	"streamwatch/internal/infrastructure/middleware"
	"streamwatch/internal/infrastructure/monitoring"
	"streamwatch/internal/infrastructure/repositories"
	hub "streamwatch/internal/infrastructure/signal"
	"streamwatch/internal/infrastructure/twitch"
	"streamwatch/pkg/backup"
	"streamwatch/pkg/config"
	"streamwatch/pkg/logger"
	"streamwatch/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// readyAfterMissedCycles is how many poll intervals may pass without a
// successful cycle before /ready fails.
const readyAfterMissedCycles = 3

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poller, the WebSocket hub and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, zapLogger, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer zapLogger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, zapLogger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	startTime := time.Now()
	log := zapLogger.Sugar()

	if err := cfg.RequireTwitch(); err != nil {
		return err
	}
	if cfg.UsesDefaultToken() {
		log.Warn("AUTH_TOKEN is not set, clients authenticate with the default token")
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("failed to flush traces", "error", err)
		}
	}()

	var metrics ports.Metrics = ports.NopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	defer func() {
		if err := repoFactory.Close(); err != nil {
			log.Errorw("error closing repository factory", "error", err)
		}
	}()

	watchlistRepo, err := repoFactory.CreateWatchlistRepository()
	if err != nil {
		return err
	}

	twitchCfg := twitch.Config{
		ClientID:     cfg.Twitch.ClientID,
		ClientSecret: cfg.Twitch.ClientSecret,
		Timeout:      cfg.Twitch.RequestTimeout,

		ProfileTTL:       cfg.Twitch.ProfileCacheTTL,
		BreakerThreshold: cfg.Twitch.BreakerThreshold,
		BreakerCooldown:  cfg.Twitch.BreakerCooldown,
	}
	tokenSource, err := twitch.NewTokenSource(twitchCfg)
	if err != nil {
		return err
	}
	statusSource, err := twitch.NewStatusSource(twitchCfg, log.Named("twitch"))
	if err != nil {
		return err
	}

	events := make(chan domain.TransitionEvent, 64)
	creds := services.NewCredentialCache(tokenSource, metrics, log.Named("credentials"))
	engine := services.NewPollEngine(watchlistRepo, creds, statusSource, events, cfg.Poll.Interval, metrics, log.Named("poll"))
	watchlist := services.NewWatchlistService(watchlistRepo, engine, log.Named("watchlist"))

	wsServer := hub.NewWebSocketServer(hub.HubConfig{
		AccessToken:       cfg.Auth.Token,
		AllowedOrigins:    cfg.Auth.AllowedOrigins,
		PingInterval:      cfg.Signal.PingInterval,
		PongTimeout:       cfg.Signal.PongTimeout,
		WriteTimeout:      cfg.Signal.WriteTimeout,
		MaxMessageSize:    cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		MaxConnections:    cfg.RateLimiting.WebSocket.MaxConcurrent,
		MessagesPerSecond: wsMessageRate(cfg),
		Burst:             cfg.RateLimiting.WebSocket.Burst,
	}, engine, watchlist, metrics, log.Named("hub"))

	checker := monitoring.NewHealthChecker()
	checker.AddPollFreshnessCheck(engine, readyAfterMissedCycles, nil)
	checker.AddRepositoryCheck(watchlistRepo, 2*time.Second)
	if cfg.Redis.Enabled {
		checker.AddDependencyCheck("redis", repoFactory.HealthCheck, 2*time.Second)
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      newRouter(cfg, zapLogger, engine, watchlist, checker, startTime),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	hubMux := http.NewServeMux()
	hubMux.HandleFunc(cfg.Signal.Path, wsServer.HandleWebSocket)
	hubMux.HandleFunc("/health", wsServer.HealthCheck)
	hubServer := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: hubMux,
	}

	var scheduler *backupinfra.Scheduler
	if cfg.Backup.Enabled {
		storage, err := backup.NewFileStorage(cfg.Backup.Dir)
		if err != nil {
			return fmt.Errorf("failed to open backup directory: %w", err)
		}
		schedCfg := backupinfra.Config{Interval: cfg.Backup.Interval, Keep: cfg.Backup.Keep}
		if lock, ok := repoFactory.Lock("backup", cfg.Backup.Interval/2); ok {
			schedCfg.Lock = lock
		}
		scheduler = backupinfra.NewScheduler(
			backup.NewBackupService(storage, backupVersion),
			watchlistRepo,
			schedCfg,
			log.Named("backup"),
		)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		wsServer.Run(gctx, events)
		return nil
	})
	if scheduler != nil {
		g.Go(func() error {
			scheduler.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		log.Infow("starting HTTP API", "address", cfg.Server.Address)
		return listen(apiServer)
	})
	g.Go(func() error {
		log.Infow("starting WebSocket hub", "address", cfg.Signal.Address, "path", cfg.Signal.Path)
		return listen(hubServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down streamwatch")

		apiCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(apiCtx); err != nil {
			log.Errorw("error during HTTP API shutdown", "error", err)
			apiServer.Close()
		}

		hubCtx, cancelHub := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
		defer cancelHub()
		if err := hubServer.Shutdown(hubCtx); err != nil {
			log.Errorw("error during hub shutdown", "error", err)
			hubServer.Close()
		}
		return nil
	})

	err = g.Wait()
	log.Infow("streamwatch stopped", "uptime", time.Since(startTime).Round(time.Second))
	return err
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func wsMessageRate(cfg *config.Config) float64 {
	if !cfg.RateLimiting.Enabled {
		return 0
	}
	return cfg.RateLimiting.WebSocket.MessagesPerSecond
}

func newRouter(
	cfg *config.Config,
	zapLogger *zap.Logger,
	snapshots ports.SnapshotReader,
	watchlist ports.WatchlistService,
	checker *monitoring.HealthChecker,
	startTime time.Time,
) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	ctxLogger := logger.NewContextLogger(zapLogger.Named("http"))

	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(ctxLogger),
		middleware.RequestLoggerMiddleware(ctxLogger),
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.ErrorHandlerMiddleware(ctxLogger),
	)
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	httphandlers.NewStreamHandler(snapshots, watchlist).SetupRoutes(router, middleware.AuthMiddleware(cfg.Auth.Token))
	httphandlers.NewHealthHandler(checker, startTime).SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	return router
}
