package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/config"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/factory"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/logging"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/ingest"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/supervisor"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.PathEnvVar), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("failed to set up logging", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		_ = logCloser.Close()
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	factoryCfg := factory.Config{
		Logger:         logger,
		StorageType:    cfg.Storage.Type,
		AuthConfig:     cfg.Admin,
		PresenceConfig: cfg.Presence,
		BattleMetrics:  cfg.BattleMetrics,
	}
	switch cfg.Storage.Type {
	case config.StorageRedis:
		factoryCfg.RedisConfig = &cfg.Redis
	case config.StorageSQLite, config.StoragePostgres:
		factoryCfg.SQLConfig = &cfg.SQL
	}

	app, err := factory.New(ctx, factoryCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("closing storage", slog.String("error", err.Error()))
		}
	}()

	if !app.AuthService.Enabled() {
		logger.Warn("no admin token hashes configured, admin routes are disabled")
	}

	tree := supervisor.NewTree(logger, cfg.Supervisor)

	feedCfg := cfg.Feed
	if feedCfg.Embedded.Enabled {
		ns, err := ingest.StartEmbedded(feedCfg.Embedded)
		if err != nil {
			return err
		}
		defer ns.Shutdown()
		feedCfg.URL = ns.ClientURL()
		logger.Info("embedded feed broker started", slog.String("url", feedCfg.URL))
	}
	if feedCfg.URL != "" {
		tree.AddFeedService(app.NewFeedSource(feedCfg))
	} else {
		logger.Info("live feed disabled")
	}

	pollers := app.NewPollManager(tree.Polling(), cfg.Reconcile)
	tree.AddAPIService(pollers)
	tree.AddAPIService(app.AuthService)
	tree.AddAPIService(app.HubManager)
	tree.AddAPIService(&supervisor.HTTPService{
		Server:          api.NewHTTPServer(app.Router(pollers), cfg.Server),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	logger.Info("server started",
		slog.String("addr", cfg.Server.Addr()),
		slog.String("storage", cfg.Storage.Type),
	)

	errCh := tree.ServeBackground(ctx)

	// Wait for shutdown or error
	err = <-errCh
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logger.Warn("service did not stop", slog.String("service", svc.Name))
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return err
	}
	return nil
}
