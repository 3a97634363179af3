package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/thejerf/suture/v4"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/handler"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/battlemetrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/clock"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/random"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/auth"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/devices"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/ingest"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/merge"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/prediction"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/presence"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/reconcile"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/stats"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/wipe"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/sse"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage/memory"
	redisstorage "github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage/redis"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage/sqlstore"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypeSQLite   = "sqlite"
	StorageTypePostgres = "postgres"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock   clock.Clock
	Random  random.Random
	Fetcher reconcile.Fetcher
	Servers handler.ServerLookup

	// Services
	PresenceService   *presence.Service
	WipeService       *wipe.Service
	MergeService      *merge.Service
	PredictionService *prediction.Service
	StatsService      *stats.Service
	DeviceService     *devices.Service
	AuthService       *auth.Service
	Ingestor          *ingest.Ingestor
	Reconciler        *reconcile.Reconciler
	HubManager        *sse.HubManager

	logger *slog.Logger
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// SQLConfig holds database settings (required for "sqlite" and "postgres")
	SQLConfig *sqlstore.Config
	// AuthConfig holds the admin token hashes; none disables admin routes
	AuthConfig auth.Config
	// PresenceConfig holds the zombie heuristic (optional)
	PresenceConfig presence.Config
	// BattleMetrics configures the authoritative player list client.
	// A zero BaseURL uses battlemetrics.DefaultConfig().
	BattleMetrics battlemetrics.Config
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bmCfg := cfg.BattleMetrics
	if bmCfg.BaseURL == "" {
		bmCfg = battlemetrics.DefaultConfig()
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()
	fetcher := battlemetrics.New(bmCfg, logger)

	return newWithDependencies(store, clk, rnd, fetcher, fetcher, cfg, logger), nil
}

func openStorage(ctx context.Context, cfg Config) (storage.Storage, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypeSQLite, StorageTypePostgres:
		if cfg.SQLConfig == nil {
			return nil, fmt.Errorf("SQLConfig required when StorageType is %s", storageType)
		}
		sqlCfg := *cfg.SQLConfig
		sqlCfg.Driver = sqlstore.DriverSQLite
		if storageType == StorageTypePostgres {
			sqlCfg.Driver = sqlstore.DriverPostgres
		}
		return sqlstore.New(ctx, sqlCfg)
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be memory, redis, sqlite or postgres", storageType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, rnd random.Random, fetcher reconcile.Fetcher, servers handler.ServerLookup, cfg Config, logger *slog.Logger) *App {
	hubManager := sse.NewHubManager(logger)

	// Create services
	presenceService := presence.New(store, clk, hubManager, logger, cfg.PresenceConfig)
	wipeService := wipe.New(store, clk, hubManager, logger)
	mergeService := merge.New(store, presenceService, clk, hubManager, logger)
	predictionService := prediction.New(presenceService, wipeService, clk, logger)
	statsService := stats.New(presenceService, wipeService, store, clk, logger)
	deviceService := devices.New(store, clk, hubManager, logger)
	authService := auth.New(clk, logger, cfg.AuthConfig)
	ingestor := ingest.New(presenceService, deviceService, statsService, logger)
	reconciler := reconcile.NewReconciler(presenceService, wipeService, fetcher, clk, hubManager, logger)

	return &App{
		Storage:           store,
		Clock:             clk,
		Random:            rnd,
		Fetcher:           fetcher,
		Servers:           servers,
		PresenceService:   presenceService,
		WipeService:       wipeService,
		MergeService:      mergeService,
		PredictionService: predictionService,
		StatsService:      statsService,
		DeviceService:     deviceService,
		AuthService:       authService,
		Ingestor:          ingestor,
		Reconciler:        reconciler,
		HubManager:        hubManager,
		logger:            logger,
	}
}

// NewPollManager creates the per-group poller manager. Pollers are added
// to sup as poll targets appear.
func (a *App) NewPollManager(sup *suture.Supervisor, cfg reconcile.Config) *reconcile.Manager {
	return reconcile.NewManager(sup, a.Reconciler, a.WipeService, cfg, a.Random, a.logger)
}

// NewFeedSource creates the NATS live feed subscriber
func (a *App) NewFeedSource(cfg ingest.FeedConfig) *ingest.FeedSource {
	return ingest.NewFeedSource(cfg, a.Ingestor, a.logger)
}

// Router builds the HTTP handler. pollers may be nil.
func (a *App) Router(pollers handler.PollerSet) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:            a.logger,
		Clock:             a.Clock,
		AuthService:       a.AuthService,
		PresenceService:   a.PresenceService,
		WipeService:       a.WipeService,
		MergeService:      a.MergeService,
		PredictionService: a.PredictionService,
		StatsService:      a.StatsService,
		DeviceService:     a.DeviceService,
		Reconciler:        a.Reconciler,
		Pollers:           pollers,
		Servers:           a.Servers,
		HubManager:        a.HubManager,
	})
}

// Close releases the storage connection
func (a *App) Close() error {
	if c, ok := a.Storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
