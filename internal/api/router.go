package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/handler"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/middleware"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/response"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/clock"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/auth"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/devices"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/merge"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/prediction"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/presence"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/reconcile"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/stats"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/wipe"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/sse"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger            *slog.Logger
	Clock             clock.Clock
	AuthService       *auth.Service
	PresenceService   *presence.Service
	WipeService       *wipe.Service
	MergeService      *merge.Service
	PredictionService *prediction.Service
	StatsService      *stats.Service
	DeviceService     *devices.Service
	Reconciler        *reconcile.Reconciler
	// Pollers is nil when background polling is not running
	Pollers    handler.PollerSet
	Servers    handler.ServerLookup
	HubManager *sse.HubManager
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	presenceHandler := handler.NewPresenceHandler(cfg.PresenceService, cfg.WipeService, cfg.Clock)
	analyticsHandler := handler.NewAnalyticsHandler(cfg.PresenceService, cfg.PredictionService, cfg.StatsService)
	identityHandler := handler.NewIdentityHandler(cfg.PresenceService, cfg.MergeService)
	groupHandler := handler.NewGroupHandler(cfg.PresenceService, cfg.WipeService, cfg.Reconciler, cfg.Pollers, cfg.Servers, cfg.Clock, cfg.Logger)
	deviceHandler := handler.NewDeviceHandler(cfg.DeviceService)
	eventsHandler := handler.NewEventsHandler(cfg.HubManager)
	authHandler := handler.NewAuthHandler(cfg.AuthService)

	// Create middleware
	adminMiddleware := middleware.Admin(cfg.AuthService)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	api.HandleFunc("/status", groupHandler.Status).Methods(http.MethodGet)
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)

	// Read-only group routes
	groups := api.PathPrefix("/groups/{group}").Subrouter()
	groups.HandleFunc("/players", presenceHandler.ListPlayers).Methods(http.MethodGet)
	groups.HandleFunc("/players/{player}/sessions", presenceHandler.Sessions).Methods(http.MethodGet)
	groups.HandleFunc("/players/{player}/prediction", analyticsHandler.Prediction).Methods(http.MethodGet)
	groups.HandleFunc("/players/{player}/stats", analyticsHandler.Stats).Methods(http.MethodGet)
	groups.HandleFunc("/leaderboard", analyticsHandler.Leaderboard).Methods(http.MethodGet)
	groups.HandleFunc("/economy", analyticsHandler.Economy).Methods(http.MethodGet)
	groups.HandleFunc("/listings", analyticsHandler.SearchListings).Methods(http.MethodGet)
	groups.HandleFunc("/duplicates", identityHandler.Duplicates).Methods(http.MethodGet)
	groups.HandleFunc("/wipe", groupHandler.GetWipe).Methods(http.MethodGet)
	groups.HandleFunc("/server", groupHandler.Server).Methods(http.MethodGet)
	groups.HandleFunc("/devices", deviceHandler.List).Methods(http.MethodGet)
	groups.HandleFunc("/events", eventsHandler.Stream).Methods(http.MethodGet)

	// Admin group routes
	admin := api.PathPrefix("/groups/{group}").Subrouter()
	admin.Use(adminMiddleware)
	admin.HandleFunc("/players", presenceHandler.PreRegister).Methods(http.MethodPost)
	admin.HandleFunc("/transitions", presenceHandler.RecordTransition).Methods(http.MethodPost)
	admin.HandleFunc("/reset", presenceHandler.Reset).Methods(http.MethodPost)
	admin.HandleFunc("/trades", analyticsHandler.RecordTrade).Methods(http.MethodPost)
	admin.HandleFunc("/listings", analyticsHandler.RecordListings).Methods(http.MethodPost)
	admin.HandleFunc("/merge", identityHandler.Merge).Methods(http.MethodPost)
	admin.HandleFunc("/dedupe", identityHandler.Dedupe).Methods(http.MethodPost)
	admin.HandleFunc("/wipe", groupHandler.SetWipe).Methods(http.MethodPut, http.MethodPost)
	admin.HandleFunc("/wipe", groupHandler.ClearWipe).Methods(http.MethodDelete)
	admin.HandleFunc("/poll-target", groupHandler.SetPollTarget).Methods(http.MethodPut)
	admin.HandleFunc("/reconcile", groupHandler.Reconcile).Methods(http.MethodPost)
	admin.HandleFunc("/devices", deviceHandler.Register).Methods(http.MethodPost)
	admin.HandleFunc("/devices/events", deviceHandler.Trigger).Methods(http.MethodPost)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
}
