package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/request"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/response"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/battlemetrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/clock"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/presence"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/reconcile"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/wipe"
)

// PollerSet is the running set of per-group pollers
type PollerSet interface {
	Sync(ctx context.Context) error
	Groups() []model.GroupID
}

// ServerLookup describes a game server by id
type ServerLookup interface {
	ServerInfo(ctx context.Context, serverID string) (*battlemetrics.ServerInfo, error)
}

// GroupHandler handles group administration: wipe epoch, poll target,
// reconciliation and the status overview
type GroupHandler struct {
	presence   *presence.Service
	wipe       *wipe.Service
	reconciler *reconcile.Reconciler
	pollers    PollerSet
	servers    ServerLookup
	clock      clock.Clock
	logger     *slog.Logger
}

// NewGroupHandler creates a new group handler. pollers may be nil when
// background polling is not running.
func NewGroupHandler(presence *presence.Service, wipe *wipe.Service, reconciler *reconcile.Reconciler, pollers PollerSet, servers ServerLookup, clock clock.Clock, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{
		presence:   presence,
		wipe:       wipe,
		reconciler: reconciler,
		pollers:    pollers,
		servers:    servers,
		clock:      clock,
		logger:     logger,
	}
}

// Status handles GET /api/v1/status
func (h *GroupHandler) Status(w http.ResponseWriter, r *http.Request) {
	configs, err := h.wipe.ListConfigs(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	var polling []model.GroupID
	if h.pollers != nil {
		polling = h.pollers.Groups()
	}

	status := response.Status{Time: h.clock.Now(), Groups: make([]response.GroupStatus, 0, len(configs))}
	for _, cfg := range configs {
		players, err := h.presence.ListPlayers(r.Context(), cfg.Group)
		if err != nil {
			WriteError(w, err)
			return
		}
		gs := response.GroupStatus{
			Group:      cfg.Group,
			Players:    len(players),
			PollTarget: cfg.PollTarget,
			Polling:    slices.Contains(polling, cfg.Group),
			WipeEpoch:  cfg.WipeEpoch,
		}
		for _, p := range players {
			if p.Online {
				gs.Online++
			}
		}
		status.Groups = append(status.Groups, gs)
	}

	response.JSON(w, http.StatusOK, status)
}

// GetWipe handles GET /api/v1/groups/{group}/wipe
func (h *GroupHandler) GetWipe(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	epoch, err := h.wipe.GetWipeEpoch(r.Context(), group)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Wipe{Group: group, WipeEpoch: epoch})
}

// SetWipe handles PUT and POST /api/v1/groups/{group}/wipe. The body is
// optional; without a timestamp the wipe is marked now.
func (h *GroupHandler) SetWipe(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.WipeRequest
	if err := decodeOptional(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	cfg, err := h.wipe.SetWipeEpoch(r.Context(), group, req.At)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Wipe{Group: group, WipeEpoch: cfg.WipeEpoch})
}

// ClearWipe handles DELETE /api/v1/groups/{group}/wipe
func (h *GroupHandler) ClearWipe(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.wipe.ClearWipeEpoch(r.Context(), group); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// SetPollTarget handles PUT /api/v1/groups/{group}/poll-target
func (h *GroupHandler) SetPollTarget(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.PollTargetRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	cfg, err := h.wipe.SetPollTarget(r.Context(), group, req.Target)
	if err != nil {
		WriteError(w, err)
		return
	}

	if h.pollers != nil {
		// the periodic resync retries if this fails
		if err := h.pollers.Sync(r.Context()); err != nil {
			h.logger.Warn("poller sync after target change failed",
				slog.String("group", group.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	response.JSON(w, http.StatusOK, cfg)
}

// Reconcile handles POST /api/v1/groups/{group}/reconcile
func (h *GroupHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	report, err := h.reconciler.ReconcileGroup(r.Context(), group)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Reconcile{Report: report, Corrections: report.Corrections()})
}

// Server handles GET /api/v1/groups/{group}/server
func (h *GroupHandler) Server(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	cfg, err := h.wipe.GetConfig(r.Context(), group)
	if err != nil {
		WriteError(w, err)
		return
	}
	if cfg.PollTarget == "" {
		WriteError(w, model.ErrNoPollTarget)
		return
	}

	info, err := h.servers.ServerInfo(r.Context(), cfg.PollTarget)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, info)
}
