package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/request"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/response"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/clock"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/presence"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/wipe"
)

// SinceAll disables the wipe-epoch clamp on session queries
const SinceAll = "all"

// PresenceHandler handles player and session endpoints
type PresenceHandler struct {
	presence *presence.Service
	wipe     *wipe.Service
	clock    clock.Clock
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(presence *presence.Service, wipe *wipe.Service, clock clock.Clock) *PresenceHandler {
	return &PresenceHandler{
		presence: presence,
		wipe:     wipe,
		clock:    clock,
	}
}

// ListPlayers handles GET /api/v1/groups/{group}/players
func (h *PresenceHandler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	players, err := h.presence.ListPlayers(r.Context(), group)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Players{Group: group, Players: players})
}

// PreRegister handles POST /api/v1/groups/{group}/players
func (h *PresenceHandler) PreRegister(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.PreRegisterRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	player, err := h.presence.PreRegister(r.Context(), group, req.Name, req.Teammate)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, player)
}

// RecordTransition handles POST /api/v1/groups/{group}/transitions
func (h *PresenceHandler) RecordTransition(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.TransitionRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.At.IsZero() {
		req.At = h.clock.Now()
	}

	result, err := h.presence.RecordTransition(r.Context(), group, req.Name, req.Online, req.At, req.Teammate)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// Sessions handles GET /api/v1/groups/{group}/players/{player}/sessions.
// since defaults to the wipe epoch; since=all returns full history.
func (h *PresenceHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	player, err := resolvePlayer(r.Context(), h.presence, group, mux.Vars(r)["player"])
	if err != nil {
		WriteError(w, err)
		return
	}

	var since *time.Time
	switch raw := r.URL.Query().Get("since"); raw {
	case "":
		since, err = h.wipe.GetWipeEpoch(r.Context(), group)
		if err != nil {
			WriteError(w, err)
			return
		}
	case SinceAll:
	default:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteError(w, NewInvalidRequestError("since must be an RFC 3339 timestamp or \"all\""))
			return
		}
		since = &t
	}

	sessions, err := h.presence.QuerySessions(r.Context(), player.ID, since)
	if err != nil {
		WriteError(w, err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}

	response.JSON(w, http.StatusOK, response.Sessions{Player: player, Since: since, Sessions: sessions})
}

// Reset handles POST /api/v1/groups/{group}/reset
func (h *PresenceHandler) Reset(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	report, err := h.presence.BulkReset(r.Context(), group)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, report)
}
