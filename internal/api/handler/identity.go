package handler

import (
	"net/http"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/request"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/response"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/merge"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/presence"
)

// IdentityHandler handles merge and legacy-duplicate endpoints
type IdentityHandler struct {
	presence *presence.Service
	merge    *merge.Service
}

// NewIdentityHandler creates a new identity handler
func NewIdentityHandler(presence *presence.Service, merge *merge.Service) *IdentityHandler {
	return &IdentityHandler{
		presence: presence,
		merge:    merge,
	}
}

// Merge handles POST /api/v1/groups/{group}/merge
func (h *IdentityHandler) Merge(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.MergeRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Source == "" || req.Target == "" {
		WriteError(w, NewInvalidRequestError("source and target are required"))
		return
	}

	source, err := resolvePlayer(r.Context(), h.presence, group, req.Source)
	if err != nil {
		WriteError(w, err)
		return
	}
	target, err := resolvePlayer(r.Context(), h.presence, group, req.Target)
	if err != nil {
		WriteError(w, err)
		return
	}

	report, err := h.merge.MergeIdentities(r.Context(), group, source.ID, target.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, report)
}

// Duplicates handles GET /api/v1/groups/{group}/duplicates
func (h *IdentityHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	dups, err := h.merge.FindLegacyDuplicates(r.Context(), group)
	if err != nil {
		WriteError(w, err)
		return
	}
	if dups == nil {
		dups = []model.LegacyDuplicate{}
	}

	response.JSON(w, http.StatusOK, response.Duplicates{Duplicates: dups})
}

// Dedupe handles POST /api/v1/groups/{group}/dedupe
func (h *IdentityHandler) Dedupe(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	report, err := h.merge.Deduplicate(r.Context(), group)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, report)
}
