package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/sse"
)

// EventsHandler streams group events over SSE
type EventsHandler struct {
	hubs *sse.HubManager
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hubs *sse.HubManager) *EventsHandler {
	return &EventsHandler{hubs: hubs}
}

// Stream handles GET /api/v1/groups/{group}/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	hub := h.hubs.GetOrCreateHub(group)
	sse.ServeSSE(w, r, hub, uuid.NewString())
}
