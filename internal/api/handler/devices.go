package handler

import (
	"net/http"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/request"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/response"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/devices"
)

// DeviceHandler handles smart device endpoints
type DeviceHandler struct {
	devices *devices.Service
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(devices *devices.Service) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// List handles GET /api/v1/groups/{group}/devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	list, err := h.devices.List(r.Context(), group)
	if err != nil {
		WriteError(w, err)
		return
	}
	if list == nil {
		list = []*model.Device{}
	}

	response.JSON(w, http.StatusOK, response.Devices{Devices: list})
}

// Register handles POST /api/v1/groups/{group}/devices
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.DeviceRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	device, err := h.devices.Register(r.Context(), group, req.EntityID, req.Name, model.DeviceKind(req.Kind))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, device)
}

// Trigger handles POST /api/v1/groups/{group}/devices/events
func (h *DeviceHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.EntityEventRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	payload, err := h.devices.HandleEntityEvent(r.Context(), model.EntityEvent{
		Group:    group,
		EntityID: req.EntityID,
		Value:    req.Value,
		At:       req.At,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, payload)
}
