package model

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceKind is the type of a paired smart device
type DeviceKind string

const (
	DeviceAlarm   DeviceKind = "alarm"
	DeviceSwitch  DeviceKind = "switch"
	DeviceStorage DeviceKind = "storage"
)

// Valid reports whether k is a known device kind
func (k DeviceKind) Valid() bool {
	switch k {
	case DeviceAlarm, DeviceSwitch, DeviceStorage:
		return true
	}
	return false
}

// Device is a paired in-game entity
type Device struct {
	Group    GroupID    `json:"group"`
	EntityID int64      `json:"entity_id"`
	Name     string     `json:"name"`
	Kind     DeviceKind `json:"kind"`
}

// ParseEntityID parses the numeric in-game entity id
func ParseEntityID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("entity id %q: %w", s, ErrInvalidEntityID)
	}
	return id, nil
}
