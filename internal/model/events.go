package model

import "time"

// EventType identifies the type of event
type EventType string

const (
	// Presence events
	EventPlayerOnline   EventType = "player_online"
	EventPlayerOffline  EventType = "player_offline"
	EventZombieRepaired EventType = "zombie_repaired"

	// Administrative events
	EventReconciled    EventType = "reconciled"
	EventPlayersMerged EventType = "players_merged"
	EventWipeMarked    EventType = "wipe_marked"
	EventGroupReset    EventType = "group_reset"

	// Device events
	EventDeviceTriggered EventType = "device_triggered"
)

// Event is published to subscribers of a group
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Group     GroupID   `json:"group"`
	Player    string    `json:"player,omitempty"` // identity key, empty for group-wide events
	Payload   any       `json:"payload,omitempty"`
}

// PresenceEvent is one join/leave notification from the live feed
type PresenceEvent struct {
	Group    GroupID   `json:"group"`
	Name     string    `json:"name"`
	Online   bool      `json:"online"`
	At       time.Time `json:"at"`
	Teammate *bool     `json:"teammate,omitempty"`
}

// EntityEvent is a smart device state change from the live feed
type EntityEvent struct {
	Group    GroupID   `json:"group"`
	EntityID string    `json:"entity_id"`
	Value    bool      `json:"value"`
	At       time.Time `json:"at"`
}

// DeviceTriggeredPayload contains data for device events
type DeviceTriggeredPayload struct {
	Device  Device `json:"device"`
	Value   bool   `json:"value"`
	Message string `json:"message"`
}

// TeamMember is one entry of a team snapshot
type TeamMember struct {
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// VendingBroadcast is one vending machine's offers as announced on the live feed
type VendingBroadcast struct {
	Group    GroupID         `json:"group"`
	Shop     string          `json:"shop"`
	Listings []MarketListing `json:"listings"`
	At       time.Time       `json:"at"`
}

// TeamSnapshot is the full team roster as reported by the live feed
type TeamSnapshot struct {
	Group   GroupID      `json:"group"`
	Members []TeamMember `json:"members"`
	At      time.Time    `json:"at"`
}
