package request

import "time"

// LoginRequest exchanges an admin token for a session
type LoginRequest struct {
	Token string `json:"token"`
}

// PreRegisterRequest creates a player row without changing presence
type PreRegisterRequest struct {
	Name     string `json:"name"`
	Teammate *bool  `json:"teammate,omitempty"`
}

// TransitionRequest records one online/offline signal. A zero At means now.
type TransitionRequest struct {
	Name     string    `json:"name"`
	Online   bool      `json:"online"`
	At       time.Time `json:"at,omitempty"`
	Teammate *bool     `json:"teammate,omitempty"`
}

// TradeRequest records one economy trade
type TradeRequest struct {
	Buyer      string    `json:"buyer"`
	Seller     string    `json:"seller"`
	Item       string    `json:"item"`
	Quantity   int       `json:"quantity"`
	CostItem   string    `json:"cost_item"`
	CostAmount int       `json:"cost_amount"`
	At         time.Time `json:"at,omitempty"`
}

// ListingsRequest records one vending machine broadcast
type ListingsRequest struct {
	Shop     string         `json:"shop"`
	At       time.Time      `json:"at,omitempty"`
	Listings []ListingOffer `json:"listings"`
}

// ListingOffer is one offer of a ListingsRequest
type ListingOffer struct {
	Item       string `json:"item"`
	Quantity   int    `json:"quantity"`
	CostItem   string `json:"cost_item"`
	CostAmount int    `json:"cost_amount"`
	Stock      int    `json:"stock"`
}

// MergeRequest folds source into target. Each side is a player id or name.
type MergeRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// WipeRequest marks a wipe; a zero At means now
type WipeRequest struct {
	At time.Time `json:"at,omitempty"`
}

// PollTargetRequest sets the authoritative server id. Empty disables polling.
type PollTargetRequest struct {
	Target string `json:"target"`
}

// DeviceRequest pairs a smart device
type DeviceRequest struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
}

// EntityEventRequest reports a device state change
type EntityEventRequest struct {
	EntityID string    `json:"entity_id"`
	Value    bool      `json:"value"`
	At       time.Time `json:"at,omitempty"`
}
