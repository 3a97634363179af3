package model

import "time"

// Trade is one economy record referencing players by display name
type Trade struct {
	ID         int64     `json:"id"`
	Group      GroupID   `json:"group"`
	Buyer      string    `json:"buyer"`
	Seller     string    `json:"seller"`
	Item       string    `json:"item"`
	Quantity   int       `json:"quantity"`
	CostItem   string    `json:"cost_item"`
	CostAmount int       `json:"cost_amount"`
	At         time.Time `json:"at"`
}

// MarketListing is one vending machine offer as it was seen at At.
// Listings are history: a shop that rebroadcasts adds new rows.
type MarketListing struct {
	ID         int64     `json:"id"`
	Group      GroupID   `json:"group"`
	Shop       string    `json:"shop"`
	Item       string    `json:"item"`
	Quantity   int       `json:"quantity"`
	CostItem   string    `json:"cost_item"`
	CostAmount int       `json:"cost_amount"`
	Stock      int       `json:"stock"`
	At         time.Time `json:"at"`
}
