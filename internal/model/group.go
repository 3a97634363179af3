package model

import "time"

// GroupConfig holds the administrative settings of one group
type GroupConfig struct {
	Group GroupID `json:"group"`
	// WipeEpoch bounds all analytics; nil means full history
	WipeEpoch *time.Time `json:"wipe_epoch,omitempty"`
	// PollTarget is the authoritative server id polled during reconciliation
	PollTarget string    `json:"poll_target,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ResetReport counts rows removed by a bulk reset
type ResetReport struct {
	Players  int `json:"players"`
	Sessions int `json:"sessions"`
	Trades   int `json:"trades"`
	Listings int `json:"listings"`
}
