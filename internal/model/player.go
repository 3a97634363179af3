package model

import "time"

// Player is one tracked identity within a group.
// Name holds the normalized identity key and is unique per group.
type Player struct {
	ID       PlayerID   `json:"id"`
	Group    GroupID    `json:"group"`
	Name     string     `json:"name"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
	Teammate bool       `json:"teammate"`
}

// Transition is the full set of writes produced by one presence change.
// Storage backends apply it as a single atomic unit: upsert the player,
// close the open session if CloseOpenAt is set, then open a session if
// OpenAt is set.
type Transition struct {
	Group       GroupID
	Name        string
	Online      bool
	At          time.Time
	Teammate    *bool
	CloseOpenAt *time.Time
	OpenAt      *time.Time
}

// TransitionResult describes what a recorded transition did
type TransitionResult struct {
	Player         *Player `json:"player"`
	Opened         bool    `json:"opened"`
	Closed         bool    `json:"closed"`
	Continued      bool    `json:"continued"`
	ZombieRepaired bool    `json:"zombie_repaired"`
}
