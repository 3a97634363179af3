package storage

import (
	"context"
	"sort"
	"time"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

// Storage defines the interface for data persistence.
// Every method that writes more than one record is all-or-nothing.
type Storage interface {
	// Player operations
	GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error)
	GetPlayerByName(ctx context.Context, group model.GroupID, name string) (*model.Player, error)
	ListPlayers(ctx context.Context, group model.GroupID) ([]*model.Player, error)
	// EnsurePlayer creates the player if missing; teammate is applied only when non-nil
	EnsurePlayer(ctx context.Context, group model.GroupID, name string, teammate *bool) (*model.Player, error)
	RenamePlayer(ctx context.Context, id model.PlayerID, name string) error

	// Session operations
	ApplyTransition(ctx context.Context, t *model.Transition) (*model.Player, error)
	GetOpenSession(ctx context.Context, playerID model.PlayerID) (*model.Session, error)
	// ListSessions returns every session of the player ordered by start ascending
	ListSessions(ctx context.Context, playerID model.PlayerID) ([]model.Session, error)

	// Identity operations
	MergePlayers(ctx context.Context, m *model.Merge) (*model.MergeReport, error)

	// Group operations
	GetGroupConfig(ctx context.Context, group model.GroupID) (*model.GroupConfig, error)
	SaveGroupConfig(ctx context.Context, cfg *model.GroupConfig) error
	ListGroupConfigs(ctx context.Context) ([]*model.GroupConfig, error)
	// ResetGroup removes the group's players, sessions, trades and market
	// listings in one transaction
	ResetGroup(ctx context.Context, group model.GroupID) (*model.ResetReport, error)

	// Economy operations
	SaveTrade(ctx context.Context, trade *model.Trade) error
	ListTrades(ctx context.Context, group model.GroupID) ([]*model.Trade, error)
	// SaveListings stores one shop broadcast, all listings or none
	SaveListings(ctx context.Context, listings []*model.MarketListing) error
	// SearchListings returns the group's listings seen after since whose item
	// contains term, ignoring case, newest first (ties by id descending)
	SearchListings(ctx context.Context, group model.GroupID, term string, since time.Time) ([]*model.MarketListing, error)

	// Device operations
	SaveDevice(ctx context.Context, device *model.Device) error
	GetDevice(ctx context.Context, group model.GroupID, entityID int64) (*model.Device, error)
	ListDevices(ctx context.Context, group model.GroupID) ([]*model.Device, error)
}

// SortListings orders listings newest first, ties by id descending
func SortListings(listings []*model.MarketListing) {
	sort.Slice(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]
		if !a.At.Equal(b.At) {
			return a.At.After(b.At)
		}
		return a.ID > b.ID
	})
}
