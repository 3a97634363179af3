// Package storagetest holds the behavioural test suite every storage backend runs.
package storagetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage"
)

// Suite exercises a storage.Storage implementation.
// NewStorage is called before each test and must return an empty store.
type Suite struct {
	suite.Suite
	NewStorage func() storage.Storage

	storage storage.Storage
	ctx     context.Context
	t0      time.Time
}

const group = model.GroupID(100)

func (s *Suite) SetupTest() {
	s.storage = s.NewStorage()
	s.ctx = context.Background()
	s.t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}

func (s *Suite) transition(name string, online bool, at time.Time, closeAt, openAt *time.Time) *model.Player {
	p, err := s.storage.ApplyTransition(s.ctx, &model.Transition{
		Group:       group,
		Name:        name,
		Online:      online,
		At:          at,
		CloseOpenAt: closeAt,
		OpenAt:      openAt,
	})
	s.Require().NoError(err)
	return p
}

// Player tests

func (s *Suite) TestEnsurePlayerCreatesOnce() {
	p1, err := s.storage.EnsurePlayer(s.ctx, group, "jeff", nil)
	s.Require().NoError(err)
	s.False(p1.Online)
	s.Nil(p1.LastSeen)
	s.False(p1.Teammate)

	p2, err := s.storage.EnsurePlayer(s.ctx, group, "jeff", ptr(true))
	s.Require().NoError(err)
	s.Equal(p1.ID, p2.ID)
	s.True(p2.Teammate)

	// Nil hint leaves teammate unchanged
	p3, err := s.storage.EnsurePlayer(s.ctx, group, "jeff", nil)
	s.Require().NoError(err)
	s.True(p3.Teammate)
}

func (s *Suite) TestNamesAreScopedToGroup() {
	a, err := s.storage.EnsurePlayer(s.ctx, group, "jeff", nil)
	s.Require().NoError(err)
	b, err := s.storage.EnsurePlayer(s.ctx, group+1, "jeff", nil)
	s.Require().NoError(err)
	s.NotEqual(a.ID, b.ID)

	players, err := s.storage.ListPlayers(s.ctx, group)
	s.Require().NoError(err)
	s.Len(players, 1)
}

func (s *Suite) TestGetPlayerNotFound() {
	_, err := s.storage.GetPlayer(s.ctx, 9999)
	s.ErrorIs(err, model.ErrPlayerNotFound)

	_, err = s.storage.GetPlayerByName(s.ctx, group, "nobody")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestListPlayersSortedByName() {
	for _, name := range []string{"charlie", "alice", "bob"} {
		_, err := s.storage.EnsurePlayer(s.ctx, group, name, nil)
		s.Require().NoError(err)
	}

	players, err := s.storage.ListPlayers(s.ctx, group)
	s.Require().NoError(err)
	s.Require().Len(players, 3)
	s.Equal("alice", players[0].Name)
	s.Equal("bob", players[1].Name)
	s.Equal("charlie", players[2].Name)
}

func (s *Suite) TestRenamePlayer() {
	p, err := s.storage.EnsurePlayer(s.ctx, group, "player jeff", nil)
	s.Require().NoError(err)

	s.Require().NoError(s.storage.RenamePlayer(s.ctx, p.ID, "jeff"))

	_, err = s.storage.GetPlayerByName(s.ctx, group, "player jeff")
	s.ErrorIs(err, model.ErrPlayerNotFound)
	renamed, err := s.storage.GetPlayerByName(s.ctx, group, "jeff")
	s.Require().NoError(err)
	s.Equal(p.ID, renamed.ID)
}

func (s *Suite) TestRenamePlayerConflict() {
	p, _ := s.storage.EnsurePlayer(s.ctx, group, "player jeff", nil)
	_, _ = s.storage.EnsurePlayer(s.ctx, group, "jeff", nil)

	err := s.storage.RenamePlayer(s.ctx, p.ID, "jeff")
	s.ErrorIs(err, model.ErrPlayerExists)
}

// Transition tests

func (s *Suite) TestApplyTransitionOpensAndCloses() {
	p := s.transition("jeff", true, s.t0, nil, ptr(s.t0))
	s.True(p.Online)
	s.Require().NotNil(p.LastSeen)
	s.True(p.LastSeen.Equal(s.t0))

	open, err := s.storage.GetOpenSession(s.ctx, p.ID)
	s.Require().NoError(err)
	s.True(open.Start.Equal(s.t0))

	end := s.t0.Add(5 * time.Minute)
	p = s.transition("jeff", false, end, ptr(end), nil)
	s.False(p.Online)

	_, err = s.storage.GetOpenSession(s.ctx, p.ID)
	s.ErrorIs(err, model.ErrSessionNotFound)

	sessions, err := s.storage.ListSessions(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().Len(sessions, 1)
	s.True(sessions[0].Start.Equal(s.t0))
	s.Require().NotNil(sessions[0].End)
	s.True(sessions[0].End.Equal(end))
}

func (s *Suite) TestApplyTransitionNeverOpensSecondSession() {
	p := s.transition("jeff", true, s.t0, nil, ptr(s.t0))
	later := s.t0.Add(time.Minute)
	s.transition("jeff", true, later, nil, ptr(later))

	sessions, err := s.storage.ListSessions(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Len(sessions, 1)
}

func (s *Suite) TestApplyTransitionCloseThenOpen() {
	p := s.transition("jeff", true, s.t0, nil, ptr(s.t0))
	closeAt := s.t0.Add(5 * time.Minute)
	reopen := s.t0.Add(20 * time.Minute)
	s.transition("jeff", true, reopen, ptr(closeAt), ptr(reopen))

	sessions, err := s.storage.ListSessions(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().Len(sessions, 2)
	s.True(sessions[0].End.Equal(closeAt))
	s.True(sessions[1].Start.Equal(reopen))
	s.Nil(sessions[1].End)
}

func (s *Suite) TestApplyTransitionTeammateTriState() {
	_, err := s.storage.ApplyTransition(s.ctx, &model.Transition{
		Group: group, Name: "jeff", Online: true, At: s.t0, Teammate: ptr(true),
	})
	s.Require().NoError(err)

	p, err := s.storage.ApplyTransition(s.ctx, &model.Transition{
		Group: group, Name: "jeff", Online: false, At: s.t0.Add(time.Minute),
	})
	s.Require().NoError(err)
	s.True(p.Teammate)

	p, err = s.storage.ApplyTransition(s.ctx, &model.Transition{
		Group: group, Name: "jeff", Online: true, At: s.t0.Add(2 * time.Minute), Teammate: ptr(false),
	})
	s.Require().NoError(err)
	s.False(p.Teammate)
}

func (s *Suite) TestListSessionsOrderedByStart() {
	p := s.transition("jeff", true, s.t0, nil, ptr(s.t0))
	for i := 1; i <= 3; i++ {
		end := s.t0.Add(time.Duration(i)*time.Hour - 30*time.Minute)
		start := s.t0.Add(time.Duration(i) * time.Hour)
		s.transition("jeff", true, start, ptr(end), ptr(start))
	}

	sessions, err := s.storage.ListSessions(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().Len(sessions, 4)
	for i := 1; i < len(sessions); i++ {
		s.True(sessions[i-1].Start.Before(sessions[i].Start))
	}
}

// Merge tests

func (s *Suite) TestMergePlayers() {
	src := s.transition("player jeff", true, s.t0, nil, ptr(s.t0))
	end := s.t0.Add(time.Hour)
	src = s.transition("player jeff", false, end, ptr(end), nil)
	dst, err := s.storage.EnsurePlayer(s.ctx, group, "jeff", nil)
	s.Require().NoError(err)

	s.Require().NoError(s.storage.SaveTrade(s.ctx, &model.Trade{
		Group: group, Buyer: "player jeff", Seller: "bob", Item: "rifle", Quantity: 1, At: s.t0,
	}))
	s.Require().NoError(s.storage.SaveTrade(s.ctx, &model.Trade{
		Group: group, Buyer: "bob", Seller: "alice", Item: "scrap", Quantity: 10, At: s.t0,
	}))

	target := *dst
	target.LastSeen = src.LastSeen
	report, err := s.storage.MergePlayers(s.ctx, &model.Merge{Group: group, Source: *src, Target: target})
	s.Require().NoError(err)
	s.Equal(1, report.SessionsMoved)
	s.Equal(1, report.RecordsRewritten)

	_, err = s.storage.GetPlayer(s.ctx, src.ID)
	s.ErrorIs(err, model.ErrPlayerNotFound)
	_, err = s.storage.GetPlayerByName(s.ctx, group, "player jeff")
	s.ErrorIs(err, model.ErrPlayerNotFound)

	sessions, err := s.storage.ListSessions(s.ctx, dst.ID)
	s.Require().NoError(err)
	s.Require().Len(sessions, 1)
	s.Equal(dst.ID, sessions[0].PlayerID)

	merged, err := s.storage.GetPlayer(s.ctx, dst.ID)
	s.Require().NoError(err)
	s.Require().NotNil(merged.LastSeen)
	s.True(merged.LastSeen.Equal(end))

	trades, err := s.storage.ListTrades(s.ctx, group)
	s.Require().NoError(err)
	buyers := []string{trades[0].Buyer, trades[1].Buyer}
	s.Contains(buyers, "jeff")
	s.NotContains(buyers, "player jeff")
}

func (s *Suite) TestMergeClosesSourceOpenSession() {
	src := s.transition("player jeff", true, s.t0, nil, ptr(s.t0))
	dst := s.transition("jeff", true, s.t0.Add(time.Minute), nil, ptr(s.t0.Add(time.Minute)))

	mergeAt := s.t0.Add(10 * time.Minute)
	_, err := s.storage.MergePlayers(s.ctx, &model.Merge{
		Group: group, Source: *src, Target: *dst, CloseSourceSessionAt: &mergeAt,
	})
	s.Require().NoError(err)

	sessions, err := s.storage.ListSessions(s.ctx, dst.ID)
	s.Require().NoError(err)
	s.Require().Len(sessions, 2)
	open := 0
	for _, sess := range sessions {
		if sess.IsOpen() {
			open++
		}
	}
	s.Equal(1, open)
}

func (s *Suite) TestMergeMissingPlayerLeavesStateIntact() {
	src, _ := s.storage.EnsurePlayer(s.ctx, group, "player jeff", nil)
	ghost := model.Player{ID: 424242, Group: group, Name: "ghost"}

	_, err := s.storage.MergePlayers(s.ctx, &model.Merge{Group: group, Source: *src, Target: ghost})
	s.ErrorIs(err, model.ErrPlayerNotFound)

	_, err = s.storage.GetPlayer(s.ctx, src.ID)
	s.NoError(err)
}

// Group tests

func (s *Suite) TestGroupConfigRoundTrip() {
	_, err := s.storage.GetGroupConfig(s.ctx, group)
	s.ErrorIs(err, model.ErrGroupNotFound)

	epoch := s.t0
	s.Require().NoError(s.storage.SaveGroupConfig(s.ctx, &model.GroupConfig{
		Group: group, WipeEpoch: &epoch, PollTarget: "12345", UpdatedAt: s.t0,
	}))
	s.Require().NoError(s.storage.SaveGroupConfig(s.ctx, &model.GroupConfig{Group: group + 1, UpdatedAt: s.t0}))

	cfg, err := s.storage.GetGroupConfig(s.ctx, group)
	s.Require().NoError(err)
	s.Equal("12345", cfg.PollTarget)
	s.Require().NotNil(cfg.WipeEpoch)
	s.True(cfg.WipeEpoch.Equal(epoch))

	configs, err := s.storage.ListGroupConfigs(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(configs, 2)
	s.Equal(group, configs[0].Group)
	s.Nil(configs[1].WipeEpoch)
}

func (s *Suite) TestResetGroup() {
	p := s.transition("jeff", true, s.t0, nil, ptr(s.t0))
	s.transition("bob", true, s.t0, nil, ptr(s.t0))
	_, _ = s.storage.ApplyTransition(s.ctx, &model.Transition{Group: group + 1, Name: "other", Online: true, At: s.t0, OpenAt: ptr(s.t0)})
	s.Require().NoError(s.storage.SaveTrade(s.ctx, &model.Trade{Group: group, Buyer: "jeff", Seller: "bob", Item: "rifle", Quantity: 1, At: s.t0}))
	s.Require().NoError(s.storage.SaveListings(s.ctx, []*model.MarketListing{
		{Group: group, Shop: "Jeff's Shop", Item: "Rifle", Quantity: 1, CostItem: "Scrap", CostAmount: 100, At: s.t0},
	}))

	report, err := s.storage.ResetGroup(s.ctx, group)
	s.Require().NoError(err)
	s.Equal(2, report.Players)
	s.Equal(2, report.Sessions)
	s.Equal(1, report.Trades)
	s.Equal(1, report.Listings)

	listings, err := s.storage.SearchListings(s.ctx, group, "", s.t0.Add(-time.Hour))
	s.Require().NoError(err)
	s.Empty(listings)

	players, err := s.storage.ListPlayers(s.ctx, group)
	s.Require().NoError(err)
	s.Empty(players)
	_, err = s.storage.GetPlayer(s.ctx, p.ID)
	s.ErrorIs(err, model.ErrPlayerNotFound)

	others, err := s.storage.ListPlayers(s.ctx, group+1)
	s.Require().NoError(err)
	s.Len(others, 1)
}

// Market listing tests

func (s *Suite) TestSaveListingsAssignsIDs() {
	listings := []*model.MarketListing{
		{Group: group, Shop: "North Shop", Item: "Assault Rifle", Quantity: 1, CostItem: "Scrap", CostAmount: 500, Stock: 3, At: s.t0},
		{Group: group, Shop: "North Shop", Item: "Rifle Ammo", Quantity: 64, CostItem: "Scrap", CostAmount: 40, Stock: 10, At: s.t0},
	}
	s.Require().NoError(s.storage.SaveListings(s.ctx, listings))
	s.NotZero(listings[0].ID)
	s.NotEqual(listings[0].ID, listings[1].ID)

	found, err := s.storage.SearchListings(s.ctx, group, "assault", s.t0.Add(-time.Minute))
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	got := found[0]
	s.Equal(listings[0].ID, got.ID)
	s.Equal(group, got.Group)
	s.Equal("North Shop", got.Shop)
	s.Equal("Assault Rifle", got.Item)
	s.Equal(1, got.Quantity)
	s.Equal("Scrap", got.CostItem)
	s.Equal(500, got.CostAmount)
	s.Equal(3, got.Stock)
	s.True(got.At.Equal(s.t0))
}

func (s *Suite) TestSearchListingsFiltersAndOrders() {
	s.Require().NoError(s.storage.SaveListings(s.ctx, []*model.MarketListing{
		{Group: group, Shop: "old", Item: "Rifle", Quantity: 1, At: s.t0.Add(-2 * time.Hour)},
		{Group: group, Shop: "edge", Item: "Rifle", Quantity: 1, At: s.t0},
		{Group: group, Shop: "a", Item: "Semi-Automatic RIFLE", Quantity: 1, At: s.t0.Add(time.Hour)},
		{Group: group, Shop: "b", Item: "Rifle", Quantity: 1, At: s.t0.Add(2 * time.Hour)},
		{Group: group, Shop: "c", Item: "Rifle", Quantity: 1, At: s.t0.Add(2 * time.Hour)},
		{Group: group, Shop: "d", Item: "Pistol", Quantity: 1, At: s.t0.Add(time.Hour)},
	}))
	s.Require().NoError(s.storage.SaveListings(s.ctx, []*model.MarketListing{
		{Group: group + 1, Shop: "elsewhere", Item: "Rifle", Quantity: 1, At: s.t0.Add(time.Hour)},
	}))

	found, err := s.storage.SearchListings(s.ctx, group, "rifle", s.t0)
	s.Require().NoError(err)

	var shops []string
	for _, l := range found {
		shops = append(shops, l.Shop)
	}
	// strictly after since, case-insensitive substring, newest first, later id first on ties
	s.Equal([]string{"c", "b", "a"}, shops)
}

// Device tests

func (s *Suite) TestDevices() {
	_, err := s.storage.GetDevice(s.ctx, group, 42)
	s.ErrorIs(err, model.ErrDeviceNotFound)

	s.Require().NoError(s.storage.SaveDevice(s.ctx, &model.Device{Group: group, EntityID: 42, Name: "base alarm", Kind: model.DeviceAlarm}))
	s.Require().NoError(s.storage.SaveDevice(s.ctx, &model.Device{Group: group, EntityID: 7, Name: "door", Kind: model.DeviceSwitch}))

	d, err := s.storage.GetDevice(s.ctx, group, 42)
	s.Require().NoError(err)
	s.Equal("base alarm", d.Name)
	s.Equal(model.DeviceAlarm, d.Kind)

	devices, err := s.storage.ListDevices(s.ctx, group)
	s.Require().NoError(err)
	s.Require().Len(devices, 2)
	s.Equal(int64(7), devices[0].EntityID)
}
