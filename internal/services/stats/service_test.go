package stats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/mocks"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/presence"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/wipe"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage/memory"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/testutil"
)

const group = model.GroupID(11)

// 2024-01-01 is a Monday
func at(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

type ServiceSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	presence *presence.Service
	wipe     *wipe.Service
	service  *Service
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	store := memory.New()
	logger := testutil.NopLogger()
	s.clock = mocks.NewMockClock(at(15, 12))
	s.presence = presence.New(store, s.clock, nil, logger, presence.DefaultConfig())
	s.wipe = wipe.New(store, s.clock, nil, logger)
	s.service = New(s.presence, s.wipe, store, s.clock, logger)
	s.ctx = context.Background()
}

func (s *ServiceSuite) play(name string, from, to time.Time) model.PlayerID {
	_, err := s.presence.RecordTransition(s.ctx, group, name, true, from, nil)
	s.Require().NoError(err)
	res, err := s.presence.RecordTransition(s.ctx, group, name, false, to, nil)
	s.Require().NoError(err)
	return res.Player.ID
}

// Leaderboard tests

func (s *ServiceSuite) TestLeaderboardOrdersByPlaytime() {
	s.play("alice", at(1, 10), at(1, 12))
	s.play("bob", at(1, 10), at(1, 15))
	s.play("carol", at(2, 10), at(2, 11))
	_, err := s.presence.PreRegister(s.ctx, group, "dave", nil)
	s.Require().NoError(err)

	board, err := s.service.Leaderboard(s.ctx, group, 0)
	s.Require().NoError(err)

	s.Require().Len(board, 3)
	s.Equal("bob", board[0].Player)
	s.Equal(int64(5*3600), board[0].TotalSeconds)
	s.Equal(1, board[0].Rank)
	s.Equal("alice", board[1].Player)
	s.Equal("carol", board[2].Player)
	s.Equal(3, board[2].Rank)
}

func (s *ServiceSuite) TestLeaderboardCountsOpenSessionsToNow() {
	_, err := s.presence.RecordTransition(s.ctx, group, "alice", true, at(15, 10), nil)
	s.Require().NoError(err)

	board, err := s.service.Leaderboard(s.ctx, group, 10)
	s.Require().NoError(err)
	s.Require().Len(board, 1)
	s.Equal(int64(2*3600), board[0].TotalSeconds)
	s.True(board[0].Online)
}

func (s *ServiceSuite) TestLeaderboardLimit() {
	for _, name := range []string{"a", "b", "c", "d"} {
		s.play(name, at(1, 10), at(1, 11))
	}
	board, err := s.service.Leaderboard(s.ctx, group, 2)
	s.Require().NoError(err)
	s.Len(board, 2)
	s.Equal("a", board[0].Player)
}

func (s *ServiceSuite) TestLeaderboardClampsToWipeEpoch() {
	s.play("alice", at(1, 10), at(1, 20))
	s.play("bob", at(1, 8), at(1, 9))
	_, err := s.wipe.SetWipeEpoch(s.ctx, group, at(1, 18))
	s.Require().NoError(err)

	board, err := s.service.Leaderboard(s.ctx, group, 0)
	s.Require().NoError(err)

	s.Require().Len(board, 1)
	s.Equal("alice", board[0].Player)
	s.Equal(int64(2*3600), board[0].TotalSeconds)
}

func (s *ServiceSuite) TestLeaderboardSkipsSessionEndingAtEpoch() {
	s.play("alice", at(1, 10), at(1, 20))
	s.play("bob", at(1, 8), at(1, 18))
	_, err := s.wipe.SetWipeEpoch(s.ctx, group, at(1, 18))
	s.Require().NoError(err)

	board, err := s.service.Leaderboard(s.ctx, group, 0)
	s.Require().NoError(err)

	s.Require().Len(board, 1)
	s.Equal("alice", board[0].Player)
}

// PlaytimeStats tests

func (s *ServiceSuite) TestPlaytimeStatsWeekendPlayer() {
	var id model.PlayerID
	for _, day := range []int{5, 6, 7, 12, 13, 14} {
		id = s.play("jeff", at(day, 18), at(day, 23))
	}

	st, err := s.service.PlaytimeStats(s.ctx, group, id)
	s.Require().NoError(err)

	s.Equal(6, st.Sessions)
	s.InDelta(30.0, st.TotalHours, 1e-9)
	s.Equal(9, st.DaysTracked)
	s.InDelta(30.0/(9.0/7.0), st.WeeklyHours, 1e-9)
	s.InDelta(1.0, st.WeekendRatio, 1e-9)
	s.Equal(18, st.TopStartHour)
	s.Equal(RegionEU, st.Region)
	s.Equal([]string{TagWeekendWarrior}, st.Tags)
}

func (s *ServiceSuite) TestPlaytimeStatsFullTimePlayer() {
	var id model.PlayerID
	for day := 1; day <= 14; day++ {
		id = s.play("grinder", at(day, 2), at(day, 10))
	}

	st, err := s.service.PlaytimeStats(s.ctx, group, id)
	s.Require().NoError(err)

	s.InDelta(112.0, st.TotalHours, 1e-9)
	s.Equal(RegionNA, st.Region)
	s.Contains(st.Tags, TagFullTime)
	s.NotContains(st.Tags, TagWeekendWarrior)
}

func (s *ServiceSuite) TestPlaytimeStatsClampsToWipeEpoch() {
	id := s.play("jeff", at(10, 10), at(10, 14))
	_, err := s.wipe.SetWipeEpoch(s.ctx, group, at(10, 12))
	s.Require().NoError(err)

	st, err := s.service.PlaytimeStats(s.ctx, group, id)
	s.Require().NoError(err)
	s.InDelta(2.0, st.TotalHours, 1e-9)
	s.Require().NotNil(st.Since)
	s.Equal(at(10, 12), *st.Since)
}

func (s *ServiceSuite) TestPlaytimeStatsWithoutSessions() {
	p, err := s.presence.PreRegister(s.ctx, group, "ghost", nil)
	s.Require().NoError(err)

	st, err := s.service.PlaytimeStats(s.ctx, group, p.ID)
	s.Require().NoError(err)
	s.Zero(st.Sessions)
	s.Equal(RegionUnknown, st.Region)
	s.Empty(st.Tags)
}

func (s *ServiceSuite) TestPlaytimeStatsUnknownPlayer() {
	_, err := s.service.PlaytimeStats(s.ctx, group, 77)
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

// Economy tests

func (s *ServiceSuite) trade(item, cost string, qty, amount int, when time.Time) {
	err := s.service.RecordTrade(s.ctx, &model.Trade{
		Group: group, Buyer: "[T] Buyer", Seller: "seller", Item: item,
		Quantity: qty, CostItem: cost, CostAmount: amount, At: when,
	})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestRecordTradeNormalizesNames() {
	s.trade("Rifle Body", "Scrap", 1, 250, time.Time{})

	trades, err := memoryTrades(s)
	s.Require().NoError(err)
	s.Require().Len(trades, 1)
	s.Equal("buyer", trades[0].Buyer)
	s.Equal(s.clock.Now(), trades[0].At)
}

func (s *ServiceSuite) TestRecordTradeValidation() {
	cases := []model.Trade{
		{Group: group, Buyer: "a", Quantity: 1},
		{Group: group, Buyer: "a", Item: "wood", Quantity: 0},
		{Group: group, Buyer: "a", Item: "wood", Quantity: 1, CostAmount: -1},
		{Group: group, Item: "wood", Quantity: 1},
	}
	for _, tc := range cases {
		tc := tc
		err := s.service.RecordTrade(s.ctx, &tc)
		s.ErrorIs(err, model.ErrInvalidTrade)
		s.True(model.IsValidation(err))
	}
}

func (s *ServiceSuite) TestEconomyStatsTopItemsByVolume() {
	s.trade("wood", "scrap", 1000, 10, at(2, 10))
	s.trade("wood", "scrap", 500, 5, at(3, 10))
	s.trade("ak47", "scrap", 1, 500, at(3, 11))
	s.trade("stone", "scrap", 1000, 20, at(3, 12))
	s.trade("hqm", "scrap", 100, 100, at(3, 13))
	s.trade("lowgrade", "scrap", 100, 50, at(3, 14))
	s.trade("metal", "scrap", 100, 1, at(3, 15))

	report, err := s.service.EconomyStats(s.ctx, group)
	s.Require().NoError(err)

	s.Equal(7, report.Trades)
	s.Require().Len(report.TopItems, EconomyTopItems)
	s.Equal("ak47", report.TopItems[0].Item)
	s.Equal("hqm", report.TopItems[1].Item)
	s.Equal("lowgrade", report.TopItems[2].Item)
	s.Equal("stone", report.TopItems[3].Item)
	s.Equal("wood", report.TopItems[4].Item)
	s.Equal(1500, report.TopItems[4].QuantitySold)
	s.Equal(15, report.TopItems[4].Volume)
	s.Equal(2, report.TopItems[4].Trades)
}

func (s *ServiceSuite) TestEconomyStatsRespectsWipeEpoch() {
	s.trade("wood", "scrap", 1000, 10, at(2, 10))
	s.trade("stone", "scrap", 1000, 20, at(4, 10))
	_, err := s.wipe.SetWipeEpoch(s.ctx, group, at(3, 0))
	s.Require().NoError(err)

	report, err := s.service.EconomyStats(s.ctx, group)
	s.Require().NoError(err)
	s.Equal(1, report.Trades)
	s.Require().Len(report.TopItems, 1)
	s.Equal("stone", report.TopItems[0].Item)
}

// Market tests

func (s *ServiceSuite) listing(shop, item string, cost int, when time.Time) {
	_, err := s.service.RecordListings(s.ctx, group, shop, when, []*model.MarketListing{
		{Item: item, Quantity: 1, CostItem: "Scrap", CostAmount: cost, Stock: 2},
	})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestRecordListingsDefaults() {
	saved, err := s.service.RecordListings(s.ctx, group, "  ", time.Time{}, []*model.MarketListing{
		{Item: " Rifle Body ", Quantity: 1, CostItem: "Scrap", CostAmount: 250},
	})
	s.Require().NoError(err)
	s.Require().Len(saved, 1)
	s.Equal(UnknownShop, saved[0].Shop)
	s.Equal("Rifle Body", saved[0].Item)
	s.Equal(group, saved[0].Group)
	s.Equal(s.clock.Now(), saved[0].At)
	s.NotZero(saved[0].ID)
}

func (s *ServiceSuite) TestRecordListingsValidation() {
	cases := [][]*model.MarketListing{
		nil,
		{{Item: "", Quantity: 1}},
		{{Item: "wood", Quantity: 0}},
		{{Item: "wood", Quantity: 1, CostAmount: -1}},
		{{Item: "wood", Quantity: 1, Stock: -1}},
	}
	for _, tc := range cases {
		_, err := s.service.RecordListings(s.ctx, group, "shop", time.Time{}, tc)
		s.ErrorIs(err, model.ErrInvalidListing)
		s.True(model.IsValidation(err))
	}
}

func (s *ServiceSuite) TestSearchListingsOnlyLastDay() {
	now := s.clock.Now()
	s.listing("stale", "Rifle", 100, now.Add(-25*time.Hour))
	s.listing("fresh", "Rifle", 200, now.Add(-23*time.Hour))

	result, err := s.service.SearchListings(s.ctx, group, "rifle")
	s.Require().NoError(err)
	s.Equal(1, result.Shops)
	s.Require().Len(result.Listings, 1)
	s.Equal("fresh", result.Listings[0].Shop)
	s.True(result.Since.Equal(now.Add(-ListingWindow)))
}

func (s *ServiceSuite) TestSearchListingsLatestPerShop() {
	now := s.clock.Now()
	s.listing("north", "Rifle", 100, now.Add(-3*time.Hour))
	s.listing("north", "Rifle", 150, now.Add(-time.Hour))
	s.listing("south", "Rifle", 120, now.Add(-2*time.Hour))

	result, err := s.service.SearchListings(s.ctx, group, "RIF")
	s.Require().NoError(err)
	s.Equal(2, result.Shops)
	s.Require().Len(result.Listings, 2)
	s.Equal("north", result.Listings[0].Shop)
	s.Equal(150, result.Listings[0].CostAmount)
	s.Equal("south", result.Listings[1].Shop)
}

func (s *ServiceSuite) TestSearchListingsCapsShops() {
	now := s.clock.Now()
	for i := 0; i < MaxShopResults+5; i++ {
		s.listing(fmt.Sprintf("shop-%02d", i), "Rifle", 100, now.Add(-time.Duration(i+1)*time.Minute))
	}

	result, err := s.service.SearchListings(s.ctx, group, "rifle")
	s.Require().NoError(err)
	s.Equal(MaxShopResults+5, result.Shops)
	s.Require().Len(result.Listings, MaxShopResults)
	s.Equal("shop-00", result.Listings[0].Shop)
}

func (s *ServiceSuite) TestSearchListingsRespectsWipeEpoch() {
	now := s.clock.Now()
	s.listing("before", "Rifle", 100, now.Add(-2*time.Hour))
	s.listing("after", "Rifle", 100, now.Add(-30*time.Minute))
	_, err := s.wipe.SetWipeEpoch(s.ctx, group, now.Add(-time.Hour))
	s.Require().NoError(err)

	result, err := s.service.SearchListings(s.ctx, group, "rifle")
	s.Require().NoError(err)
	s.Require().Len(result.Listings, 1)
	s.Equal("after", result.Listings[0].Shop)
}

func (s *ServiceSuite) TestSearchListingsRequiresTerm() {
	_, err := s.service.SearchListings(s.ctx, group, "  ")
	s.ErrorIs(err, model.ErrInvalidListing)
}

func memoryTrades(s *ServiceSuite) ([]*model.Trade, error) {
	return s.service.storage.ListTrades(s.ctx, group)
}
