// Package stats derives playtime and economy analytics from stored history.
// Every query is bounded by the group's wipe epoch.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/clock"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/identity"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage"
)

const (
	// DefaultLeaderboardSize is used when no limit is requested
	DefaultLeaderboardSize = 10
	// MaxLeaderboardSize caps the requested limit
	MaxLeaderboardSize = 100
	// EconomyTopItems is the number of items reported by EconomyStats
	EconomyTopItems = 5
	// ListingWindow bounds how old a vending machine listing may be in searches
	ListingWindow = 24 * time.Hour
	// MaxShopResults caps the shops returned by SearchListings
	MaxShopResults = 15
	// UnknownShop names listings broadcast without a shop name
	UnknownShop = "Unknown Shop"
)

// SessionReader is the slice of the presence service stats reads from
type SessionReader interface {
	GetPlayer(ctx context.Context, group model.GroupID, id model.PlayerID) (*model.Player, error)
	ListPlayers(ctx context.Context, group model.GroupID) ([]*model.Player, error)
	QuerySessions(ctx context.Context, playerID model.PlayerID, since *time.Time) ([]model.Session, error)
}

// EpochReader supplies the analytics lower bound of a group
type EpochReader interface {
	GetWipeEpoch(ctx context.Context, group model.GroupID) (*time.Time, error)
}

// Service computes analytics
type Service struct {
	sessions SessionReader
	epochs   EpochReader
	storage  storage.Storage
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates a new stats service
func New(sessions SessionReader, epochs EpochReader, storage storage.Storage, clock clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		sessions: sessions,
		epochs:   epochs,
		storage:  storage,
		clock:    clock,
		logger:   logger.With(slog.String("component", "stats")),
	}
}

// LeaderboardEntry is one ranked player
type LeaderboardEntry struct {
	Rank         int            `json:"rank"`
	PlayerID     model.PlayerID `json:"player_id"`
	Player       string         `json:"player"`
	Online       bool           `json:"online"`
	TotalSeconds int64          `json:"total_seconds"`
}

// Leaderboard ranks the group's players by playtime since the wipe epoch.
// Players without sessions in the window are left out.
func (s *Service) Leaderboard(ctx context.Context, group model.GroupID, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	if limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}

	epoch, err := s.epochs.GetWipeEpoch(ctx, group)
	if err != nil {
		return nil, err
	}
	players, err := s.sessions.ListPlayers(ctx, group)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	entries := make([]LeaderboardEntry, 0, len(players))
	for _, p := range players {
		sessions, err := s.sessions.QuerySessions(ctx, p.ID, epoch)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			PlayerID:     p.ID,
			Player:       p.Name,
			Online:       p.Online,
			TotalSeconds: int64(totalPlaytime(sessions, now) / time.Second),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalSeconds != entries[j].TotalSeconds {
			return entries[i].TotalSeconds > entries[j].TotalSeconds
		}
		return entries[i].Player < entries[j].Player
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func totalPlaytime(sessions []model.Session, now time.Time) time.Duration {
	var total time.Duration
	for _, sess := range sessions {
		total += sess.Duration(now)
	}
	return total
}

// PlaytimeStats summarizes one player's habits
type PlaytimeStats struct {
	PlayerID     model.PlayerID `json:"player_id"`
	Player       string         `json:"player"`
	Online       bool           `json:"online"`
	LastSeen     *time.Time     `json:"last_seen,omitempty"`
	Since        *time.Time     `json:"since,omitempty"`
	Sessions     int            `json:"sessions"`
	TotalHours   float64        `json:"total_hours"`
	DaysTracked  int            `json:"days_tracked"`
	WeeklyHours  float64        `json:"weekly_hours"`
	WeekendRatio float64        `json:"weekend_ratio"`
	TopStartHour int            `json:"top_start_hour"`
	Region       string         `json:"region"`
	Tags         []string       `json:"tags"`
}

const (
	RegionEU      = "EU"
	RegionNA      = "NA"
	RegionAUAsia  = "AU/Asia"
	RegionUnknown = "Unknown"

	TagWeekendWarrior = "Weekend Warrior"
	TagFullTime       = "Full Time"
)

// PlaytimeStats computes the player's stats since the wipe epoch
func (s *Service) PlaytimeStats(ctx context.Context, group model.GroupID, playerID model.PlayerID) (*PlaytimeStats, error) {
	player, err := s.sessions.GetPlayer(ctx, group, playerID)
	if err != nil {
		return nil, err
	}
	epoch, err := s.epochs.GetWipeEpoch(ctx, group)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.QuerySessions(ctx, playerID, epoch)
	if err != nil {
		return nil, err
	}

	out := summarize(sessions, s.clock.Now())
	out.PlayerID = player.ID
	out.Player = player.Name
	out.Online = player.Online
	out.LastSeen = player.LastSeen
	out.Since = epoch
	return out, nil
}

func summarize(sessions []model.Session, now time.Time) *PlaytimeStats {
	out := &PlaytimeStats{Sessions: len(sessions), Region: RegionUnknown, Tags: []string{}}
	if len(sessions) == 0 {
		return out
	}

	var total, weekend time.Duration
	var hourCounts [24]int
	first := now
	for _, sess := range sessions {
		start := sess.Start.UTC()
		if start.Before(first) {
			first = start
		}
		d := sess.Duration(now)
		total += d
		switch start.Weekday() {
		case time.Friday, time.Saturday, time.Sunday:
			weekend += d
		}
		hourCounts[start.Hour()]++
	}

	out.TotalHours = total.Hours()
	out.DaysTracked = int(now.Sub(first) / (24 * time.Hour))
	if out.DaysTracked == 0 {
		out.DaysTracked = 1
	}
	out.WeeklyHours = out.TotalHours
	if out.DaysTracked >= 7 {
		out.WeeklyHours = out.TotalHours / (float64(out.DaysTracked) / 7.0)
	}
	if total >= time.Second {
		out.WeekendRatio = weekend.Seconds() / total.Seconds()
	}

	for h, c := range hourCounts {
		if c > hourCounts[out.TopStartHour] {
			out.TopStartHour = h
		}
	}
	out.Region = regionFor(out.TopStartHour)

	if out.WeekendRatio > 0.7 {
		out.Tags = append(out.Tags, TagWeekendWarrior)
	}
	if out.WeeklyHours > 40 {
		out.Tags = append(out.Tags, TagFullTime)
	}
	return out
}

// regionFor guesses a region from the most common UTC start hour
func regionFor(hour int) string {
	switch {
	case hour >= 16 && hour <= 23:
		return RegionEU
	case hour >= 0 && hour <= 8:
		return RegionNA
	case hour > 8 && hour < 16:
		return RegionAUAsia
	}
	return RegionUnknown
}

// ItemStats aggregates trades of one item for one currency
type ItemStats struct {
	Item         string `json:"item"`
	CostItem     string `json:"cost_item"`
	QuantitySold int    `json:"quantity_sold"`
	Volume       int    `json:"volume"`
	Trades       int    `json:"trades"`
}

// EconomyReport lists the most traded items since the wipe epoch
type EconomyReport struct {
	Since    *time.Time  `json:"since,omitempty"`
	Trades   int         `json:"trades"`
	TopItems []ItemStats `json:"top_items"`
}

// RecordTrade validates and stores one trade. Buyer and seller are stored
// as identity keys so merges can rewrite them.
func (s *Service) RecordTrade(ctx context.Context, trade *model.Trade) error {
	trade.Item = strings.TrimSpace(trade.Item)
	trade.CostItem = strings.TrimSpace(trade.CostItem)
	trade.Buyer = identity.Normalize(trade.Buyer)
	trade.Seller = identity.Normalize(trade.Seller)

	switch {
	case trade.Item == "":
		return fmt.Errorf("item is required: %w", model.ErrInvalidTrade)
	case trade.Quantity <= 0:
		return fmt.Errorf("quantity must be positive: %w", model.ErrInvalidTrade)
	case trade.CostAmount < 0:
		return fmt.Errorf("cost amount must not be negative: %w", model.ErrInvalidTrade)
	case trade.Buyer == "" && trade.Seller == "":
		return fmt.Errorf("buyer or seller is required: %w", model.ErrInvalidTrade)
	}
	if trade.At.IsZero() {
		trade.At = s.clock.Now()
	}
	trade.At = trade.At.UTC()
	return s.storage.SaveTrade(ctx, trade)
}

// EconomyStats returns the top items by traded volume since the wipe epoch
func (s *Service) EconomyStats(ctx context.Context, group model.GroupID) (*EconomyReport, error) {
	epoch, err := s.epochs.GetWipeEpoch(ctx, group)
	if err != nil {
		return nil, err
	}
	trades, err := s.storage.ListTrades(ctx, group)
	if err != nil {
		return nil, err
	}

	type itemKey struct{ item, cost string }
	byItem := make(map[itemKey]*ItemStats)
	report := &EconomyReport{Since: epoch, TopItems: []ItemStats{}}
	for _, t := range trades {
		if epoch != nil && t.At.Before(*epoch) {
			continue
		}
		report.Trades++
		key := itemKey{t.Item, t.CostItem}
		st, ok := byItem[key]
		if !ok {
			st = &ItemStats{Item: t.Item, CostItem: t.CostItem}
			byItem[key] = st
		}
		st.QuantitySold += t.Quantity
		st.Volume += t.CostAmount
		st.Trades++
	}

	for _, st := range byItem {
		report.TopItems = append(report.TopItems, *st)
	}
	sort.Slice(report.TopItems, func(i, j int) bool {
		a, b := report.TopItems[i], report.TopItems[j]
		if a.Volume != b.Volume {
			return a.Volume > b.Volume
		}
		if a.Item != b.Item {
			return a.Item < b.Item
		}
		return a.CostItem < b.CostItem
	})
	if len(report.TopItems) > EconomyTopItems {
		report.TopItems = report.TopItems[:EconomyTopItems]
	}
	return report, nil
}

// MarketSearch is the latest offer of each shop selling a matching item
type MarketSearch struct {
	Query    string                 `json:"query"`
	Since    time.Time              `json:"since"`
	Shops    int                    `json:"shops"`
	Listings []*model.MarketListing `json:"listings"`
}

// RecordListings validates and stores one shop broadcast. Every listing
// takes the shop name and timestamp given here.
func (s *Service) RecordListings(ctx context.Context, group model.GroupID, shop string, at time.Time, listings []*model.MarketListing) ([]*model.MarketListing, error) {
	shop = strings.TrimSpace(shop)
	if shop == "" {
		shop = UnknownShop
	}
	if at.IsZero() {
		at = s.clock.Now()
	}
	at = at.UTC()
	if len(listings) == 0 {
		return nil, fmt.Errorf("no listings: %w", model.ErrInvalidListing)
	}

	for i, l := range listings {
		l.Group = group
		l.Shop = shop
		l.At = at
		l.Item = strings.TrimSpace(l.Item)
		l.CostItem = strings.TrimSpace(l.CostItem)
		switch {
		case l.Item == "":
			return nil, fmt.Errorf("listing %d: item is required: %w", i, model.ErrInvalidListing)
		case l.Quantity <= 0:
			return nil, fmt.Errorf("listing %d: quantity must be positive: %w", i, model.ErrInvalidListing)
		case l.CostAmount < 0 || l.Stock < 0:
			return nil, fmt.Errorf("listing %d: cost and stock must not be negative: %w", i, model.ErrInvalidListing)
		}
	}

	if err := s.storage.SaveListings(ctx, listings); err != nil {
		return nil, err
	}
	s.logger.Info("market listings recorded",
		slog.String("group", group.String()),
		slog.String("shop", shop),
		slog.Int("listings", len(listings)),
	)
	return listings, nil
}

// SearchListings finds shops offering an item whose name contains query.
// Only listings from the last ListingWindow (and after the wipe epoch) count,
// each shop contributes its most recent one, and at most MaxShopResults
// shops are returned, most recent first.
func (s *Service) SearchListings(ctx context.Context, group model.GroupID, query string) (*MarketSearch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search term is required: %w", model.ErrInvalidListing)
	}
	epoch, err := s.epochs.GetWipeEpoch(ctx, group)
	if err != nil {
		return nil, err
	}
	since := s.clock.Now().Add(-ListingWindow)
	if epoch != nil && epoch.After(since) {
		since = *epoch
	}

	listings, err := s.storage.SearchListings(ctx, group, query, since)
	if err != nil {
		return nil, err
	}

	result := &MarketSearch{Query: query, Since: since, Listings: []*model.MarketListing{}}
	seen := make(map[string]bool)
	for _, l := range listings {
		if seen[l.Shop] {
			continue
		}
		seen[l.Shop] = true
		if len(result.Listings) < MaxShopResults {
			result.Listings = append(result.Listings, l)
		}
	}
	result.Shops = len(seen)
	return result, nil
}
