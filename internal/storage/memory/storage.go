package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// A single lock makes every multi-record write atomic.
type Storage struct {
	mu sync.RWMutex

	players   map[model.PlayerID]*model.Player
	nameIndex map[nameKey]model.PlayerID
	sessions  map[model.PlayerID][]*model.Session
	groups    map[model.GroupID]*model.GroupConfig
	trades    map[model.GroupID][]*model.Trade
	listings  map[model.GroupID][]*model.MarketListing
	devices   map[deviceKey]*model.Device

	nextPlayerID  model.PlayerID
	nextSessionID model.SessionID
	nextTradeID   int64
	nextListingID int64
}

type nameKey struct {
	group model.GroupID
	name  string
}

type deviceKey struct {
	group    model.GroupID
	entityID int64
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		players:   make(map[model.PlayerID]*model.Player),
		nameIndex: make(map[nameKey]model.PlayerID),
		sessions:  make(map[model.PlayerID][]*model.Session),
		groups:    make(map[model.GroupID]*model.GroupConfig),
		trades:    make(map[model.GroupID][]*model.Trade),
		listings:  make(map[model.GroupID][]*model.MarketListing),
		devices:   make(map[deviceKey]*model.Device),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Player operations

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return copyPlayer(player), nil
}

func (s *Storage) GetPlayerByName(ctx context.Context, group model.GroupID, name string) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nameIndex[nameKey{group, name}]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return copyPlayer(s.players[id]), nil
}

func (s *Storage) ListPlayers(ctx context.Context, group model.GroupID) ([]*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var players []*model.Player
	for _, p := range s.players {
		if p.Group == group {
			players = append(players, copyPlayer(p))
		}
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Name < players[j].Name })
	return players, nil
}

func (s *Storage) EnsurePlayer(ctx context.Context, group model.GroupID, name string, teammate *bool) (*model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player := s.upsertPlayer(group, name)
	if teammate != nil {
		player.Teammate = *teammate
	}
	return copyPlayer(player), nil
}

func (s *Storage) RenamePlayer(ctx context.Context, id model.PlayerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[id]
	if !ok {
		return model.ErrPlayerNotFound
	}
	if _, taken := s.nameIndex[nameKey{player.Group, name}]; taken {
		return model.ErrPlayerExists
	}
	delete(s.nameIndex, nameKey{player.Group, player.Name})
	player.Name = name
	s.nameIndex[nameKey{player.Group, name}] = id
	return nil
}

// upsertPlayer returns the stored player, creating it when absent. Caller holds the write lock.
func (s *Storage) upsertPlayer(group model.GroupID, name string) *model.Player {
	if id, ok := s.nameIndex[nameKey{group, name}]; ok {
		return s.players[id]
	}
	s.nextPlayerID++
	player := &model.Player{ID: s.nextPlayerID, Group: group, Name: name}
	s.players[player.ID] = player
	s.nameIndex[nameKey{group, name}] = player.ID
	return player
}

// Session operations

func (s *Storage) ApplyTransition(ctx context.Context, t *model.Transition) (*model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.upsertPlayer(t.Group, t.Name)
	player.Online = t.Online
	at := t.At
	player.LastSeen = &at
	if t.Teammate != nil {
		player.Teammate = *t.Teammate
	}

	if t.CloseOpenAt != nil {
		if open := s.openSession(player.ID); open != nil {
			end := *t.CloseOpenAt
			open.End = &end
		}
	}
	if t.OpenAt != nil && s.openSession(player.ID) == nil {
		s.nextSessionID++
		s.sessions[player.ID] = append(s.sessions[player.ID], &model.Session{
			ID:       s.nextSessionID,
			PlayerID: player.ID,
			Start:    *t.OpenAt,
		})
	}
	return copyPlayer(player), nil
}

func (s *Storage) GetOpenSession(ctx context.Context, playerID model.PlayerID) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	open := s.openSession(playerID)
	if open == nil {
		return nil, model.ErrSessionNotFound
	}
	c := copySession(open)
	return &c, nil
}

func (s *Storage) ListSessions(ctx context.Context, playerID model.PlayerID) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.players[playerID]; !ok {
		return nil, model.ErrPlayerNotFound
	}
	sessions := make([]model.Session, 0, len(s.sessions[playerID]))
	for _, sess := range s.sessions[playerID] {
		sessions = append(sessions, copySession(sess))
	}
	sortSessions(sessions)
	return sessions, nil
}

func (s *Storage) openSession(playerID model.PlayerID) *model.Session {
	for _, sess := range s.sessions[playerID] {
		if sess.End == nil {
			return sess
		}
	}
	return nil
}

// Identity operations

func (s *Storage) MergePlayers(ctx context.Context, m *model.Merge) (*model.MergeReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.players[m.Source.ID]
	if !ok || source.Group != m.Group {
		return nil, model.ErrPlayerNotFound
	}
	target, ok := s.players[m.Target.ID]
	if !ok || target.Group != m.Group {
		return nil, model.ErrPlayerNotFound
	}

	report := &model.MergeReport{Source: source.ID, Target: target.ID}

	if m.CloseSourceSessionAt != nil {
		if open := s.openSession(source.ID); open != nil {
			end := *m.CloseSourceSessionAt
			open.End = &end
		}
	}
	for _, sess := range s.sessions[source.ID] {
		sess.PlayerID = target.ID
		s.sessions[target.ID] = append(s.sessions[target.ID], sess)
		report.SessionsMoved++
	}
	delete(s.sessions, source.ID)

	for _, trade := range s.trades[m.Group] {
		rewritten := false
		if trade.Buyer == source.Name {
			trade.Buyer = target.Name
			rewritten = true
		}
		if trade.Seller == source.Name {
			trade.Seller = target.Name
			rewritten = true
		}
		if rewritten {
			report.RecordsRewritten++
		}
	}

	target.Online = m.Target.Online
	target.LastSeen = copyTime(m.Target.LastSeen)
	target.Teammate = m.Target.Teammate

	delete(s.nameIndex, nameKey{source.Group, source.Name})
	delete(s.players, source.ID)
	return report, nil
}

// Group operations

func (s *Storage) GetGroupConfig(ctx context.Context, group model.GroupID) (*model.GroupConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.groups[group]
	if !ok {
		return nil, model.ErrGroupNotFound
	}
	c := *cfg
	c.WipeEpoch = copyTime(cfg.WipeEpoch)
	return &c, nil
}

func (s *Storage) SaveGroupConfig(ctx context.Context, cfg *model.GroupConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cfg
	c.WipeEpoch = copyTime(cfg.WipeEpoch)
	s.groups[cfg.Group] = &c
	return nil
}

func (s *Storage) ListGroupConfigs(ctx context.Context) ([]*model.GroupConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	configs := make([]*model.GroupConfig, 0, len(s.groups))
	for _, cfg := range s.groups {
		c := *cfg
		c.WipeEpoch = copyTime(cfg.WipeEpoch)
		configs = append(configs, &c)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Group < configs[j].Group })
	return configs, nil
}

func (s *Storage) ResetGroup(ctx context.Context, group model.GroupID) (*model.ResetReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report := &model.ResetReport{}
	for id, p := range s.players {
		if p.Group != group {
			continue
		}
		report.Sessions += len(s.sessions[id])
		report.Players++
		delete(s.sessions, id)
		delete(s.nameIndex, nameKey{group, p.Name})
		delete(s.players, id)
	}
	report.Trades = len(s.trades[group])
	delete(s.trades, group)
	report.Listings = len(s.listings[group])
	delete(s.listings, group)
	return report, nil
}

// Economy operations

func (s *Storage) SaveTrade(ctx context.Context, trade *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTradeID++
	trade.ID = s.nextTradeID
	t := *trade
	s.trades[trade.Group] = append(s.trades[trade.Group], &t)
	return nil
}

func (s *Storage) ListTrades(ctx context.Context, group model.GroupID) ([]*model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trades := make([]*model.Trade, 0, len(s.trades[group]))
	for _, t := range s.trades[group] {
		c := *t
		trades = append(trades, &c)
	}
	return trades, nil
}

func (s *Storage) SaveListings(ctx context.Context, listings []*model.MarketListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range listings {
		s.nextListingID++
		l.ID = s.nextListingID
		c := *l
		s.listings[l.Group] = append(s.listings[l.Group], &c)
	}
	return nil
}

func (s *Storage) SearchListings(ctx context.Context, group model.GroupID, term string, since time.Time) ([]*model.MarketListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	term = strings.ToLower(term)
	var out []*model.MarketListing
	for _, l := range s.listings[group] {
		if !l.At.After(since) || !strings.Contains(strings.ToLower(l.Item), term) {
			continue
		}
		c := *l
		out = append(out, &c)
	}
	storage.SortListings(out)
	return out, nil
}

// Device operations

func (s *Storage) SaveDevice(ctx context.Context, device *model.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := *device
	s.devices[deviceKey{device.Group, device.EntityID}] = &d
	return nil
}

func (s *Storage) GetDevice(ctx context.Context, group model.GroupID, entityID int64) (*model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceKey{group, entityID}]
	if !ok {
		return nil, model.ErrDeviceNotFound
	}
	c := *d
	return &c, nil
}

func (s *Storage) ListDevices(ctx context.Context, group model.GroupID) ([]*model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var devices []*model.Device
	for key, d := range s.devices {
		if key.group == group {
			c := *d
			devices = append(devices, &c)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].EntityID < devices[j].EntityID })
	return devices, nil
}

func copyPlayer(p *model.Player) *model.Player {
	c := *p
	c.LastSeen = copyTime(p.LastSeen)
	return &c
}

func copySession(s *model.Session) model.Session {
	c := *s
	c.End = copyTime(s.End)
	return c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func sortSessions(sessions []model.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].Start.Equal(sessions[j].Start) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].Start.Before(sessions[j].Start)
	})
}
