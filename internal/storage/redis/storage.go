package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage"
)

// errTxRetriesExhausted is returned when watched keys keep changing under a transaction
var errTxRetriesExhausted = errors.New("redis: transaction retries exhausted")

// Storage is a Redis-backed implementation of the storage interface.
// Multi-key writes run inside WATCH/MULTI/EXEC so they land atomically.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// watch runs fn under WATCH on keys, retrying when EXEC reports a conflict
func (s *Storage) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	retries := s.cfg.MaxTxRetries
	if retries <= 0 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errTxRetriesExhausted
}

// reader is the read subset shared by *redis.Client and *redis.Tx
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

// getJSON loads a JSON value, mapping a missing key to notFound
func getJSON[T any](ctx context.Context, c reader, key string, notFound error) (*T, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Model types contain only JSON-safe fields
		panic(fmt.Sprintf("redis: marshal %T: %v", v, err))
	}
	return data
}

// Player operations

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	return getJSON[model.Player](ctx, s.client, playerKey(id), model.ErrPlayerNotFound)
}

func (s *Storage) GetPlayerByName(ctx context.Context, group model.GroupID, name string) (*model.Player, error) {
	id, err := s.lookupPlayerID(ctx, s.client, group, name)
	if err != nil {
		return nil, err
	}
	return s.GetPlayer(ctx, id)
}

func (s *Storage) lookupPlayerID(ctx context.Context, c reader, group model.GroupID, name string) (model.PlayerID, error) {
	id, err := c.Get(ctx, playerNameIndexKey(group, name)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, model.ErrPlayerNotFound
		}
		return 0, err
	}
	return model.PlayerID(id), nil
}

func (s *Storage) ListPlayers(ctx context.Context, group model.GroupID) ([]*model.Player, error) {
	ids, err := s.client.SMembers(ctx, groupPlayersKey(group)).Result()
	if err != nil {
		return nil, err
	}
	players := make([]*model.Player, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		player, err := s.GetPlayer(ctx, model.PlayerID(id))
		if errors.Is(err, model.ErrPlayerNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		players = append(players, player)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Name < players[j].Name })
	return players, nil
}

// loadOrAllocate returns the player for (group, name) inside a watched transaction.
// A new player gets a fresh id and is reported with created == true.
func (s *Storage) loadOrAllocate(ctx context.Context, tx *redis.Tx, group model.GroupID, name string) (player *model.Player, created bool, err error) {
	id, err := s.lookupPlayerID(ctx, tx, group, name)
	if err == nil {
		if err := tx.Watch(ctx, playerKey(id), openSessionKey(id)).Err(); err != nil {
			return nil, false, err
		}
		player, err := getJSON[model.Player](ctx, tx, playerKey(id), model.ErrPlayerNotFound)
		return player, false, err
	}
	if !errors.Is(err, model.ErrPlayerNotFound) {
		return nil, false, err
	}
	next, err := tx.Incr(ctx, sequenceKey("player")).Result()
	if err != nil {
		return nil, false, err
	}
	return &model.Player{ID: model.PlayerID(next), Group: group, Name: name}, true, nil
}

func indexNewPlayer(ctx context.Context, pipe redis.Pipeliner, p *model.Player) {
	pipe.Set(ctx, playerNameIndexKey(p.Group, p.Name), int64(p.ID), 0)
	pipe.SAdd(ctx, groupPlayersKey(p.Group), int64(p.ID))
}

func (s *Storage) EnsurePlayer(ctx context.Context, group model.GroupID, name string, teammate *bool) (*model.Player, error) {
	var result *model.Player
	err := s.watch(ctx, func(tx *redis.Tx) error {
		player, created, err := s.loadOrAllocate(ctx, tx, group, name)
		if err != nil {
			return err
		}
		if !created && teammate == nil {
			result = player
			return nil
		}
		if teammate != nil {
			player.Teammate = *teammate
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, playerKey(player.ID), mustJSON(player), 0)
			if created {
				indexNewPlayer(ctx, pipe, player)
			}
			return nil
		})
		result = player
		return err
	}, playerNameIndexKey(group, name))
	return result, err
}

func (s *Storage) RenamePlayer(ctx context.Context, id model.PlayerID, name string) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		player, err := getJSON[model.Player](ctx, tx, playerKey(id), model.ErrPlayerNotFound)
		if err != nil {
			return err
		}
		newIndex := playerNameIndexKey(player.Group, name)
		if err := tx.Watch(ctx, newIndex).Err(); err != nil {
			return err
		}
		exists, err := tx.Exists(ctx, newIndex).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return model.ErrPlayerExists
		}
		oldIndex := playerNameIndexKey(player.Group, player.Name)
		player.Name = name
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, oldIndex)
			pipe.Set(ctx, newIndex, int64(player.ID), 0)
			pipe.Set(ctx, playerKey(player.ID), mustJSON(player), 0)
			return nil
		})
		return err
	}, playerKey(id))
}

// Session operations

func (s *Storage) loadOpenSession(ctx context.Context, c reader, playerID model.PlayerID) (*model.Session, error) {
	openID, err := c.Get(ctx, openSessionKey(playerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}
	data, err := c.HGet(ctx, sessionsKey(playerID), openID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}
	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Storage) ApplyTransition(ctx context.Context, t *model.Transition) (*model.Player, error) {
	var result *model.Player
	err := s.watch(ctx, func(tx *redis.Tx) error {
		player, created, err := s.loadOrAllocate(ctx, tx, t.Group, t.Name)
		if err != nil {
			return err
		}

		var open *model.Session
		if !created {
			open, err = s.loadOpenSession(ctx, tx, player.ID)
			if err != nil && !errors.Is(err, model.ErrSessionNotFound) {
				return err
			}
		}

		var opened *model.Session
		if t.OpenAt != nil && (open == nil || t.CloseOpenAt != nil) {
			next, err := tx.Incr(ctx, sequenceKey("session")).Result()
			if err != nil {
				return err
			}
			opened = &model.Session{ID: model.SessionID(next), PlayerID: player.ID, Start: *t.OpenAt}
		}

		player.Online = t.Online
		at := t.At
		player.LastSeen = &at
		if t.Teammate != nil {
			player.Teammate = *t.Teammate
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, playerKey(player.ID), mustJSON(player), 0)
			if created {
				indexNewPlayer(ctx, pipe, player)
			}
			if t.CloseOpenAt != nil && open != nil {
				end := *t.CloseOpenAt
				open.End = &end
				pipe.HSet(ctx, sessionsKey(player.ID), open.ID.String(), mustJSON(open))
				pipe.Del(ctx, openSessionKey(player.ID))
				open = nil
			}
			if opened != nil && open == nil {
				pipe.HSet(ctx, sessionsKey(player.ID), opened.ID.String(), mustJSON(opened))
				pipe.Set(ctx, openSessionKey(player.ID), int64(opened.ID), 0)
			}
			return nil
		})
		result = player
		return err
	}, playerNameIndexKey(t.Group, t.Name))
	return result, err
}

func (s *Storage) GetOpenSession(ctx context.Context, playerID model.PlayerID) (*model.Session, error) {
	return s.loadOpenSession(ctx, s.client, playerID)
}

func (s *Storage) ListSessions(ctx context.Context, playerID model.PlayerID) ([]model.Session, error) {
	exists, err := s.client.Exists(ctx, playerKey(playerID)).Result()
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, model.ErrPlayerNotFound
	}
	values, err := s.client.HVals(ctx, sessionsKey(playerID)).Result()
	if err != nil {
		return nil, err
	}
	sessions, err := decodeSessions(values)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].Start.Equal(sessions[j].Start) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].Start.Before(sessions[j].Start)
	})
	return sessions, nil
}

func decodeSessions(values []string) ([]model.Session, error) {
	sessions := make([]model.Session, 0, len(values))
	for _, v := range values {
		var session model.Session
		if err := json.Unmarshal([]byte(v), &session); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Identity operations

func (s *Storage) MergePlayers(ctx context.Context, m *model.Merge) (*model.MergeReport, error) {
	var report *model.MergeReport
	err := s.watch(ctx, func(tx *redis.Tx) error {
		source, err := getJSON[model.Player](ctx, tx, playerKey(m.Source.ID), model.ErrPlayerNotFound)
		if err != nil {
			return err
		}
		target, err := getJSON[model.Player](ctx, tx, playerKey(m.Target.ID), model.ErrPlayerNotFound)
		if err != nil {
			return err
		}
		if source.Group != m.Group || target.Group != m.Group {
			return model.ErrPlayerNotFound
		}

		values, err := tx.HVals(ctx, sessionsKey(source.ID)).Result()
		if err != nil {
			return err
		}
		sessions, err := decodeSessions(values)
		if err != nil {
			return err
		}
		targetOpen, err := tx.Exists(ctx, openSessionKey(target.ID)).Result()
		if err != nil {
			return err
		}
		trades, err := tx.HGetAll(ctx, tradesKey(m.Group)).Result()
		if err != nil {
			return err
		}

		report = &model.MergeReport{Source: source.ID, Target: target.ID}
		target.Online = m.Target.Online
		target.LastSeen = m.Target.LastSeen
		target.Teammate = m.Target.Teammate

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, session := range sessions {
				if session.End == nil && m.CloseSourceSessionAt != nil {
					end := *m.CloseSourceSessionAt
					session.End = &end
				}
				session.PlayerID = target.ID
				pipe.HSet(ctx, sessionsKey(target.ID), session.ID.String(), mustJSON(session))
				if session.End == nil && targetOpen == 0 {
					pipe.Set(ctx, openSessionKey(target.ID), int64(session.ID), 0)
				}
				report.SessionsMoved++
			}

			for id, raw := range trades {
				var trade model.Trade
				if err := json.Unmarshal([]byte(raw), &trade); err != nil {
					return err
				}
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
					pipe.HSet(ctx, tradesKey(m.Group), id, mustJSON(trade))
					report.RecordsRewritten++
				}
			}

			pipe.Set(ctx, playerKey(target.ID), mustJSON(target), 0)
			pipe.Del(ctx, playerKey(source.ID), sessionsKey(source.ID), openSessionKey(source.ID),
				playerNameIndexKey(source.Group, source.Name))
			pipe.SRem(ctx, groupPlayersKey(m.Group), int64(source.ID))
			return nil
		})
		return err
	}, playerKey(m.Source.ID), playerKey(m.Target.ID), sessionsKey(m.Source.ID),
		openSessionKey(m.Source.ID), openSessionKey(m.Target.ID), tradesKey(m.Group))
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Group operations

func (s *Storage) GetGroupConfig(ctx context.Context, group model.GroupID) (*model.GroupConfig, error) {
	return getJSON[model.GroupConfig](ctx, s.client, groupConfigKey(group), model.ErrGroupNotFound)
}

func (s *Storage) SaveGroupConfig(ctx context.Context, cfg *model.GroupConfig) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, groupConfigKey(cfg.Group), mustJSON(cfg), 0)
	pipe.SAdd(ctx, groupsIndexKey(), int64(cfg.Group))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) ListGroupConfigs(ctx context.Context) ([]*model.GroupConfig, error) {
	ids, err := s.client.SMembers(ctx, groupsIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	configs := make([]*model.GroupConfig, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		cfg, err := s.GetGroupConfig(ctx, model.GroupID(id))
		if errors.Is(err, model.ErrGroupNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Group < configs[j].Group })
	return configs, nil
}

func (s *Storage) ResetGroup(ctx context.Context, group model.GroupID) (*model.ResetReport, error) {
	var report *model.ResetReport
	err := s.watch(ctx, func(tx *redis.Tx) error {
		ids, err := tx.SMembers(ctx, groupPlayersKey(group)).Result()
		if err != nil {
			return err
		}
		report = &model.ResetReport{}
		var players []*model.Player
		for _, raw := range ids {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return err
			}
			player, err := getJSON[model.Player](ctx, tx, playerKey(model.PlayerID(id)), model.ErrPlayerNotFound)
			if errors.Is(err, model.ErrPlayerNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			count, err := tx.HLen(ctx, sessionsKey(player.ID)).Result()
			if err != nil {
				return err
			}
			report.Sessions += int(count)
			players = append(players, player)
		}
		report.Players = len(players)
		trades, err := tx.HLen(ctx, tradesKey(group)).Result()
		if err != nil {
			return err
		}
		report.Trades = int(trades)
		listings, err := tx.ZCard(ctx, listingsKey(group)).Result()
		if err != nil {
			return err
		}
		report.Listings = int(listings)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, p := range players {
				pipe.Del(ctx, playerKey(p.ID), sessionsKey(p.ID), openSessionKey(p.ID),
					playerNameIndexKey(group, p.Name))
			}
			pipe.Del(ctx, groupPlayersKey(group), tradesKey(group), listingsKey(group))
			return nil
		})
		return err
	}, groupPlayersKey(group), tradesKey(group), listingsKey(group))
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Economy operations

func (s *Storage) SaveTrade(ctx context.Context, trade *model.Trade) error {
	id, err := s.client.Incr(ctx, sequenceKey("trade")).Result()
	if err != nil {
		return err
	}
	trade.ID = id
	return s.client.HSet(ctx, tradesKey(trade.Group), strconv.FormatInt(id, 10), mustJSON(trade)).Err()
}

func (s *Storage) ListTrades(ctx context.Context, group model.GroupID) ([]*model.Trade, error) {
	values, err := s.client.HVals(ctx, tradesKey(group)).Result()
	if err != nil {
		return nil, err
	}
	trades := make([]*model.Trade, 0, len(values))
	for _, v := range values {
		var trade model.Trade
		if err := json.Unmarshal([]byte(v), &trade); err != nil {
			return nil, err
		}
		trades = append(trades, &trade)
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].ID < trades[j].ID })
	return trades, nil
}

func (s *Storage) SaveListings(ctx context.Context, listings []*model.MarketListing) error {
	if len(listings) == 0 {
		return nil
	}
	last, err := s.client.IncrBy(ctx, sequenceKey("listing"), int64(len(listings))).Result()
	if err != nil {
		return err
	}
	first := last - int64(len(listings)) + 1
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, l := range listings {
			l.ID = first + int64(i)
			pipe.ZAdd(ctx, listingsKey(l.Group), redis.Z{
				Score:  float64(l.At.UnixMilli()),
				Member: mustJSON(l),
			})
		}
		return nil
	})
	return err
}

func (s *Storage) SearchListings(ctx context.Context, group model.GroupID, term string, since time.Time) ([]*model.MarketListing, error) {
	values, err := s.client.ZRangeByScore(ctx, listingsKey(group), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(term)
	var out []*model.MarketListing
	for _, v := range values {
		var l model.MarketListing
		if err := json.Unmarshal([]byte(v), &l); err != nil {
			return nil, err
		}
		if !l.At.After(since) || !strings.Contains(strings.ToLower(l.Item), term) {
			continue
		}
		out = append(out, &l)
	}
	storage.SortListings(out)
	return out, nil
}

// Device operations

func (s *Storage) SaveDevice(ctx context.Context, device *model.Device) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, deviceKey(device.Group, device.EntityID), mustJSON(device), 0)
	pipe.SAdd(ctx, groupDevicesKey(device.Group), device.EntityID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) GetDevice(ctx context.Context, group model.GroupID, entityID int64) (*model.Device, error) {
	return getJSON[model.Device](ctx, s.client, deviceKey(group, entityID), model.ErrDeviceNotFound)
}

func (s *Storage) ListDevices(ctx context.Context, group model.GroupID) ([]*model.Device, error) {
	ids, err := s.client.SMembers(ctx, groupDevicesKey(group)).Result()
	if err != nil {
		return nil, err
	}
	devices := make([]*model.Device, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		device, err := s.GetDevice(ctx, group, id)
		if errors.Is(err, model.ErrDeviceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].EntityID < devices[j].EntityID })
	return devices, nil
}
