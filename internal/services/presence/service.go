// Package presence owns the player and session records of every group.
// All online/offline changes flow through RecordTransition.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/clock"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/events"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/identity"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/metrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage"
)

// Config holds the zombie session heuristic settings
type Config struct {
	// ZombieThreshold is the largest gap between two online signals that
	// still counts as a reconnect of the same session
	ZombieThreshold time.Duration `koanf:"zombie_threshold"`
	// ZombieGrace is added to the last-seen time when closing an abandoned session
	ZombieGrace time.Duration `koanf:"zombie_grace"`
}

// DefaultConfig returns the default zombie settings
func DefaultConfig() Config {
	return Config{
		ZombieThreshold: 10 * time.Minute,
		ZombieGrace:     5 * time.Minute,
	}
}

// Service is the single write path for presence changes
type Service struct {
	storage   storage.Storage
	clock     clock.Clock
	publisher events.Publisher
	logger    *slog.Logger
	cfg       Config
	locks     *keyedMutex
}

// New creates a new presence service
func New(storage storage.Storage, clock clock.Clock, publisher events.Publisher, logger *slog.Logger, cfg Config) *Service {
	defaults := DefaultConfig()
	if cfg.ZombieThreshold <= 0 {
		cfg.ZombieThreshold = defaults.ZombieThreshold
	}
	if cfg.ZombieGrace <= 0 {
		cfg.ZombieGrace = defaults.ZombieGrace
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		storage:   storage,
		clock:     clock,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "presence")),
		cfg:       cfg,
		locks:     newKeyedMutex(),
	}
}

// RecordTransition applies one online/offline signal for a raw display name.
// A nil teammate leaves the stored flag unchanged.
func (s *Service) RecordTransition(ctx context.Context, group model.GroupID, rawName string, online bool, at time.Time, teammate *bool) (*model.TransitionResult, error) {
	return s.record(ctx, group, rawName, online, at, teammate, false)
}

// RecordEvent applies a live feed event. Events older than the player's
// last recorded transition are rejected with model.ErrStaleEvent.
func (s *Service) RecordEvent(ctx context.Context, ev model.PresenceEvent) (*model.TransitionResult, error) {
	return s.record(ctx, ev.Group, ev.Name, ev.Online, ev.At, ev.Teammate, true)
}

func (s *Service) record(ctx context.Context, group model.GroupID, rawName string, online bool, at time.Time, teammate *bool, rejectStale bool) (*model.TransitionResult, error) {
	key := identity.Normalize(rawName)
	if key == "" {
		return nil, fmt.Errorf("%q: %w", rawName, model.ErrInvalidName)
	}
	if at.IsZero() {
		return nil, model.ErrInvalidTimestamp
	}

	lk := lockKey{group, key}
	s.locks.lock(lk)
	defer s.locks.unlock(lk)

	return s.recordLocked(ctx, group, key, online, at.UTC(), teammate, rejectStale)
}

// recordLocked computes and applies one transition. The caller holds the
// lock for (group, key).
func (s *Service) recordLocked(ctx context.Context, group model.GroupID, key string, online bool, at time.Time, teammate *bool, rejectStale bool) (*model.TransitionResult, error) {
	existing, err := s.storage.GetPlayerByName(ctx, group, key)
	if err != nil && !errors.Is(err, model.ErrPlayerNotFound) {
		return nil, err
	}
	if err != nil {
		existing = nil
	}

	if rejectStale && existing != nil && existing.LastSeen != nil && at.Before(*existing.LastSeen) {
		return nil, model.ErrStaleEvent
	}

	hasOpen := false
	if existing != nil {
		_, err := s.storage.GetOpenSession(ctx, existing.ID)
		switch {
		case err == nil:
			hasOpen = true
		case !errors.Is(err, model.ErrSessionNotFound):
			return nil, err
		}
	}

	t := &model.Transition{Group: group, Name: key, Online: online, At: at, Teammate: teammate}
	result := &model.TransitionResult{}

	if online {
		if existing != nil && existing.Online && existing.LastSeen != nil {
			gap := at.Sub(*existing.LastSeen)
			if gap > s.cfg.ZombieThreshold {
				if hasOpen {
					end := existing.LastSeen.Add(s.cfg.ZombieGrace)
					t.CloseOpenAt = &end
					result.ZombieRepaired = true
					hasOpen = false
				}
			} else if hasOpen {
				result.Continued = true
			}
		}
		if !hasOpen {
			start := at
			t.OpenAt = &start
			result.Opened = true
		}
	} else if hasOpen {
		end := at
		t.CloseOpenAt = &end
		result.Closed = true
	}

	player, err := s.storage.ApplyTransition(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("applying transition for %q: %w", key, err)
	}
	result.Player = player

	s.report(group, key, at, existing, result)
	return result, nil
}

func (s *Service) report(group model.GroupID, key string, at time.Time, before *model.Player, result *model.TransitionResult) {
	if result.ZombieRepaired {
		metrics.TransitionsTotal.WithLabelValues("zombie_repaired").Inc()
		s.logger.Info("zombie session repaired",
			slog.String("group", group.String()),
			slog.String("player", key),
			slog.Time("last_seen", *before.LastSeen),
			slog.Duration("gap", at.Sub(*before.LastSeen)),
		)
		s.publisher.Publish(events.New(model.EventZombieRepaired, group, key, result.Player, at))
	}

	switch {
	case result.Opened:
		metrics.TransitionsTotal.WithLabelValues("opened").Inc()
		s.publisher.Publish(events.New(model.EventPlayerOnline, group, key, result.Player, at))
	case result.Closed:
		metrics.TransitionsTotal.WithLabelValues("closed").Inc()
		s.publisher.Publish(events.New(model.EventPlayerOffline, group, key, result.Player, at))
	case result.Continued:
		metrics.TransitionsTotal.WithLabelValues("continued").Inc()
	default:
		metrics.TransitionsTotal.WithLabelValues("noop").Inc()
	}
}

// PreRegister ensures a player row exists without touching its online state
func (s *Service) PreRegister(ctx context.Context, group model.GroupID, rawName string, teammate *bool) (*model.Player, error) {
	key := identity.Normalize(rawName)
	if key == "" {
		return nil, fmt.Errorf("%q: %w", rawName, model.ErrInvalidName)
	}

	lk := lockKey{group, key}
	s.locks.lock(lk)
	defer s.locks.unlock(lk)

	return s.storage.EnsurePlayer(ctx, group, key, teammate)
}

// QuerySessions returns the player's sessions ordered by start. When since is
// set, earlier starts are clamped up to it and sessions that ended before it
// are dropped.
func (s *Service) QuerySessions(ctx context.Context, playerID model.PlayerID, since *time.Time) ([]model.Session, error) {
	sessions, err := s.storage.ListSessions(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return model.ClampSessions(sessions, since), nil
}

// BulkReset removes every player, session and trade of the group atomically
func (s *Service) BulkReset(ctx context.Context, group model.GroupID) (*model.ResetReport, error) {
	report, err := s.storage.ResetGroup(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("resetting group %s: %w", group, err)
	}
	s.logger.Info("group reset",
		slog.String("group", group.String()),
		slog.Int("players", report.Players),
		slog.Int("sessions", report.Sessions),
		slog.Int("trades", report.Trades),
	)
	s.publisher.Publish(events.New(model.EventGroupReset, group, "", report, s.clock.Now()))
	return report, nil
}

// GetPlayer returns a player of the group
func (s *Service) GetPlayer(ctx context.Context, group model.GroupID, id model.PlayerID) (*model.Player, error) {
	player, err := s.storage.GetPlayer(ctx, id)
	if err != nil {
		return nil, err
	}
	if player.Group != group {
		return nil, model.ErrPlayerNotFound
	}
	return player, nil
}

// FindPlayer looks a player up by raw display name
func (s *Service) FindPlayer(ctx context.Context, group model.GroupID, rawName string) (*model.Player, error) {
	key := identity.Normalize(rawName)
	if key == "" {
		return nil, fmt.Errorf("%q: %w", rawName, model.ErrInvalidName)
	}
	return s.storage.GetPlayerByName(ctx, group, key)
}

// ListPlayers returns every player of the group sorted by name
func (s *Service) ListPlayers(ctx context.Context, group model.GroupID) ([]*model.Player, error) {
	return s.storage.ListPlayers(ctx, group)
}

// ListOnline returns the players the store believes are online
func (s *Service) ListOnline(ctx context.Context, group model.GroupID) ([]*model.Player, error) {
	players, err := s.storage.ListPlayers(ctx, group)
	if err != nil {
		return nil, err
	}
	online := players[:0]
	for _, p := range players {
		if p.Online {
			online = append(online, p)
		}
	}
	return online, nil
}

// WithPlayerLocks runs fn while holding the transition locks of every named
// identity key in the group. Merges use it so no transition interleaves.
func (s *Service) WithPlayerLocks(group model.GroupID, keys []string, fn func() error) error {
	release := s.locks.lockAll(group, keys)
	defer release()
	return fn()
}
