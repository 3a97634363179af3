// Package merge collapses duplicate identities within a group.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/clock"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/events"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/identity"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage"
)

// Locker serializes merges against presence transitions of the same players
type Locker interface {
	WithPlayerLocks(group model.GroupID, keys []string, fn func() error) error
}

// Service merges and repairs identities
type Service struct {
	storage   storage.Storage
	locker    Locker
	clock     clock.Clock
	publisher events.Publisher
	logger    *slog.Logger
}

// New creates a new merge service
func New(storage storage.Storage, locker Locker, clock clock.Clock, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		storage:   storage,
		locker:    locker,
		clock:     clock,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "merge")),
	}
}

// MergeIdentities folds source into target: sessions move to target, trade
// records naming source are rewritten to target, and source is deleted.
// The whole merge is applied atomically or not at all.
func (s *Service) MergeIdentities(ctx context.Context, group model.GroupID, source, target model.PlayerID) (*model.MergeReport, error) {
	if source == target {
		return nil, model.ErrSameIdentity
	}
	src, err := s.groupPlayer(ctx, group, source)
	if err != nil {
		return nil, fmt.Errorf("merge source %s: %w", source, err)
	}
	dst, err := s.groupPlayer(ctx, group, target)
	if err != nil {
		return nil, fmt.Errorf("merge target %s: %w", target, err)
	}

	var report *model.MergeReport
	err = s.locker.WithPlayerLocks(group, []string{src.Name, dst.Name}, func() error {
		// reload under the locks so the merge sees the latest presence state
		if src, err = s.groupPlayer(ctx, group, source); err != nil {
			return err
		}
		if dst, err = s.groupPlayer(ctx, group, target); err != nil {
			return err
		}

		m, err := s.plan(ctx, group, src, dst)
		if err != nil {
			return err
		}
		report, err = s.storage.MergePlayers(ctx, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("players merged",
		slog.String("group", group.String()),
		slog.String("source", src.Name),
		slog.String("target", dst.Name),
		slog.Int("sessions_moved", report.SessionsMoved),
		slog.Int("records_rewritten", report.RecordsRewritten),
	)
	s.publisher.Publish(events.New(model.EventPlayersMerged, group, dst.Name, report, s.clock.Now()))
	return report, nil
}

// plan computes the target's post-merge state
func (s *Service) plan(ctx context.Context, group model.GroupID, src, dst *model.Player) (*model.Merge, error) {
	srcOpen, err := s.hasOpenSession(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	dstOpen, err := s.hasOpenSession(ctx, dst.ID)
	if err != nil {
		return nil, err
	}

	m := &model.Merge{Group: group, Source: *src, Target: *dst}
	if srcOpen && dstOpen {
		now := s.clock.Now()
		m.CloseSourceSessionAt = &now
	}
	m.Target.Online = src.Online || dst.Online
	if src.LastSeen != nil && (dst.LastSeen == nil || src.LastSeen.After(*dst.LastSeen)) {
		last := *src.LastSeen
		m.Target.LastSeen = &last
	}
	m.Target.Teammate = src.Teammate || dst.Teammate
	return m, nil
}

func (s *Service) hasOpenSession(ctx context.Context, id model.PlayerID) (bool, error) {
	_, err := s.storage.GetOpenSession(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, model.ErrSessionNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *Service) groupPlayer(ctx context.Context, group model.GroupID, id model.PlayerID) (*model.Player, error) {
	p, err := s.storage.GetPlayer(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Group != group {
		return nil, model.ErrPlayerNotFound
	}
	return p, nil
}

// FindLegacyDuplicates lists players whose stored key still carries the
// legacy "player " prefix, paired with the player the stripped name
// belongs to when one exists
func (s *Service) FindLegacyDuplicates(ctx context.Context, group model.GroupID) ([]model.LegacyDuplicate, error) {
	players, err := s.storage.ListPlayers(ctx, group)
	if err != nil {
		return nil, err
	}

	dups := []model.LegacyDuplicate{}
	for _, p := range players {
		candidate, ok := identity.StripLegacyPrefix(p.Name)
		if !ok || candidate == "" {
			continue
		}
		dup := model.LegacyDuplicate{Source: *p, CandidateName: candidate}
		target, err := s.storage.GetPlayerByName(ctx, group, candidate)
		switch {
		case err == nil:
			dup.Target = target
		case !errors.Is(err, model.ErrPlayerNotFound):
			return nil, err
		}
		dups = append(dups, dup)
	}
	return dups, nil
}

// Rename records an in-place repair of a legacy key
type Rename struct {
	PlayerID model.PlayerID `json:"player_id"`
	From     string         `json:"from"`
	To       string         `json:"to"`
}

// DedupeReport summarizes one deduplication pass
type DedupeReport struct {
	Merged  []model.MergeReport `json:"merged"`
	Renamed []Rename            `json:"renamed"`
}

// Deduplicate repairs every legacy duplicate: merged into its target when
// one exists, otherwise renamed to the stripped name
func (s *Service) Deduplicate(ctx context.Context, group model.GroupID) (*DedupeReport, error) {
	dups, err := s.FindLegacyDuplicates(ctx, group)
	if err != nil {
		return nil, err
	}

	report := &DedupeReport{Merged: []model.MergeReport{}, Renamed: []Rename{}}
	for _, dup := range dups {
		if dup.Target != nil {
			merged, err := s.MergeIdentities(ctx, group, dup.Source.ID, dup.Target.ID)
			if err != nil {
				return report, err
			}
			report.Merged = append(report.Merged, *merged)
			continue
		}

		err := s.locker.WithPlayerLocks(group, []string{dup.Source.Name, dup.CandidateName}, func() error {
			return s.storage.RenamePlayer(ctx, dup.Source.ID, dup.CandidateName)
		})
		if errors.Is(err, model.ErrPlayerExists) {
			// the stripped name appeared since the scan; merge instead
			target, lookupErr := s.storage.GetPlayerByName(ctx, group, dup.CandidateName)
			if lookupErr != nil {
				return report, lookupErr
			}
			merged, mergeErr := s.MergeIdentities(ctx, group, dup.Source.ID, target.ID)
			if mergeErr != nil {
				return report, mergeErr
			}
			report.Merged = append(report.Merged, *merged)
			continue
		}
		if err != nil {
			return report, err
		}
		report.Renamed = append(report.Renamed, Rename{PlayerID: dup.Source.ID, From: dup.Source.Name, To: dup.CandidateName})
		s.logger.Info("legacy identity renamed",
			slog.String("group", group.String()),
			slog.String("from", dup.Source.Name),
			slog.String("to", dup.CandidateName),
		)
	}
	return report, nil
}
