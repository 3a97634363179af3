// Package wipe manages per-group configuration: the wipe epoch that bounds
// analytics and the authoritative poll target.
package wipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/clock"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/events"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage"
)

// Service reads and writes group configuration
type Service struct {
	storage   storage.Storage
	clock     clock.Clock
	publisher events.Publisher
	logger    *slog.Logger
}

// New creates a new wipe service
func New(storage storage.Storage, clock clock.Clock, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		storage:   storage,
		clock:     clock,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "wipe")),
	}
}

// GetConfig returns the group's configuration, or an empty one when the
// group has never been configured
func (s *Service) GetConfig(ctx context.Context, group model.GroupID) (*model.GroupConfig, error) {
	cfg, err := s.storage.GetGroupConfig(ctx, group)
	if errors.Is(err, model.ErrGroupNotFound) {
		return &model.GroupConfig{Group: group}, nil
	}
	return cfg, err
}

// ListConfigs returns every configured group
func (s *Service) ListConfigs(ctx context.Context) ([]*model.GroupConfig, error) {
	return s.storage.ListGroupConfigs(ctx)
}

// SetWipeEpoch marks a server wipe. A zero time means now.
func (s *Service) SetWipeEpoch(ctx context.Context, group model.GroupID, at time.Time) (*model.GroupConfig, error) {
	if at.IsZero() {
		at = s.clock.Now()
	}
	at = at.UTC()

	cfg, err := s.update(ctx, group, func(cfg *model.GroupConfig) {
		cfg.WipeEpoch = &at
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wipe epoch set", slog.String("group", group.String()), slog.Time("epoch", at))
	s.publisher.Publish(events.New(model.EventWipeMarked, group, "", cfg, s.clock.Now()))
	return cfg, nil
}

// GetWipeEpoch returns the group's wipe epoch, nil meaning full history
func (s *Service) GetWipeEpoch(ctx context.Context, group model.GroupID) (*time.Time, error) {
	cfg, err := s.GetConfig(ctx, group)
	if err != nil {
		return nil, err
	}
	return cfg.WipeEpoch, nil
}

// ClearWipeEpoch removes the epoch so analytics use full history again
func (s *Service) ClearWipeEpoch(ctx context.Context, group model.GroupID) error {
	_, err := s.update(ctx, group, func(cfg *model.GroupConfig) {
		cfg.WipeEpoch = nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("wipe epoch cleared", slog.String("group", group.String()))
	return nil
}

// SetPollTarget sets the authoritative server id polled for the group.
// An empty target disables reconciliation for the group.
func (s *Service) SetPollTarget(ctx context.Context, group model.GroupID, target string) (*model.GroupConfig, error) {
	target = strings.TrimSpace(target)
	if target != "" {
		if id, err := strconv.ParseInt(target, 10, 64); err != nil || id <= 0 {
			return nil, fmt.Errorf("poll target %q: %w", target, model.ErrInvalidID)
		}
	}

	cfg, err := s.update(ctx, group, func(cfg *model.GroupConfig) {
		cfg.PollTarget = target
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("poll target set", slog.String("group", group.String()), slog.String("target", target))
	return cfg, nil
}

func (s *Service) update(ctx context.Context, group model.GroupID, mutate func(cfg *model.GroupConfig)) (*model.GroupConfig, error) {
	cfg, err := s.GetConfig(ctx, group)
	if err != nil {
		return nil, err
	}
	mutate(cfg)
	cfg.UpdatedAt = s.clock.Now()
	if err := s.storage.SaveGroupConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("saving group config: %w", err)
	}
	return cfg, nil
}
