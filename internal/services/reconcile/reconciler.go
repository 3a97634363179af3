// Package reconcile corrects drift between the presence store and the
// authoritative server population.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/clock"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/events"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/identity"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/metrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

// Fetcher returns the raw names online on a server. An error means no data
// this cycle; a nil error with an empty slice means the server is empty.
type Fetcher interface {
	FetchOnlineNames(ctx context.Context, serverID string) ([]string, error)
}

// Presence is the part of the presence service reconciliation writes through
type Presence interface {
	ListPlayers(ctx context.Context, group model.GroupID) ([]*model.Player, error)
	RecordTransition(ctx context.Context, group model.GroupID, rawName string, online bool, at time.Time, teammate *bool) (*model.TransitionResult, error)
}

// Configs resolves a group's poll target
type Configs interface {
	GetConfig(ctx context.Context, group model.GroupID) (*model.GroupConfig, error)
	ListConfigs(ctx context.Context) ([]*model.GroupConfig, error)
}

// CycleReport lists the corrections made by one reconciliation cycle
type CycleReport struct {
	Group          model.GroupID `json:"group"`
	At             time.Time     `json:"at"`
	Authoritative  int           `json:"authoritative"`
	MarkedOffline  []string      `json:"marked_offline"`
	MarkedOnline   []string      `json:"marked_online"`
	IgnoredUnknown []string      `json:"ignored_unknown"`
}

// Corrections returns the number of store writes the cycle made
func (r *CycleReport) Corrections() int {
	return len(r.MarkedOffline) + len(r.MarkedOnline)
}

// Reconciler runs single reconciliation cycles
type Reconciler struct {
	presence  Presence
	configs   Configs
	fetcher   Fetcher
	clock     clock.Clock
	publisher events.Publisher
	logger    *slog.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(presence Presence, configs Configs, fetcher Fetcher, clock clock.Clock, publisher events.Publisher, logger *slog.Logger) *Reconciler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Reconciler{
		presence:  presence,
		configs:   configs,
		fetcher:   fetcher,
		clock:     clock,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "reconcile")),
	}
}

// ReconcileGroup fetches the group's authoritative online set and corrects
// the store. A failed fetch returns an error wrapping model.ErrFetchFailed
// and changes nothing.
func (r *Reconciler) ReconcileGroup(ctx context.Context, group model.GroupID) (*CycleReport, error) {
	started := time.Now()

	cfg, err := r.configs.GetConfig(ctx, group)
	if err != nil {
		return nil, err
	}
	if cfg.PollTarget == "" {
		return nil, model.ErrNoPollTarget
	}

	names, err := r.fetcher.FetchOnlineNames(ctx, cfg.PollTarget)
	if err != nil {
		metrics.RecordCycle("fetch_failed", time.Since(started), 0, 0, 0)
		return nil, fmt.Errorf("reconciling group %s: %w", group, asFetchError(err))
	}

	authoritative := mapset.NewSet[string]()
	for _, name := range names {
		if key := identity.Normalize(name); key != "" {
			authoritative.Add(key)
		}
	}

	players, err := r.presence.ListPlayers(ctx, group)
	if err != nil {
		metrics.RecordCycle("error", time.Since(started), 0, 0, 0)
		return nil, err
	}
	known := mapset.NewSet[string]()
	believedOnline := mapset.NewSet[string]()
	for _, p := range players {
		known.Add(p.Name)
		if p.Online {
			believedOnline.Add(p.Name)
		}
	}

	now := r.clock.Now()
	report := &CycleReport{
		Group:          group,
		At:             now,
		Authoritative:  authoritative.Cardinality(),
		MarkedOffline:  sorted(believedOnline.Difference(authoritative)),
		MarkedOnline:   sorted(authoritative.Intersect(known).Difference(believedOnline)),
		IgnoredUnknown: sorted(authoritative.Difference(known)),
	}

	for _, name := range report.MarkedOffline {
		if _, err := r.presence.RecordTransition(ctx, group, name, false, now, nil); err != nil {
			metrics.RecordCycle("error", time.Since(started), 0, 0, 0)
			return nil, fmt.Errorf("marking %q offline: %w", name, err)
		}
	}
	for _, name := range report.MarkedOnline {
		if _, err := r.presence.RecordTransition(ctx, group, name, true, now, nil); err != nil {
			metrics.RecordCycle("error", time.Since(started), 0, 0, 0)
			return nil, fmt.Errorf("marking %q online: %w", name, err)
		}
	}

	metrics.RecordCycle("ok", time.Since(started), len(report.MarkedOffline), len(report.MarkedOnline), len(report.IgnoredUnknown))
	if report.Corrections() > 0 || len(report.IgnoredUnknown) > 0 {
		r.logger.Info("reconciliation corrected drift",
			slog.String("group", group.String()),
			slog.Int("marked_offline", len(report.MarkedOffline)),
			slog.Int("marked_online", len(report.MarkedOnline)),
			slog.Int("ignored_unknown", len(report.IgnoredUnknown)),
		)
	}
	if report.Corrections() > 0 {
		r.publisher.Publish(events.New(model.EventReconciled, group, "", report, now))
	}
	return report, nil
}

// asFetchError makes every transport failure match model.ErrFetchFailed
func asFetchError(err error) error {
	if model.IsValidation(err) || errors.Is(err, model.ErrFetchFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrFetchFailed, err)
}

func sorted(s mapset.Set[string]) []string {
	out := s.ToSlice()
	sort.Strings(out)
	return out
}
