package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/random"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/metrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

type runningPoller struct {
	target string
	token  suture.ServiceToken
}

// Manager keeps exactly one supervised poller per group with a poll target
type Manager struct {
	sup        *suture.Supervisor
	reconciler *Reconciler
	configs    Configs
	cfg        Config
	random     random.Random
	logger     *slog.Logger

	mu      sync.Mutex
	pollers map[model.GroupID]runningPoller
}

// NewManager creates a manager adding pollers to sup
func NewManager(sup *suture.Supervisor, reconciler *Reconciler, configs Configs, cfg Config, rnd random.Random, logger *slog.Logger) *Manager {
	return &Manager{
		sup:        sup,
		reconciler: reconciler,
		configs:    configs,
		cfg:        cfg.withDefaults(),
		random:     rnd,
		logger:     logger.With(slog.String("component", "poll-manager")),
		pollers:    make(map[model.GroupID]runningPoller),
	}
}

// Sync starts pollers for newly configured groups, restarts those whose
// target changed and stops those whose target was cleared
func (m *Manager) Sync(ctx context.Context) error {
	configs, err := m.configs.ListConfigs(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[model.GroupID]string, len(configs))
	for _, c := range configs {
		if c.PollTarget != "" {
			wanted[c.Group] = c.PollTarget
		}
	}

	for group, running := range m.pollers {
		if target, ok := wanted[group]; ok && target == running.target {
			continue
		}
		if err := m.sup.Remove(running.token); err != nil {
			m.logger.Warn("failed to stop poller", slog.String("group", group.String()), slog.String("error", err.Error()))
		}
		delete(m.pollers, group)
		m.logger.Info("poller stopped", slog.String("group", group.String()))
	}

	for group, target := range wanted {
		if _, ok := m.pollers[group]; ok {
			continue
		}
		poller := NewPoller(group, m.cfg, m.reconciler, m.random, m.logger)
		m.pollers[group] = runningPoller{target: target, token: m.sup.Add(poller)}
		m.logger.Info("poller started", slog.String("group", group.String()), slog.String("target", target))
	}

	metrics.ActivePollers.Set(float64(len(m.pollers)))
	return nil
}

// Groups returns the groups with a running poller
func (m *Manager) Groups() []model.GroupID {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups := make([]model.GroupID, 0, len(m.pollers))
	for g := range m.pollers {
		groups = append(groups, g)
	}
	return groups
}

// Serve re-reads poll targets periodically so changes written by another
// instance sharing the store are picked up
func (m *Manager) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.ResyncInterval)
	defer ticker.Stop()

	for {
		if err := m.Sync(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("poller sync failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) String() string {
	return "poll-manager"
}
