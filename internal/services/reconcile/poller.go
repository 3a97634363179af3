package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/random"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

// Config holds poller scheduling settings
type Config struct {
	Interval time.Duration `koanf:"interval"`
	// CycleTimeout bounds one fetch plus corrections
	CycleTimeout time.Duration `koanf:"cycle_timeout"`
	// Jitter spreads the first tick of each group over [0, Jitter)
	Jitter time.Duration `koanf:"jitter"`
	// ResyncInterval is how often the manager re-reads poll targets
	ResyncInterval time.Duration `koanf:"resync_interval"`
}

// DefaultConfig returns the default poll schedule
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Minute,
		CycleTimeout:   time.Minute,
		Jitter:         30 * time.Second,
		ResyncInterval: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = d.CycleTimeout
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.ResyncInterval <= 0 {
		c.ResyncInterval = d.ResyncInterval
	}
	return c
}

// Poller ticks reconciliation for one group. Each group has its own poller
// so a slow fetch never delays another group.
type Poller struct {
	group      model.GroupID
	cfg        Config
	reconciler *Reconciler
	random     random.Random
	logger     *slog.Logger
}

// NewPoller creates a poller for one group
func NewPoller(group model.GroupID, cfg Config, reconciler *Reconciler, rnd random.Random, logger *slog.Logger) *Poller {
	return &Poller{
		group:      group,
		cfg:        cfg.withDefaults(),
		reconciler: reconciler,
		random:     rnd,
		logger:     logger.With(slog.String("component", "poller"), slog.String("group", group.String())),
	}
}

// Serve runs cycles until ctx is cancelled. Cycle failures are logged and
// retried on the next tick.
func (p *Poller) Serve(ctx context.Context) error {
	if wait := p.random.Duration(p.cfg.Jitter); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		p.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) String() string {
	return fmt.Sprintf("poller-%s", p.group)
}

func (p *Poller) tick(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, p.cfg.CycleTimeout)
	defer cancel()

	_, err := p.reconciler.ReconcileGroup(cycleCtx, p.group)
	switch {
	case err == nil:
	case ctx.Err() != nil:
	case errors.Is(err, model.ErrFetchFailed):
		p.logger.Warn("authoritative fetch failed, skipping cycle", slog.String("error", err.Error()))
	case errors.Is(err, model.ErrNoPollTarget):
		p.logger.Debug("poll target removed")
	default:
		p.logger.Error("reconciliation cycle failed", slog.String("error", err.Error()))
	}
}
