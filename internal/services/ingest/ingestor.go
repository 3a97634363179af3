// Package ingest applies live feed events to the presence store.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/metrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

// PresenceRecorder is the part of the presence service the ingestor drives
type PresenceRecorder interface {
	RecordEvent(ctx context.Context, ev model.PresenceEvent) (*model.TransitionResult, error)
	FindPlayer(ctx context.Context, group model.GroupID, rawName string) (*model.Player, error)
	PreRegister(ctx context.Context, group model.GroupID, rawName string, teammate *bool) (*model.Player, error)
}

// EntityHandler relays smart device changes
type EntityHandler interface {
	HandleEntityEvent(ctx context.Context, ev model.EntityEvent) (*model.DeviceTriggeredPayload, error)
}

// MarketRecorder stores vending machine broadcasts
type MarketRecorder interface {
	RecordListings(ctx context.Context, group model.GroupID, shop string, at time.Time, listings []*model.MarketListing) ([]*model.MarketListing, error)
}

// Result labels for the ingest counter
const (
	resultApplied = "applied"
	resultStale   = "stale"
	resultInvalid = "invalid"
	resultUnknown = "unknown"
	resultError   = "error"
)

// Ingestor translates feed events into store writes. Callers deliver the
// events of one group sequentially.
type Ingestor struct {
	presence PresenceRecorder
	devices  EntityHandler
	market   MarketRecorder
	logger   *slog.Logger
}

// New creates a new ingestor. devices and market may be nil when the feed
// carries no such events.
func New(presence PresenceRecorder, devices EntityHandler, market MarketRecorder, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		presence: presence,
		devices:  devices,
		market:   market,
		logger:   logger.With(slog.String("component", "ingest")),
	}
}

// HandlePresence applies one join/leave event. Stale and malformed events
// are dropped and counted; only store failures are returned.
func (i *Ingestor) HandlePresence(ctx context.Context, ev model.PresenceEvent) error {
	_, err := i.presence.RecordEvent(ctx, ev)
	switch {
	case err == nil:
		metrics.IngestEventsTotal.WithLabelValues("presence", resultApplied).Inc()
		return nil
	case errors.Is(err, model.ErrStaleEvent):
		metrics.IngestEventsTotal.WithLabelValues("presence", resultStale).Inc()
		i.logger.Debug("stale presence event dropped",
			slog.String("group", ev.Group.String()),
			slog.String("name", ev.Name),
			slog.Time("at", ev.At),
		)
		return nil
	case model.IsValidation(err):
		metrics.IngestEventsTotal.WithLabelValues("presence", resultInvalid).Inc()
		i.logger.Warn("invalid presence event dropped",
			slog.String("group", ev.Group.String()),
			slog.String("name", ev.Name),
			slog.String("error", err.Error()),
		)
		return nil
	default:
		metrics.IngestEventsTotal.WithLabelValues("presence", resultError).Inc()
		return err
	}
}

// HandleTeam records every member of a team snapshot as a teammate. Online
// members get an online signal; offline members only close a session the
// store still believes open.
func (i *Ingestor) HandleTeam(ctx context.Context, snap model.TeamSnapshot) error {
	teammate := true
	for _, m := range snap.Members {
		if !m.Online {
			p, err := i.presence.FindPlayer(ctx, snap.Group, m.Name)
			if err == nil && !p.Online {
				continue
			}
			if errors.Is(err, model.ErrPlayerNotFound) {
				if _, err := i.presence.PreRegister(ctx, snap.Group, m.Name, &teammate); err != nil && !model.IsValidation(err) {
					return err
				}
				continue
			}
		}
		ev := model.PresenceEvent{Group: snap.Group, Name: m.Name, Online: m.Online, At: snap.At, Teammate: &teammate}
		if err := i.HandlePresence(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// HandleEntity relays a device change. Events for unpaired entities are dropped.
func (i *Ingestor) HandleEntity(ctx context.Context, ev model.EntityEvent) error {
	if i.devices == nil {
		metrics.IngestEventsTotal.WithLabelValues("entity", resultUnknown).Inc()
		return nil
	}
	_, err := i.devices.HandleEntityEvent(ctx, ev)
	switch {
	case err == nil:
		metrics.IngestEventsTotal.WithLabelValues("entity", resultApplied).Inc()
		return nil
	case errors.Is(err, model.ErrDeviceNotFound):
		metrics.IngestEventsTotal.WithLabelValues("entity", resultUnknown).Inc()
		return nil
	case model.IsValidation(err):
		metrics.IngestEventsTotal.WithLabelValues("entity", resultInvalid).Inc()
		return nil
	default:
		metrics.IngestEventsTotal.WithLabelValues("entity", resultError).Inc()
		return err
	}
}

// HandleVending stores a shop broadcast. Malformed broadcasts are dropped.
func (i *Ingestor) HandleVending(ctx context.Context, b model.VendingBroadcast) error {
	if i.market == nil {
		metrics.IngestEventsTotal.WithLabelValues("vending", resultUnknown).Inc()
		return nil
	}
	listings := make([]*model.MarketListing, len(b.Listings))
	for n := range b.Listings {
		listings[n] = &b.Listings[n]
	}
	_, err := i.market.RecordListings(ctx, b.Group, b.Shop, b.At, listings)
	switch {
	case err == nil:
		metrics.IngestEventsTotal.WithLabelValues("vending", resultApplied).Inc()
		return nil
	case model.IsValidation(err):
		metrics.IngestEventsTotal.WithLabelValues("vending", resultInvalid).Inc()
		i.logger.Warn("invalid vending broadcast dropped",
			slog.String("group", b.Group.String()),
			slog.String("shop", b.Shop),
			slog.String("error", err.Error()),
		)
		return nil
	default:
		metrics.IngestEventsTotal.WithLabelValues("vending", resultError).Inc()
		return err
	}
}
