// Package devices tracks paired smart devices and relays their state changes.
package devices

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/clock"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/events"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage"
)

// Service handles device registration and entity events
type Service struct {
	storage   storage.Storage
	clock     clock.Clock
	publisher events.Publisher
	logger    *slog.Logger
}

// New creates a new device service
func New(storage storage.Storage, clock clock.Clock, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		storage:   storage,
		clock:     clock,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "devices")),
	}
}

// Register pairs a device, replacing any previous pairing of the entity
func (s *Service) Register(ctx context.Context, group model.GroupID, rawEntityID, name string, kind model.DeviceKind) (*model.Device, error) {
	entityID, err := model.ParseEntityID(rawEntityID)
	if err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("kind %q: %w", kind, model.ErrInvalidDevice)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("device name required: %w", model.ErrInvalidDevice)
	}

	device := &model.Device{Group: group, EntityID: entityID, Name: name, Kind: kind}
	if err := s.storage.SaveDevice(ctx, device); err != nil {
		return nil, err
	}
	s.logger.Info("device registered",
		slog.String("group", group.String()),
		slog.Int64("entity_id", entityID),
		slog.String("kind", string(kind)),
	)
	return device, nil
}

// List returns the group's paired devices
func (s *Service) List(ctx context.Context, group model.GroupID) ([]*model.Device, error) {
	return s.storage.ListDevices(ctx, group)
}

// HandleEntityEvent publishes a state change of a paired device
func (s *Service) HandleEntityEvent(ctx context.Context, ev model.EntityEvent) (*model.DeviceTriggeredPayload, error) {
	entityID, err := model.ParseEntityID(ev.EntityID)
	if err != nil {
		return nil, err
	}
	device, err := s.storage.GetDevice(ctx, ev.Group, entityID)
	if err != nil {
		return nil, err
	}

	at := ev.At
	if at.IsZero() {
		at = s.clock.Now()
	}
	payload := &model.DeviceTriggeredPayload{Device: *device, Value: ev.Value, Message: Message(*device, ev.Value)}
	s.logger.Debug("device triggered",
		slog.String("group", ev.Group.String()),
		slog.String("device", device.Name),
		slog.Bool("value", ev.Value),
	)
	s.publisher.Publish(events.New(model.EventDeviceTriggered, ev.Group, "", payload, at))
	return payload, nil
}

// Message renders a human readable line for a device state change
func Message(device model.Device, value bool) string {
	switch device.Kind {
	case model.DeviceAlarm:
		if value {
			return fmt.Sprintf("Smart alarm triggered: %s", device.Name)
		}
		return fmt.Sprintf("Smart alarm cleared: %s", device.Name)
	case model.DeviceSwitch:
		state := "OFF"
		if value {
			state = "ON"
		}
		return fmt.Sprintf("Switch %s turned %s", device.Name, state)
	default:
		return fmt.Sprintf("Storage monitor %s changed", device.Name)
	}
}
