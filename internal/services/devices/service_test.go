package devices

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/mocks"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/events"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage/memory"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/testutil"
)

const group = model.GroupID(3)

type ServiceSuite struct {
	suite.Suite
	clock     *mocks.MockClock
	publisher *events.Recorder
	service   *Service
	ctx       context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.publisher = &events.Recorder{}
	s.service = New(memory.New(), s.clock, s.publisher, testutil.NopLogger())
	s.ctx = context.Background()
}

// Register tests

func (s *ServiceSuite) TestRegister() {
	device, err := s.service.Register(s.ctx, group, " 12345 ", "Front door", model.DeviceAlarm)
	s.Require().NoError(err)
	s.Equal(int64(12345), device.EntityID)

	devices, err := s.service.List(s.ctx, group)
	s.Require().NoError(err)
	s.Require().Len(devices, 1)
	s.Equal("Front door", devices[0].Name)
}

func (s *ServiceSuite) TestRegisterRejectsNonNumericEntity() {
	_, err := s.service.Register(s.ctx, group, "door", "Front door", model.DeviceAlarm)
	s.ErrorIs(err, model.ErrInvalidEntityID)
	s.True(model.IsValidation(err))
}

func (s *ServiceSuite) TestRegisterRejectsUnknownKind() {
	_, err := s.service.Register(s.ctx, group, "1", "Lamp", model.DeviceKind("lamp"))
	s.ErrorIs(err, model.ErrInvalidDevice)
}

func (s *ServiceSuite) TestRegisterRequiresName() {
	_, err := s.service.Register(s.ctx, group, "1", "  ", model.DeviceSwitch)
	s.ErrorIs(err, model.ErrInvalidDevice)
}

// HandleEntityEvent tests

func (s *ServiceSuite) TestEntityEventPublishes() {
	_, err := s.service.Register(s.ctx, group, "77", "Turret power", model.DeviceSwitch)
	s.Require().NoError(err)

	payload, err := s.service.HandleEntityEvent(s.ctx, model.EntityEvent{Group: group, EntityID: "77", Value: true})
	s.Require().NoError(err)
	s.Equal("Switch Turret power turned ON", payload.Message)

	evs := s.publisher.Events()
	s.Require().Len(evs, 1)
	s.Equal(model.EventDeviceTriggered, evs[0].Type)
	s.Equal(s.clock.Now(), evs[0].Timestamp)
}

func (s *ServiceSuite) TestEntityEventUnknownDevice() {
	_, err := s.service.HandleEntityEvent(s.ctx, model.EntityEvent{Group: group, EntityID: "77", Value: true})
	s.ErrorIs(err, model.ErrDeviceNotFound)
	s.Empty(s.publisher.Events())
}

func (s *ServiceSuite) TestMessage() {
	alarm := model.Device{Name: "Base", Kind: model.DeviceAlarm}
	s.Equal("Smart alarm triggered: Base", Message(alarm, true))
	s.Equal("Smart alarm cleared: Base", Message(alarm, false))
	s.Equal("Storage monitor TC changed", Message(model.Device{Name: "TC", Kind: model.DeviceStorage}, true))
}
