package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/mocks"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/events"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage/memory"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/testutil"
)

const group = model.GroupID(42)

type ServiceSuite struct {
	suite.Suite
	storage   *memory.Storage
	clock     *mocks.MockClock
	publisher *events.Recorder
	service   *Service
	ctx       context.Context
	t0        time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(s.t0)
	s.publisher = &events.Recorder{}
	s.service = New(s.storage, s.clock, s.publisher, testutil.NopLogger(), DefaultConfig())
	s.ctx = context.Background()
}

func (s *ServiceSuite) record(name string, online bool, at time.Time) *model.TransitionResult {
	res, err := s.service.RecordTransition(s.ctx, group, name, online, at, nil)
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) sessions(name string) []model.Session {
	p, err := s.service.FindPlayer(s.ctx, group, name)
	s.Require().NoError(err)
	sessions, err := s.service.QuerySessions(s.ctx, p.ID, nil)
	s.Require().NoError(err)
	return sessions
}

func (s *ServiceSuite) openCount(sessions []model.Session) int {
	n := 0
	for _, sess := range sessions {
		if sess.IsOpen() {
			n++
		}
	}
	return n
}

// RecordTransition tests

func (s *ServiceSuite) TestOnlineThenOfflineProducesOneSession() {
	s.record("Jeff", true, s.t0)
	res := s.record("Jeff", false, s.t0.Add(5*time.Minute))
	s.True(res.Closed)
	s.False(res.Player.Online)

	sessions := s.sessions("jeff")
	s.Require().Len(sessions, 1)
	s.Equal(s.t0, sessions[0].Start)
	s.Require().NotNil(sessions[0].End)
	s.Equal(s.t0.Add(5*time.Minute), *sessions[0].End)
}

func (s *ServiceSuite) TestShortGapContinuesSession() {
	s.record("Jeff", true, s.t0)
	res := s.record("Jeff", true, s.t0.Add(3*time.Minute))

	s.True(res.Continued)
	s.False(res.Opened)
	s.False(res.ZombieRepaired)

	sessions := s.sessions("jeff")
	s.Require().Len(sessions, 1)
	s.True(sessions[0].IsOpen())
	s.Equal(s.t0, sessions[0].Start)
}

func (s *ServiceSuite) TestGapAtThresholdStillContinues() {
	s.record("Jeff", true, s.t0)
	res := s.record("Jeff", true, s.t0.Add(10*time.Minute))

	s.True(res.Continued)
	s.Len(s.sessions("jeff"), 1)
}

func (s *ServiceSuite) TestLongGapRepairsZombie() {
	s.record("Jeff", true, s.t0)
	res := s.record("Jeff", true, s.t0.Add(20*time.Minute))

	s.True(res.ZombieRepaired)
	s.True(res.Opened)

	sessions := s.sessions("jeff")
	s.Require().Len(sessions, 2)
	s.Require().NotNil(sessions[0].End)
	s.Equal(s.t0.Add(5*time.Minute), *sessions[0].End)
	s.Equal(s.t0.Add(20*time.Minute), sessions[1].Start)
	s.True(sessions[1].IsOpen())
	s.Contains(s.publisher.Types(), model.EventZombieRepaired)
}

func (s *ServiceSuite) TestZombieGapMeasuredFromLastSeen() {
	s.record("Jeff", true, s.t0)
	s.record("Jeff", true, s.t0.Add(8*time.Minute))
	res := s.record("Jeff", true, s.t0.Add(16*time.Minute))

	s.True(res.Continued)
	s.Len(s.sessions("jeff"), 1)
}

func (s *ServiceSuite) TestDuplicateOfflineIsNoop() {
	s.record("Jeff", true, s.t0)
	s.record("Jeff", false, s.t0.Add(time.Minute))
	res := s.record("Jeff", false, s.t0.Add(2*time.Minute))

	s.False(res.Closed)
	sessions := s.sessions("jeff")
	s.Require().Len(sessions, 1)
	s.Equal(s.t0.Add(time.Minute), *sessions[0].End)
}

func (s *ServiceSuite) TestFirstSightingOffline() {
	res := s.record("Jeff", false, s.t0)
	s.False(res.Player.Online)
	s.Empty(s.sessions("jeff"))
}

func (s *ServiceSuite) TestNamesAreNormalized() {
	s.record("[CLAN] Player Jeff ", true, s.t0)
	s.record("jeff", false, s.t0.Add(time.Minute))

	players, err := s.service.ListPlayers(s.ctx, group)
	s.Require().NoError(err)
	s.Require().Len(players, 1)
	s.Equal("jeff", players[0].Name)
	s.Len(s.sessions("JEFF"), 1)
}

func (s *ServiceSuite) TestEmptyNameIsValidationError() {
	_, err := s.service.RecordTransition(s.ctx, group, "[TAG]  ", true, s.t0, nil)
	s.ErrorIs(err, model.ErrInvalidName)
	s.True(model.IsValidation(err))
}

func (s *ServiceSuite) TestZeroTimestampIsValidationError() {
	_, err := s.service.RecordTransition(s.ctx, group, "jeff", true, time.Time{}, nil)
	s.ErrorIs(err, model.ErrInvalidTimestamp)
}

func (s *ServiceSuite) TestTeammateHintIsTriState() {
	yes, no := true, false
	_, err := s.service.RecordTransition(s.ctx, group, "jeff", true, s.t0, &yes)
	s.Require().NoError(err)

	res := s.record("jeff", false, s.t0.Add(time.Minute))
	s.True(res.Player.Teammate)

	res, err = s.service.RecordTransition(s.ctx, group, "jeff", true, s.t0.Add(2*time.Minute), &no)
	s.Require().NoError(err)
	s.False(res.Player.Teammate)
}

func (s *ServiceSuite) TestPublishesPresenceEvents() {
	s.record("jeff", true, s.t0)
	s.record("jeff", true, s.t0.Add(time.Minute))
	s.record("jeff", false, s.t0.Add(2*time.Minute))

	s.Equal([]model.EventType{model.EventPlayerOnline, model.EventPlayerOffline}, s.publisher.Types())
	s.Equal("jeff", s.publisher.Events()[0].Player)
}

func (s *ServiceSuite) TestAtMostOneOpenSessionUnderConcurrency() {
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := s.t0.Add(time.Duration(i) * time.Second)
			_, _ = s.service.RecordTransition(s.ctx, group, "jeff", i%3 != 0, at, nil)
		}(i)
	}
	wg.Wait()

	s.LessOrEqual(s.openCount(s.sessions("jeff")), 1)
}

// RecordEvent tests

func (s *ServiceSuite) TestRecordEventRejectsStale() {
	_, err := s.service.RecordEvent(s.ctx, model.PresenceEvent{Group: group, Name: "jeff", Online: true, At: s.t0.Add(time.Minute)})
	s.Require().NoError(err)

	_, err = s.service.RecordEvent(s.ctx, model.PresenceEvent{Group: group, Name: "jeff", Online: false, At: s.t0})
	s.ErrorIs(err, model.ErrStaleEvent)

	p, err := s.service.FindPlayer(s.ctx, group, "jeff")
	s.Require().NoError(err)
	s.True(p.Online)
}

func (s *ServiceSuite) TestRecordEventAcceptsEqualTimestamp() {
	_, err := s.service.RecordEvent(s.ctx, model.PresenceEvent{Group: group, Name: "jeff", Online: true, At: s.t0})
	s.Require().NoError(err)
	res, err := s.service.RecordEvent(s.ctx, model.PresenceEvent{Group: group, Name: "jeff", Online: false, At: s.t0})
	s.Require().NoError(err)
	s.True(res.Closed)
}

// PreRegister tests

func (s *ServiceSuite) TestPreRegisterDoesNotChangePresence() {
	p, err := s.service.PreRegister(s.ctx, group, "[X] Jeff", nil)
	s.Require().NoError(err)
	s.Equal("jeff", p.Name)
	s.False(p.Online)
	s.Nil(p.LastSeen)

	s.record("jeff", true, s.t0)
	yes := true
	p, err = s.service.PreRegister(s.ctx, group, "jeff", &yes)
	s.Require().NoError(err)
	s.True(p.Online)
	s.True(p.Teammate)
	s.Require().NotNil(p.LastSeen)
	s.Equal(s.t0, *p.LastSeen)
}

func (s *ServiceSuite) TestPreRegisterRejectsEmptyName() {
	_, err := s.service.PreRegister(s.ctx, group, " [TAG] ", nil)
	s.ErrorIs(err, model.ErrInvalidName)
}

// QuerySessions tests

func (s *ServiceSuite) TestQuerySessionsClampsToSince() {
	s.record("jeff", true, s.t0)
	s.record("jeff", false, s.t0.Add(time.Hour))
	s.record("jeff", true, s.t0.Add(2*time.Hour))
	s.record("jeff", false, s.t0.Add(4*time.Hour))

	p, _ := s.service.FindPlayer(s.ctx, group, "jeff")
	since := s.t0.Add(3 * time.Hour)
	sessions, err := s.service.QuerySessions(s.ctx, p.ID, &since)
	s.Require().NoError(err)

	s.Require().Len(sessions, 1)
	s.Equal(since, sessions[0].Start)
	s.Equal(s.t0.Add(4*time.Hour), *sessions[0].End)
	s.Equal(time.Hour, sessions[0].Duration(s.clock.Now()))
}

func (s *ServiceSuite) TestQuerySessionsKeepsOpenSessionAcrossSince() {
	s.record("jeff", true, s.t0)
	p, _ := s.service.FindPlayer(s.ctx, group, "jeff")
	since := s.t0.Add(time.Hour)

	sessions, err := s.service.QuerySessions(s.ctx, p.ID, &since)
	s.Require().NoError(err)
	s.Require().Len(sessions, 1)
	s.True(sessions[0].IsOpen())
	s.Equal(since, sessions[0].Start)
}

func (s *ServiceSuite) TestQuerySessionsUnknownPlayer() {
	_, err := s.service.QuerySessions(s.ctx, 999, nil)
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

// BulkReset tests

func (s *ServiceSuite) TestBulkResetRemovesGroupData() {
	s.record("jeff", true, s.t0)
	s.record("bob", true, s.t0)
	s.record("bob", false, s.t0.Add(time.Minute))
	_, err := s.service.RecordTransition(s.ctx, group+1, "jeff", true, s.t0, nil)
	s.Require().NoError(err)

	report, err := s.service.BulkReset(s.ctx, group)
	s.Require().NoError(err)
	s.Equal(2, report.Players)
	s.Equal(2, report.Sessions)

	players, _ := s.service.ListPlayers(s.ctx, group)
	s.Empty(players)
	others, _ := s.service.ListPlayers(s.ctx, group+1)
	s.Len(others, 1)
	s.Contains(s.publisher.Types(), model.EventGroupReset)
}

// Lookup tests

func (s *ServiceSuite) TestGetPlayerChecksGroup() {
	s.record("jeff", true, s.t0)
	p, _ := s.service.FindPlayer(s.ctx, group, "jeff")

	got, err := s.service.GetPlayer(s.ctx, group, p.ID)
	s.Require().NoError(err)
	s.Equal(p.ID, got.ID)

	_, err = s.service.GetPlayer(s.ctx, group+1, p.ID)
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *ServiceSuite) TestListOnline() {
	s.record("jeff", true, s.t0)
	s.record("bob", true, s.t0)
	s.record("bob", false, s.t0.Add(time.Minute))

	online, err := s.service.ListOnline(s.ctx, group)
	s.Require().NoError(err)
	s.Require().Len(online, 1)
	s.Equal("jeff", online[0].Name)
}

func (s *ServiceSuite) TestWithPlayerLocksBlocksTransitions() {
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = s.service.WithPlayerLocks(group, []string{"jeff"}, func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	go func() {
		_, _ = s.service.RecordTransition(s.ctx, group, "jeff", true, s.t0, nil)
		close(done)
	}()

	select {
	case <-done:
		s.Fail("transition ran while the player lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-done
}
