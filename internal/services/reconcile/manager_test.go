package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/mocks"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/testutil"
)

func fastConfig() Config {
	return Config{
		Interval:       20 * time.Millisecond,
		CycleTimeout:   time.Second,
		ResyncInterval: time.Hour,
	}
}

// Poller tests

func (s *ReconcilerSuite) TestPollerRetriesAfterFetchFailure() {
	s.online("jeff", s.t0.Add(-time.Hour))
	s.fetcher.fail(errors.New("timeout"))

	poller := NewPoller(group, fastConfig(), s.reconciler, mocks.NewMockRandom(), testutil.NopLogger())
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- poller.Serve(ctx) }()

	s.Eventually(func() bool { return s.fetcher.callCount("1001") >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.True(s.player("jeff").Online)

	// recovers on a later tick once the source answers again
	s.fetcher.fail(nil)
	s.fetcher.set("1001")
	s.Eventually(func() bool {
		p, err := s.presence.FindPlayer(s.ctx, group, "jeff")
		return err == nil && !p.Online
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	s.ErrorIs(<-done, context.Canceled)
}

// Manager tests

func (s *ReconcilerSuite) TestManagerRunsGroupsIndependently() {
	other := model.GroupID(6)
	_, err := s.wipe.SetPollTarget(s.ctx, other, "2002")
	s.Require().NoError(err)

	// group 5's fetch hangs
	release := s.fetcher.block("1001")
	defer close(release)

	_, err = s.presence.RecordTransition(s.ctx, other, "bob", true, s.t0.Add(-2*time.Hour), nil)
	s.Require().NoError(err)
	_, err = s.presence.RecordTransition(s.ctx, other, "bob", false, s.t0.Add(-time.Hour), nil)
	s.Require().NoError(err)
	s.fetcher.set("2002", "Bob")

	sup := suture.NewSimple("test-polling")
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	errCh := sup.ServeBackground(ctx)

	manager := NewManager(sup, s.reconciler, s.wipe, fastConfig(), mocks.NewMockRandom(), testutil.NopLogger())
	s.Require().NoError(manager.Sync(s.ctx))
	s.ElementsMatch([]model.GroupID{group, other}, manager.Groups())

	s.Eventually(func() bool {
		p, err := s.presence.FindPlayer(s.ctx, other, "bob")
		return err == nil && p.Online
	}, 2*time.Second, 5*time.Millisecond)
	s.Equal(1, s.fetcher.callCount("1001"))

	cancel()
	<-errCh
}

func (s *ReconcilerSuite) TestManagerStopsClearedTargets() {
	sup := suture.NewSimple("test-polling")
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	errCh := sup.ServeBackground(ctx)

	manager := NewManager(sup, s.reconciler, s.wipe, fastConfig(), mocks.NewMockRandom(), testutil.NopLogger())
	s.Require().NoError(manager.Sync(s.ctx))
	s.Equal([]model.GroupID{group}, manager.Groups())

	_, err := s.wipe.SetPollTarget(s.ctx, group, "")
	s.Require().NoError(err)
	s.Require().NoError(manager.Sync(s.ctx))
	s.Empty(manager.Groups())

	cancel()
	<-errCh
}

func (s *ReconcilerSuite) TestManagerRestartsChangedTargets() {
	s.fetcher.set("3003")
	sup := suture.NewSimple("test-polling")
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	errCh := sup.ServeBackground(ctx)

	manager := NewManager(sup, s.reconciler, s.wipe, fastConfig(), mocks.NewMockRandom(), testutil.NopLogger())
	s.Require().NoError(manager.Sync(s.ctx))

	_, err := s.wipe.SetPollTarget(s.ctx, group, "3003")
	s.Require().NoError(err)
	s.Require().NoError(manager.Sync(s.ctx))
	s.Equal([]model.GroupID{group}, manager.Groups())

	s.Eventually(func() bool { return s.fetcher.callCount("3003") > 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-errCh
}
