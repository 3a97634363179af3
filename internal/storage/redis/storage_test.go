package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage/storagetest"
)

func TestStorageSuite(t *testing.T) {
	suite.Run(t, &storagetest.Suite{
		NewStorage: func() storage.Storage {
			mini := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
			return NewWithClient(client, DefaultConfig())
		},
	})
}

// RedisSuite covers the key layout and index bookkeeping specific to this backend
type RedisSuite struct {
	suite.Suite
	mini    *miniredis.Miniredis
	storage *Storage
	ctx     context.Context
	t0      time.Time
}

func TestRedisSuite(t *testing.T) {
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	s.storage = NewWithClient(client, DefaultConfig())
	s.ctx = context.Background()
	s.t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *RedisSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *RedisSuite) TestTransitionWritesIndexes() {
	at := s.t0
	p, err := s.storage.ApplyTransition(s.ctx, &model.Transition{
		Group: 1, Name: "jeff", Online: true, At: at, OpenAt: &at,
	})
	s.Require().NoError(err)

	s.True(s.mini.Exists(playerKey(p.ID)))
	idx, err := s.mini.Get(playerNameIndexKey(1, "jeff"))
	s.Require().NoError(err)
	s.Equal(p.ID.String(), idx)

	members, err := s.mini.SMembers(groupPlayersKey(1))
	s.Require().NoError(err)
	s.Equal([]string{p.ID.String()}, members)

	s.True(s.mini.Exists(openSessionKey(p.ID)))
}

func (s *RedisSuite) TestCloseClearsOpenSessionPointer() {
	at := s.t0
	p, err := s.storage.ApplyTransition(s.ctx, &model.Transition{Group: 1, Name: "jeff", Online: true, At: at, OpenAt: &at})
	s.Require().NoError(err)

	end := at.Add(time.Minute)
	_, err = s.storage.ApplyTransition(s.ctx, &model.Transition{Group: 1, Name: "jeff", Online: false, At: end, CloseOpenAt: &end})
	s.Require().NoError(err)

	s.False(s.mini.Exists(openSessionKey(p.ID)))
	fields, err := s.mini.HKeys(sessionsKey(p.ID))
	s.Require().NoError(err)
	s.Len(fields, 1)
}

func (s *RedisSuite) TestResetRemovesAllGroupKeys() {
	at := s.t0
	p, err := s.storage.ApplyTransition(s.ctx, &model.Transition{Group: 1, Name: "jeff", Online: true, At: at, OpenAt: &at})
	s.Require().NoError(err)

	_, err = s.storage.ResetGroup(s.ctx, 1)
	s.Require().NoError(err)

	for _, key := range []string{
		playerKey(p.ID), sessionsKey(p.ID), openSessionKey(p.ID),
		playerNameIndexKey(1, "jeff"), groupPlayersKey(1),
	} {
		s.False(s.mini.Exists(key), key)
	}
}

func (s *RedisSuite) TestGroupConfigIsIndexed() {
	s.Require().NoError(s.storage.SaveGroupConfig(s.ctx, &model.GroupConfig{Group: 7, PollTarget: "999", UpdatedAt: s.t0}))

	ok, err := s.mini.SIsMember(groupsIndexKey(), "7")
	s.Require().NoError(err)
	s.True(ok)
}
