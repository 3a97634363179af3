package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/mocks"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/testutil"
)

const adminToken = "adm_correct-horse-battery-staple"

type ServiceSuite struct {
	suite.Suite
	clock   *mocks.MockClock
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	s.Require().NoError(err)

	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.TokenHashes = []string{string(hash)}
	s.service = New(s.clock, testutil.NopLogger(), cfg)
	s.ctx = context.Background()
}

// Login tests

func (s *ServiceSuite) TestLoginSucceeds() {
	session, err := s.service.Login(s.ctx, adminToken)
	s.Require().NoError(err)

	s.NotEmpty(session.Token)
	s.Equal("admin", session.Subject)
	s.Equal(s.clock.Now().Add(24*time.Hour), session.ExpiresAt)
}

func (s *ServiceSuite) TestLoginWrongToken() {
	_, err := s.service.Login(s.ctx, "nope")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *ServiceSuite) TestLoginEmptyToken() {
	_, err := s.service.Login(s.ctx, "")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *ServiceSuite) TestLoginDisabledWithoutHashes() {
	service := New(s.clock, testutil.NopLogger(), DefaultConfig())
	s.False(service.Enabled())

	_, err := service.Login(s.ctx, adminToken)
	s.ErrorIs(err, ErrAdminDisabled)
}

// ValidateSession tests

func (s *ServiceSuite) TestValidateSessionToken() {
	session, _ := s.service.Login(s.ctx, adminToken)

	validated, err := s.service.ValidateSession(session.Token)
	s.Require().NoError(err)
	s.Equal(session.Token, validated.Token)
}

func (s *ServiceSuite) TestValidateRawAdminToken() {
	validated, err := s.service.ValidateSession(adminToken)
	s.Require().NoError(err)
	s.Equal("admin", validated.Subject)
}

func (s *ServiceSuite) TestValidateUnknownToken() {
	_, err := s.service.ValidateSession("sess_unknown")
	s.ErrorIs(err, ErrInvalidSession)
}

func (s *ServiceSuite) TestSessionExpires() {
	session, _ := s.service.Login(s.ctx, adminToken)

	s.clock.Advance(25 * time.Hour)

	_, err := s.service.ValidateSession(session.Token)
	s.ErrorIs(err, ErrInvalidSession)
}

func (s *ServiceSuite) TestInvalidateSession() {
	session, _ := s.service.Login(s.ctx, adminToken)
	s.service.InvalidateSession(session.Token)

	_, err := s.service.ValidateSession(session.Token)
	s.ErrorIs(err, ErrInvalidSession)
}

// CleanExpiredSessions tests

func (s *ServiceSuite) TestCleanExpiredSessions() {
	old, _ := s.service.Login(s.ctx, adminToken)
	s.clock.Advance(20 * time.Hour)
	fresh, _ := s.service.Login(s.ctx, adminToken)
	s.clock.Advance(5 * time.Hour)

	s.Equal(1, s.service.CleanExpiredSessions())

	_, err := s.service.ValidateSession(old.Token)
	s.ErrorIs(err, ErrInvalidSession)
	_, err = s.service.ValidateSession(fresh.Token)
	s.NoError(err)
}

// HashToken tests

func (s *ServiceSuite) TestHashTokenRoundTrip() {
	token := GenerateToken()
	hash, err := HashToken(token)
	s.Require().NoError(err)

	cfg := DefaultConfig()
	cfg.TokenHashes = []string{hash}
	service := New(s.clock, testutil.NopLogger(), cfg)

	_, err = service.Login(s.ctx, token)
	s.NoError(err)
}
