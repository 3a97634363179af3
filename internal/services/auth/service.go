// Package auth authenticates administrative callers. Admins present a
// static token checked against bcrypt hashes, or a session issued for one.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/clock"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrAdminDisabled      = errors.New("no admin token configured")
)

const sessionPrefix = "sess_"

// Session represents an authenticated admin session
type Session struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Config holds configuration for the auth service
type Config struct {
	// TokenHashes are bcrypt hashes of the accepted admin tokens
	TokenHashes     []string      `koanf:"token_hashes"`
	SessionDuration time.Duration `koanf:"session_duration"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration: 24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// Service handles admin authentication and session management
type Service struct {
	clock  clock.Clock
	logger *slog.Logger
	hashes [][]byte

	mu       sync.RWMutex
	sessions map[string]*Session

	sessionDuration time.Duration
	cleanupInterval time.Duration
}

// New creates a new auth service
func New(clock clock.Clock, logger *slog.Logger, cfg Config) *Service {
	defaults := DefaultConfig()
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = defaults.SessionDuration
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}
	hashes := make([][]byte, 0, len(cfg.TokenHashes))
	for _, h := range cfg.TokenHashes {
		if h != "" {
			hashes = append(hashes, []byte(h))
		}
	}
	return &Service{
		clock:           clock,
		logger:          logger.With(slog.String("component", "auth")),
		hashes:          hashes,
		sessions:        make(map[string]*Session),
		sessionDuration: cfg.SessionDuration,
		cleanupInterval: cfg.CleanupInterval,
	}
}

// HashToken returns the bcrypt hash to configure for an admin token
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateToken returns a new random admin token
func GenerateToken() string {
	return generateID("adm_")
}

// Enabled reports whether any admin token is configured
func (s *Service) Enabled() bool {
	return len(s.hashes) > 0
}

// Login exchanges an admin token for a session
func (s *Service) Login(ctx context.Context, token string) (*Session, error) {
	if err := s.checkToken(token); err != nil {
		return nil, err
	}
	return s.createSession("admin"), nil
}

// ValidateSession accepts either a session token or a raw admin token
func (s *Service) ValidateSession(token string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if ok {
		if s.clock.Now().After(session.ExpiresAt) {
			s.InvalidateSession(token)
			return nil, ErrInvalidSession
		}
		return session, nil
	}

	if err := s.checkToken(token); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	now := s.clock.Now()
	return &Session{Subject: "admin", CreatedAt: now, ExpiresAt: now}, nil
}

// InvalidateSession removes a session
func (s *Service) InvalidateSession(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

func (s *Service) checkToken(token string) error {
	if !s.Enabled() {
		return ErrAdminDisabled
	}
	if token == "" {
		return ErrInvalidCredentials
	}
	for _, h := range s.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(token)) == nil {
			return nil
		}
	}
	return ErrInvalidCredentials
}

// createSession creates a new session for a subject
func (s *Service) createSession(subject string) *Session {
	now := s.clock.Now()
	session := &Session{
		Token:     generateID(sessionPrefix),
		Subject:   subject,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionDuration),
	}

	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()

	return session
}

// generateID generates a random ID with a prefix
func generateID(prefix string) string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return prefix + base64.RawURLEncoding.EncodeToString(b)
}

// CleanExpiredSessions removes expired sessions and returns how many
func (s *Service) CleanExpiredSessions() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// Serve cleans expired sessions periodically until ctx is cancelled
func (s *Service) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.CleanExpiredSessions(); n > 0 {
				s.logger.Debug("expired sessions removed", slog.Int("count", n))
			}
		}
	}
}

func (s *Service) String() string {
	return "session-janitor"
}
