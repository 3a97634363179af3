package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/battlemetrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

// MockFetcher serves canned server player lists
type MockFetcher struct {
	mu      sync.Mutex
	servers map[string][]string
	err     error
	calls   int
}

// NewMockFetcher creates a MockFetcher with no servers
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{servers: make(map[string][]string)}
}

// SetOnline sets the names reported for a server
func (m *MockFetcher) SetOnline(serverID string, names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[serverID] = append([]string{}, names...)
	m.err = nil
}

// Fail makes every fetch return err until SetOnline is called
func (m *MockFetcher) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of fetches made
func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// FetchOnlineNames returns the configured names. Unknown servers fail.
func (m *MockFetcher) FetchOnlineNames(_ context.Context, serverID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	names, ok := m.servers[serverID]
	if !ok {
		return nil, fmt.Errorf("server %s: %w", serverID, model.ErrFetchFailed)
	}
	return append([]string{}, names...), nil
}

// ServerInfo describes a configured server with its current player count
func (m *MockFetcher) ServerInfo(_ context.Context, serverID string) (*battlemetrics.ServerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	names, ok := m.servers[serverID]
	if !ok {
		return nil, fmt.Errorf("server %s: %w", serverID, model.ErrFetchFailed)
	}
	return &battlemetrics.ServerInfo{
		ID:         serverID,
		Name:       "Mock Server " + serverID,
		Players:    len(names),
		MaxPlayers: 200,
		Status:     "online",
	}, nil
}
