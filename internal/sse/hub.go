// Package sse streams group events to HTTP clients as server-sent events.
package sse

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/events"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/metrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

// Hub manages SSE clients for a single group
type Hub struct {
	group   model.GroupID
	clients map[*Client]bool
	mu      sync.RWMutex
	logger  *slog.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub creates a new Hub for a group
func NewHub(group model.GroupID, logger *slog.Logger) *Hub {
	return &Hub{
		group:      group,
		clients:    make(map[*Client]bool),
		logger:     logger.With(slog.String("group", group.String())),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			metrics.SSEClients.Inc()
			h.logger.Debug("sse client registered",
				slog.String("client", client.id),
				slog.Int("total_clients", clientCount))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				clientCount := len(h.clients)
				h.mu.Unlock()
				metrics.SSEClients.Dec()
				h.logger.Debug("sse client unregistered",
					slog.String("client", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)),
					slog.Int("total_clients", clientCount))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			dropped := 0
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					dropped++
				}
			}
			h.mu.RUnlock()
			if dropped > 0 {
				h.logger.Warn("sse messages dropped, client buffers full", slog.Int("dropped", dropped))
			}

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
				metrics.SSEClients.Dec()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Register adds a client to the hub. It reports false once the hub is closed.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a raw message to all clients without blocking
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("sse broadcast dropped, hub buffer full")
	}
}

// BroadcastEvent encodes and sends a group event
func (h *Hub) BroadcastEvent(event model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("sse event encoding failed", slog.String("error", err.Error()))
		return
	}
	h.Broadcast(formatSSEMessage(event.ID, string(event.Type), string(data)))
}

// Close shuts down the hub
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// formatSSEMessage formats an SSE message. Each data line gets its own prefix.
func formatSSEMessage(id, eventName, data string) []byte {
	var b strings.Builder
	if id != "" {
		b.WriteString("id: " + id + "\n")
	}
	b.WriteString("event: " + eventName + "\n")
	for _, line := range splitLines(data) {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")
	return []byte(b.String())
}

// splitLines splits a string into lines, handling various line endings
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// HubManager owns one hub per group and publishes events to them
type HubManager struct {
	hubs   map[model.GroupID]*Hub
	mu     sync.RWMutex
	logger *slog.Logger
}

var _ events.Publisher = (*HubManager)(nil)

// NewHubManager creates a new HubManager
func NewHubManager(logger *slog.Logger) *HubManager {
	return &HubManager{
		hubs:   make(map[model.GroupID]*Hub),
		logger: logger.With(slog.String("component", "sse")),
	}
}

// GetOrCreateHub returns the hub for a group, creating one if it doesn't exist
func (m *HubManager) GetOrCreateHub(group model.GroupID) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[group]; ok {
		return hub
	}
	hub := NewHub(group, m.logger)
	m.hubs[group] = hub
	go hub.Run()
	return hub
}

// GetHub returns the hub for a group, or nil if nobody is listening
func (m *HubManager) GetHub(group model.GroupID) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[group]
}

// Publish forwards an event to the group's listeners, if any
func (m *HubManager) Publish(event model.Event) {
	if hub := m.GetHub(event.Group); hub != nil {
		hub.BroadcastEvent(event)
	}
}

// CleanupEmptyHubs removes hubs with no clients
func (m *HubManager) CleanupEmptyHubs() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for group, hub := range m.hubs {
		if hub.ClientCount() == 0 {
			hub.Close()
			delete(m.hubs, group)
			removed++
		}
	}
	return removed
}

// CloseAll shuts every hub down, disconnecting all clients
func (m *HubManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for group, hub := range m.hubs {
		hub.Close()
		delete(m.hubs, group)
	}
}

// Serve removes idle hubs periodically and disconnects everyone on shutdown
func (m *HubManager) Serve(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return ctx.Err()
		case <-ticker.C:
			if n := m.CleanupEmptyHubs(); n > 0 {
				m.logger.Debug("sse empty hubs cleaned up", slog.Int("removed", n))
			}
		}
	}
}

func (m *HubManager) String() string {
	return "sse-hubs"
}
