// Package events builds group events and fans them out to subscribers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

// Publisher delivers group events. Implementations must not block the caller
// for long; presence writes publish while holding a player lock.
type Publisher interface {
	Publish(event model.Event)
}

// NopPublisher discards every event
type NopPublisher struct{}

func (NopPublisher) Publish(model.Event) {}

// Fanout publishes to each publisher in order
type Fanout []Publisher

func (f Fanout) Publish(event model.Event) {
	for _, p := range f {
		p.Publish(event)
	}
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(event model.Event)

func (f PublisherFunc) Publish(event model.Event) {
	f(event)
}

// New creates an event with a fresh id
func New(eventType model.EventType, group model.GroupID, player string, payload any, at time.Time) model.Event {
	return model.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at,
		Group:     group,
		Player:    player,
		Payload:   payload,
	}
}

// Recorder collects published events for inspection in tests
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *Recorder) Publish(event model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

// Types returns the recorded event types in publish order
func (r *Recorder) Types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]model.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}
