package mocks

import (
	"context"
	"sync"

	"github.com/aimd54/giveaway-engine/internal/service/giveaway"
)

// MockNotifier records every event it receives.
type MockNotifier struct {
	NotifyFunc func(ctx context.Context, event giveaway.Event) error

	mu     sync.Mutex
	events []giveaway.Event
}

func (m *MockNotifier) Notify(ctx context.Context, event giveaway.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()

	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, event)
	}
	return nil
}

// Events returns a copy of the recorded events.
func (m *MockNotifier) Events() []giveaway.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]giveaway.Event(nil), m.events...)
}

// EventsOfType returns the recorded events of one type.
func (m *MockNotifier) EventsOfType(t giveaway.EventType) []giveaway.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []giveaway.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
