package giveaway

import (
	"context"

	"github.com/aimd54/giveaway-engine/internal/models"
)

// EventType identifies an externally observable change.
type EventType string

// Event types emitted after persisted mutations.
const (
	EventCreated         EventType = "created"
	EventEntered         EventType = "entered"
	EventLeft            EventType = "left"
	EventEntriesAdjusted EventType = "entries_adjusted"
	EventUpdated         EventType = "updated"
	EventEnded           EventType = "ended"
	EventCancelled       EventType = "cancelled"
	EventRerolled        EventType = "rerolled"
	EventClaimed         EventType = "claimed"
)

// Event describes a mutation for the presentation layer.
type Event struct {
	Type          EventType
	Giveaway      *models.Giveaway
	ParticipantID string
	Winners       []string
	EntryCount    int
	Participants  int
	Reason        string
	Forced        bool
}

// Notifier renders events. Failures are logged by the engine and never
// roll back the mutation.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// FactProvider supplies participant facts for eligibility and bonus evaluation.
type FactProvider interface {
	GetFacts(ctx context.Context, participantID, guildID string) (*models.ParticipantFacts, error)
}

// NopNotifier discards events.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(context.Context, Event) error { return nil }
