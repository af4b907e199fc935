package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/aimd54/giveaway-engine/internal/models"
)

// ErrNoFacts is returned by MockFactProvider for unknown participants.
var ErrNoFacts = errors.New("no facts for participant")

// MockFactProvider is an in-memory fact provider keyed by participant ID.
type MockFactProvider struct {
	GetFactsFunc func(ctx context.Context, participantID, guildID string) (*models.ParticipantFacts, error)

	mu    sync.Mutex
	facts map[string]*models.ParticipantFacts
	calls int
}

// NewMockFactProvider creates an empty fact provider.
func NewMockFactProvider() *MockFactProvider {
	return &MockFactProvider{facts: make(map[string]*models.ParticipantFacts)}
}

// Set stores the facts returned for a participant.
func (m *MockFactProvider) Set(participantID string, facts *models.ParticipantFacts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts[participantID] = facts
}

// Calls returns how many times GetFacts was called.
func (m *MockFactProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockFactProvider) GetFacts(ctx context.Context, participantID, guildID string) (*models.ParticipantFacts, error) {
	m.mu.Lock()
	m.calls++
	facts, ok := m.facts[participantID]
	m.mu.Unlock()

	if m.GetFactsFunc != nil {
		return m.GetFactsFunc(ctx, participantID, guildID)
	}
	if !ok {
		return nil, ErrNoFacts
	}
	return facts, nil
}
