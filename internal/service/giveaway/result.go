package giveaway

import (
	"fmt"
	"strings"

	"github.com/aimd54/giveaway-engine/internal/models"
)

// Result is the outcome of an engine operation as handed to the presentation layer.
type Result struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	Winners    []string         `json:"winners,omitempty"`
	EntryCount *int             `json:"entryCount,omitempty"`
	Giveaway   *models.Giveaway `json:"giveaway,omitempty"`
}

// Failure builds the result of a failed operation.
func Failure(err error) *Result {
	return &Result{Success: false, Message: UserMessage(err)}
}

func success(message string, g *models.Giveaway) *Result {
	return &Result{Success: true, Message: message, Giveaway: g}
}

func (r *Result) withEntryCount(n int) *Result {
	r.EntryCount = &n
	return r
}

func (r *Result) withWinners(ids []string) *Result {
	r.Winners = ids
	return r
}

func endMessage(winners []string) string {
	if len(winners) == 0 {
		return "Giveaway ended with no participants. No winners were drawn."
	}
	return fmt.Sprintf("Giveaway ended! Winners: %s", strings.Join(winners, ", "))
}

func rerollMessage(winners []string) string {
	return fmt.Sprintf("Rerolled! New winners: %s", strings.Join(winners, ", "))
}

func participantIDs(winners []models.Winner) []string {
	ids := make([]string, 0, len(winners))
	for _, w := range winners {
		ids = append(ids, w.ParticipantID)
	}
	return ids
}
