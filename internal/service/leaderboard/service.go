// Package leaderboard provides per-guild giveaway rankings and participant statistics.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aimd54/giveaway-engine/internal/repository"
	"github.com/aimd54/giveaway-engine/pkg/logger"
)

// StatsRepository interface for participation aggregates.
type StatsRepository interface {
	WinsByGuild(ctx context.Context, guildID string, since time.Time) ([]repository.WinTally, error)
	EntriesByGuild(ctx context.Context, guildID string, since time.Time) ([]repository.EntryTally, error)
}

// Entry represents a single entry in a leaderboard.
type Entry struct {
	ParticipantID string `json:"participant_id"`
	Wins          int    `json:"wins"`
	Claimed       int    `json:"claimed"`
	Giveaways     int    `json:"giveaways"` // giveaways entered
	Tickets       int    `json:"tickets"`
	Rank          int    `json:"rank"`
}

// ParticipantStats summarizes a participant's activity in a guild.
type ParticipantStats struct {
	Entry
	GuildID string  `json:"guild_id"`
	Period  string  `json:"period"`
	WinRate float64 `json:"win_rate"` // wins per giveaway entered
}

// Service handles leaderboard generation and participant statistics.
type Service struct {
	stats StatsRepository
	now   func() time.Time
	log   *logger.Logger
}

// NewService creates a new leaderboard service.
func NewService(stats StatsRepository, log *logger.Logger) *Service {
	return &Service{
		stats: stats,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log,
	}
}

// GetGuildLeaderboard returns the guild leaderboard for a given period and metric.
func (s *Service) GetGuildLeaderboard(ctx context.Context, guildID, period, metric string, limit int) ([]Entry, error) {
	since := calculatePeriodStart(period, s.now())

	wins, err := s.stats.WinsByGuild(ctx, guildID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get wins: %w", err)
	}
	entries, err := s.stats.EntriesByGuild(ctx, guildID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries: %w", err)
	}

	board := mergeTallies(wins, entries)
	sortLeaderboard(board, metric)

	for i := range board {
		board[i].Rank = i + 1
	}

	if limit > 0 && len(board) > limit {
		board = board[:limit]
	}

	return board, nil
}

// GetParticipantStats returns a participant's statistics and rank by wins.
// A participant with no activity gets zeroed stats and rank 0.
func (s *Service) GetParticipantStats(ctx context.Context, guildID, participantID, period string) (*ParticipantStats, error) {
	board, err := s.GetGuildLeaderboard(ctx, guildID, period, "wins", 0)
	if err != nil {
		return nil, err
	}

	stats := &ParticipantStats{
		Entry:   Entry{ParticipantID: participantID},
		GuildID: guildID,
		Period:  period,
	}
	for _, e := range board {
		if e.ParticipantID == participantID {
			stats.Entry = e
			break
		}
	}
	if stats.Giveaways > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Giveaways)
	}

	s.log.Debug().
		Str("guild_id", guildID).
		Str("participant_id", participantID).
		Int("rank", stats.Rank).
		Msg("Computed participant stats")

	return stats, nil
}

func mergeTallies(wins []repository.WinTally, entries []repository.EntryTally) []Entry {
	byParticipant := make(map[string]*Entry)
	get := func(id string) *Entry {
		e, ok := byParticipant[id]
		if !ok {
			e = &Entry{ParticipantID: id}
			byParticipant[id] = e
		}
		return e
	}

	for _, w := range wins {
		e := get(w.ParticipantID)
		e.Wins = w.Wins
		e.Claimed = w.Claimed
	}
	for _, t := range entries {
		e := get(t.ParticipantID)
		e.Giveaways = t.Giveaways
		e.Tickets = t.Tickets
	}

	board := make([]Entry, 0, len(byParticipant))
	for _, e := range byParticipant {
		board = append(board, *e)
	}
	return board
}

// sortLeaderboard sorts by the metric, descending. Ties fall back to
// participant ID so ranks are stable.
func sortLeaderboard(entries []Entry, metric string) {
	value := func(e Entry) int {
		switch metric {
		case "giveaways":
			return e.Giveaways
		case "tickets":
			return e.Tickets
		default:
			return e.Wins
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		vi, vj := value(entries[i]), value(entries[j])
		if vi != vj {
			return vi > vj
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
}

// calculatePeriodStart calculates the start of a period ending at now.
func calculatePeriodStart(period string, now time.Time) time.Time {
	switch period {
	case "day":
		return now.Add(-24 * time.Hour)
	case "week":
		return now.Add(-7 * 24 * time.Hour)
	case "month":
		return now.Add(-30 * 24 * time.Hour)
	case "year":
		return now.Add(-365 * 24 * time.Hour)
	default:
		return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
}
