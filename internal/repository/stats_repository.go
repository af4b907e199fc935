package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/giveaway-engine/internal/models"
)

// WinTally is the number of current wins of a participant in a guild.
type WinTally struct {
	ParticipantID string
	Wins          int
	Claimed       int
}

// EntryTally sums the entries of a participant in a guild.
type EntryTally struct {
	ParticipantID string
	Giveaways     int
	Tickets       int
}

// StatsRepository aggregates per-guild participation.
type StatsRepository struct {
	db *DB
}

// NewStatsRepository creates a new stats repository.
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// WinsByGuild counts non-rerolled wins selected since the given time.
func (r *StatsRepository) WinsByGuild(ctx context.Context, guildID string, since time.Time) ([]WinTally, error) {
	var tallies []WinTally
	err := r.db.WithContext(ctx).
		Model(&models.Winner{}).
		Select("giveaway_winners.participant_id AS participant_id, " +
			"COUNT(*) AS wins, " +
			"SUM(CASE WHEN giveaway_winners.claimed THEN 1 ELSE 0 END) AS claimed").
		Joins("JOIN giveaways ON giveaways.id = giveaway_winners.giveaway_id").
		Where("giveaways.guild_id = ? AND giveaway_winners.rerolled = ? AND giveaway_winners.selected_at >= ?", guildID, false, since).
		Group("giveaway_winners.participant_id").
		Scan(&tallies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count wins for guild %s: %w", guildID, err)
	}
	return tallies, nil
}

// EntriesByGuild counts giveaways entered and tickets held since the given time.
func (r *StatsRepository) EntriesByGuild(ctx context.Context, guildID string, since time.Time) ([]EntryTally, error) {
	var tallies []EntryTally
	err := r.db.WithContext(ctx).
		Model(&models.Entry{}).
		Select("giveaway_entries.participant_id AS participant_id, " +
			"COUNT(*) AS giveaways, " +
			"SUM(giveaway_entries.entry_count) AS tickets").
		Joins("JOIN giveaways ON giveaways.id = giveaway_entries.giveaway_id").
		Where("giveaways.guild_id = ? AND giveaway_entries.entered_at >= ?", guildID, since).
		Group("giveaway_entries.participant_id").
		Scan(&tallies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count entries for guild %s: %w", guildID, err)
	}
	return tallies, nil
}
