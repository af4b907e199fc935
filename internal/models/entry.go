package models

import (
	"time"
)

// Entry represents a participant's registration in a giveaway.
type Entry struct {
	GiveawayID    string     `gorm:"primaryKey;size:26" json:"giveaway_id"`
	ParticipantID string     `gorm:"primaryKey;size:64" json:"participant_id"`
	EntryCount    int        `gorm:"not null;default:1" json:"entry_count"` // lottery weight
	BonusReason   string     `gorm:"type:text" json:"bonus_reason,omitempty"`
	Manual        bool       `gorm:"not null;default:false" json:"manual"`
	Roles         []string   `gorm:"serializer:json;type:text" json:"roles,omitempty"`
	JoinedAt      *time.Time `json:"joined_at,omitempty"`
	EnteredAt     time.Time  `gorm:"not null" json:"entered_at"`
}

// TableName specifies the table name for Entry model.
func (Entry) TableName() string {
	return "giveaway_entries"
}

// Winner represents a participant selected by a draw.
type Winner struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	GiveawayID    string     `gorm:"not null;size:26;uniqueIndex:idx_winner_round" json:"giveaway_id"`
	ParticipantID string     `gorm:"not null;size:64;uniqueIndex:idx_winner_round" json:"participant_id"`
	Round         int        `gorm:"not null;default:0;uniqueIndex:idx_winner_round" json:"round"` // 0 = initial draw, n = n-th reroll
	Rerolled      bool       `gorm:"not null;default:false;index" json:"rerolled"`
	Claimed       bool       `gorm:"not null;default:false" json:"claimed"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	SelectedAt    time.Time  `gorm:"not null" json:"selected_at"`
}

// TableName specifies the table name for Winner model.
func (Winner) TableName() string {
	return "giveaway_winners"
}
