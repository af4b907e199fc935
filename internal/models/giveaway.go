// Package models defines domain models for the giveaway engine.
package models

import (
	"time"
)

// Giveaway represents a time-bounded raffle hosted in a guild channel.
type Giveaway struct {
	ID           string       `gorm:"primaryKey;size:26" json:"id"`
	GuildID      string       `gorm:"not null;index;size:64" json:"guild_id"`
	ChannelID    string       `gorm:"not null;size:64" json:"channel_id"`
	MessageID    *string      `gorm:"size:64" json:"message_id,omitempty"` // set once the announcement is posted
	HostID       string       `gorm:"not null;size:64" json:"host_id"`
	Title        string       `gorm:"not null;size:256" json:"title"`
	Description  string       `gorm:"type:text" json:"description,omitempty"`
	Prize        string       `gorm:"not null;size:256" json:"prize"`
	WinnerCount  int          `gorm:"not null" json:"winner_count"`
	EndsAt       time.Time    `gorm:"not null;index" json:"ends_at"`
	Ended        bool         `gorm:"not null;default:false;index" json:"ended"`
	EndedAt      *time.Time   `json:"ended_at,omitempty"`
	Cancelled    bool         `gorm:"not null;default:false;index" json:"cancelled"`
	CancelledAt  *time.Time   `json:"cancelled_at,omitempty"`
	CancelReason string       `gorm:"type:text" json:"cancel_reason,omitempty"`
	RerollCount  int          `gorm:"not null;default:0" json:"reroll_count"`
	Requirements Requirements `gorm:"serializer:json;type:text" json:"requirements"`
	BonusEntries BonusEntries `gorm:"serializer:json;type:text" json:"bonus_entries"`
	Blacklist    []string     `gorm:"serializer:json;type:text" json:"blacklist,omitempty"`
	Whitelist    []string     `gorm:"serializer:json;type:text" json:"whitelist,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TableName specifies the table name for Giveaway model.
func (Giveaway) TableName() string {
	return "giveaways"
}

// Status returns the lifecycle state derived from the ended/cancelled flags.
func (g *Giveaway) Status() string {
	switch {
	case g.Cancelled:
		return StatusCancelled
	case g.Ended:
		return StatusEnded
	default:
		return StatusActive
	}
}

// IsActive reports whether neither lifecycle flag is set.
func (g *Giveaway) IsActive() bool {
	return !g.Ended && !g.Cancelled
}

// IsBlacklisted reports whether the participant is on the blacklist.
func (g *Giveaway) IsBlacklisted(participantID string) bool {
	for _, id := range g.Blacklist {
		if id == participantID {
			return true
		}
	}
	return false
}

// IsWhitelisted reports whether the participant passes the whitelist.
// An empty whitelist admits everyone.
func (g *Giveaway) IsWhitelisted(participantID string) bool {
	if len(g.Whitelist) == 0 {
		return true
	}
	for _, id := range g.Whitelist {
		if id == participantID {
			return true
		}
	}
	return false
}

// Giveaway status constants.
const (
	StatusActive    = "active"
	StatusEnded     = "ended"
	StatusCancelled = "cancelled"
)
