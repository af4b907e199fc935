package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/giveaway-engine/internal/models"
)

// MemberRepository reads and writes member facts.
type MemberRepository struct {
	db *DB
}

// NewMemberRepository creates a new member repository.
func NewMemberRepository(db *DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Get retrieves the stored member record.
func (r *MemberRepository) Get(ctx context.Context, guildID, userID string) (*models.MemberFacts, error) {
	var m models.MemberFacts
	err := r.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", guildID, userID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get member %s in guild %s: %w", userID, guildID, err)
	}
	return &m, nil
}

// GetFacts returns the eligibility snapshot for a participant.
func (r *MemberRepository) GetFacts(ctx context.Context, participantID, guildID string) (*models.ParticipantFacts, error) {
	m, err := r.Get(ctx, guildID, participantID)
	if err != nil {
		return nil, err
	}
	return m.ToParticipantFacts(), nil
}

// Upsert creates or replaces a member record.
func (r *MemberRepository) Upsert(ctx context.Context, m *models.MemberFacts) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "user_id"}},
		UpdateAll: true,
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("failed to upsert member %s in guild %s: %w", m.UserID, m.GuildID, err)
	}
	return nil
}
