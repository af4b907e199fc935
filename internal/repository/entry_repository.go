package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/giveaway-engine/internal/models"
)

// EntryRepository handles giveaway entry database operations.
type EntryRepository struct {
	db *DB
}

// NewEntryRepository creates a new entry repository.
func NewEntryRepository(db *DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// lockOpen touches the giveaway row if it still accepts entries at now.
// On postgres the update holds the row lock until the surrounding transaction
// ends, which orders entry changes against the ended/cancelled flip.
func lockOpen(tx *gorm.DB, giveawayID string, now time.Time) error {
	res := tx.Model(&models.Giveaway{}).
		Where("id = ? AND ended = ? AND cancelled = ? AND ends_at > ?", giveawayID, false, false, now).
		Update("updated_at", now)
	if res.Error != nil {
		return fmt.Errorf("failed to lock giveaway %s: %w", giveawayID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// Insert creates the entry if the participant has none yet.
// Returns ErrEntryExists when a row is already present and ErrStateConflict
// when the giveaway no longer accepts entries.
func (r *EntryRepository) Insert(ctx context.Context, entry *models.Entry, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOpen(tx, entry.GiveawayID, now); err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(entry)
		if res.Error != nil {
			return fmt.Errorf("failed to create entry: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrEntryExists
		}
		return nil
	})
}

// AddWeight grants count extra tickets to a participant, creating a manual
// entry when none exists.
func (r *EntryRepository) AddWeight(ctx context.Context, giveawayID, participantID string, count int, reason string, now time.Time) (*models.Entry, error) {
	var entry *models.Entry

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOpen(tx, giveawayID, now); err != nil {
			return err
		}

		res := tx.Model(&models.Entry{}).
			Where("giveaway_id = ? AND participant_id = ?", giveawayID, participantID).
			Updates(map[string]interface{}{
				"entry_count": gorm.Expr("entry_count + ?", count),
				"manual":      true,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to add entries: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			created := &models.Entry{
				GiveawayID:    giveawayID,
				ParticipantID: participantID,
				EntryCount:    count,
				BonusReason:   reason,
				Manual:        true,
				EnteredAt:     now,
			}
			if err := tx.Create(created).Error; err != nil {
				return fmt.Errorf("failed to create manual entry: %w", err)
			}
			entry = created
			return nil
		}

		var err error
		entry, err = getEntry(tx, giveawayID, participantID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Delete removes a participant's entry.
func (r *EntryRepository) Delete(ctx context.Context, giveawayID, participantID string, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOpen(tx, giveawayID, now); err != nil {
			return err
		}
		return deleteEntry(tx, giveawayID, participantID)
	})
}

// RemoveWeight takes count tickets away from a participant. The entry is
// deleted when count is not positive or covers its whole weight; the returned
// entry is nil in that case.
func (r *EntryRepository) RemoveWeight(ctx context.Context, giveawayID, participantID string, count int, now time.Time) (*models.Entry, error) {
	var entry *models.Entry

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOpen(tx, giveawayID, now); err != nil {
			return err
		}

		current, err := getEntry(tx, giveawayID, participantID)
		if err != nil {
			return err
		}

		if count <= 0 || count >= current.EntryCount {
			return deleteEntry(tx, giveawayID, participantID)
		}

		current.EntryCount -= count
		current.Manual = true
		err = tx.Model(&models.Entry{}).
			Where("giveaway_id = ? AND participant_id = ?", giveawayID, participantID).
			Updates(map[string]interface{}{"entry_count": current.EntryCount, "manual": true}).Error
		if err != nil {
			return fmt.Errorf("failed to remove entries: %w", err)
		}
		entry = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

func deleteEntry(tx *gorm.DB, giveawayID, participantID string) error {
	res := tx.Where("giveaway_id = ? AND participant_id = ?", giveawayID, participantID).
		Delete(&models.Entry{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves a single entry.
func (r *EntryRepository) Get(ctx context.Context, giveawayID, participantID string) (*models.Entry, error) {
	return getEntry(r.db.WithContext(ctx), giveawayID, participantID)
}

func getEntry(tx *gorm.DB, giveawayID, participantID string) (*models.Entry, error) {
	var entry models.Entry
	err := tx.Where("giveaway_id = ? AND participant_id = ?", giveawayID, participantID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return &entry, nil
}

// ListByGiveaway lists all entries of a giveaway in entry order.
func (r *EntryRepository) ListByGiveaway(ctx context.Context, giveawayID string) ([]models.Entry, error) {
	return listEntries(r.db.WithContext(ctx), giveawayID)
}

func listEntries(tx *gorm.DB, giveawayID string) ([]models.Entry, error) {
	var entries []models.Entry
	err := tx.Where("giveaway_id = ?", giveawayID).
		Order("entered_at ASC, participant_id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for giveaway %s: %w", giveawayID, err)
	}
	return entries, nil
}

// Count returns the number of participants in a giveaway.
func (r *EntryRepository) Count(ctx context.Context, giveawayID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Entry{}).
		Where("giveaway_id = ?", giveawayID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count entries for giveaway %s: %w", giveawayID, err)
	}
	return count, nil
}
