package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/giveaway-engine/internal/models"
)

// DrawFunc selects winners for a giveaway from its entries. prior holds every
// winner row recorded so far (empty for the initial draw).
type DrawFunc func(g *models.Giveaway, entries []models.Entry, prior []models.Winner) ([]string, error)

// GiveawayRepository handles giveaway and winner database operations.
type GiveawayRepository struct {
	db *DB
}

// NewGiveawayRepository creates a new giveaway repository.
func NewGiveawayRepository(db *DB) *GiveawayRepository {
	return &GiveawayRepository{db: db}
}

// Create persists a new giveaway.
func (r *GiveawayRepository) Create(ctx context.Context, g *models.Giveaway) error {
	if err := r.db.WithContext(ctx).Create(g).Error; err != nil {
		return fmt.Errorf("failed to create giveaway: %w", err)
	}
	return nil
}

// GetByID retrieves a giveaway by ID.
func (r *GiveawayRepository) GetByID(ctx context.Context, id string) (*models.Giveaway, error) {
	return getGiveaway(r.db.WithContext(ctx), id)
}

func getGiveaway(tx *gorm.DB, id string) (*models.Giveaway, error) {
	var g models.Giveaway
	if err := tx.Where("id = ?", id).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get giveaway %s: %w", id, err)
	}
	return &g, nil
}

// ListActive lists giveaways that are neither ended nor cancelled, soonest first.
// An empty guildID lists across all guilds.
func (r *GiveawayRepository) ListActive(ctx context.Context, guildID string) ([]models.Giveaway, error) {
	var giveaways []models.Giveaway
	query := r.db.WithContext(ctx).Where("ended = ? AND cancelled = ?", false, false)
	if guildID != "" {
		query = query.Where("guild_id = ?", guildID)
	}
	if err := query.Order("ends_at ASC").Find(&giveaways).Error; err != nil {
		return nil, fmt.Errorf("failed to list active giveaways: %w", err)
	}
	return giveaways, nil
}

// ListOverdue lists active giveaways whose end time is at or before now.
func (r *GiveawayRepository) ListOverdue(ctx context.Context, now time.Time) ([]models.Giveaway, error) {
	var giveaways []models.Giveaway
	err := r.db.WithContext(ctx).
		Where("ended = ? AND cancelled = ? AND ends_at <= ?", false, false, now).
		Order("ends_at ASC").
		Find(&giveaways).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue giveaways: %w", err)
	}
	return giveaways, nil
}

// UpdateActive writes the named columns from values only while the giveaway
// is active. Returns ErrStateConflict when it is missing or no longer active.
func (r *GiveawayRepository) UpdateActive(ctx context.Context, id string, values *models.Giveaway, columns ...string) error {
	tx := r.db.WithContext(ctx).Model(&models.Giveaway{}).
		Where("id = ? AND ended = ? AND cancelled = ?", id, false, false).
		Select(columns).
		Updates(values)
	if tx.Error != nil {
		return fmt.Errorf("failed to update giveaway %s: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// ExtendEnd moves the end time of a giveaway that is active and not yet due
// at now. Returns ErrStateConflict otherwise, so an extension cannot race a
// due end.
func (r *GiveawayRepository) ExtendEnd(ctx context.Context, id string, endsAt, now time.Time) error {
	tx := r.db.WithContext(ctx).Model(&models.Giveaway{}).
		Where("id = ? AND ended = ? AND cancelled = ? AND ends_at > ?", id, false, false, now).
		Update("ends_at", endsAt)
	if tx.Error != nil {
		return fmt.Errorf("failed to extend giveaway %s: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// SetMessageID records the external message reference.
func (r *GiveawayRepository) SetMessageID(ctx context.Context, id, messageID string) error {
	tx := r.db.WithContext(ctx).Model(&models.Giveaway{}).
		Where("id = ?", id).
		Update("message_id", messageID)
	if tx.Error != nil {
		return fmt.Errorf("failed to set message id for giveaway %s: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Cancel flips the cancelled flag if the giveaway is still active.
func (r *GiveawayRepository) Cancel(ctx context.Context, id, reason string, at time.Time) error {
	tx := r.db.WithContext(ctx).Model(&models.Giveaway{}).
		Where("id = ? AND ended = ? AND cancelled = ?", id, false, false).
		Updates(map[string]interface{}{
			"cancelled":     true,
			"cancelled_at":  at,
			"cancel_reason": reason,
		})
	if tx.Error != nil {
		return fmt.Errorf("failed to cancel giveaway %s: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// Complete ends an active giveaway and records its winners in one transaction.
// The ended flag is flipped first with a conditional update so that only one
// caller ever reaches the draw; a losing caller gets ErrStateConflict.
func (r *GiveawayRepository) Complete(ctx context.Context, id string, at time.Time, draw DrawFunc) (*models.Giveaway, []models.Winner, error) {
	var (
		giveaway *models.Giveaway
		winners  []models.Winner
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Giveaway{}).
			Where("id = ? AND ended = ? AND cancelled = ?", id, false, false).
			Updates(map[string]interface{}{"ended": true, "ended_at": at})
		if res.Error != nil {
			return fmt.Errorf("failed to mark giveaway %s ended: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStateConflict
		}

		g, err := getGiveaway(tx, id)
		if err != nil {
			return err
		}

		entries, err := listEntries(tx, id)
		if err != nil {
			return err
		}

		ids, err := draw(g, entries, nil)
		if err != nil {
			return err
		}

		winners, err = insertWinners(tx, id, ids, 0, at)
		if err != nil {
			return err
		}

		giveaway = g
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return giveaway, winners, nil
}

// Reroll supersedes the current winners of an ended giveaway with a new draw.
// The reroll counter is bumped conditionally so concurrent rerolls serialize;
// if draw fails nothing is changed.
func (r *GiveawayRepository) Reroll(ctx context.Context, id string, at time.Time, draw DrawFunc) (*models.Giveaway, []models.Winner, error) {
	var (
		giveaway *models.Giveaway
		winners  []models.Winner
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Giveaway{}).
			Where("id = ? AND ended = ? AND cancelled = ?", id, true, false).
			Update("reroll_count", gorm.Expr("reroll_count + ?", 1))
		if res.Error != nil {
			return fmt.Errorf("failed to bump reroll count for giveaway %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStateConflict
		}

		g, err := getGiveaway(tx, id)
		if err != nil {
			return err
		}

		entries, err := listEntries(tx, id)
		if err != nil {
			return err
		}

		var prior []models.Winner
		if err := tx.Where("giveaway_id = ?", id).Order("round ASC, id ASC").Find(&prior).Error; err != nil {
			return fmt.Errorf("failed to list winners for giveaway %s: %w", id, err)
		}

		ids, err := draw(g, entries, prior)
		if err != nil {
			return err
		}

		err = tx.Model(&models.Winner{}).
			Where("giveaway_id = ? AND rerolled = ?", id, false).
			Update("rerolled", true).Error
		if err != nil {
			return fmt.Errorf("failed to mark winners rerolled for giveaway %s: %w", id, err)
		}

		winners, err = insertWinners(tx, id, ids, g.RerollCount, at)
		if err != nil {
			return err
		}

		giveaway = g
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return giveaway, winners, nil
}

func insertWinners(tx *gorm.DB, giveawayID string, participantIDs []string, round int, at time.Time) ([]models.Winner, error) {
	winners := make([]models.Winner, 0, len(participantIDs))
	for _, pid := range participantIDs {
		winners = append(winners, models.Winner{
			GiveawayID:    giveawayID,
			ParticipantID: pid,
			Round:         round,
			SelectedAt:    at,
		})
	}
	if len(winners) == 0 {
		return winners, nil
	}
	if err := tx.Create(&winners).Error; err != nil {
		return nil, fmt.Errorf("failed to create winners for giveaway %s: %w", giveawayID, err)
	}
	return winners, nil
}

// GetWinners lists winners of a giveaway in selection order. Superseded
// rows are included only when includeRerolled is set.
func (r *GiveawayRepository) GetWinners(ctx context.Context, giveawayID string, includeRerolled bool) ([]models.Winner, error) {
	var winners []models.Winner
	query := r.db.WithContext(ctx).Where("giveaway_id = ?", giveawayID)
	if !includeRerolled {
		query = query.Where("rerolled = ?", false)
	}
	if err := query.Order("round ASC, id ASC").Find(&winners).Error; err != nil {
		return nil, fmt.Errorf("failed to get winners for giveaway %s: %w", giveawayID, err)
	}
	return winners, nil
}

// ClaimWinner marks a current winner's prize as claimed.
func (r *GiveawayRepository) ClaimWinner(ctx context.Context, giveawayID, participantID string, at time.Time) error {
	tx := r.db.WithContext(ctx).Model(&models.Winner{}).
		Where("giveaway_id = ? AND participant_id = ? AND rerolled = ? AND claimed = ?", giveawayID, participantID, false, false).
		Updates(map[string]interface{}{"claimed": true, "claimed_at": at})
	if tx.Error != nil {
		return fmt.Errorf("failed to claim prize for giveaway %s: %w", giveawayID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
