// Package giveaway runs the giveaway lifecycle: creation, entries, scheduled
// and manual ending, cancellation, rerolls and prize claims.
package giveaway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aimd54/giveaway-engine/internal/ids"
	"github.com/aimd54/giveaway-engine/internal/metrics"
	"github.com/aimd54/giveaway-engine/internal/models"
	"github.com/aimd54/giveaway-engine/internal/ratelimit"
	"github.com/aimd54/giveaway-engine/internal/repository"
	"github.com/aimd54/giveaway-engine/internal/service/eligibility"
	"github.com/aimd54/giveaway-engine/internal/service/lottery"
	"github.com/aimd54/giveaway-engine/pkg/logger"
)

const (
	maxTitleLength  = 256
	maxReasonLength = 512
)

// GiveawayStore persists giveaways and their winners.
type GiveawayStore interface {
	Create(ctx context.Context, g *models.Giveaway) error
	GetByID(ctx context.Context, id string) (*models.Giveaway, error)
	ListActive(ctx context.Context, guildID string) ([]models.Giveaway, error)
	ListOverdue(ctx context.Context, now time.Time) ([]models.Giveaway, error)
	UpdateActive(ctx context.Context, id string, values *models.Giveaway, columns ...string) error
	SetMessageID(ctx context.Context, id, messageID string) error
	Cancel(ctx context.Context, id, reason string, at time.Time) error
	Complete(ctx context.Context, id string, at time.Time, draw repository.DrawFunc) (*models.Giveaway, []models.Winner, error)
	Reroll(ctx context.Context, id string, at time.Time, draw repository.DrawFunc) (*models.Giveaway, []models.Winner, error)
	ExtendEnd(ctx context.Context, id string, endsAt, now time.Time) error
	GetWinners(ctx context.Context, giveawayID string, includeRerolled bool) ([]models.Winner, error)
	ClaimWinner(ctx context.Context, giveawayID, participantID string, at time.Time) error
}

// EntryStore persists entries.
type EntryStore interface {
	Insert(ctx context.Context, entry *models.Entry, now time.Time) error
	AddWeight(ctx context.Context, giveawayID, participantID string, count int, reason string, now time.Time) (*models.Entry, error)
	Delete(ctx context.Context, giveawayID, participantID string, now time.Time) error
	RemoveWeight(ctx context.Context, giveawayID, participantID string, count int, now time.Time) (*models.Entry, error)
	ListByGiveaway(ctx context.Context, giveawayID string) ([]models.Entry, error)
	Count(ctx context.Context, giveawayID string) (int64, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Selector draws up to count distinct winners from tickets, skipping excluded participants.
type Selector func(tickets []lottery.Ticket, count int, exclude map[string]bool) []string

// Config holds engine policy.
type Config struct {
	MaxDuration  time.Duration
	MaxWinners   int
	RetryBackoff time.Duration
	FireTimeout  time.Duration
}

// DefaultConfig returns the reference policy.
func DefaultConfig() Config {
	return Config{
		MaxDuration:  30 * 24 * time.Hour,
		MaxWinners:   50,
		RetryBackoff: 200 * time.Millisecond,
		FireTimeout:  30 * time.Second,
	}
}

// Option customizes a Service.
type Option func(*Service)

// WithFactProvider sets the source of participant facts used when a caller
// does not supply them.
func WithFactProvider(p FactProvider) Option {
	return func(s *Service) { s.facts = p }
}

// WithNotifier sets the presentation notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLimiter throttles entry attempts.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithSelector overrides the winner selection.
func WithSelector(sel Selector) Option {
	return func(s *Service) { s.selector = sel }
}

// Service is the giveaway engine. It owns the end-timer registry.
type Service struct {
	giveaways GiveawayStore
	entries   EntryStore
	facts     FactProvider
	notifier  Notifier
	limiter   ratelimit.Limiter
	ids       *ids.Generator
	clock     Clock
	selector  Selector
	cfg       Config
	scheduler *Scheduler
	log       *logger.Logger
}

// NewService creates a new giveaway engine.
func NewService(giveaways GiveawayStore, entries EntryStore, cfg Config, log *logger.Logger, opts ...Option) *Service {
	defaults := DefaultConfig()
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaults.MaxDuration
	}
	if cfg.MaxWinners <= 0 {
		cfg.MaxWinners = defaults.MaxWinners
	}
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = defaults.FireTimeout
	}

	s := &Service{
		giveaways: giveaways,
		entries:   entries,
		notifier:  NopNotifier{},
		ids:       ids.NewGenerator(),
		clock:     systemClock{},
		selector:  lottery.SelectWinners,
		cfg:       cfg,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scheduler = NewScheduler(s.fire, log)
	return s
}

// CreateRequest describes a new giveaway.
type CreateRequest struct {
	HostID       string
	GuildID      string
	ChannelID    string
	Title        string
	Description  string
	Prize        string
	Duration     time.Duration
	WinnerCount  int
	Requirements *models.Requirements
	BonusEntries *models.BonusEntries
	Blacklist    []string
	Whitelist    []string
}

// EditRequest carries the mutable presentation fields. Nil fields are left unchanged.
type EditRequest struct {
	Title       *string
	Description *string
	Prize       *string
	WinnerCount *int
}

// ReconcileReport summarizes a reconcile sweep.
type ReconcileReport struct {
	Ended     int
	Scheduled int
	Failed    int
}

// Create persists a new active giveaway and arms its end timer.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	g := &models.Giveaway{
		ID:          s.ids.New(),
		GuildID:     req.GuildID,
		ChannelID:   req.ChannelID,
		HostID:      req.HostID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Prize:       strings.TrimSpace(req.Prize),
		WinnerCount: req.WinnerCount,
		EndsAt:      now.Add(req.Duration),
		Blacklist:   req.Blacklist,
		Whitelist:   req.Whitelist,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Requirements != nil {
		g.Requirements = *req.Requirements
	}
	if req.BonusEntries != nil {
		g.BonusEntries = *req.BonusEntries
	}

	if err := s.giveaways.Create(ctx, g); err != nil {
		return nil, unavailable(err)
	}

	s.scheduler.Schedule(g.ID, req.Duration)
	metrics.RecordGiveawayCreated()

	s.log.Info().
		Str("giveaway_id", g.ID).
		Str("guild_id", g.GuildID).
		Str("host_id", g.HostID).
		Time("ends_at", g.EndsAt).
		Int("winner_count", g.WinnerCount).
		Msg("Giveaway created")

	s.notify(ctx, Event{Type: EventCreated, Giveaway: g})
	return success("Giveaway created.", g), nil
}

func (s *Service) validateCreate(req CreateRequest) error {
	if err := s.validateDuration(req.Duration); err != nil {
		return err
	}
	if err := s.validateWinnerCount(req.WinnerCount); err != nil {
		return err
	}
	switch {
	case req.HostID == "":
		return invalidInput("host ID is required")
	case req.GuildID == "":
		return invalidInput("guild ID is required")
	case req.ChannelID == "":
		return invalidInput("channel ID is required")
	}
	if err := validateText("title", req.Title); err != nil {
		return err
	}
	if err := validateText("prize", req.Prize); err != nil {
		return err
	}
	if req.Requirements != nil {
		if err := req.Requirements.Validate(); err != nil {
			return invalidInput("%v", err)
		}
	}
	if req.BonusEntries != nil {
		if err := req.BonusEntries.Validate(); err != nil {
			return invalidInput("%v", err)
		}
	}
	return validateAccessLists(req.Blacklist, req.Whitelist)
}

func (s *Service) validateDuration(d time.Duration) error {
	if d <= 0 {
		return newError(KindInvalidDuration, "duration must be positive")
	}
	if d > s.cfg.MaxDuration {
		return newError(KindInvalidDuration, fmt.Sprintf("duration must not exceed %s", eligibility.FormatAge(s.cfg.MaxDuration)))
	}
	return nil
}

func (s *Service) validateWinnerCount(n int) error {
	if n < 1 {
		return newError(KindInvalidWinnerCount, "at least one winner is required")
	}
	if n > s.cfg.MaxWinners {
		return newError(KindInvalidWinnerCount, fmt.Sprintf("at most %d winners are allowed", s.cfg.MaxWinners))
	}
	return nil
}

func validateText(field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return invalidInput("%s is required", field)
	}
	if len(value) > maxTitleLength {
		return invalidInput("%s must be at most %d characters", field, maxTitleLength)
	}
	return nil
}

func validateAccessLists(blacklist, whitelist []string) error {
	for _, id := range blacklist {
		if id == "" {
			return invalidInput("blacklist must not contain empty IDs")
		}
	}
	for _, id := range whitelist {
		if id == "" {
			return invalidInput("whitelist must not contain empty IDs")
		}
	}
	return nil
}

// Enter registers a participant. When facts is nil they are fetched from the
// fact provider; missing facts fail any configured requirement.
func (s *Service) Enter(ctx context.Context, giveawayID, participantID string, facts *models.ParticipantFacts) (*Result, error) {
	if participantID == "" {
		return nil, invalidInput("participant ID is required")
	}

	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}

	if err := s.checkRate(ctx, giveawayID, participantID); err != nil {
		metrics.RecordEntryAttempt("rate_limited")
		return nil, err
	}

	now := s.clock.Now()
	if err := openForEntries(g, now); err != nil {
		metrics.RecordEntryAttempt("closed")
		return nil, err
	}
	if err := checkAccessLists(g, participantID); err != nil {
		metrics.RecordEntryAttempt("not_eligible")
		return nil, err
	}

	// Nothing to evaluate without requirements or bonus rules.
	if facts == nil && !(g.Requirements.IsEmpty() && g.BonusEntries.IsEmpty()) {
		facts = s.lookupFacts(ctx, participantID, g.GuildID)
	}

	if ok, reason := eligibility.Eligible(facts, g.Requirements, now); !ok {
		metrics.RecordEntryAttempt("not_eligible")
		return nil, newError(KindNotEligible, reason)
	}

	weight, reasons := eligibility.EntryWeight(facts, g.BonusEntries)
	entry := &models.Entry{
		GiveawayID:    g.ID,
		ParticipantID: participantID,
		EntryCount:    weight,
		BonusReason:   strings.Join(reasons, ", "),
		EnteredAt:     now,
	}
	if facts != nil {
		entry.Roles = facts.Roles
		entry.JoinedAt = facts.JoinedAt
	}

	if err := s.entries.Insert(ctx, entry, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrEntryExists):
			metrics.RecordEntryAttempt("duplicate")
			return nil, newError(KindAlreadyEntered, "")
		case errors.Is(err, repository.ErrStateConflict):
			metrics.RecordEntryAttempt("closed")
			return nil, newError(KindAlreadyEnded, "")
		default:
			return nil, unavailable(err)
		}
	}

	metrics.RecordEntryAttempt("entered")
	s.log.Debug().
		Str("giveaway_id", g.ID).
		Str("participant_id", participantID).
		Int("entry_count", weight).
		Msg("Participant entered giveaway")

	s.notify(ctx, Event{Type: EventEntered, Giveaway: g, ParticipantID: participantID, EntryCount: weight})
	return success(fmt.Sprintf("You have entered the giveaway with %s.", pluralEntries(weight)), g).withEntryCount(weight), nil
}

// Leave removes a participant's entry.
func (s *Service) Leave(ctx context.Context, giveawayID, participantID string) (*Result, error) {
	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := openForEntries(g, now); err != nil {
		return nil, err
	}

	if err := s.entries.Delete(ctx, giveawayID, participantID, now); err != nil {
		return nil, entryStoreError(err)
	}

	s.log.Debug().
		Str("giveaway_id", giveawayID).
		Str("participant_id", participantID).
		Msg("Participant left giveaway")

	s.notify(ctx, Event{Type: EventLeft, Giveaway: g, ParticipantID: participantID})
	return success("You have left the giveaway.", g), nil
}

// AddEntry grants count tickets to a participant without evaluating requirements.
// Access lists still apply.
func (s *Service) AddEntry(ctx context.Context, giveawayID, participantID string, count int) (*Result, error) {
	if participantID == "" {
		return nil, invalidInput("participant ID is required")
	}
	if count < 1 {
		return nil, invalidInput("entry count must be at least 1")
	}

	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := openForEntries(g, now); err != nil {
		return nil, err
	}
	if err := checkAccessLists(g, participantID); err != nil {
		return nil, err
	}

	entry, err := s.entries.AddWeight(ctx, giveawayID, participantID, count, "Added by an administrator", now)
	if err != nil {
		return nil, entryStoreError(err)
	}

	s.log.Info().
		Str("giveaway_id", giveawayID).
		Str("participant_id", participantID).
		Int("added", count).
		Int("entry_count", entry.EntryCount).
		Msg("Entries added manually")

	s.notify(ctx, Event{Type: EventEntriesAdjusted, Giveaway: g, ParticipantID: participantID, EntryCount: entry.EntryCount})
	return success(fmt.Sprintf("Participant now has %s.", pluralEntries(entry.EntryCount)), g).withEntryCount(entry.EntryCount), nil
}

// RemoveEntry takes count tickets away from a participant; a count of zero
// or one covering the whole weight removes the entry.
func (s *Service) RemoveEntry(ctx context.Context, giveawayID, participantID string, count int) (*Result, error) {
	if count < 0 {
		return nil, invalidInput("entry count must not be negative")
	}

	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := openForEntries(g, now); err != nil {
		return nil, err
	}

	entry, err := s.entries.RemoveWeight(ctx, giveawayID, participantID, count, now)
	if err != nil {
		return nil, entryStoreError(err)
	}

	remaining := 0
	message := "Participant has been removed from the giveaway."
	if entry != nil {
		remaining = entry.EntryCount
		message = fmt.Sprintf("Participant now has %s.", pluralEntries(remaining))
	}

	s.log.Info().
		Str("giveaway_id", giveawayID).
		Str("participant_id", participantID).
		Int("entry_count", remaining).
		Msg("Entries removed manually")

	s.notify(ctx, Event{Type: EventEntriesAdjusted, Giveaway: g, ParticipantID: participantID, EntryCount: remaining})
	return success(message, g).withEntryCount(remaining), nil
}

// End closes an active giveaway and draws its winners. forced marks a manual
// end; both manual and scheduled ends fail with AlreadyEnded once the
// giveaway is closed, and the draw happens at most once. An unforced end of a
// giveaway whose end time was moved past now is rolled back, rescheduled and
// reported as NotYetEnded.
func (s *Service) End(ctx context.Context, giveawayID string, forced bool) (*Result, error) {
	start := time.Now()

	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if !g.IsActive() {
		s.scheduler.Cancel(giveawayID)
		return nil, inactiveError(g)
	}

	var (
		participants int
		tickets      int64
		due          time.Time
	)
	now := s.clock.Now()
	draw := func(g *models.Giveaway, entries []models.Entry, _ []models.Winner) ([]string, error) {
		if !forced && now.Before(g.EndsAt) {
			due = g.EndsAt
			return nil, errNotDue
		}
		participants = len(entries)
		tickets = lottery.TotalWeight(toTickets(entries), nil)
		return s.draw(entries, g.WinnerCount, nil), nil
	}

	ended, winners, err := s.giveaways.Complete(ctx, giveawayID, now, draw)
	if err != nil {
		if errors.Is(err, errNotDue) {
			s.scheduler.Schedule(giveawayID, due.Sub(now))
			return nil, newError(KindNotYetEnded, "")
		}
		if errors.Is(err, repository.ErrStateConflict) {
			s.scheduler.Cancel(giveawayID)
			return nil, s.lifecycleConflict(ctx, giveawayID)
		}
		return nil, storeError(err)
	}
	s.scheduler.Cancel(giveawayID)

	winnerIDs := participantIDs(winners)
	trigger := "automatic"
	if forced {
		trigger = "manual"
	}
	metrics.RecordGiveawayEnded(trigger, participants, time.Since(start).Seconds())
	metrics.RecordWinnersDrawn("initial", len(winnerIDs))

	s.log.Info().
		Str("giveaway_id", giveawayID).
		Str("trigger", trigger).
		Int("participants", participants).
		Int64("tickets", tickets).
		Strs("winners", winnerIDs).
		Msg("Giveaway ended")

	s.notify(ctx, Event{Type: EventEnded, Giveaway: ended, Winners: winnerIDs, Participants: participants, Forced: forced})
	return success(endMessage(winnerIDs), ended).withWinners(winnerIDs).withEntryCount(participants), nil
}

// Cancel closes an active giveaway without drawing winners.
func (s *Service) Cancel(ctx context.Context, giveawayID, reason string) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, invalidInput("reason must be at most %d characters", maxReasonLength)
	}

	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if !g.IsActive() {
		return nil, inactiveError(g)
	}

	now := s.clock.Now()
	if err := s.giveaways.Cancel(ctx, giveawayID, reason, now); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, s.lifecycleConflict(ctx, giveawayID)
		}
		return nil, unavailable(err)
	}
	s.scheduler.Cancel(giveawayID)

	g.Cancelled = true
	g.CancelledAt = &now
	g.CancelReason = reason
	metrics.RecordGiveawayCancelled()

	s.log.Info().
		Str("giveaway_id", giveawayID).
		Str("reason", reason).
		Msg("Giveaway cancelled")

	s.notify(ctx, Event{Type: EventCancelled, Giveaway: g, Reason: reason})
	return success("Giveaway cancelled.", g), nil
}

// Reroll supersedes the current winners of an ended giveaway with count new
// winners drawn from participants who have never won it. It fails without
// changing anything when fewer than count such participants remain.
func (s *Service) Reroll(ctx context.Context, giveawayID string, count int) (*Result, error) {
	if err := s.validateWinnerCount(count); err != nil {
		return nil, err
	}

	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	switch {
	case g.Cancelled:
		return nil, newError(KindAlreadyCancelled, "")
	case !g.Ended:
		return nil, newError(KindNotYetEnded, "")
	}

	draw := func(_ *models.Giveaway, entries []models.Entry, prior []models.Winner) ([]string, error) {
		exclude := make(map[string]bool, len(prior))
		for _, w := range prior {
			exclude[w.ParticipantID] = true
		}
		picked := s.draw(entries, count, exclude)
		if len(picked) < count {
			return nil, newError(KindNoEligibleParticipants, "")
		}
		return picked, nil
	}

	updated, winners, err := s.giveaways.Reroll(ctx, giveawayID, s.clock.Now(), draw)
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, s.lifecycleConflict(ctx, giveawayID)
		}
		return nil, storeError(err)
	}

	winnerIDs := participantIDs(winners)
	metrics.RecordReroll()
	metrics.RecordWinnersDrawn("reroll", len(winnerIDs))

	s.log.Info().
		Str("giveaway_id", giveawayID).
		Int("round", updated.RerollCount).
		Strs("winners", winnerIDs).
		Msg("Giveaway rerolled")

	s.notify(ctx, Event{Type: EventRerolled, Giveaway: updated, Winners: winnerIDs})
	return success(rerollMessage(winnerIDs), updated).withWinners(winnerIDs), nil
}

// Edit updates the presentation fields and winner count of an active giveaway.
func (s *Service) Edit(ctx context.Context, giveawayID string, patch EditRequest) (*Result, error) {
	values := &models.Giveaway{}
	var columns []string

	if patch.Title != nil {
		if err := validateText("title", *patch.Title); err != nil {
			return nil, err
		}
		values.Title = strings.TrimSpace(*patch.Title)
		columns = append(columns, "title")
	}
	if patch.Description != nil {
		values.Description = *patch.Description
		columns = append(columns, "description")
	}
	if patch.Prize != nil {
		if err := validateText("prize", *patch.Prize); err != nil {
			return nil, err
		}
		values.Prize = strings.TrimSpace(*patch.Prize)
		columns = append(columns, "prize")
	}
	if patch.WinnerCount != nil {
		if err := s.validateWinnerCount(*patch.WinnerCount); err != nil {
			return nil, err
		}
		values.WinnerCount = *patch.WinnerCount
		columns = append(columns, "winner_count")
	}
	if len(columns) == 0 {
		return nil, invalidInput("no fields to update")
	}

	g, err := s.updateActive(ctx, giveawayID, values, columns...)
	if err != nil {
		return nil, err
	}
	return success("Giveaway updated.", g), nil
}

// UpdateRequirements replaces the eligibility requirements of an active giveaway.
// Existing entries are kept.
func (s *Service) UpdateRequirements(ctx context.Context, giveawayID string, req models.Requirements) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidInput("%v", err)
	}

	g, err := s.updateActive(ctx, giveawayID, &models.Giveaway{Requirements: req}, "requirements")
	if err != nil {
		return nil, err
	}
	return success("Requirements updated.", g), nil
}

// UpdateBonusEntries replaces the bonus rules of an active giveaway. They
// apply to entries made afterwards.
func (s *Service) UpdateBonusEntries(ctx context.Context, giveawayID string, bonus models.BonusEntries) (*Result, error) {
	if err := bonus.Validate(); err != nil {
		return nil, invalidInput("%v", err)
	}

	g, err := s.updateActive(ctx, giveawayID, &models.Giveaway{BonusEntries: bonus}, "bonus_entries")
	if err != nil {
		return nil, err
	}
	return success("Bonus entries updated.", g), nil
}

// UpdateAccessLists replaces the blacklist and whitelist of an active giveaway.
func (s *Service) UpdateAccessLists(ctx context.Context, giveawayID string, blacklist, whitelist []string) (*Result, error) {
	if err := validateAccessLists(blacklist, whitelist); err != nil {
		return nil, err
	}

	values := &models.Giveaway{Blacklist: blacklist, Whitelist: whitelist}
	g, err := s.updateActive(ctx, giveawayID, values, "blacklist", "whitelist")
	if err != nil {
		return nil, err
	}
	return success("Access lists updated.", g), nil
}

// Extend pushes the end time of an active giveaway forward and rearms its timer.
// The total duration stays within the configured maximum.
func (s *Service) Extend(ctx context.Context, giveawayID string, extra time.Duration) (*Result, error) {
	if extra <= 0 {
		return nil, newError(KindInvalidDuration, "extension must be positive")
	}

	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if !g.IsActive() {
		return nil, inactiveError(g)
	}

	now := s.clock.Now()
	if !now.Before(g.EndsAt) {
		return nil, newError(KindAlreadyEnded, "")
	}

	endsAt := g.EndsAt.Add(extra)
	if endsAt.Sub(g.CreatedAt) > s.cfg.MaxDuration {
		return nil, newError(KindInvalidDuration, fmt.Sprintf("total duration must not exceed %s", eligibility.FormatAge(s.cfg.MaxDuration)))
	}

	if err := s.giveaways.ExtendEnd(ctx, giveawayID, endsAt, now); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, s.extendConflict(ctx, giveawayID)
		}
		return nil, unavailable(err)
	}
	s.scheduler.Schedule(giveawayID, endsAt.Sub(now))

	updated, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}

	return success(fmt.Sprintf("Giveaway extended until %s.", endsAt.Format(time.RFC1123)), updated), nil
}

func (s *Service) updateActive(ctx context.Context, giveawayID string, values *models.Giveaway, columns ...string) (*models.Giveaway, error) {
	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if !g.IsActive() {
		return nil, inactiveError(g)
	}

	if err := s.giveaways.UpdateActive(ctx, giveawayID, values, columns...); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, s.lifecycleConflict(ctx, giveawayID)
		}
		return nil, unavailable(err)
	}

	updated, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("giveaway_id", giveawayID).
		Strs("fields", columns).
		Msg("Giveaway updated")

	s.notify(ctx, Event{Type: EventUpdated, Giveaway: updated})
	return updated, nil
}

// SetMessageReference records the external message announcing the giveaway.
func (s *Service) SetMessageReference(ctx context.Context, giveawayID, messageID string) (*Result, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, invalidInput("message ID is required")
	}

	if err := s.giveaways.SetMessageID(ctx, giveawayID, messageID); err != nil {
		return nil, storeError(err)
	}

	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	return success("Message reference saved.", g), nil
}

// ClaimPrize marks the prize of a current winner as claimed.
func (s *Service) ClaimPrize(ctx context.Context, giveawayID, participantID string) (*Result, error) {
	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	switch {
	case g.Cancelled:
		return nil, newError(KindAlreadyCancelled, "")
	case !g.Ended:
		return nil, newError(KindNotYetEnded, "")
	}

	if err := s.giveaways.ClaimWinner(ctx, giveawayID, participantID, s.clock.Now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "You have no unclaimed prize in this giveaway.")
		}
		return nil, unavailable(err)
	}

	s.log.Info().
		Str("giveaway_id", giveawayID).
		Str("participant_id", participantID).
		Msg("Prize claimed")

	s.notify(ctx, Event{Type: EventClaimed, Giveaway: g, ParticipantID: participantID})
	return success("Prize claimed. Congratulations!", g), nil
}

// Get returns a giveaway.
func (s *Service) Get(ctx context.Context, giveawayID string) (*models.Giveaway, error) {
	return s.getGiveaway(ctx, giveawayID)
}

// ListActive returns the active giveaways of a guild, or of all guilds when guildID is empty.
func (s *Service) ListActive(ctx context.Context, guildID string) ([]models.Giveaway, error) {
	var giveaways []models.Giveaway
	err := s.read(ctx, func() error {
		var err error
		giveaways, err = s.giveaways.ListActive(ctx, guildID)
		return storeError(err)
	})
	return giveaways, err
}

// ParticipantCount returns the number of participants entered in a giveaway.
func (s *Service) ParticipantCount(ctx context.Context, giveawayID string) (int, error) {
	if _, err := s.getGiveaway(ctx, giveawayID); err != nil {
		return 0, err
	}

	var count int64
	err := s.read(ctx, func() error {
		var err error
		count, err = s.entries.Count(ctx, giveawayID)
		return storeError(err)
	})
	return int(count), err
}

// Entries returns the entries of a giveaway.
func (s *Service) Entries(ctx context.Context, giveawayID string) ([]models.Entry, error) {
	if _, err := s.getGiveaway(ctx, giveawayID); err != nil {
		return nil, err
	}

	var entries []models.Entry
	err := s.read(ctx, func() error {
		var err error
		entries, err = s.entries.ListByGiveaway(ctx, giveawayID)
		return storeError(err)
	})
	return entries, err
}

// Winners returns the winners of a giveaway. Superseded winners are included
// only when includeRerolled is set.
func (s *Service) Winners(ctx context.Context, giveawayID string, includeRerolled bool) ([]models.Winner, error) {
	if _, err := s.getGiveaway(ctx, giveawayID); err != nil {
		return nil, err
	}

	var winners []models.Winner
	err := s.read(ctx, func() error {
		var err error
		winners, err = s.giveaways.GetWinners(ctx, giveawayID, includeRerolled)
		return storeError(err)
	})
	return winners, err
}

// Start rehydrates the timer registry: overdue giveaways are ended before it
// returns, the others are scheduled.
func (s *Service) Start(ctx context.Context) error {
	active, err := s.ListActive(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to load active giveaways: %w", err)
	}

	now := s.clock.Now()
	overdue := 0
	for i := range active {
		g := &active[i]
		if now.Before(g.EndsAt) {
			s.scheduler.Schedule(g.ID, g.EndsAt.Sub(now))
			continue
		}

		overdue++
		if _, err := s.End(ctx, g.ID, false); err != nil && !isSettled(err) {
			s.log.Error().Err(err).Str("giveaway_id", g.ID).Msg("Failed to end overdue giveaway")
		}
	}

	s.log.Info().
		Int("scheduled", s.scheduler.Pending()).
		Int("overdue", overdue).
		Msg("Giveaway scheduler started")
	return nil
}

// Stop disarms every timer and waits for in-flight ends.
func (s *Service) Stop() {
	s.scheduler.Stop()
	s.log.Info().Msg("Giveaway scheduler stopped")
}

// Pending returns the number of armed end timers.
func (s *Service) Pending() int {
	return s.scheduler.Pending()
}

// Reconcile ends overdue giveaways and arms timers for active giveaways this
// instance does not track yet. It is safe to run concurrently with timers and
// on several instances.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	var overdue []models.Giveaway
	err := s.read(ctx, func() error {
		var err error
		overdue, err = s.giveaways.ListOverdue(ctx, s.clock.Now())
		return storeError(err)
	})
	if err != nil {
		return report, fmt.Errorf("failed to list overdue giveaways: %w", err)
	}

	for i := range overdue {
		_, err := s.End(ctx, overdue[i].ID, false)
		switch {
		case err == nil:
			report.Ended++
		case isSettled(err):
		default:
			report.Failed++
			s.log.Error().Err(err).Str("giveaway_id", overdue[i].ID).Msg("Failed to end overdue giveaway")
		}
	}

	active, err := s.ListActive(ctx, "")
	if err != nil {
		return report, fmt.Errorf("failed to list active giveaways: %w", err)
	}

	now := s.clock.Now()
	for i := range active {
		g := &active[i]
		if s.scheduler.Has(g.ID) || !now.Before(g.EndsAt) {
			continue
		}
		s.scheduler.Schedule(g.ID, g.EndsAt.Sub(now))
		report.Scheduled++
	}

	return report, nil
}

// fire handles a due timer. A giveaway extended after the timer was armed is
// rescheduled instead of ended.
func (s *Service) fire(giveawayID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FireTimeout)
	defer cancel()

	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		if isSettled(err) {
			metrics.RecordSchedulerFire("noop")
			return
		}
		metrics.RecordSchedulerFire("error")
		s.log.Error().Err(err).Str("giveaway_id", giveawayID).Msg("Failed to load giveaway for scheduled end")
		return
	}
	if !g.IsActive() {
		metrics.RecordSchedulerFire("noop")
		return
	}

	if now := s.clock.Now(); now.Before(g.EndsAt) {
		s.scheduler.Schedule(giveawayID, g.EndsAt.Sub(now))
		metrics.RecordSchedulerFire("rescheduled")
		return
	}

	if _, err := s.End(ctx, giveawayID, false); err != nil {
		if KindOf(err) == KindNotYetEnded {
			metrics.RecordSchedulerFire("rescheduled")
			return
		}
		if isSettled(err) {
			metrics.RecordSchedulerFire("noop")
			return
		}
		metrics.RecordSchedulerFire("error")
		s.log.Error().Err(err).Str("giveaway_id", giveawayID).Msg("Scheduled giveaway end failed")
		return
	}
	metrics.RecordSchedulerFire("success")
}

func (s *Service) draw(entries []models.Entry, count int, exclude map[string]bool) []string {
	return s.selector(toTickets(entries), count, exclude)
}

func toTickets(entries []models.Entry) []lottery.Ticket {
	tickets := make([]lottery.Ticket, 0, len(entries))
	for _, e := range entries {
		tickets = append(tickets, lottery.Ticket{ParticipantID: e.ParticipantID, Weight: e.EntryCount})
	}
	return tickets
}

func (s *Service) getGiveaway(ctx context.Context, giveawayID string) (*models.Giveaway, error) {
	if giveawayID == "" {
		return nil, newError(KindNotFound, "")
	}

	var g *models.Giveaway
	err := s.read(ctx, func() error {
		var err error
		g, err = s.giveaways.GetByID(ctx, giveawayID)
		return storeError(err)
	})
	return g, err
}

// read runs fn and retries it once after the configured backoff when the
// store is unavailable.
func (s *Service) read(ctx context.Context, fn func() error) error {
	err := fn()
	if KindOf(err) != KindStoreUnavailable {
		return err
	}

	s.log.Warn().Err(err).Msg("Store read failed, retrying")

	timer := time.NewTimer(s.cfg.RetryBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return err
	case <-timer.C:
	}
	return fn()
}

// extendConflict explains a refused extension: the giveaway closed, or its end
// time passed before the update landed.
func (s *Service) extendConflict(ctx context.Context, giveawayID string) error {
	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return err
	}
	if !g.IsActive() {
		return inactiveError(g)
	}
	return newError(KindAlreadyEnded, "")
}

func (s *Service) lifecycleConflict(ctx context.Context, giveawayID string) error {
	g, err := s.getGiveaway(ctx, giveawayID)
	if err != nil {
		return err
	}
	if !g.IsActive() {
		return inactiveError(g)
	}
	return newError(KindNotYetEnded, "")
}

func (s *Service) checkRate(ctx context.Context, giveawayID, participantID string) error {
	if s.limiter == nil {
		return nil
	}

	err := s.limiter.Allow(ctx, giveawayID+":"+participantID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		return newError(KindRateLimited, "")
	default:
		s.log.Warn().Err(err).Str("giveaway_id", giveawayID).Msg("Entry rate limiter unavailable, allowing attempt")
		return nil
	}
}

func (s *Service) lookupFacts(ctx context.Context, participantID, guildID string) *models.ParticipantFacts {
	if s.facts == nil {
		return nil
	}

	facts, err := s.facts.GetFacts(ctx, participantID, guildID)
	if err != nil {
		s.log.Debug().
			Err(err).
			Str("participant_id", participantID).
			Str("guild_id", guildID).
			Msg("Participant facts unavailable")
		return nil
	}
	return facts
}

func (s *Service) notify(ctx context.Context, event Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		metrics.RecordNotificationFailed(string(event.Type))
		s.log.Warn().
			Err(err).
			Str("giveaway_id", event.Giveaway.ID).
			Str("event", string(event.Type)).
			Msg("Failed to notify presentation layer")
	}
}

func openForEntries(g *models.Giveaway, now time.Time) error {
	if !g.IsActive() || !now.Before(g.EndsAt) {
		return newError(KindAlreadyEnded, "")
	}
	return nil
}

func checkAccessLists(g *models.Giveaway, participantID string) error {
	if g.IsBlacklisted(participantID) {
		return newError(KindNotEligible, "You are blacklisted from this giveaway")
	}
	if !g.IsWhitelisted(participantID) {
		return newError(KindNotEligible, "You are not on the whitelist for this giveaway")
	}
	return nil
}

func inactiveError(g *models.Giveaway) error {
	if g.Cancelled {
		return newError(KindAlreadyCancelled, "")
	}
	return newError(KindAlreadyEnded, "")
}

// isSettled reports whether an automatic end has nothing left to do. An end
// time moved forward counts, since End already rescheduled it.
func isSettled(err error) bool {
	switch KindOf(err) {
	case KindAlreadyEnded, KindAlreadyCancelled, KindNotFound, KindNotYetEnded:
		return true
	}
	return false
}

func storeError(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, repository.ErrNotFound) {
		return newError(KindNotFound, "")
	}
	return unavailable(err)
}

func entryStoreError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return newError(KindNotFound, "Participant is not entered in this giveaway.")
	case errors.Is(err, repository.ErrStateConflict):
		return newError(KindAlreadyEnded, "")
	default:
		return unavailable(err)
	}
}

func pluralEntries(n int) string {
	if n == 1 {
		return "1 entry"
	}
	return fmt.Sprintf("%d entries", n)
}
