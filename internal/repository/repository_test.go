package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/giveaway-engine/internal/models"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewSQLiteDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createGiveaway(t *testing.T, repo *GiveawayRepository, id string, endsAt time.Time) *models.Giveaway {
	t.Helper()
	g := &models.Giveaway{
		ID:          id,
		GuildID:     "guild-1",
		ChannelID:   "channel-1",
		HostID:      "host-1",
		Title:       "Nitro",
		Prize:       "1 month of Nitro",
		WinnerCount: 1,
		EndsAt:      endsAt,
		Requirements: models.Requirements{
			MinLevel: 5,
		},
		BonusEntries: models.BonusEntries{
			Roles: map[string]int{"vip": 2},
		},
	}
	require.NoError(t, repo.Create(context.Background(), g))
	return g
}

func drawAll(g *models.Giveaway, entries []models.Entry, prior []models.Winner) ([]string, error) {
	excluded := make(map[string]bool)
	for _, w := range prior {
		excluded[w.ParticipantID] = true
	}
	var ids []string
	for _, e := range entries {
		if !excluded[e.ParticipantID] && len(ids) < g.WinnerCount {
			ids = append(ids, e.ParticipantID)
		}
	}
	return ids, nil
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Migrate())
	assert.True(t, db.Migrator().HasTable("giveaways"))
	assert.True(t, db.Migrator().HasTable("giveaway_entries"))
	assert.True(t, db.Migrator().HasTable("giveaway_winners"))
	assert.True(t, db.Migrator().HasTable("member_facts"))
	require.NoError(t, db.Health())
}

func TestGiveawayRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGiveawayRepository(db)
	ctx := context.Background()

	createGiveaway(t, repo, "g1", baseTime.Add(time.Hour))

	got, err := repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Nitro", got.Title)
	assert.Equal(t, 5, got.Requirements.MinLevel)
	assert.Equal(t, 2, got.BonusEntries.Roles["vip"])
	assert.True(t, got.IsActive())

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGiveawayRepository_ListActiveAndOverdue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGiveawayRepository(db)
	ctx := context.Background()

	createGiveaway(t, repo, "late", baseTime.Add(-time.Minute))
	createGiveaway(t, repo, "soon", baseTime.Add(time.Hour))
	other := &models.Giveaway{
		ID: "other", GuildID: "guild-2", ChannelID: "c", HostID: "h",
		Title: "t", Prize: "p", WinnerCount: 1, EndsAt: baseTime.Add(2 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, other))
	createGiveaway(t, repo, "cancelled", baseTime.Add(-time.Hour))
	require.NoError(t, repo.Cancel(ctx, "cancelled", "spam", baseTime))

	all, err := repo.ListActive(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "late", all[0].ID)

	guild, err := repo.ListActive(ctx, "guild-1")
	require.NoError(t, err)
	assert.Len(t, guild, 2)

	overdue, err := repo.ListOverdue(ctx, baseTime)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "late", overdue[0].ID)
}

func TestGiveawayRepository_UpdateActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGiveawayRepository(db)
	ctx := context.Background()
	createGiveaway(t, repo, "g1", baseTime.Add(time.Hour))

	err := repo.UpdateActive(ctx, "g1", &models.Giveaway{Title: "Steam key", WinnerCount: 3}, "title", "winner_count")
	require.NoError(t, err)

	// Zero values are written when selected.
	err = repo.UpdateActive(ctx, "g1", &models.Giveaway{}, "requirements")
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Steam key", got.Title)
	assert.Equal(t, 3, got.WinnerCount)
	assert.Equal(t, "1 month of Nitro", got.Prize)
	assert.True(t, got.Requirements.IsEmpty())

	require.NoError(t, repo.Cancel(ctx, "g1", "", baseTime))
	err = repo.UpdateActive(ctx, "g1", &models.Giveaway{Title: "late"}, "title")
	assert.ErrorIs(t, err, ErrStateConflict)

	err = repo.UpdateActive(ctx, "missing", &models.Giveaway{Title: "x"}, "title")
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestGiveawayRepository_ExtendEnd(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGiveawayRepository(db)
	ctx := context.Background()
	createGiveaway(t, repo, "g1", baseTime.Add(time.Hour))

	require.NoError(t, repo.ExtendEnd(ctx, "g1", baseTime.Add(3*time.Hour), baseTime))
	got, err := repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.WithinDuration(t, baseTime.Add(3*time.Hour), got.EndsAt, time.Millisecond)

	// Once the end time has passed the giveaway is due and can no longer move.
	err = repo.ExtendEnd(ctx, "g1", baseTime.Add(5*time.Hour), baseTime.Add(3*time.Hour))
	assert.ErrorIs(t, err, ErrStateConflict)

	require.NoError(t, repo.Cancel(ctx, "g1", "", baseTime))
	assert.ErrorIs(t, repo.ExtendEnd(ctx, "g1", baseTime.Add(5*time.Hour), baseTime), ErrStateConflict)
}

func TestGiveawayRepository_SetMessageID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGiveawayRepository(db)
	ctx := context.Background()
	createGiveaway(t, repo, "g1", baseTime.Add(time.Hour))

	require.NoError(t, repo.SetMessageID(ctx, "g1", "msg-1"))
	got, err := repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, got.MessageID)
	assert.Equal(t, "msg-1", *got.MessageID)

	assert.ErrorIs(t, repo.SetMessageID(ctx, "missing", "msg"), ErrNotFound)
}

func TestGiveawayRepository_CompleteOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGiveawayRepository(db)
	entries := NewEntryRepository(db)
	ctx := context.Background()

	createGiveaway(t, repo, "g1", baseTime.Add(time.Hour))
	require.NoError(t, entries.Insert(ctx, &models.Entry{GiveawayID: "g1", ParticipantID: "alice", EntryCount: 1, EnteredAt: baseTime}, baseTime))

	g, winners, err := repo.Complete(ctx, "g1", baseTime, drawAll)
	require.NoError(t, err)
	assert.True(t, g.Ended)
	require.Len(t, winners, 1)
	assert.Equal(t, "alice", winners[0].ParticipantID)
	assert.Equal(t, 0, winners[0].Round)

	calls := 0
	_, _, err = repo.Complete(ctx, "g1", baseTime, func(*models.Giveaway, []models.Entry, []models.Winner) ([]string, error) {
		calls++
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.Zero(t, calls, "draw must not run for an already ended giveaway")

	// Cancel after end loses.
	assert.ErrorIs(t, repo.Cancel(ctx, "g1", "", baseTime), ErrStateConflict)
}

func TestGiveawayRepository_CompleteRollsBackOnDrawError(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGiveawayRepository(db)
	ctx := context.Background()
	createGiveaway(t, repo, "g1", baseTime.Add(time.Hour))

	_, _, err := repo.Complete(ctx, "g1", baseTime, func(*models.Giveaway, []models.Entry, []models.Winner) ([]string, error) {
		return nil, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, got.Ended)
}

func TestGiveawayRepository_Reroll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGiveawayRepository(db)
	entries := NewEntryRepository(db)
	ctx := context.Background()

	createGiveaway(t, repo, "g1", baseTime.Add(time.Hour))
	for i, p := range []string{"alice", "bob", "carol"} {
		at := baseTime.Add(time.Duration(i) * time.Second)
		require.NoError(t, entries.Insert(ctx, &models.Entry{GiveawayID: "g1", ParticipantID: p, EntryCount: 1, EnteredAt: at}, at))
	}

	// Not yet ended.
	_, _, err := repo.Reroll(ctx, "g1", baseTime, drawAll)
	assert.ErrorIs(t, err, ErrStateConflict)

	_, _, err = repo.Complete(ctx, "g1", baseTime.Add(time.Minute), drawAll)
	require.NoError(t, err)

	g, winners, err := repo.Reroll(ctx, "g1", baseTime.Add(2*time.Minute), drawAll)
	require.NoError(t, err)
	assert.Equal(t, 1, g.RerollCount)
	require.Len(t, winners, 1)
	assert.Equal(t, "bob", winners[0].ParticipantID)
	assert.Equal(t, 1, winners[0].Round)

	current, err := repo.GetWinners(ctx, "g1", false)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "bob", current[0].ParticipantID)

	history, err := repo.GetWinners(ctx, "g1", true)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "alice", history[0].ParticipantID)
	assert.True(t, history[0].Rerolled)
}

func TestGiveawayRepository_ClaimWinner(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGiveawayRepository(db)
	entries := NewEntryRepository(db)
	ctx := context.Background()

	createGiveaway(t, repo, "g1", baseTime.Add(time.Hour))
	require.NoError(t, entries.Insert(ctx, &models.Entry{GiveawayID: "g1", ParticipantID: "alice", EntryCount: 1, EnteredAt: baseTime}, baseTime))
	_, _, err := repo.Complete(ctx, "g1", baseTime, drawAll)
	require.NoError(t, err)

	require.NoError(t, repo.ClaimWinner(ctx, "g1", "alice", baseTime))
	assert.ErrorIs(t, repo.ClaimWinner(ctx, "g1", "alice", baseTime), ErrNotFound)
	assert.ErrorIs(t, repo.ClaimWinner(ctx, "g1", "bob", baseTime), ErrNotFound)
}

func TestEntryRepository_InsertIfAbsent(t *testing.T) {
	db := setupTestDB(t)
	giveaways := NewGiveawayRepository(db)
	repo := NewEntryRepository(db)
	ctx := context.Background()
	createGiveaway(t, giveaways, "g1", baseTime.Add(time.Hour))

	entry := &models.Entry{GiveawayID: "g1", ParticipantID: "alice", EntryCount: 3, BonusReason: "Role vip: +2", EnteredAt: baseTime}
	require.NoError(t, repo.Insert(ctx, entry, baseTime))

	dup := &models.Entry{GiveawayID: "g1", ParticipantID: "alice", EntryCount: 1, EnteredAt: baseTime}
	assert.ErrorIs(t, repo.Insert(ctx, dup, baseTime), ErrEntryExists)

	got, err := repo.Get(ctx, "g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, got.EntryCount)

	// Past the end time the giveaway no longer accepts entries.
	late := &models.Entry{GiveawayID: "g1", ParticipantID: "bob", EntryCount: 1, EnteredAt: baseTime}
	assert.ErrorIs(t, repo.Insert(ctx, late, baseTime.Add(2*time.Hour)), ErrStateConflict)
}

func TestEntryRepository_ConcurrentInsert(t *testing.T) {
	db := setupTestDB(t)
	giveaways := NewGiveawayRepository(db)
	repo := NewEntryRepository(db)
	ctx := context.Background()
	createGiveaway(t, giveaways, "g1", baseTime.Add(time.Hour))

	const workers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		dupes    int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Insert(ctx, &models.Entry{GiveawayID: "g1", ParticipantID: "alice", EntryCount: 1, EnteredAt: baseTime}, baseTime)
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				inserted++
			case ErrEntryExists:
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	assert.Equal(t, workers-1, dupes)

	count, err := repo.Count(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestEntryRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	giveaways := NewGiveawayRepository(db)
	repo := NewEntryRepository(db)
	ctx := context.Background()
	createGiveaway(t, giveaways, "g1", baseTime.Add(time.Hour))

	require.NoError(t, repo.Insert(ctx, &models.Entry{GiveawayID: "g1", ParticipantID: "alice", EntryCount: 1, EnteredAt: baseTime}, baseTime))
	require.NoError(t, repo.Delete(ctx, "g1", "alice", baseTime))
	assert.ErrorIs(t, repo.Delete(ctx, "g1", "alice", baseTime), ErrNotFound)

	require.NoError(t, repo.Insert(ctx, &models.Entry{GiveawayID: "g1", ParticipantID: "bob", EntryCount: 1, EnteredAt: baseTime}, baseTime))
	require.NoError(t, giveaways.Cancel(ctx, "g1", "", baseTime))
	assert.ErrorIs(t, repo.Delete(ctx, "g1", "bob", baseTime), ErrStateConflict)
}

func TestEntryRepository_AdjustWeight(t *testing.T) {
	db := setupTestDB(t)
	giveaways := NewGiveawayRepository(db)
	repo := NewEntryRepository(db)
	ctx := context.Background()
	createGiveaway(t, giveaways, "g1", baseTime.Add(time.Hour))

	entry, err := repo.AddWeight(ctx, "g1", "alice", 2, "Added by host", baseTime)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.EntryCount)
	assert.True(t, entry.Manual)

	entry, err = repo.AddWeight(ctx, "g1", "alice", 3, "Added by host", baseTime)
	require.NoError(t, err)
	assert.Equal(t, 5, entry.EntryCount)

	entry, err = repo.RemoveWeight(ctx, "g1", "alice", 4, baseTime)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.EntryCount)

	entry, err = repo.RemoveWeight(ctx, "g1", "alice", 1, baseTime)
	require.NoError(t, err)
	assert.Nil(t, entry)

	_, err = repo.Get(ctx, "g1", "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.RemoveWeight(ctx, "g1", "alice", 0, baseTime)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntryRepository_ListByGiveaway(t *testing.T) {
	db := setupTestDB(t)
	giveaways := NewGiveawayRepository(db)
	repo := NewEntryRepository(db)
	ctx := context.Background()
	createGiveaway(t, giveaways, "g1", baseTime.Add(time.Hour))

	for i, p := range []string{"carol", "alice", "bob"} {
		at := baseTime.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Insert(ctx, &models.Entry{GiveawayID: "g1", ParticipantID: p, EntryCount: 1, Roles: []string{"r1"}, EnteredAt: at}, at))
	}

	list, err := repo.ListByGiveaway(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "carol", list[0].ParticipantID)
	assert.Equal(t, []string{"r1"}, list[0].Roles)
}

func TestMemberRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMemberRepository(db)
	ctx := context.Background()

	_, err := repo.GetFacts(ctx, "alice", "guild-1")
	assert.ErrorIs(t, err, ErrNotFound)

	joined := baseTime.Add(-48 * time.Hour)
	require.NoError(t, repo.Upsert(ctx, &models.MemberFacts{
		GuildID: "guild-1", UserID: "alice", Level: 3, Roles: []string{"vip"}, JoinedAt: &joined,
	}))
	require.NoError(t, repo.Upsert(ctx, &models.MemberFacts{
		GuildID: "guild-1", UserID: "alice", Level: 7, Roles: []string{"vip", "booster"}, JoinedAt: &joined, Boosting: true,
	}))

	facts, err := repo.GetFacts(ctx, "alice", "guild-1")
	require.NoError(t, err)
	require.NotNil(t, facts.Level)
	assert.Equal(t, 7, *facts.Level)
	assert.True(t, facts.Boosting)
	assert.True(t, facts.HasRole("booster"))
	require.NotNil(t, facts.JoinedAt)
	assert.True(t, facts.JoinedAt.Equal(joined))
}

func TestStatsRepository_Tallies(t *testing.T) {
	db := setupTestDB(t)
	giveaways := NewGiveawayRepository(db)
	entries := NewEntryRepository(db)
	stats := NewStatsRepository(db)
	ctx := context.Background()

	createGiveaway(t, giveaways, "g1", baseTime.Add(time.Hour))
	createGiveaway(t, giveaways, "g2", baseTime.Add(time.Hour))
	require.NoError(t, giveaways.Create(ctx, &models.Giveaway{
		ID: "g3", GuildID: "guild-2", ChannelID: "c", HostID: "h", Title: "Other", Prize: "Other",
		WinnerCount: 1, EndsAt: baseTime.Add(time.Hour),
	}))

	insert := func(giveawayID, participantID string, count int) {
		require.NoError(t, entries.Insert(ctx, &models.Entry{
			GiveawayID: giveawayID, ParticipantID: participantID, EntryCount: count, EnteredAt: baseTime,
		}, baseTime))
	}
	insert("g1", "alice", 3)
	insert("g1", "bob", 1)
	insert("g2", "alice", 2)
	insert("g3", "carol", 1)

	_, _, err := giveaways.Complete(ctx, "g1", baseTime, drawAll)
	require.NoError(t, err)
	require.NoError(t, giveaways.ClaimWinner(ctx, "g1", "alice", baseTime))
	_, _, err = giveaways.Complete(ctx, "g2", baseTime, drawAll)
	require.NoError(t, err)

	since := baseTime.Add(-time.Hour)

	wins, err := stats.WinsByGuild(ctx, "guild-1", since)
	require.NoError(t, err)
	require.Len(t, wins, 1)
	assert.Equal(t, WinTally{ParticipantID: "alice", Wins: 2, Claimed: 1}, wins[0])

	tallies, err := stats.EntriesByGuild(ctx, "guild-1", since)
	require.NoError(t, err)
	require.Len(t, tallies, 2)
	byParticipant := map[string]EntryTally{}
	for _, tally := range tallies {
		byParticipant[tally.ParticipantID] = tally
	}
	assert.Equal(t, EntryTally{ParticipantID: "alice", Giveaways: 2, Tickets: 5}, byParticipant["alice"])
	assert.Equal(t, EntryTally{ParticipantID: "bob", Giveaways: 1, Tickets: 1}, byParticipant["bob"])

	// A rerolled win no longer counts.
	_, _, err = giveaways.Reroll(ctx, "g1", baseTime.Add(time.Minute), drawAll)
	require.NoError(t, err)
	wins, err = stats.WinsByGuild(ctx, "guild-1", since)
	require.NoError(t, err)
	require.Len(t, wins, 2)

	wins, err = stats.WinsByGuild(ctx, "guild-1", baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, wins)
}
