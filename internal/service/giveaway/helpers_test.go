package giveaway_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aimd54/giveaway-engine/internal/models"
	"github.com/aimd54/giveaway-engine/internal/repository"
	"github.com/aimd54/giveaway-engine/internal/service/giveaway"
	"github.com/aimd54/giveaway-engine/pkg/logger"
	"github.com/aimd54/giveaway-engine/test/mocks"
)

// offsetClock follows wall time shifted by an adjustable offset so that
// real timers and simulated time agree.
type offsetClock struct {
	mu     sync.Mutex
	offset time.Duration
}

func (c *offsetClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().UTC().Add(c.offset)
}

func (c *offsetClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// flakyStore fails the next n GetByID calls.
type flakyStore struct {
	*repository.GiveawayRepository
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) GetByID(ctx context.Context, id string) (*models.Giveaway, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("dial tcp 10.0.0.5:5432: connection refused")
	}
	f.mu.Unlock()
	return f.GiveawayRepository.GetByID(ctx, id)
}

type harness struct {
	svc       *giveaway.Service
	giveaways *repository.GiveawayRepository
	entries   *repository.EntryRepository
	facts     *mocks.MockFactProvider
	notifier  *mocks.MockNotifier
	clock     *offsetClock
}

func newHarness(t *testing.T, opts ...giveaway.Option) *harness {
	t.Helper()

	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	h := &harness{
		giveaways: repository.NewGiveawayRepository(db),
		entries:   repository.NewEntryRepository(db),
		facts:     mocks.NewMockFactProvider(),
		notifier:  &mocks.MockNotifier{},
		clock:     &offsetClock{},
	}

	base := []giveaway.Option{
		giveaway.WithClock(h.clock),
		giveaway.WithFactProvider(h.facts),
		giveaway.WithNotifier(h.notifier),
	}
	h.svc = newService(h.giveaways, h.entries, append(base, opts...)...)

	t.Cleanup(func() {
		h.svc.Stop()
		_ = db.Close()
	})
	return h
}

func newService(giveaways giveaway.GiveawayStore, entries giveaway.EntryStore, opts ...giveaway.Option) *giveaway.Service {
	cfg := giveaway.DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	return giveaway.NewService(giveaways, entries, cfg, logger.NewNop(), opts...)
}

func (h *harness) create(t *testing.T, mutate ...func(*giveaway.CreateRequest)) *models.Giveaway {
	t.Helper()
	req := giveaway.CreateRequest{
		HostID:      "host-1",
		GuildID:     "guild-1",
		ChannelID:   "channel-1",
		Title:       "Summer giveaway",
		Prize:       "Steam gift card",
		Duration:    time.Hour,
		WinnerCount: 1,
	}
	for _, m := range mutate {
		m(&req)
	}

	res, err := h.svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotNil(t, res.Giveaway)
	return res.Giveaway
}

func (h *harness) enter(t *testing.T, giveawayID string, participants ...string) {
	t.Helper()
	for _, p := range participants {
		_, err := h.svc.Enter(context.Background(), giveawayID, p, &models.ParticipantFacts{})
		require.NoError(t, err)
	}
}

// storeGiveaway inserts a giveaway directly, bypassing the engine scheduler.
func (h *harness) storeGiveaway(t *testing.T, id string, endsAt time.Time) *models.Giveaway {
	t.Helper()
	g := &models.Giveaway{
		ID:          id,
		GuildID:     "guild-1",
		ChannelID:   "channel-1",
		HostID:      "host-1",
		Title:       "Stored giveaway",
		Prize:       "Prize",
		WinnerCount: 1,
		EndsAt:      endsAt,
		CreatedAt:   endsAt.Add(-time.Hour),
	}
	require.NoError(t, h.giveaways.Create(context.Background(), g))
	return g
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
