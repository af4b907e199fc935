package giveaway

import (
	"sync"
	"time"

	"github.com/aimd54/giveaway-engine/internal/metrics"
	"github.com/aimd54/giveaway-engine/pkg/logger"
)

type timerEntry struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler holds one pending end timer per active giveaway.
// The timer map is its only shared state and is guarded by mu.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*timerEntry
	gen     uint64
	stopped bool
	wg      sync.WaitGroup

	fire func(giveawayID string)
	log  *logger.Logger
}

// NewScheduler creates a scheduler calling fire when a giveaway is due.
func NewScheduler(fire func(giveawayID string), log *logger.Logger) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*timerEntry),
		fire:   fire,
		log:    log,
	}
}

// Schedule arms the timer for a giveaway, replacing any pending one.
// Negative delays fire immediately.
func (s *Scheduler) Schedule(giveawayID string, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if existing, ok := s.timers[giveawayID]; ok {
		existing.timer.Stop()
	}

	s.gen++
	gen := s.gen
	s.timers[giveawayID] = &timerEntry{
		timer: time.AfterFunc(delay, func() { s.run(giveawayID, gen) }),
		gen:   gen,
	}
	metrics.SetScheduledGiveaways(len(s.timers))
}

// Cancel disarms the timer of a giveaway. It reports whether one was pending.
func (s *Scheduler) Cancel(giveawayID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.timers[giveawayID]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.timers, giveawayID)
	metrics.SetScheduledGiveaways(len(s.timers))
	return true
}

// Has reports whether a timer is pending for the giveaway.
func (s *Scheduler) Has(giveawayID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[giveawayID]
	return ok
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer and waits for running fires to return.
// Schedule is a no-op afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
	metrics.SetScheduledGiveaways(0)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) run(giveawayID string, gen uint64) {
	s.mu.Lock()
	entry, ok := s.timers[giveawayID]
	if s.stopped || !ok || entry.gen != gen {
		// Superseded by a later Schedule or disarmed.
		s.mu.Unlock()
		return
	}
	delete(s.timers, giveawayID)
	metrics.SetScheduledGiveaways(len(s.timers))
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordSchedulerFire("panic")
			s.log.Error().
				Str("giveaway_id", giveawayID).
				Interface("panic", r).
				Msg("Recovered from panic in giveaway end timer")
		}
	}()

	s.fire(giveawayID)
}
