package giveaway

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aimd54/giveaway-engine/pkg/logger"
)

type fireRecorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *fireRecorder) fire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, id)
}

func (r *fireRecorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.fired {
		if f == id {
			n++
		}
	}
	return n
}

func TestScheduler_FiresOnce(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(rec.fire, logger.NewNop())
	defer s.Stop()

	s.Schedule("g1", 10*time.Millisecond)
	assert.True(t, s.Has("g1"))

	assert.Eventually(t, func() bool { return rec.count("g1") == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, s.Has("g1"))
	assert.Zero(t, s.Pending())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, rec.count("g1"))
}

func TestScheduler_NegativeDelayFiresImmediately(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(rec.fire, logger.NewNop())
	defer s.Stop()

	s.Schedule("late", -time.Hour)
	assert.Eventually(t, func() bool { return rec.count("late") == 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_Cancel(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(rec.fire, logger.NewNop())
	defer s.Stop()

	s.Schedule("g1", 20*time.Millisecond)
	assert.True(t, s.Cancel("g1"))
	assert.False(t, s.Cancel("g1"))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.count("g1"))
}

func TestScheduler_RescheduleReplacesTimer(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(rec.fire, logger.NewNop())
	defer s.Stop()

	s.Schedule("g1", 10*time.Millisecond)
	s.Schedule("g1", time.Hour)
	assert.Equal(t, 1, s.Pending())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.count("g1"))
	assert.True(t, s.Has("g1"))
}

func TestScheduler_StopDisarmsAndBlocksSchedule(t *testing.T) {
	rec := &fireRecorder{}
	s := NewScheduler(rec.fire, logger.NewNop())

	s.Schedule("g1", 20*time.Millisecond)
	s.Schedule("g2", 20*time.Millisecond)
	s.Stop()
	assert.Zero(t, s.Pending())

	s.Schedule("g3", 0)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.fired)
	assert.Zero(t, s.Pending())
}

func TestScheduler_StopWaitsForRunningFire(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	s := NewScheduler(func(string) {
		close(started)
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
	}, logger.NewNop())

	s.Schedule("g1", 0)
	<-started
	s.Stop()
	assert.True(t, finished.Load())
}

func TestScheduler_RecoversPanics(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(func(id string) {
		calls.Add(1)
		if id == "boom" {
			panic("draw exploded")
		}
	}, logger.NewNop())
	defer s.Stop()

	s.Schedule("boom", 0)
	s.Schedule("ok", 5*time.Millisecond)

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}
