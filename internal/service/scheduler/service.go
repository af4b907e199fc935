// Package scheduler runs the periodic reconcile sweep of the giveaway engine.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/giveaway-engine/internal/config"
	prommetrics "github.com/aimd54/giveaway-engine/internal/metrics"
	"github.com/aimd54/giveaway-engine/internal/service/giveaway"
	"github.com/aimd54/giveaway-engine/pkg/logger"
)

// Reconciler is the engine operation the sweep drives.
type Reconciler interface {
	Reconcile(ctx context.Context) (giveaway.ReconcileReport, error)
}

// Service schedules the reconcile sweep.
type Service struct {
	config     *config.SchedulerConfig
	reconciler Reconciler
	timeout    time.Duration
	log        *logger.Logger
	cron       *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(cfg *config.SchedulerConfig, reconciler Reconciler, log *logger.Logger) *Service {
	return &Service{
		config:     cfg,
		reconciler: reconciler,
		timeout:    time.Minute,
		log:        log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	// A sweep still running when the next tick arrives is not started twice.
	s.cron = cron.New(
		cron.WithLocation(location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err = s.cron.AddFunc(s.config.ReconcileSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.runReconcile(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}

	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", s.config.ReconcileSpec).
		Str("timezone", s.config.Timezone).
		Str("next_run", nextRun).
		Msg("Reconcile scheduler started")

	return nil
}

// Stop gracefully stops the cron scheduler, waiting for a running sweep.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Reconcile scheduler stopped")
}

// runReconcile executes one reconcile sweep.
func (s *Service) runReconcile(ctx context.Context) {
	start := time.Now()

	defer func() {
		prommetrics.ObserveReconcileDuration(time.Since(start).Seconds())
		prommetrics.SetReconcileLastRun()
	}()

	report, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Reconcile sweep failed")
		prommetrics.RecordReconcileRun("error")
		return
	}

	status := "success"
	if report.Failed > 0 {
		status = "partial"
	}
	prommetrics.RecordReconcileRun(status)

	event := s.log.Debug()
	if report.Ended > 0 || report.Scheduled > 0 || report.Failed > 0 {
		event = s.log.Info()
	}
	event.
		Int("ended", report.Ended).
		Int("scheduled", report.Scheduled).
		Int("failed", report.Failed).
		Dur("duration", time.Since(start)).
		Msg("Reconcile sweep completed")
}
