package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aimd54/giveaway-engine/internal/config"
	prommetrics "github.com/aimd54/giveaway-engine/internal/metrics"
	"github.com/aimd54/giveaway-engine/internal/service/giveaway"
	"github.com/aimd54/giveaway-engine/pkg/logger"
)

type fakeReconciler struct {
	calls  atomic.Int32
	report giveaway.ReconcileReport
	err    error
}

func (f *fakeReconciler) Reconcile(ctx context.Context) (giveaway.ReconcileReport, error) {
	f.calls.Add(1)
	return f.report, f.err
}

func TestRunReconcile_RecordsStatus(t *testing.T) {
	tests := []struct {
		name   string
		report giveaway.ReconcileReport
		err    error
		status string
	}{
		{
			name:   "clean sweep",
			report: giveaway.ReconcileReport{},
			status: "success",
		},
		{
			name:   "ended and scheduled",
			report: giveaway.ReconcileReport{Ended: 2, Scheduled: 1},
			status: "success",
		},
		{
			name:   "some giveaways failed",
			report: giveaway.ReconcileReport{Ended: 1, Failed: 1},
			status: "partial",
		},
		{
			name:   "store down",
			err:    errors.New("failed to list overdue giveaways: store_unavailable"),
			status: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeReconciler{report: tt.report, err: tt.err}
			s := NewService(&config.SchedulerConfig{Enabled: true}, rec, logger.NewNop())

			before := testutil.ToFloat64(prommetrics.ReconcileRunsTotal.WithLabelValues(tt.status))
			s.runReconcile(context.Background())
			after := testutil.ToFloat64(prommetrics.ReconcileRunsTotal.WithLabelValues(tt.status))

			if after-before != 1 {
				t.Errorf("reconcile runs with status %q increased by %v, want 1", tt.status, after-before)
			}
			if got := rec.calls.Load(); got != 1 {
				t.Errorf("Reconcile called %d times, want 1", got)
			}
		})
	}

	if testutil.ToFloat64(prommetrics.ReconcileLastRunTimestamp) == 0 {
		t.Error("ReconcileLastRunTimestamp was not set")
	}
}

func TestStart_Disabled(t *testing.T) {
	rec := &fakeReconciler{}
	s := NewService(&config.SchedulerConfig{Enabled: false}, rec, logger.NewNop())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.cron != nil {
		t.Error("cron should not be created when the scheduler is disabled")
	}
	s.Stop()
}

func TestStart_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SchedulerConfig
	}{
		{
			name: "invalid timezone",
			cfg:  config.SchedulerConfig{Enabled: true, ReconcileSpec: "@every 1m", Timezone: "Mars/Olympus"},
		},
		{
			name: "invalid cron spec",
			cfg:  config.SchedulerConfig{Enabled: true, ReconcileSpec: "every minute", Timezone: "UTC"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(&tt.cfg, &fakeReconciler{}, logger.NewNop())
			if err := s.Start(); err == nil {
				s.Stop()
				t.Error("Start() expected error, got nil")
			}
		})
	}
}

func TestStart_RunsSweepOnSchedule(t *testing.T) {
	rec := &fakeReconciler{}
	cfg := &config.SchedulerConfig{Enabled: true, ReconcileSpec: "@every 1s", Timezone: "Europe/Paris"}
	s := NewService(cfg, rec, logger.NewNop())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for rec.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("reconcile sweep did not run")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
