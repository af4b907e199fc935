// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the giveaway engine.
var (
	// Counters.
	GiveawaysCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "giveaways_created_total",
			Help: "Total number of giveaways created",
		},
	)

	GiveawaysEndedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giveaways_ended_total",
			Help: "Total number of giveaways ended",
		},
		[]string{"trigger"}, // manual, automatic
	)

	GiveawaysCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "giveaways_cancelled_total",
			Help: "Total number of giveaways cancelled",
		},
	)

	EntryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giveaway_entry_attempts_total",
			Help: "Total entry attempts by outcome",
		},
		[]string{"outcome"},
	)

	WinnersDrawnTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giveaway_winners_drawn_total",
			Help: "Total number of winners selected",
		},
		[]string{"round"}, // initial, reroll
	)

	RerollsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "giveaway_rerolls_total",
			Help: "Total number of successful rerolls",
		},
	)

	NotificationsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giveaway_notifications_failed_total",
			Help: "Total failed presentation notifications",
		},
		[]string{"event"},
	)

	// Gauges.
	ScheduledGiveaways = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giveaway_scheduled_timers",
			Help: "Current number of pending end timers",
		},
	)

	// Histograms.
	EndDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "giveaway_end_duration_seconds",
			Help:    "Time taken to end a giveaway including the draw",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
	)

	EntriesPerGiveaway = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "giveaway_entries_at_end",
			Help:    "Number of participants when a giveaway ends",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1 to ~16k
		},
	)

	// Scheduler metrics.
	SchedulerFiresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giveaway_scheduler_fires_total",
			Help: "Total end timer fires by status",
		},
		[]string{"status"},
	)

	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giveaway_reconcile_runs_total",
			Help: "Total reconcile sweep executions",
		},
		[]string{"status"},
	)

	ReconcileLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giveaway_reconcile_last_run_timestamp",
			Help: "Unix timestamp of last reconcile sweep",
		},
	)

	ReconcileDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "giveaway_reconcile_duration_seconds",
			Help:    "Time taken to execute the reconcile sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
	)
)

// RecordGiveawayCreated records a created giveaway.
func RecordGiveawayCreated() {
	GiveawaysCreatedTotal.Inc()
}

// RecordGiveawayEnded records an ended giveaway with its trigger and participant count.
func RecordGiveawayEnded(trigger string, participants int, seconds float64) {
	GiveawaysEndedTotal.WithLabelValues(trigger).Inc()
	EntriesPerGiveaway.Observe(float64(participants))
	EndDurationSeconds.Observe(seconds)
}

// RecordGiveawayCancelled records a cancelled giveaway.
func RecordGiveawayCancelled() {
	GiveawaysCancelledTotal.Inc()
}

// RecordEntryAttempt records the outcome of an entry attempt.
func RecordEntryAttempt(outcome string) {
	EntryAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordWinnersDrawn records the number of winners selected in a round.
func RecordWinnersDrawn(round string, count int) {
	WinnersDrawnTotal.WithLabelValues(round).Add(float64(count))
}

// RecordReroll records a successful reroll.
func RecordReroll() {
	RerollsTotal.Inc()
}

// RecordNotificationFailed records a failed notification.
func RecordNotificationFailed(event string) {
	NotificationsFailedTotal.WithLabelValues(event).Inc()
}

// SetScheduledGiveaways sets the number of pending end timers.
func SetScheduledGiveaways(count int) {
	ScheduledGiveaways.Set(float64(count))
}

// RecordSchedulerFire records an end timer fire.
func RecordSchedulerFire(status string) {
	SchedulerFiresTotal.WithLabelValues(status).Inc()
}

// RecordReconcileRun records a reconcile sweep execution.
func RecordReconcileRun(status string) {
	ReconcileRunsTotal.WithLabelValues(status).Inc()
}

// SetReconcileLastRun sets the timestamp of the last reconcile sweep.
func SetReconcileLastRun() {
	ReconcileLastRunTimestamp.SetToCurrentTime()
}

// ObserveReconcileDuration observes the duration of a reconcile sweep.
func ObserveReconcileDuration(seconds float64) {
	ReconcileDurationSeconds.Observe(seconds)
}
