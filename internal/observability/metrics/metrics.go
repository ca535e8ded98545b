package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ownermatch_records_processed_total",
		Help: "Legacy user records processed, by terminal outcome",
	}, []string{"outcome"})

	matches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ownermatch_matches_total",
		Help: "Successful matches by strategy",
	}, []string{"strategy"})

	lowConfidenceMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ownermatch_low_confidence_matches_total",
		Help: "Matches applied below the review confidence threshold",
	})

	recordErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ownermatch_record_errors_total",
		Help: "Per-record recoverable errors by reason",
	}, []string{"reason"})

	reconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ownermatch_reconcile_duration_seconds",
		Help:    "Duration of single-record reconciliation",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	recordsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ownermatch_records_remaining",
		Help: "Records not yet reconciled in the current run",
	})
)

// ObserveOutcome records a finished record with its terminal outcome and
// how long reconciliation took.
func ObserveOutcome(outcome string, duration time.Duration) {
	recordsProcessed.WithLabelValues(outcome).Inc()
	reconcileDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveMatch counts a successful match for a strategy.
func ObserveMatch(strategy string) {
	matches.WithLabelValues(strategy).Inc()
}

// ObserveLowConfidence counts a match applied below the review threshold.
func ObserveLowConfidence() {
	lowConfidenceMatches.Inc()
}

// ObserveRecordError counts a per-record recoverable error.
func ObserveRecordError(reason string) {
	recordErrors.WithLabelValues(reason).Inc()
}

// SetRemaining sets the records-remaining gauge.
func SetRemaining(count int) {
	if count < 0 {
		count = 0
	}
	recordsRemaining.Set(float64(count))
}
