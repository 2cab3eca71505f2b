package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	replacementRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acceleration",
			Name:      "replacement_requests_total",
			Help:      "Total replacement requests processed.",
		},
		[]string{"chain", "action", "outcome"}, // outcome: "success", "ineligible", "fee_too_low", "in_progress", "submission_error", "error"
	)

	lifecycleEventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acceleration",
			Name:      "lifecycle_events_total",
			Help:      "Total confirmation/drop notifications applied.",
		},
		[]string{"event", "outcome"}, // outcome: "applied", "duplicate", "invalid_transition", "unknown_tx", "error"
	)

	submissionDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "acceleration",
			Name:      "submission_duration_seconds",
			Help:      "Duration of replacement submission round trips.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"action"},
	)
)
