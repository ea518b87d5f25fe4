package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chanctl"

var (
	// MessagesAdmitted counts inbound messages by rate limiter decision.
	MessagesAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_admitted_total",
		Help:      "Inbound messages by rate limiter decision.",
	}, []string{"decision"})

	// MessagesFiltered counts admitted messages dropped before persisting.
	MessagesFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_filtered_total",
		Help:      "Admitted messages dropped before persisting.",
	}, []string{"reason"})

	// ActiveBans is the number of senders currently banned by the rate limiter.
	ActiveBans = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_bans",
		Help:      "Senders currently banned by the rate limiter.",
	})

	// AuditRecords counts audit records written, by source.
	AuditRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_records_total",
		Help:      "Audit records written.",
	}, []string{"source"})

	// CommandsProcessed counts pending commands by verb and outcome.
	CommandsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_processed_total",
		Help:      "Pending commands processed by verb and outcome.",
	}, []string{"verb", "outcome"})

	// QueuePurged counts sent pending commands removed by garbage collection.
	QueuePurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_purged_total",
		Help:      "Sent pending commands removed by garbage collection.",
	})

	// CycleDuration records how long each scheduled cycle took.
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Scheduled cycle duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	}, []string{"cycle"})

	// CycleFailures counts cycles aborted by an error.
	CycleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycle_failures_total",
		Help:      "Scheduled cycles aborted by an error.",
	}, []string{"cycle"})

	// TrackedChannels is the number of channels in the membership roster.
	TrackedChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_channels",
		Help:      "Channels tracked in the membership roster.",
	})
)
