// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "keepsake"

var (
	// Transitions counts applied lifecycle writes. source is "sweep" for the
	// scheduler, "lazy" for read-path re-verification, "request" otherwise.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Lifecycle transitions applied, by transition and source.",
		},
		[]string{"transition", "source"},
	)

	// CASLost counts conditional writes that matched no row.
	CASLost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cas_lost_total",
			Help:      "Conditional writes that found the prior state already changed.",
		},
		[]string{"transition"},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduler job executions.",
		},
		[]string{"job"},
	)

	SweepErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "errors_total",
			Help:      "Scheduler job executions that returned an error.",
		},
		[]string{"job"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Scheduler job latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	Purged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "purged_total",
			Help:      "Withdrawn capsules permanently deleted by retention.",
		},
	)

	SharesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "share",
			Name:      "issued_total",
			Help:      "Share tokens issued.",
		},
	)

	// ShareResolves counts public resolutions by result: ok, not_found, limited.
	ShareResolves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "share",
			Name:      "resolves_total",
			Help:      "Public share resolutions by result.",
		},
		[]string{"result"},
	)

	// OpErrors counts operation failures by error code.
	OpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "op_errors_total",
			Help:      "Operation errors by operation and error code.",
		},
		[]string{"op", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route template and status code.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "code"},
	)
)
