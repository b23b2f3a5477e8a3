package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MonitorsEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryml_monitors_evaluated_total",
			Help: "Monitors fully evaluated (PSI computed and persisted)",
		},
	)

	MonitorsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryml_monitors_skipped_total",
			Help: "Monitors skipped for insufficient samples",
		},
	)

	MonitorsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryml_monitors_failed_total",
			Help: "Monitor evaluations aborted by an error",
		},
	)

	IncidentsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryml_incidents_opened_total",
			Help: "Drift incidents opened by the worker",
		},
	)

	IncidentsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryml_incidents_resolved_total",
			Help: "Drift incidents auto-resolved by the worker",
		},
	)

	NotifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryml_notify_failures_total",
			Help: "Webhook notification attempts that failed",
		},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentryml_run_duration_seconds",
			Help:    "Wall time of one full monitoring run",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
)
