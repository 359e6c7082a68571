// Package metrics exposes Prometheus metrics for the supervisor's
// control loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overseer_verdicts_total",
			Help: "Total verdicts produced by the assessment pipeline",
		},
		[]string{"kind"},
	)
	Dispatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "overseer_dispatches_total",
			Help: "Total worker dispatches",
		},
	)
	BreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "overseer_breaker_trips_total",
			Help: "Total circuit breaker trips",
		},
	)
	BreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "overseer_breaker_open",
			Help: "1 when the circuit breaker is tripped, 0 otherwise",
		},
	)
	StuckChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overseer_stuck_checks_total",
			Help: "Total stuck-detection checks by outcome",
		},
		[]string{"stuck"},
	)
	TasksByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "overseer_tasks_by_state",
			Help: "Current number of tasks in each lifecycle state",
		},
		[]string{"state"},
	)
	PulseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "overseer_pulse_duration_seconds",
			Help:    "Wall time of one pulse cycle",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)
