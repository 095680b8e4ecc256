// Package metrics exposes engine counters and gauges via Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	Decisions       *prometheus.CounterVec // by decision kind
	PhaseExecutions *prometheus.CounterVec // by phase, outcome
	LoopDetections  *prometheus.CounterVec // by pattern
	BreakerTrips    *prometheus.CounterVec // by dependency name
	BreakerState    *prometheus.GaugeVec   // 0 closed, 1 half-open, 2 open
	ActiveLoops     prometheus.Gauge
	CheckpointsOpen prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates collectors on the given registry
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exeflow_decisions_total",
			Help: "Agent decisions by kind.",
		}, []string{"kind"}),
		PhaseExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exeflow_phase_executions_total",
			Help: "Executed phases by phase and outcome.",
		}, []string{"phase", "outcome"}),
		LoopDetections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exeflow_loop_detections_total",
			Help: "Loop patterns detected by pattern.",
		}, []string{"pattern"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exeflow_breaker_trips_total",
			Help: "Circuit breaker trips by dependency.",
		}, []string{"dependency"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exeflow_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"dependency"}),
		ActiveLoops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exeflow_active_loops",
			Help: "Currently running project control loops.",
		}),
		CheckpointsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exeflow_checkpoints_pending",
			Help: "Checkpoints currently awaiting a human answer.",
		}),
	}

	reg.MustRegister(
		m.Decisions, m.PhaseExecutions, m.LoopDetections,
		m.BreakerTrips, m.BreakerState, m.ActiveLoops, m.CheckpointsOpen,
	)
	return m
}

// Handler returns the HTTP handler serving this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBreaker translates a breaker state name to the gauge encoding
func (m *Metrics) ObserveBreaker(dependency, state string) {
	var v float64
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	m.BreakerState.WithLabelValues(dependency).Set(v)
}
