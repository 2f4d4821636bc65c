// Package telemetry exposes orchestration activity as Prometheus metrics.
//
// A [Recorder] subscribes to the event bus and turns events into counters,
// histograms and gauges. [NewBusCollector] reports the bus's own counters.
// [Server] serves a registry on /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "imthedev"

// Metrics holds the Prometheus metrics fed from bus events.
type Metrics struct {
	// Event traffic
	Events *prometheus.CounterVec

	// Command lifecycle
	Proposals          prometheus.Counter
	ProposalConfidence prometheus.Histogram
	Decisions          *prometheus.CounterVec
	Validations        *prometheus.CounterVec

	// Executions
	Executions        *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	ExecutionFailures *prometheus.CounterVec
	FilesTouched      *prometheus.CounterVec

	// Objectives
	Objectives        *prometheus.CounterVec
	ObjectiveDuration prometheus.Histogram
	ObjectiveSteps    prometheus.Histogram
	Recoveries        prometheus.Counter

	// Learning
	PatternsDetected prometheus.Counter
	PatternsApplied  prometheus.Counter
	Learnings        prometheus.Counter
	SuccessRate      prometheus.Gauge
	InterventionRate prometheus.Gauge
	PatternReuseRate prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of events published on the bus",
			},
			[]string{"type"},
		),

		Proposals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_proposals_total",
			Help:      "Total number of proposed commands",
		}),
		ProposalConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_proposal_confidence",
			Help:      "Confidence reported for proposed commands",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "command_decisions_total",
				Help:      "Total number of approval decisions",
			},
			[]string{"decision", "by"},
		),
		Validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "command_validations_total",
				Help:      "Total number of command validations",
			},
			[]string{"valid"},
		),

		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of finished command executions",
			},
			[]string{"kind", "success"},
		),
		ExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Command execution duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		ExecutionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "execution_failures_total",
				Help:      "Total number of failed executions by failure type",
			},
			[]string{"error_type"},
		),
		FilesTouched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_touched_total",
				Help:      "Total number of files reported created or modified",
			},
			[]string{"change"},
		),

		Objectives: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "objectives_total",
				Help:      "Total number of finished objectives",
			},
			[]string{"status"},
		),
		ObjectiveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "objective_duration_seconds",
			Help:      "Objective duration in seconds",
			Buckets:   []float64{30, 60, 300, 600, 1800, 3600, 7200},
		}),
		ObjectiveSteps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "objective_steps",
			Help:      "Number of steps taken per objective",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 20},
		}),
		Recoveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_total",
			Help:      "Total number of recovery proposals",
		}),

		PatternsDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_detected_total",
			Help:      "Total number of detected command patterns",
		}),
		PatternsApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_applied_total",
			Help:      "Total number of stored patterns used to seed a plan",
		}),
		Learnings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "learnings_total",
			Help:      "Total number of captured learnings",
		}),
		SuccessRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "objective_success_rate",
			Help:      "Command success rate of the last finished objective",
		}),
		InterventionRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "user_intervention_rate",
			Help:      "Share of proposals rejected or edited by a reviewer",
		}),
		PatternReuseRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pattern_reuse_rate",
			Help:      "Share of completed objectives seeded by a stored pattern",
		}),
	}
}
