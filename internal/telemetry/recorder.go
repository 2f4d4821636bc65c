package telemetry

import (
	"context"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/executor"
	"github.com/Custos/imthedev-sub000/internal/logging"
)

// NewRegistry creates a registry holding the event metrics, the bus
// collector and the Go runtime and process collectors.
func NewRegistry(bus *event.Bus) (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	reg.MustRegister(
		NewBusCollector(bus),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, m
}

// Recorder updates Metrics from bus events.
type Recorder struct {
	bus     *event.Bus
	metrics *Metrics
	logger  *logging.Logger

	mu  sync.Mutex
	ids []string
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *logging.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecorder creates a Recorder. Call Start to subscribe it.
func NewRecorder(bus *event.Bus, m *Metrics, opts ...RecorderOption) *Recorder {
	r := &Recorder{bus: bus, metrics: m, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes the recorder to the bus.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlers := map[string]event.Handler{
		event.TypeCommandProposed:    r.onProposed,
		event.TypeCommandApproved:    r.onApproved,
		event.TypeCommandRejected:    r.onRejected,
		event.TypeCommandModified:    r.onModified,
		event.TypeCommandValidated:   r.onValidated,
		event.TypeExecutionComplete:  r.onExecutionComplete,
		event.TypeExecutionFailed:    r.onExecutionFailed,
		event.TypeRecoveryProposed:   r.onRecovery,
		event.TypeObjectiveCompleted: r.onObjectiveCompleted,
		event.TypePatternDetected:    r.onPatternDetected,
		event.TypePatternApplied:     r.onPatternApplied,
		event.TypeLearningCaptured:   r.onLearning,
		event.TypeMetricsCalculated:  r.onMetricsCalculated,
	}
	for kind, h := range handlers {
		r.ids = append(r.ids, r.bus.Subscribe(kind, h))
	}
	r.ids = append(r.ids, r.bus.SubscribeAll(r.onAny))
	r.logger.Debug("telemetry recorder subscribed", "subscriptions", len(r.ids))
}

// Stop removes the recorder's subscriptions.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.ids {
		r.bus.Unsubscribe(id)
	}
	r.ids = nil
}

func (r *Recorder) onAny(_ context.Context, e event.Event) error {
	r.metrics.Events.WithLabelValues(e.EventType()).Inc()
	return nil
}

func (r *Recorder) onProposed(_ context.Context, e event.Event) error {
	if p, ok := e.(*event.CommandProposedEvent); ok {
		r.metrics.Proposals.Inc()
		r.metrics.ProposalConfidence.Observe(p.Confidence)
	}
	return nil
}

func (r *Recorder) onApproved(_ context.Context, e event.Event) error {
	if a, ok := e.(*event.CommandApprovedEvent); ok {
		r.metrics.Decisions.WithLabelValues("approved", a.ApprovedBy).Inc()
	}
	return nil
}

func (r *Recorder) onRejected(_ context.Context, e event.Event) error {
	if rj, ok := e.(*event.CommandRejectedEvent); ok {
		r.metrics.Decisions.WithLabelValues("rejected", rj.RejectedBy).Inc()
	}
	return nil
}

func (r *Recorder) onModified(_ context.Context, e event.Event) error {
	if m, ok := e.(*event.CommandModifiedEvent); ok {
		r.metrics.Decisions.WithLabelValues("modified", m.ModifiedBy).Inc()
	}
	return nil
}

func (r *Recorder) onValidated(_ context.Context, e event.Event) error {
	if v, ok := e.(*event.CommandValidatedEvent); ok {
		r.metrics.Validations.WithLabelValues(strconv.FormatBool(v.IsValid)).Inc()
	}
	return nil
}

func (r *Recorder) onExecutionComplete(_ context.Context, e event.Event) error {
	c, ok := e.(*event.ExecutionCompleteEvent)
	if !ok {
		return nil
	}
	kind := executor.CommandKind(c.Command)
	if kind == "" {
		kind = "unknown"
	}
	r.metrics.Executions.WithLabelValues(kind, strconv.FormatBool(c.ExitCode == 0)).Inc()
	r.metrics.ExecutionDuration.Observe(c.ExecutionTime.Seconds())
	r.metrics.FilesTouched.WithLabelValues("created").Add(float64(len(c.FilesCreated)))
	r.metrics.FilesTouched.WithLabelValues("modified").Add(float64(len(c.FilesModified)))
	return nil
}

func (r *Recorder) onExecutionFailed(_ context.Context, e event.Event) error {
	if f, ok := e.(*event.ExecutionFailedEvent); ok {
		r.metrics.ExecutionFailures.WithLabelValues(f.ErrorType).Inc()
	}
	return nil
}

func (r *Recorder) onRecovery(context.Context, event.Event) error {
	r.metrics.Recoveries.Inc()
	return nil
}

func (r *Recorder) onObjectiveCompleted(_ context.Context, e event.Event) error {
	c, ok := e.(*event.ObjectiveCompletedEvent)
	if !ok {
		return nil
	}
	r.metrics.Objectives.WithLabelValues(string(c.Status)).Inc()
	r.metrics.ObjectiveDuration.Observe(c.TotalTime.Seconds())
	r.metrics.ObjectiveSteps.Observe(float64(c.TotalSteps))
	return nil
}

func (r *Recorder) onPatternDetected(context.Context, event.Event) error {
	r.metrics.PatternsDetected.Inc()
	return nil
}

func (r *Recorder) onPatternApplied(context.Context, event.Event) error {
	r.metrics.PatternsApplied.Inc()
	return nil
}

func (r *Recorder) onLearning(context.Context, event.Event) error {
	r.metrics.Learnings.Inc()
	return nil
}

func (r *Recorder) onMetricsCalculated(_ context.Context, e event.Event) error {
	m, ok := e.(*event.MetricsCalculatedEvent)
	if !ok {
		return nil
	}
	r.metrics.SuccessRate.Set(m.SuccessRate)
	r.metrics.InterventionRate.Set(m.UserInterventionRate)
	r.metrics.PatternReuseRate.Set(m.PatternReuseRate)
	return nil
}
