package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/executor"
	"github.com/Custos/imthedev-sub000/internal/logging"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// DefaultMaxSteps bounds the steps of one run, recovery attempts included.
const DefaultMaxSteps = 20

// Sentinel errors returned by Run.
var (
	ErrRunInProgress   = errors.New("a run is already in progress")
	ErrMaxSteps        = errors.New("step limit reached")
	ErrCommandRejected = errors.New("command rejected")
)

// Report summarizes a finished run.
type Report struct {
	Objective *orchestration.Objective
	Plan      *orchestration.Plan
	Steps     []*orchestration.Step
	// Context is a snapshot taken when the run ended.
	Context *orchestration.Context
	Status  orchestration.ObjectiveStatus
	// Reason explains a status other than completed.
	Reason string
	// Retryable is set when the error that ended the run is transient, such
	// as a failed model request.
	Retryable bool
	Duration  time.Duration
}

// Orchestrator runs one objective at a time.
type Orchestrator struct {
	planner   Planner
	runner    Runner
	reviewer  Reviewer
	bus       *event.Bus
	logger    *logging.Logger
	observers []ContextObserver

	maxSteps    int
	stepTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxSteps bounds the number of steps in one run. Values below 1 are
// ignored.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithStepTimeout sets the timeout handed to the runner for each command.
// Zero selects the runner's default.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stepTimeout = d }
}

// WithObserver registers an observer for the context of every run.
func WithObserver(obs ContextObserver) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// New creates an Orchestrator. The bus may be nil.
func New(p Planner, r Runner, rev Reviewer, bus *event.Bus, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		planner:  p,
		runner:   r,
		reviewer: rev,
		bus:      bus,
		logger:   logging.NopLogger(),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run pursues obj until the planner reports it done, a command is rejected,
// the step limit is reached or ctx is cancelled. The report is returned
// even when err is non-nil, except when another run is in progress.
//
// The run completes when the planner has nothing further to propose after
// a successful step. It fails when the last analysis reports a failure, the
// step limit is hit or a planning request fails. Cancellation and rejection
// end it as cancelled.
func (o *Orchestrator) Run(ctx context.Context, obj *orchestration.Objective) (*Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.cancel = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancel = nil
		o.mu.Unlock()
	}()

	r := &run{
		o:    o,
		obj:  obj,
		octx: orchestration.NewContext(obj.ID),
		log:  o.logger.WithObjective(obj.ID),
	}
	for _, obs := range o.observers {
		obs.Attach(r.octx)
	}

	status, reason, err := r.execute(ctx)
	if errors.IsCancellation(err) || ctx.Err() != nil {
		status = orchestration.ObjectiveCancelled
		reason = "cancelled"
	} else if err != nil {
		r.logFailure(reason, err)
	}

	o.planner.CompleteObjective(obj, r.octx, status)
	r.log.Info("run finished", "status", string(status), "reason", reason, "steps", len(r.steps))

	return &Report{
		Objective: obj,
		Plan:      r.plan,
		Steps:     r.steps,
		Context:   r.octx.Snapshot(),
		Status:    status,
		Reason:    reason,
		Retryable: status == orchestration.ObjectiveFailed && errors.IsRetryable(err),
		Duration:  time.Since(obj.CreatedAt),
	}, err
}

// Cancel stops the current run, terminating the running command. It is a
// no-op when nothing runs.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if err := o.runner.Cancel(); err != nil {
		o.logger.Warn("failed to cancel running command", "error", err.Error())
	}
}

// Running reports whether a run is in progress.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancel != nil
}

// run holds the state of one Run call.
type run struct {
	o     *Orchestrator
	obj   *orchestration.Objective
	octx  *orchestration.Context
	plan  *orchestration.Plan
	steps []*orchestration.Step
	log   *logging.Logger
}

func (r *run) execute(ctx context.Context) (orchestration.ObjectiveStatus, string, error) {
	plan, err := r.o.planner.AnalyzeObjective(ctx, r.obj)
	if err != nil {
		return orchestration.ObjectiveFailed, "planning failed", err
	}
	r.plan = plan
	r.octx.SetProgress(0, plan.TotalSteps())

	var description string
	if first, ok := plan.Step(1); ok {
		description = first.Description
	}

	r.octx.AdvanceStep()
	proposal, err := r.o.planner.ProposeCommand(ctx, r.octx, description)
	if err != nil {
		return orchestration.ObjectiveFailed, "command proposal failed", err
	}

	for {
		if err := ctx.Err(); err != nil {
			return orchestration.ObjectiveCancelled, "cancelled", err
		}
		if len(r.steps) >= r.o.maxSteps {
			r.log.Warn("step limit reached", "max_steps", r.o.maxSteps)
			return orchestration.ObjectiveFailed, fmt.Sprintf("step limit of %d reached", r.o.maxSteps), ErrMaxSteps
		}

		step := orchestration.NewStep(r.obj.ID, r.octx.Snapshot().CurrentStep)
		step.Propose(proposal)
		r.steps = append(r.steps, step)

		analysis, err := r.runStep(ctx, step)
		if err != nil {
			if errors.Is(err, ErrCommandRejected) {
				return orchestration.ObjectiveCancelled, "command rejected", err
			}
			return orchestration.ObjectiveFailed, "step failed", err
		}

		next, err := r.o.planner.DetermineNextStep(ctx, analysis, r.octx)
		if err != nil {
			return orchestration.ObjectiveFailed, "next step request failed", err
		}
		if next == nil {
			if !analysis.Success {
				return orchestration.ObjectiveFailed, "last step failed", nil
			}
			return orchestration.ObjectiveCompleted, "", nil
		}

		// A recovery retries the current step; anything else moves on.
		if !analysis.RequiresCorrection {
			r.octx.AdvanceStep()
		}
		proposal = next
	}
}

// runStep takes one proposal through review, validation, execution and
// analysis.
func (r *run) runStep(ctx context.Context, step *orchestration.Step) (*orchestration.Analysis, error) {
	proposal := step.Proposal
	log := r.log.With("step", step.Number, "command_id", proposal.ID)

	decision, err := r.o.reviewer.Review(ctx, proposal)
	if err != nil {
		return nil, err
	}
	if !decision.Approved() {
		step.Reject()
		log.Info("step rejected", "command", proposal.Command, "reason", decision.Reason)
		return nil, fmt.Errorf("%w: %s", ErrCommandRejected, proposal.Command)
	}
	step.Approve()
	step.Command = decision.Command

	result, err := r.runCommand(ctx, proposal.ID, step)
	if err != nil {
		return nil, err
	}

	analysis, err := r.o.planner.AnalyzeResult(ctx, result, r.octx)
	if err != nil {
		return nil, err
	}
	step.Analysis = analysis
	return analysis, nil
}

// runCommand validates and executes the step's command and records the
// outcome in the context. A command that cannot be validated or started
// yields a failed result so the planner can propose a recovery. Only
// cancellation is returned as an error.
func (r *run) runCommand(ctx context.Context, commandID string, step *orchestration.Step) (*orchestration.ExecutionResult, error) {
	command := step.Command
	log := r.log.With("step", step.Number)

	if err := executor.Validate(command); err != nil {
		r.emit(event.NewCommandValidatedEvent(commandID, command, false, []string{err.Error()}, executor.SuggestFixes(command)))
		log.Warn("command failed validation", "command", command, "error", err.Error())
		result := failedResult(command, err)
		step.FailExecution(result)
		r.octx.AddCommand(command, false)
		return result, nil
	}
	r.emit(event.NewCommandValidatedEvent(commandID, command, true, nil, nil))

	step.StartExecution()
	stream, err := r.o.runner.Execute(ctx, command, r.o.stepTimeout)
	if err != nil {
		if errors.IsCancellation(err) {
			step.FailExecution(nil)
			return nil, err
		}
		log.Error("command could not be started", "command", command, "error", err.Error())
		result := failedResult(command, err)
		step.FailExecution(result)
		r.octx.AddCommand(command, false)
		return result, nil
	}
	defer func() { _ = stream.Close() }()

	for stream.Next() {
	}
	result := stream.Result()
	if err := stream.Err(); errors.IsCancellation(err) {
		step.FailExecution(result)
		return nil, err
	}

	r.record(result)
	if result.Success() {
		step.CompleteExecution(result)
	} else {
		step.FailExecution(result)
	}
	return result, nil
}

// record adds one execution to the context.
func (r *run) record(result *orchestration.ExecutionResult) {
	r.octx.AddCommand(result.Command, result.Success())
	for _, path := range result.FilesCreated {
		r.octx.AddFileChange(path, orchestration.ChangeCreated)
	}
	for _, path := range result.FilesModified {
		r.octx.AddFileChange(path, orchestration.ChangeModified)
	}
	if result.TestResults != nil {
		r.octx.AddTestResult(*result.TestResults)
	}
}

func (r *run) emit(e event.Event) {
	if r.o.bus != nil {
		r.o.bus.Emit(e)
	}
}

// logFailure records the error that ended the run at the level its
// severity calls for.
func (r *run) logFailure(reason string, err error) {
	severity := errors.GetSeverity(err)
	args := []any{
		"reason", reason,
		"error", err.Error(),
		"severity", severity.String(),
		"retryable", errors.IsRetryable(err),
	}
	switch severity {
	case errors.SeverityDebug:
		r.log.Debug("run failed", args...)
	case errors.SeverityInfo:
		r.log.Info("run failed", args...)
	case errors.SeverityWarning:
		r.log.Warn("run failed", args...)
	default:
		r.log.Error("run failed", args...)
	}
}

// failedResult stands in for an execution that never produced output.
func failedResult(command string, err error) *orchestration.ExecutionResult {
	return &orchestration.ExecutionResult{
		Command:   command,
		ExitCode:  -1,
		Stderr:    err.Error(),
		Metadata:  map[string]any{"error": err.Error()},
		Timestamp: time.Now(),
	}
}
