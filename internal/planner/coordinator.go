package planner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/logging"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// Phases reported on CoordinatorError.
const (
	PhaseAnalyzeObjective  = "analyze_objective"
	PhaseProposeCommand    = "propose_command"
	PhaseAnalyzeResult     = "analyze_result"
	PhaseDetermineNextStep = "determine_next_step"
	PhaseProposeRecovery   = "propose_recovery"
)

// fallbackMetaKey marks events built from a substituted fallback value.
const fallbackMetaKey = "fallback"

// Completer turns a prompt into model text. It is the coordinator's only
// external dependency; retries and backoff are the implementation's concern.
type Completer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Coordinator turns objectives into plans, plan steps into command proposals
// and execution results into analyses, publishing a planning event for each
// decision.
//
// Coordinator holds no per-objective state; callers pass the objective's
// Context into every call. It is safe for concurrent use when the Completer
// and PatternSource are.
type Coordinator struct {
	completer Completer
	bus       *event.Bus
	patterns  PatternSource
	logger    *logging.Logger
	source    string
}

// New creates a Coordinator. bus may be nil, in which case no events are
// published.
func New(completer Completer, bus *event.Bus, opts ...Option) *Coordinator {
	cfg := coordinatorConfig{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Coordinator{
		completer: completer,
		bus:       bus,
		patterns:  cfg.patterns,
		logger:    cfg.logger.WithPhase("planning"),
		source:    cfg.source,
	}
}

// AnalyzeObjective requests a plan for obj, seeding the request with the
// best matching stored pattern. The objective moves to analyzing while the
// request is outstanding and to in_progress once a plan exists.
//
// An unparseable reply yields a single-step analysis plan with Fallback set.
// A failed request returns a *errors.CoordinatorError and leaves the status
// at analyzing.
func (c *Coordinator) AnalyzeObjective(ctx context.Context, obj *orchestration.Objective) (*orchestration.Plan, error) {
	log := c.logger.WithObjective(obj.ID)

	c.emit(event.NewObjectiveSubmittedEvent(obj.ID, obj.Description, obj.SuccessCriteria, obj.Metadata), false)
	obj.UpdateStatus(orchestration.ObjectiveAnalyzing)
	log.Info("analyzing objective", "description", obj.Description)

	var pattern *orchestration.Pattern
	if c.patterns != nil {
		if p, ok := c.patterns.Best(obj.Description); ok {
			pattern = p
			log.Info("matched stored pattern", "pattern", p.Name, "reliability", p.ReliabilityScore())
		}
	}

	reply, err := c.completer.Generate(ctx, BuildObjectivePrompt(obj, pattern))
	if err != nil {
		log.Error("plan request failed", "error", err)
		return nil, errors.NewCoordinatorError("plan request failed", err).
			WithObjectiveID(obj.ID).
			WithPhase(PhaseAnalyzeObjective).
			WithRetryable(errors.IsRetryable(err))
	}

	plan, err := ParsePlan(reply, obj.ID)
	if err != nil {
		log.Warn("unparseable plan reply, using fallback plan", "error", err)
		plan = fallbackPlan(obj.ID)
	}

	approach := approachDiscovery
	if pattern != nil {
		approach = approachPatternBased
		c.patterns.Use(pattern.ID)
		c.emit(event.NewPatternAppliedEvent(obj.ID, pattern.ID, pattern.Name, pattern.ReliabilityScore(), nil), false)
	}

	c.emit(event.NewObjectiveAnalyzedEvent(obj.ID, plan.RiskAssessment, plan.TotalSteps(), plan.Complexity, approach, plan.Dependencies), plan.Fallback)
	c.emit(event.NewPlanGeneratedEvent(plan), plan.Fallback)

	obj.UpdateStatus(orchestration.ObjectiveInProgress)
	log.Info("plan generated", "steps", plan.TotalSteps(), "complexity", plan.Complexity, "fallback", plan.Fallback)
	return plan, nil
}

// ProposeCommand requests the command for the current step of octx.
// stepDescription is usually the plan step's description and may be empty.
func (c *Coordinator) ProposeCommand(ctx context.Context, octx *orchestration.Context, stepDescription string) (*orchestration.CommandProposal, error) {
	step := octx.Snapshot().CurrentStep
	log := c.logger.WithObjective(octx.ObjectiveID).With("step", step)
	log.Info("proposing command")

	proposal, err := c.requestProposal(ctx, BuildCommandPrompt(octx, stepDescription), log)
	if err != nil {
		return nil, errors.NewCoordinatorError("command request failed", err).
			WithObjectiveID(octx.ObjectiveID).
			WithStep(step).
			WithPhase(PhaseProposeCommand).
			WithRetryable(errors.IsRetryable(err))
	}

	c.emit(event.NewCommandProposedEvent(proposal.ID, proposal.Command, proposal.Reasoning, proposal.Confidence, proposal.Alternatives, summarizeContext(octx)), proposal.Fallback)
	return proposal, nil
}

// AnalyzeResult requests an interpretation of result. An unparseable reply
// yields an analysis whose Success mirrors the exit code, with Fallback set.
func (c *Coordinator) AnalyzeResult(ctx context.Context, result *orchestration.ExecutionResult, octx *orchestration.Context) (*orchestration.Analysis, error) {
	step := octx.Snapshot().CurrentStep
	log := c.logger.WithObjective(octx.ObjectiveID).WithExecution(result.ExecutionID)
	log.Info("analyzing execution result", "command", result.Command, "exit_code", result.ExitCode)

	reply, err := c.completer.Generate(ctx, BuildResultPrompt(result, octx))
	if err != nil {
		log.Error("analysis request failed", "error", err)
		return nil, errors.NewCoordinatorError("analysis request failed", err).
			WithObjectiveID(octx.ObjectiveID).
			WithStep(step).
			WithPhase(PhaseAnalyzeResult).
			WithRetryable(errors.IsRetryable(err))
	}

	analysis, err := ParseAnalysis(reply, result.ExecutionID)
	if err != nil {
		log.Warn("unparseable analysis reply, using fallback analysis", "error", err)
		analysis = fallbackAnalysis(result)
	}

	c.emit(event.NewResultAnalyzedEvent(octx.ObjectiveID, step, analysis), analysis.Fallback)
	return analysis, nil
}

// DetermineNextStep decides what follows analysis. It returns (nil, nil)
// when the analysis says the run cannot continue or every planned step has
// been taken. An analysis requiring correction is routed to ProposeRecovery.
func (c *Coordinator) DetermineNextStep(ctx context.Context, analysis *orchestration.Analysis, octx *orchestration.Context) (*orchestration.CommandProposal, error) {
	snap := octx.Snapshot()
	log := c.logger.WithObjective(octx.ObjectiveID).With("step", snap.CurrentStep)

	if !analysis.CanContinue || snap.CurrentStep >= snap.TotalSteps {
		log.Info("no further step", "can_continue", analysis.CanContinue, "total_steps", snap.TotalSteps)
		return nil, nil
	}
	if analysis.RequiresCorrection {
		return c.ProposeRecovery(ctx, analysis, octx)
	}

	proposal, err := c.requestProposal(ctx, BuildNextStepPrompt(analysis, octx), log)
	if err != nil {
		return nil, errors.NewCoordinatorError("next step request failed", err).
			WithObjectiveID(octx.ObjectiveID).
			WithStep(snap.CurrentStep).
			WithPhase(PhaseDetermineNextStep).
			WithRetryable(errors.IsRetryable(err))
	}

	c.emit(event.NewNextStepProposedEvent(octx.ObjectiveID, snap.CurrentStep+1, proposal), proposal.Fallback)
	return proposal, nil
}

// ProposeRecovery requests a corrective command for the failure described
// by analysis.
func (c *Coordinator) ProposeRecovery(ctx context.Context, analysis *orchestration.Analysis, octx *orchestration.Context) (*orchestration.CommandProposal, error) {
	step := octx.Snapshot().CurrentStep
	log := c.logger.WithObjective(octx.ObjectiveID).With("step", step)
	log.Info("proposing recovery", "understanding", analysis.Understanding)

	proposal, err := c.requestProposal(ctx, BuildRecoveryPrompt(analysis, octx), log)
	if err != nil {
		return nil, errors.NewCoordinatorError("recovery request failed", err).
			WithObjectiveID(octx.ObjectiveID).
			WithStep(step).
			WithPhase(PhaseProposeRecovery).
			WithRetryable(errors.IsRetryable(err))
	}

	c.emit(event.NewRecoveryProposedEvent(octx.ObjectiveID, step, analysis.Understanding, proposal), proposal.Fallback)
	return proposal, nil
}

// CompleteObjective moves obj to the terminal status and publishes
// ObjectiveCompleted with the run's summary figures.
func (c *Coordinator) CompleteObjective(obj *orchestration.Objective, octx *orchestration.Context, status orchestration.ObjectiveStatus) {
	snap := octx.Snapshot()
	obj.UpdateStatus(status)

	metrics := map[string]float64{
		"success_rate": snap.SuccessRate(),
		"progress":     snap.Progress(),
		"commands":     float64(len(snap.CommandHistory)),
		"files":        float64(len(snap.FileChanges)),
	}
	elapsed := time.Since(obj.CreatedAt)

	c.logger.WithObjective(obj.ID).Info("objective finished",
		"status", string(status),
		"steps", snap.CurrentStep,
		"duration", elapsed)

	c.emit(event.NewObjectiveCompletedEvent(obj, snap.CurrentStep, elapsed, metrics, snap.LearnedPatterns, snap.SuccessfulCommands), false)
}

// requestProposal runs one proposal round trip and assigns the proposal an ID.
// Only a failed request is an error; an unparseable reply becomes the help
// fallback.
func (c *Coordinator) requestProposal(ctx context.Context, prompt string, log *logging.Logger) (*orchestration.CommandProposal, error) {
	reply, err := c.completer.Generate(ctx, prompt)
	if err != nil {
		log.Error("proposal request failed", "error", err)
		return nil, err
	}

	proposal, err := ParseProposal(reply)
	if err != nil {
		log.Warn("unparseable proposal reply, using fallback proposal", "error", err)
		proposal = fallbackProposal()
	}
	proposal.ID = uuid.NewString()
	return proposal, nil
}

// annotatable is an event whose envelope can still be adjusted before emission.
type annotatable interface {
	event.Event
	SetSource(source string)
	SetMeta(key string, value any)
}

func (c *Coordinator) emit(e annotatable, fallback bool) {
	if c.bus == nil {
		return
	}
	if c.source != "" {
		e.SetSource(c.source)
	}
	if fallback {
		e.SetMeta(fallbackMetaKey, true)
	}
	c.bus.Emit(e)
}
