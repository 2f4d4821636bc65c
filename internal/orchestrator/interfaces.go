package orchestrator

import (
	"context"
	"time"

	"github.com/Custos/imthedev-sub000/internal/approval"
	"github.com/Custos/imthedev-sub000/internal/executor"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// Planner turns objectives, contexts and results into plans, proposals and
// analyses. It is implemented by *planner.Coordinator.
type Planner interface {
	// AnalyzeObjective produces the plan for obj.
	AnalyzeObjective(ctx context.Context, obj *orchestration.Objective) (*orchestration.Plan, error)

	// ProposeCommand proposes the command for the current step.
	ProposeCommand(ctx context.Context, octx *orchestration.Context, stepDescription string) (*orchestration.CommandProposal, error)

	// AnalyzeResult interprets one execution.
	AnalyzeResult(ctx context.Context, result *orchestration.ExecutionResult, octx *orchestration.Context) (*orchestration.Analysis, error)

	// DetermineNextStep returns the next proposal, a recovery proposal when
	// the analysis requires correction, or nil when the objective is done.
	DetermineNextStep(ctx context.Context, analysis *orchestration.Analysis, octx *orchestration.Context) (*orchestration.CommandProposal, error)

	// CompleteObjective moves obj to a terminal status and announces it.
	CompleteObjective(obj *orchestration.Objective, octx *orchestration.Context, status orchestration.ObjectiveStatus)
}

// Runner executes validated commands. It is implemented by
// *executor.Executor.
type Runner interface {
	// Execute starts command and returns its output stream.
	Execute(ctx context.Context, command string, timeout time.Duration) (*executor.Stream, error)

	// Cancel stops the running command, if any.
	Cancel() error
}

// Reviewer approves, rejects or edits proposals. It is implemented by
// *approval.Gate.
type Reviewer interface {
	Review(ctx context.Context, p *orchestration.CommandProposal) (approval.Decision, error)
}

// ContextObserver is handed the orchestration context of every run before
// the objective is submitted. *learning.FeedbackLoop implements it.
type ContextObserver interface {
	Attach(octx *orchestration.Context)
}
