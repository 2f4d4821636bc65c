// Package planner drives an objective from plan to completion by asking a
// language model for structured decisions.
//
// Every decision is one round trip through a [Completer]: the coordinator
// builds a prompt from the objective or the run's orchestration.Context,
// extracts the first JSON object from the reply and parses it with
// [ParsePlan], [ParseProposal] or [ParseAnalysis]. Replies that cannot be
// parsed are replaced by conservative fallback values carrying Fallback=true,
// and the event published for them has "fallback" set in its metadata.
// Failed requests are returned as *errors.CoordinatorError.
//
// Per objective the decisions follow this order:
//
//	AnalyzeObjective   -> ObjectiveAnalyzed, PlanGenerated
//	ProposeCommand     -> CommandProposed
//	AnalyzeResult      -> ResultAnalyzed
//	DetermineNextStep  -> NextStepProposed, or ProposeRecovery -> RecoveryProposed
//	CompleteObjective  -> ObjectiveCompleted
//
// DetermineNextStep returns no proposal once the analysis reports that the
// run cannot continue or the context has reached the plan's last step.
package planner
