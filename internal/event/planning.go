package event

import (
	"time"

	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// Planning event types.
const (
	TypeObjectiveSubmitted = "planning.objective_submitted"
	TypeObjectiveAnalyzed  = "planning.objective_analyzed"
	TypePlanGenerated      = "planning.plan_generated"
	TypeResultAnalyzed     = "planning.result_analyzed"
	TypeNextStepProposed   = "planning.next_step_proposed"
	TypeRecoveryProposed   = "planning.recovery_proposed"
	TypeObjectiveCompleted = "planning.objective_completed"
)

// planningEvent carries the fields common to planning-agent events.
type planningEvent struct {
	baseEvent
	ObjectiveID string
	StepNumber  int
}

func newPlanningEvent(eventType, objectiveID string, stepNumber int) planningEvent {
	return planningEvent{
		baseEvent:   newBaseEvent(CategoryPlanning, eventType),
		ObjectiveID: objectiveID,
		StepNumber:  stepNumber,
	}
}

// ObjectiveSubmittedEvent is emitted when a user objective enters the loop.
type ObjectiveSubmittedEvent struct {
	planningEvent
	ObjectiveText   string
	SuccessCriteria []string
	Context         map[string]any
}

// NewObjectiveSubmittedEvent creates an ObjectiveSubmittedEvent.
func NewObjectiveSubmittedEvent(objectiveID, text string, criteria []string, context map[string]any) *ObjectiveSubmittedEvent {
	return &ObjectiveSubmittedEvent{
		planningEvent:   newPlanningEvent(TypeObjectiveSubmitted, objectiveID, 0),
		ObjectiveText:   text,
		SuccessCriteria: criteria,
		Context:         context,
	}
}

// ObjectiveAnalyzedEvent is emitted once the planning agent has sized an objective.
type ObjectiveAnalyzedEvent struct {
	planningEvent
	Analysis             string
	EstimatedSteps       int
	ComplexityScore      float64
	SuggestedApproach    string
	RequiredCapabilities []string
}

// NewObjectiveAnalyzedEvent creates an ObjectiveAnalyzedEvent.
func NewObjectiveAnalyzedEvent(objectiveID, analysis string, estimatedSteps int, complexity float64, approach string, capabilities []string) *ObjectiveAnalyzedEvent {
	return &ObjectiveAnalyzedEvent{
		planningEvent:        newPlanningEvent(TypeObjectiveAnalyzed, objectiveID, 0),
		Analysis:             analysis,
		EstimatedSteps:       estimatedSteps,
		ComplexityScore:      complexity,
		SuggestedApproach:    approach,
		RequiredCapabilities: capabilities,
	}
}

// PlanGeneratedEvent carries the steps of a freshly generated plan.
type PlanGeneratedEvent struct {
	planningEvent
	PlanSteps          []orchestration.PlanStep
	TotalEstimatedTime time.Duration
	Dependencies       []string
	RiskAssessment     string
}

// NewPlanGeneratedEvent creates a PlanGeneratedEvent from a plan.
func NewPlanGeneratedEvent(plan *orchestration.Plan) *PlanGeneratedEvent {
	return &PlanGeneratedEvent{
		planningEvent:      newPlanningEvent(TypePlanGenerated, plan.ObjectiveID, 0),
		PlanSteps:          append([]orchestration.PlanStep(nil), plan.Steps...),
		TotalEstimatedTime: plan.EstimatedTotalTime,
		Dependencies:       plan.Dependencies,
		RiskAssessment:     plan.RiskAssessment,
	}
}

// ResultAnalyzedEvent is emitted after the planning agent interprets an execution.
type ResultAnalyzedEvent struct {
	planningEvent
	ExecutionID     string
	Success         bool
	Understanding   string
	MissingElements []string
	NextAction      string
	Confidence      float64
	Insights        []string
}

// NewResultAnalyzedEvent creates a ResultAnalyzedEvent.
func NewResultAnalyzedEvent(objectiveID string, stepNumber int, a *orchestration.Analysis) *ResultAnalyzedEvent {
	return &ResultAnalyzedEvent{
		planningEvent:   newPlanningEvent(TypeResultAnalyzed, objectiveID, stepNumber),
		ExecutionID:     a.ExecutionID,
		Success:         a.Success,
		Understanding:   a.Understanding,
		MissingElements: a.MissingElements,
		NextAction:      a.NextAction,
		Confidence:      a.Confidence,
		Insights:        a.LearnedInsights,
	}
}

// NextStepProposedEvent carries the follow-on command for the next step.
type NextStepProposedEvent struct {
	planningEvent
	NextCommand     string
	Reasoning       string
	Alternatives    []string
	ExpectedOutcome string
}

// NewNextStepProposedEvent creates a NextStepProposedEvent.
func NewNextStepProposedEvent(objectiveID string, stepNumber int, p *orchestration.CommandProposal) *NextStepProposedEvent {
	return &NextStepProposedEvent{
		planningEvent:   newPlanningEvent(TypeNextStepProposed, objectiveID, stepNumber),
		NextCommand:     p.Command,
		Reasoning:       p.Reasoning,
		Alternatives:    p.Alternatives,
		ExpectedOutcome: p.ExpectedOutcome,
	}
}

// RecoveryProposedEvent carries a corrective command after a failed step.
type RecoveryProposedEvent struct {
	planningEvent
	ErrorContext       string
	RecoveryStrategy   string
	RecoveryCommands   []string
	SuccessProbability float64
}

// NewRecoveryProposedEvent creates a RecoveryProposedEvent. The proposal's
// command is listed first, followed by its alternatives.
func NewRecoveryProposedEvent(objectiveID string, stepNumber int, errorContext string, p *orchestration.CommandProposal) *RecoveryProposedEvent {
	commands := append([]string{p.Command}, p.Alternatives...)
	return &RecoveryProposedEvent{
		planningEvent:      newPlanningEvent(TypeRecoveryProposed, objectiveID, stepNumber),
		ErrorContext:       errorContext,
		RecoveryStrategy:   p.Reasoning,
		RecoveryCommands:   commands,
		SuccessProbability: p.Confidence,
	}
}

// ObjectiveCompletedEvent is emitted when an objective reaches a terminal status.
type ObjectiveCompletedEvent struct {
	planningEvent
	Status         orchestration.ObjectiveStatus
	TotalSteps     int
	TotalTime      time.Duration
	SuccessMetrics map[string]float64
	// LearnedPatterns holds the insights gathered along the way.
	LearnedPatterns []string
	// SuccessfulCommands is the command sequence that succeeded, in order.
	SuccessfulCommands []string
}

// NewObjectiveCompletedEvent creates an ObjectiveCompletedEvent.
func NewObjectiveCompletedEvent(obj *orchestration.Objective, totalSteps int, totalTime time.Duration, metrics map[string]float64, learned, successful []string) *ObjectiveCompletedEvent {
	return &ObjectiveCompletedEvent{
		planningEvent:      newPlanningEvent(TypeObjectiveCompleted, obj.ID, totalSteps),
		Status:             obj.Status,
		TotalSteps:         totalSteps,
		TotalTime:          totalTime,
		SuccessMetrics:     metrics,
		LearnedPatterns:    learned,
		SuccessfulCommands: successful,
	}
}
