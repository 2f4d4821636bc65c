package orchestration

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus represents the lifecycle state of a Step.
type StepStatus string

// Step statuses
const (
	StepPending   StepStatus = "pending"
	StepProposed  StepStatus = "proposed"
	StepApproved  StepStatus = "approved"
	StepRejected  StepStatus = "rejected"
	StepExecuting StepStatus = "executing"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step is one command-execution cycle within a plan.
type Step struct {
	ID          string           `json:"id"`
	ObjectiveID string           `json:"objective_id"`
	Number      int              `json:"step_number"`
	Command     string           `json:"command"`
	Reasoning   string           `json:"reasoning,omitempty"`
	Status      StepStatus       `json:"status"`
	Proposal    *CommandProposal `json:"proposal,omitempty"`
	Result      *ExecutionResult `json:"result,omitempty"`
	Analysis    *Analysis        `json:"analysis,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// NewStep creates a pending step for the objective.
func NewStep(objectiveID string, number int) *Step {
	return &Step{
		ID:          uuid.NewString(),
		ObjectiveID: objectiveID,
		Number:      number,
		Status:      StepPending,
		CreatedAt:   time.Now(),
	}
}

// IsTerminal reports whether the step reached a final status.
func (s *Step) IsTerminal() bool {
	switch s.Status {
	case StepCompleted, StepFailed, StepRejected, StepSkipped:
		return true
	default:
		return false
	}
}

// Duration returns the execution time when both timestamps are set.
func (s *Step) Duration() (time.Duration, bool) {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0, false
	}
	return s.CompletedAt.Sub(*s.StartedAt), true
}

// Propose attaches a proposal and copies its command and reasoning.
func (s *Step) Propose(p *CommandProposal) {
	s.Proposal = p
	s.Command = p.Command
	s.Reasoning = p.Reasoning
	s.Status = StepProposed
}

// Approve marks the proposed command as approved.
func (s *Step) Approve() {
	s.Status = StepApproved
}

// Reject marks the step as rejected and stamps completion.
func (s *Step) Reject() {
	s.Status = StepRejected
	s.markCompleted()
}

// Skip marks the step as skipped and stamps completion.
func (s *Step) Skip() {
	s.Status = StepSkipped
	s.markCompleted()
}

// StartExecution marks the step as executing.
func (s *Step) StartExecution() {
	now := time.Now()
	s.Status = StepExecuting
	s.StartedAt = &now
}

// CompleteExecution records a successful result.
func (s *Step) CompleteExecution(r *ExecutionResult) {
	s.Result = r
	s.Status = StepCompleted
	s.markCompleted()
}

// FailExecution records a failed result. r may be nil when nothing ran.
func (s *Step) FailExecution(r *ExecutionResult) {
	s.Result = r
	s.Status = StepFailed
	s.markCompleted()
}

func (s *Step) markCompleted() {
	now := time.Now()
	s.CompletedAt = &now
}
