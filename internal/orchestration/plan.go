package orchestration

import "time"

// PlanStep describes one command of a Plan.
type PlanStep struct {
	// Number is 1-based and assigned by Plan.AddStep.
	Number        int           `json:"step_number"`
	Command       string        `json:"command"`
	Description   string        `json:"description"`
	EstimatedTime time.Duration `json:"estimated_time"`
}

// Plan is an ordered decomposition of an Objective.
type Plan struct {
	ObjectiveID        string        `json:"objective_id"`
	Steps              []PlanStep    `json:"steps"`
	EstimatedTotalTime time.Duration `json:"estimated_total_time"`
	// Complexity is a score between 0 and 1.
	Complexity     float64  `json:"complexity"`
	Dependencies   []string `json:"dependencies,omitempty"`
	RiskAssessment string   `json:"risk_assessment,omitempty"`
	// ParallelGroups lists groups of step numbers that may run together.
	ParallelGroups [][]int `json:"parallel_groups,omitempty"`
	// Fallback is set when the plan was substituted for an unparseable reply.
	Fallback bool `json:"fallback,omitempty"`
}

// NewPlan creates an empty plan for the given objective.
func NewPlan(objectiveID string) *Plan {
	return &Plan{ObjectiveID: objectiveID}
}

// AddStep appends a step, numbering it and accumulating the total estimate.
func (p *Plan) AddStep(command, description string, estimated time.Duration) PlanStep {
	step := PlanStep{
		Number:        len(p.Steps) + 1,
		Command:       command,
		Description:   description,
		EstimatedTime: estimated,
	}
	p.Steps = append(p.Steps, step)
	p.EstimatedTotalTime += estimated
	return step
}

// TotalSteps returns the number of steps in the plan.
func (p *Plan) TotalSteps() int {
	return len(p.Steps)
}

// Step returns the 1-indexed step n, or false when n is out of range.
func (p *Plan) Step(n int) (PlanStep, bool) {
	if n < 1 || n > len(p.Steps) {
		return PlanStep{}, false
	}
	return p.Steps[n-1], true
}
