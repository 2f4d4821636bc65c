// Package orchestration defines the data model shared by the planning and
// execution sides of an orchestration run: objectives, plans, steps, command
// proposals, execution results, analyses, the accumulated run context,
// reusable patterns and execution metadata.
//
// Types in this package are plain values with small helper methods. They do
// not publish events or touch the filesystem; components in other packages
// own those concerns.
package orchestration

import (
	"time"

	"github.com/google/uuid"
)

// ObjectiveStatus represents the lifecycle state of an Objective.
type ObjectiveStatus string

// Objective statuses
const (
	ObjectivePending    ObjectiveStatus = "pending"
	ObjectiveAnalyzing  ObjectiveStatus = "analyzing"
	ObjectiveInProgress ObjectiveStatus = "in_progress"
	ObjectiveCompleted  ObjectiveStatus = "completed"
	ObjectiveFailed     ObjectiveStatus = "failed"
	ObjectiveCancelled  ObjectiveStatus = "cancelled"
)

// IsTerminal reports whether no further work happens in this status.
func (s ObjectiveStatus) IsTerminal() bool {
	switch s {
	case ObjectiveCompleted, ObjectiveFailed, ObjectiveCancelled:
		return true
	default:
		return false
	}
}

// Objective is a user-level goal driving one orchestration run.
type Objective struct {
	ID              string          `json:"id"`
	Description     string          `json:"description"`
	SuccessCriteria []string        `json:"success_criteria,omitempty"`
	Status          ObjectiveStatus `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

// NewObjective creates a pending Objective with a fresh ID.
func NewObjective(description string, criteria ...string) *Objective {
	now := time.Now()
	return &Objective{
		ID:              uuid.NewString(),
		Description:     description,
		SuccessCriteria: append([]string(nil), criteria...),
		Status:          ObjectivePending,
		CreatedAt:       now,
		UpdatedAt:       now,
		Metadata:        make(map[string]any),
	}
}

// IsComplete reports whether the objective reached a terminal status.
func (o *Objective) IsComplete() bool {
	return o.Status.IsTerminal()
}

// UpdateStatus moves the objective to status and refreshes UpdatedAt.
func (o *Objective) UpdateStatus(status ObjectiveStatus) {
	o.Status = status
	o.UpdatedAt = time.Now()
}

// AddSuccessCriterion appends a criterion and refreshes UpdatedAt.
func (o *Objective) AddSuccessCriterion(criterion string) {
	o.SuccessCriteria = append(o.SuccessCriteria, criterion)
	o.UpdatedAt = time.Now()
}
