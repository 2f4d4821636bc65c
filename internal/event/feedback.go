package event

import "time"

// Feedback event types.
const (
	TypeFeedbackCycleStarted  = "feedback.cycle_started"
	TypePatternDetected       = "feedback.pattern_detected"
	TypeLearningCaptured      = "feedback.learning_captured"
	TypePatternApplied        = "feedback.pattern_applied"
	TypeContextUpdated        = "feedback.context_updated"
	TypeMetricsCalculated     = "feedback.metrics_calculated"
	TypeFeedbackCycleComplete = "feedback.cycle_completed"
)

// feedbackEvent carries the fields common to learning-loop events.
type feedbackEvent struct {
	baseEvent
	// SessionID groups the events of one feedback cycle.
	SessionID string
}

func newFeedbackEvent(eventType, sessionID string) feedbackEvent {
	return feedbackEvent{
		baseEvent: newBaseEvent(CategoryFeedback, eventType),
		SessionID: sessionID,
	}
}

// FeedbackCycleStartedEvent opens a feedback cycle for one execution.
type FeedbackCycleStartedEvent struct {
	feedbackEvent
	ExecutionID string
	ObjectiveID string
}

// NewFeedbackCycleStartedEvent creates a FeedbackCycleStartedEvent.
func NewFeedbackCycleStartedEvent(sessionID, executionID, objectiveID string) *FeedbackCycleStartedEvent {
	return &FeedbackCycleStartedEvent{
		feedbackEvent: newFeedbackEvent(TypeFeedbackCycleStarted, sessionID),
		ExecutionID:   executionID,
		ObjectiveID:   objectiveID,
	}
}

// PatternDetectedEvent reports a command sequence worth remembering.
type PatternDetectedEvent struct {
	feedbackEvent
	PatternName       string
	PatternType       string
	TriggerConditions []string
	CommandSequence   []string
	SuccessRate       float64
	Occurrences       int
}

// NewPatternDetectedEvent creates a PatternDetectedEvent.
func NewPatternDetectedEvent(sessionID, name, patternType string, triggers, commands []string, successRate float64, occurrences int) *PatternDetectedEvent {
	return &PatternDetectedEvent{
		feedbackEvent:     newFeedbackEvent(TypePatternDetected, sessionID),
		PatternName:       name,
		PatternType:       patternType,
		TriggerConditions: triggers,
		CommandSequence:   commands,
		SuccessRate:       successRate,
		Occurrences:       occurrences,
	}
}

// LearningCapturedEvent records one insight from a result analysis.
type LearningCapturedEvent struct {
	feedbackEvent
	LearningType       string
	Description        string
	Context            map[string]any
	ApplicabilityScore float64
	Tags               []string
}

// NewLearningCapturedEvent creates a LearningCapturedEvent.
func NewLearningCapturedEvent(sessionID, learningType, description string, context map[string]any, score float64, tags []string) *LearningCapturedEvent {
	return &LearningCapturedEvent{
		feedbackEvent:      newFeedbackEvent(TypeLearningCaptured, sessionID),
		LearningType:       learningType,
		Description:        description,
		Context:            context,
		ApplicabilityScore: score,
		Tags:               tags,
	}
}

// PatternAppliedEvent is emitted when a stored pattern seeds a plan.
type PatternAppliedEvent struct {
	feedbackEvent
	PatternID       string
	PatternName     string
	Confidence      float64
	AdjustmentsMade []string
}

// NewPatternAppliedEvent creates a PatternAppliedEvent.
func NewPatternAppliedEvent(sessionID, patternID, name string, confidence float64, adjustments []string) *PatternAppliedEvent {
	return &PatternAppliedEvent{
		feedbackEvent:   newFeedbackEvent(TypePatternApplied, sessionID),
		PatternID:       patternID,
		PatternName:     name,
		Confidence:      confidence,
		AdjustmentsMade: adjustments,
	}
}

// ContextUpdatedEvent reports growth of the orchestration context.
type ContextUpdatedEvent struct {
	feedbackEvent
	ContextType      string
	AddedItems       []string
	RemovedItems     []string
	TotalContextSize int
}

// NewContextUpdatedEvent creates a ContextUpdatedEvent.
func NewContextUpdatedEvent(sessionID, contextType string, added, removed []string, size int) *ContextUpdatedEvent {
	return &ContextUpdatedEvent{
		feedbackEvent:    newFeedbackEvent(TypeContextUpdated, sessionID),
		ContextType:      contextType,
		AddedItems:       added,
		RemovedItems:     removed,
		TotalContextSize: size,
	}
}

// MetricsCalculatedEvent carries run-level metrics.
type MetricsCalculatedEvent struct {
	feedbackEvent
	SuccessRate          float64
	AvgStepsToCompletion float64
	AvgExecutionTime     time.Duration
	PatternReuseRate     float64
	UserInterventionRate float64
	CustomMetrics        map[string]float64
}

// NewMetricsCalculatedEvent creates a MetricsCalculatedEvent.
func NewMetricsCalculatedEvent(sessionID string, successRate, avgSteps float64, avgExec time.Duration, reuseRate, interventionRate float64, custom map[string]float64) *MetricsCalculatedEvent {
	return &MetricsCalculatedEvent{
		feedbackEvent:        newFeedbackEvent(TypeMetricsCalculated, sessionID),
		SuccessRate:          successRate,
		AvgStepsToCompletion: avgSteps,
		AvgExecutionTime:     avgExec,
		PatternReuseRate:     reuseRate,
		UserInterventionRate: interventionRate,
		CustomMetrics:        custom,
	}
}

// FeedbackCycleCompleteEvent closes a feedback cycle.
type FeedbackCycleCompleteEvent struct {
	feedbackEvent
	CycleDuration        time.Duration
	PatternsIdentified   int
	LearningsCaptured    int
	ContextUpdates       int
	NextActionDetermined bool
}

// NewFeedbackCycleCompleteEvent creates a FeedbackCycleCompleteEvent.
func NewFeedbackCycleCompleteEvent(sessionID string, duration time.Duration, patterns, learnings, updates int, nextAction bool) *FeedbackCycleCompleteEvent {
	return &FeedbackCycleCompleteEvent{
		feedbackEvent:        newFeedbackEvent(TypeFeedbackCycleComplete, sessionID),
		CycleDuration:        duration,
		PatternsIdentified:   patterns,
		LearningsCaptured:    learnings,
		ContextUpdates:       updates,
		NextActionDetermined: nextAction,
	}
}
