package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is the interface that all events must implement.
type Event interface {
	// ID returns a unique identifier for this event instance.
	ID() string

	// EventType returns a string identifier for this event type.
	// Convention: "family.action" (e.g., "execution.started", "command.proposed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// Source names the component that produced the event.
	Source() string

	// Metadata returns free-form annotations attached to the event.
	Metadata() map[string]any

	// Categories lists every kind the event belongs to, most general first.
	// The last entry is always EventType().
	Categories() []string
}

// Categories shared by event families. Subscribing to a category delivers
// every event that lists it.
const (
	// CategoryOrchestration is carried by every event.
	CategoryOrchestration = "orchestration"
	CategoryPlanning      = "planning"
	CategoryCommand       = "command"
	CategoryExecution     = "execution"
	CategoryFeedback      = "feedback"
)

// defaultSources maps a family to the component that usually emits it.
var defaultSources = map[string]string{
	CategoryPlanning:  "planning_agent",
	CategoryCommand:   "orchestrator",
	CategoryExecution: "execution_agent",
	CategoryFeedback:  "feedback_loop",
}

// baseEvent provides the common envelope for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	id         string
	eventType  string
	timestamp  time.Time
	source     string
	metadata   map[string]any
	categories []string
}

func (e *baseEvent) ID() string               { return e.id }
func (e *baseEvent) EventType() string        { return e.eventType }
func (e *baseEvent) Timestamp() time.Time     { return e.timestamp }
func (e *baseEvent) Source() string           { return e.source }
func (e *baseEvent) Metadata() map[string]any { return e.metadata }

func (e *baseEvent) Categories() []string {
	out := make([]string, len(e.categories))
	copy(out, e.categories)
	return out
}

// SetSource overrides the producing component's name. Call before emitting.
func (e *baseEvent) SetSource(source string) {
	e.source = source
}

// SetMeta attaches an annotation. Call before emitting.
func (e *baseEvent) SetMeta(key string, value any) {
	e.metadata[key] = value
}

// newBaseEvent creates an envelope for eventType within family, stamped now.
func newBaseEvent(family, eventType string) baseEvent {
	categories := []string{CategoryOrchestration}
	if family != "" {
		categories = append(categories, family)
	}
	categories = append(categories, eventType)

	return baseEvent{
		id:         uuid.NewString(),
		eventType:  eventType,
		timestamp:  time.Now(),
		source:     defaultSources[family],
		metadata:   make(map[string]any),
		categories: categories,
	}
}

// Generic is an event with no variant fields. It is useful for tests and for
// collaborators that want to push ad-hoc notifications through the bus.
type Generic struct {
	baseEvent
}

// NewGeneric creates a Generic event of eventType within the given family.
// An empty family places the event directly under CategoryOrchestration.
func NewGeneric(family, eventType string) *Generic {
	return &Generic{baseEvent: newBaseEvent(family, eventType)}
}
