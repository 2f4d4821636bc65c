package event

// Command event types.
const (
	TypeCommandProposed  = "command.proposed"
	TypeCommandApproved  = "command.approved"
	TypeCommandRejected  = "command.rejected"
	TypeCommandModified  = "command.modified"
	TypeCommandValidated = "command.validated"
)

// commandEvent carries the fields common to command lifecycle events.
type commandEvent struct {
	baseEvent
	CommandID   string
	CommandText string
}

func newCommandEvent(eventType, commandID, text string) commandEvent {
	return commandEvent{
		baseEvent:   newBaseEvent(CategoryCommand, eventType),
		CommandID:   commandID,
		CommandText: text,
	}
}

// CommandProposedEvent is emitted when the planning agent suggests a command.
type CommandProposedEvent struct {
	commandEvent
	Reasoning    string
	Confidence   float64
	Alternatives []string
	// ContextUsed summarises what the proposal was based on.
	ContextUsed string
}

// NewCommandProposedEvent creates a CommandProposedEvent.
func NewCommandProposedEvent(commandID, text, reasoning string, confidence float64, alternatives []string, contextUsed string) *CommandProposedEvent {
	e := &CommandProposedEvent{
		commandEvent: newCommandEvent(TypeCommandProposed, commandID, text),
		Reasoning:    reasoning,
		Confidence:   confidence,
		Alternatives: alternatives,
		ContextUsed:  contextUsed,
	}
	e.SetSource("planning_agent")
	return e
}

// CommandApprovedEvent is emitted when a proposal clears the approval gate.
type CommandApprovedEvent struct {
	commandEvent
	ApprovedBy    string
	Modifications string
}

// NewCommandApprovedEvent creates a CommandApprovedEvent.
func NewCommandApprovedEvent(commandID, text, approvedBy, modifications string) *CommandApprovedEvent {
	return &CommandApprovedEvent{
		commandEvent:  newCommandEvent(TypeCommandApproved, commandID, text),
		ApprovedBy:    approvedBy,
		Modifications: modifications,
	}
}

// CommandRejectedEvent is emitted when a proposal is turned down.
type CommandRejectedEvent struct {
	commandEvent
	RejectedBy string
	Reason     string
}

// NewCommandRejectedEvent creates a CommandRejectedEvent.
func NewCommandRejectedEvent(commandID, text, rejectedBy, reason string) *CommandRejectedEvent {
	return &CommandRejectedEvent{
		commandEvent: newCommandEvent(TypeCommandRejected, commandID, text),
		RejectedBy:   rejectedBy,
		Reason:       reason,
	}
}

// CommandModifiedEvent is emitted when a reviewer edits a proposed command.
type CommandModifiedEvent struct {
	commandEvent
	Original   string
	Modified   string
	ModifiedBy string
}

// NewCommandModifiedEvent creates a CommandModifiedEvent. CommandText holds
// the modified command.
func NewCommandModifiedEvent(commandID, original, modified, modifiedBy string) *CommandModifiedEvent {
	return &CommandModifiedEvent{
		commandEvent: newCommandEvent(TypeCommandModified, commandID, modified),
		Original:     original,
		Modified:     modified,
		ModifiedBy:   modifiedBy,
	}
}

// CommandValidatedEvent reports the outcome of the grammar check.
type CommandValidatedEvent struct {
	commandEvent
	IsValid          bool
	ValidationErrors []string
	SuggestedFixes   []string
}

// NewCommandValidatedEvent creates a CommandValidatedEvent.
func NewCommandValidatedEvent(commandID, text string, valid bool, validationErrors, fixes []string) *CommandValidatedEvent {
	return &CommandValidatedEvent{
		commandEvent:     newCommandEvent(TypeCommandValidated, commandID, text),
		IsValid:          valid,
		ValidationErrors: validationErrors,
		SuggestedFixes:   fixes,
	}
}
