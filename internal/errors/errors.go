// Package errors is the failure vocabulary of imthedev. Executors, the
// planner, the orchestrator and the pattern library return the typed errors
// below so the CLI and the event log can tell a rejected command from a
// flaky model call or a missing pattern.
//
// Every typed error carries a Severity and a retryable flag. The orchestrator
// reads both through GetSeverity and IsRetryable when it records why a run
// stopped.
//
//	err := errors.NewNotFoundError("pattern", id)
//	if errors.Is(err, &errors.NotFoundError{}) { ... }
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Is, As and New mirror the standard library so callers need one import.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)

// Severity ranks a failure for logging.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

var (
	// ErrExecutionFailed matches every *ExecutionError.
	ErrExecutionFailed = New("execution failed")
	// ErrExecutionInProgress is returned when an executor already owns a subprocess.
	ErrExecutionInProgress = New("execution already in progress")
	// ErrStreamClosed is returned when a stream is read after Stop.
	ErrStreamClosed = New("stream closed")

	// ErrParseFailed matches every *GenerationParseError.
	ErrParseFailed = New("reply could not be parsed")
	// ErrPlanInvalid marks a reply that parsed but holds no usable plan.
	ErrPlanInvalid = New("plan is invalid")
	// ErrGenerationFailed wraps every failure of a completion backend.
	ErrGenerationFailed = New("generation failed")

	ErrTimeout      = New("operation timed out")
	ErrCanceled     = New("operation canceled")
	ErrInvalidInput = New("invalid input")
)

// classified is satisfied by every typed error in this package.
type classified interface {
	error
	Severity() Severity
	IsRetryable() bool
}

type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity {
	return e.severity
}

func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// ExecutionError is a command that ran and failed, or whose output pipes
// broke while streaming.
//
//	errors.NewExecutionError("command exited with status 2", nil).
//	    WithExecutionID("exec-1").WithExitCode(2)
//	// execution error [execution=exec-1, exit=2]: command exited with status 2
type ExecutionError struct {
	baseError
	ExecutionID string
	Command     string
	ExitCode    int
	// Kind is "execution", "exit" or "transport".
	Kind string
}

func NewExecutionError(message string, cause error) *ExecutionError {
	return &ExecutionError{
		baseError: baseError{message: message, cause: cause, severity: SeverityError},
		ExitCode:  -1,
		Kind:      "execution",
	}
}

func (e *ExecutionError) WithExecutionID(id string) *ExecutionError {
	e.ExecutionID = id
	return e
}

func (e *ExecutionError) WithCommand(command string) *ExecutionError {
	e.Command = command
	return e
}

func (e *ExecutionError) WithExitCode(code int) *ExecutionError {
	e.ExitCode = code
	return e
}

func (e *ExecutionError) WithKind(kind string) *ExecutionError {
	e.Kind = kind
	return e
}

func (e *ExecutionError) Error() string {
	var parts []string
	if e.ExecutionID != "" {
		parts = append(parts, fmt.Sprintf("execution=%s", e.ExecutionID))
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	return e.format("execution error", parts)
}

func (e *ExecutionError) Is(target error) bool {
	if _, ok := target.(*ExecutionError); ok {
		return true
	}
	if target == ErrExecutionFailed {
		return true
	}
	return e.baseError.Is(target)
}

// CancellationError is a caller-initiated stop of a running command. The
// cause is usually the context error that triggered it.
type CancellationError struct {
	baseError
	ExecutionID string
}

func NewCancellationError(message string, cause error) *CancellationError {
	return &CancellationError{
		baseError: baseError{message: message, cause: cause, severity: SeverityInfo},
	}
}

func (e *CancellationError) WithExecutionID(id string) *CancellationError {
	e.ExecutionID = id
	return e
}

func (e *CancellationError) Error() string {
	var parts []string
	if e.ExecutionID != "" {
		parts = append(parts, fmt.Sprintf("execution=%s", e.ExecutionID))
	}
	return e.format("cancelled", parts)
}

func (e *CancellationError) Is(target error) bool {
	if _, ok := target.(*CancellationError); ok {
		return true
	}
	if target == ErrCanceled {
		return true
	}
	return e.baseError.Is(target)
}

// GenerationParseError is a model reply that does not fit the expected
// shape. The planner recovers from it with a fallback value, so it is only
// a warning and asking again may help.
type GenerationParseError struct {
	baseError
	// ReplyKind is "plan", "proposal" or "analysis".
	ReplyKind string
	// Raw is a truncated excerpt of the offending reply.
	Raw string
}

const maxRawExcerpt = 200

func NewGenerationParseError(replyKind, message string, cause error) *GenerationParseError {
	return &GenerationParseError{
		baseError: baseError{message: message, cause: cause, severity: SeverityWarning, retryable: true},
		ReplyKind: replyKind,
	}
}

func (e *GenerationParseError) WithRaw(raw string) *GenerationParseError {
	if len(raw) > maxRawExcerpt {
		raw = raw[:maxRawExcerpt] + "..."
	}
	e.Raw = raw
	return e
}

func (e *GenerationParseError) Error() string {
	var parts []string
	if e.ReplyKind != "" {
		parts = append(parts, fmt.Sprintf("reply=%s", e.ReplyKind))
	}
	return e.format("parse error", parts)
}

func (e *GenerationParseError) Is(target error) bool {
	if _, ok := target.(*GenerationParseError); ok {
		return true
	}
	if target == ErrParseFailed {
		return true
	}
	return e.baseError.Is(target)
}

// CoordinatorError is a planner request that failed while driving an
// objective.
//
//	errors.NewCoordinatorError("plan request failed", cause).
//	    WithObjectiveID(obj.ID).WithPhase("analyze_objective")
type CoordinatorError struct {
	baseError
	ObjectiveID string
	// Step is -1 when the failure is not tied to a step.
	Step  int
	Phase string
}

func NewCoordinatorError(message string, cause error) *CoordinatorError {
	return &CoordinatorError{
		baseError: baseError{message: message, cause: cause, severity: SeverityError},
		Step:      -1,
	}
}

func (e *CoordinatorError) WithObjectiveID(id string) *CoordinatorError {
	e.ObjectiveID = id
	return e
}

func (e *CoordinatorError) WithStep(step int) *CoordinatorError {
	e.Step = step
	return e
}

func (e *CoordinatorError) WithPhase(phase string) *CoordinatorError {
	e.Phase = phase
	return e
}

// WithRetryable marks the failure as transient. A retryable coordinator
// failure is logged as a warning.
func (e *CoordinatorError) WithRetryable(r bool) *CoordinatorError {
	e.retryable = r
	if r {
		e.severity = SeverityWarning
	}
	return e
}

func (e *CoordinatorError) Error() string {
	var parts []string
	if e.ObjectiveID != "" {
		parts = append(parts, fmt.Sprintf("objective=%s", e.ObjectiveID))
	}
	if e.Step >= 0 {
		parts = append(parts, fmt.Sprintf("step=%d", e.Step))
	}
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	return e.format("coordinator error", parts)
}

func (e *CoordinatorError) Is(target error) bool {
	if _, ok := target.(*CoordinatorError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// NotFoundError is a lookup by ID that matched nothing, such as a pattern
// library entry.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:  fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity: SeverityWarning,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError is an insert whose ID is taken by a different record.
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:  fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			severity: SeverityWarning,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError is a command or configuration value that was rejected.
//
//	errors.NewValidationError("flag is not allowed").
//	    WithField("flag").WithValue("--not-a-flag")
type ValidationError struct {
	baseError
	Field string
	Value any
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{message: message, severity: SeverityWarning},
	}
}

func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError is an operation that ran past its deadline.
//
//	errors.NewTimeoutError("executing /sc:build", 5*time.Minute)
//	// timeout error: executing /sc:build (timeout: 5m0s)
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{message: operation, severity: SeverityWarning, retryable: true},
		Operation: operation,
		Duration:  duration,
	}
}

func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// IsRetryable reports whether err is transient. Untyped errors are
// retryable only when they wrap ErrTimeout or ErrGenerationFailed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var c classified
	if As(err, &c) {
		return c.IsRetryable()
	}
	return Is(err, ErrTimeout) || Is(err, ErrGenerationFailed)
}

// GetSeverity returns the severity of the outermost typed error in err's
// chain, SeverityError for untyped errors and SeverityDebug for nil.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var c classified
	if As(err, &c) {
		return c.Severity()
	}
	return SeverityError
}

// IsCancellation reports whether err stems from a caller-initiated stop.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	var cancelErr *CancellationError
	return As(err, &cancelErr) || Is(err, ErrCanceled) || Is(err, context.Canceled)
}

// Wrap prefixes err with message, returning nil for a nil err.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
