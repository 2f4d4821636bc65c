package event

import "time"

// Execution event types.
const (
	TypeExecutionStarted  = "execution.started"
	TypeOutputStreaming   = "execution.output"
	TypeExecutionProgress = "execution.progress"
	TypeFileCreated       = "execution.file_created"
	TypeFileModified      = "execution.file_modified"
	TypeTestExecuted      = "execution.test_executed"
	TypeExecutionComplete = "execution.completed"
	TypeExecutionFailed   = "execution.failed"
	TypeMetadataExtracted = "execution.metadata_extracted"
)

// Output stream tags used by OutputStreamingEvent.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// executionEvent carries the fields common to execution-agent events.
type executionEvent struct {
	baseEvent
	ExecutionID string
	Command     string
}

func newExecutionEvent(eventType, executionID, command string) executionEvent {
	return executionEvent{
		baseEvent:   newBaseEvent(CategoryExecution, eventType),
		ExecutionID: executionID,
		Command:     command,
	}
}

// ExecutionStartedEvent is emitted right before a subprocess is spawned.
type ExecutionStartedEvent struct {
	executionEvent
	WorkingDirectory string
	Environment      map[string]string
	Timeout          time.Duration
}

// NewExecutionStartedEvent creates an ExecutionStartedEvent.
func NewExecutionStartedEvent(executionID, command, workingDir string, env map[string]string, timeout time.Duration) *ExecutionStartedEvent {
	return &ExecutionStartedEvent{
		executionEvent:   newExecutionEvent(TypeExecutionStarted, executionID, command),
		WorkingDirectory: workingDir,
		Environment:      env,
		Timeout:          timeout,
	}
}

// OutputStreamingEvent carries one line of subprocess output.
type OutputStreamingEvent struct {
	executionEvent
	// OutputType is StreamStdout or StreamStderr.
	OutputType string
	Content    string
	// Offset is the time elapsed since the execution started.
	Offset time.Duration
}

// NewOutputStreamingEvent creates an OutputStreamingEvent.
func NewOutputStreamingEvent(executionID, command, outputType, content string, offset time.Duration) *OutputStreamingEvent {
	return &OutputStreamingEvent{
		executionEvent: newExecutionEvent(TypeOutputStreaming, executionID, command),
		OutputType:     outputType,
		Content:        content,
		Offset:         offset,
	}
}

// ExecutionProgressEvent reports a progress line.
type ExecutionProgressEvent struct {
	executionEvent
	ProgressMessage  string
	Percentage       float64
	CurrentOperation string
}

// NewExecutionProgressEvent creates an ExecutionProgressEvent.
func NewExecutionProgressEvent(executionID, command, message string, percentage float64, operation string) *ExecutionProgressEvent {
	return &ExecutionProgressEvent{
		executionEvent:   newExecutionEvent(TypeExecutionProgress, executionID, command),
		ProgressMessage:  message,
		Percentage:       percentage,
		CurrentOperation: operation,
	}
}

// FileCreatedEvent reports a file the command created.
type FileCreatedEvent struct {
	executionEvent
	FilePath string
	FileSize int64
	FileType string
}

// NewFileCreatedEvent creates a FileCreatedEvent.
func NewFileCreatedEvent(executionID, command, path string, size int64, fileType string) *FileCreatedEvent {
	return &FileCreatedEvent{
		executionEvent: newExecutionEvent(TypeFileCreated, executionID, command),
		FilePath:       path,
		FileSize:       size,
		FileType:       fileType,
	}
}

// FileModifiedEvent reports a file the command changed.
type FileModifiedEvent struct {
	executionEvent
	FilePath      string
	LinesAdded    int
	LinesRemoved  int
	LinesModified int
}

// NewFileModifiedEvent creates a FileModifiedEvent.
func NewFileModifiedEvent(executionID, command, path string, added, removed, modified int) *FileModifiedEvent {
	return &FileModifiedEvent{
		executionEvent: newExecutionEvent(TypeFileModified, executionID, command),
		FilePath:       path,
		LinesAdded:     added,
		LinesRemoved:   removed,
		LinesModified:  modified,
	}
}

// TestExecutedEvent reports a test summary line.
type TestExecutedEvent struct {
	executionEvent
	TestSuite string
	Passed    int
	Failed    int
	Skipped   int
	// Coverage is a percentage, 0 when the summary did not report one.
	Coverage float64
}

// NewTestExecutedEvent creates a TestExecutedEvent.
func NewTestExecutedEvent(executionID, command, suite string, passed, failed, skipped int, coverage float64) *TestExecutedEvent {
	return &TestExecutedEvent{
		executionEvent: newExecutionEvent(TypeTestExecuted, executionID, command),
		TestSuite:      suite,
		Passed:         passed,
		Failed:         failed,
		Skipped:        skipped,
		Coverage:       coverage,
	}
}

// ExecutionCompleteEvent is emitted when the subprocess exits.
type ExecutionCompleteEvent struct {
	executionEvent
	ExitCode      int
	TotalOutput   string
	ErrorOutput   string
	ExecutionTime time.Duration
	FilesCreated  []string
	FilesModified []string
}

// NewExecutionCompleteEvent creates an ExecutionCompleteEvent.
func NewExecutionCompleteEvent(executionID, command string, exitCode int, stdout, stderr string, elapsed time.Duration, created, modified []string) *ExecutionCompleteEvent {
	return &ExecutionCompleteEvent{
		executionEvent: newExecutionEvent(TypeExecutionComplete, executionID, command),
		ExitCode:       exitCode,
		TotalOutput:    stdout,
		ErrorOutput:    stderr,
		ExecutionTime:  elapsed,
		FilesCreated:   created,
		FilesModified:  modified,
	}
}

// ExecutionFailedEvent is emitted when a command times out, exits non-zero
// or cannot be run at all.
type ExecutionFailedEvent struct {
	executionEvent
	ErrorMessage        string
	ErrorType           string
	StackTrace          string
	RecoverySuggestions []string
}

// NewExecutionFailedEvent creates an ExecutionFailedEvent.
func NewExecutionFailedEvent(executionID, command, message, errorType string, suggestions []string) *ExecutionFailedEvent {
	return &ExecutionFailedEvent{
		executionEvent:      newExecutionEvent(TypeExecutionFailed, executionID, command),
		ErrorMessage:        message,
		ErrorType:           errorType,
		RecoverySuggestions: suggestions,
	}
}

// MetadataExtractedEvent carries the SCF annotations found in output.
type MetadataExtractedEvent struct {
	executionEvent
	SCFVersion         string
	Personas           []string
	Flags              []string
	MCPServers         []string
	ThinkingDepth      string
	PerformanceMetrics map[string]float64
}

// NewMetadataExtractedEvent creates a MetadataExtractedEvent.
func NewMetadataExtractedEvent(executionID, command, version string, personas, flags, servers []string, thinking string, perf map[string]float64) *MetadataExtractedEvent {
	return &MetadataExtractedEvent{
		executionEvent:     newExecutionEvent(TypeMetadataExtracted, executionID, command),
		SCFVersion:         version,
		Personas:           personas,
		Flags:              flags,
		MCPServers:         servers,
		ThinkingDepth:      thinking,
		PerformanceMetrics: perf,
	}
}
