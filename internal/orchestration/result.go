package orchestration

import "time"

// HighConfidenceThreshold is the confidence at which a proposal counts as
// high confidence.
const HighConfidenceThreshold = 0.8

// CommandProposal is a command suggested by the planning agent.
type CommandProposal struct {
	// ID identifies the proposal across command lifecycle events.
	ID                   string        `json:"id,omitempty"`
	Command              string        `json:"command"`
	Reasoning            string        `json:"reasoning"`
	Confidence           float64       `json:"confidence"`
	Alternatives         []string      `json:"alternatives,omitempty"`
	ExpectedOutcome      string        `json:"expected_outcome,omitempty"`
	EstimatedDuration    time.Duration `json:"estimated_duration"`
	RequiredCapabilities []string      `json:"required_capabilities,omitempty"`
	// Fallback is set when the proposal replaced an unparseable reply.
	Fallback bool `json:"fallback,omitempty"`
}

// IsHighConfidence reports whether Confidence reaches HighConfidenceThreshold.
func (p *CommandProposal) IsHighConfidence() bool {
	return p.Confidence >= HighConfidenceThreshold
}

// TestResults summarises one test run reported in command output.
type TestResults struct {
	Suite       string   `json:"suite,omitempty" yaml:"suite,omitempty"`
	Passed      int      `json:"passed" yaml:"passed"`
	Failed      int      `json:"failed" yaml:"failed"`
	Skipped     int      `json:"skipped" yaml:"skipped"`
	Coverage    float64  `json:"coverage" yaml:"coverage"`
	FailedTests []string `json:"failed_tests,omitempty" yaml:"failed_tests,omitempty"`
}

// Total is the number of tests counted in any state.
func (t TestResults) Total() int {
	return t.Passed + t.Failed + t.Skipped
}

// SuccessRate is passed over total, or 0 when nothing ran.
func (t TestResults) SuccessRate() float64 {
	total := t.Total()
	if total == 0 {
		return 0
	}
	return float64(t.Passed) / float64(total)
}

// ExecutionResult is the aggregated outcome of one command execution.
type ExecutionResult struct {
	ExecutionID   string         `json:"execution_id"`
	Command       string         `json:"command"`
	ExitCode      int            `json:"exit_code"`
	Stdout        string         `json:"stdout"`
	Stderr        string         `json:"stderr"`
	ExecutionTime time.Duration  `json:"execution_time"`
	FilesCreated  []string       `json:"files_created,omitempty"`
	FilesModified []string       `json:"files_modified,omitempty"`
	TestResults   *TestResults   `json:"test_results,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Success reports whether the command exited with status 0.
func (r *ExecutionResult) Success() bool {
	return r.ExitCode == 0
}

// FileChangesCount is the number of created plus modified files.
func (r *ExecutionResult) FileChangesCount() int {
	return len(r.FilesCreated) + len(r.FilesModified)
}

// HasOutput reports whether anything was written to stdout or stderr.
func (r *ExecutionResult) HasOutput() bool {
	return r.Stdout != "" || r.Stderr != ""
}

// Analysis is the planning agent's interpretation of an ExecutionResult.
type Analysis struct {
	ExecutionID        string   `json:"execution_id"`
	Success            bool     `json:"success"`
	Understanding      string   `json:"understanding"`
	Findings           []string `json:"findings,omitempty"`
	MissingElements    []string `json:"missing_elements,omitempty"`
	NextAction         string   `json:"next_action,omitempty"`
	Confidence         float64  `json:"confidence"`
	RequiresCorrection bool     `json:"requires_correction"`
	CanContinue        bool     `json:"can_continue"`
	LearnedInsights    []string `json:"learned_insights,omitempty"`
	// Fallback is set when the analysis replaced an unparseable reply.
	Fallback bool `json:"fallback,omitempty"`
}

// IsActionable reports whether there is a next action and the run may go on.
func (a *Analysis) IsActionable() bool {
	return a.NextAction != "" && a.CanContinue
}

// AddFinding appends a finding.
func (a *Analysis) AddFinding(finding string) {
	a.Findings = append(a.Findings, finding)
}

// AddMissingElement appends an element the result failed to deliver.
func (a *Analysis) AddMissingElement(element string) {
	a.MissingElements = append(a.MissingElements, element)
}
