package orchestration

import (
	"slices"
	"sync"
)

// File change kinds recorded in Context.FileChanges.
const (
	ChangeCreated  = "created"
	ChangeModified = "modified"
)

// Context accumulates what happened while pursuing one objective.
//
// Methods are safe for concurrent use. Exported fields may be read directly
// only when no other goroutine is writing; use Snapshot otherwise.
type Context struct {
	mu        sync.RWMutex
	fileOrder []string

	ObjectiveID        string              `json:"objective_id"`
	CommandHistory     []string            `json:"command_history"`
	SuccessfulCommands []string            `json:"successful_commands"`
	FailedCommands     []string            `json:"failed_commands"`
	FileChanges        map[string][]string `json:"file_changes"`
	TestResults        []TestResults       `json:"test_results,omitempty"`
	LearnedPatterns    []string            `json:"learned_patterns,omitempty"`
	CurrentStep        int                 `json:"current_step"`
	TotalSteps         int                 `json:"total_steps"`
	Metadata           map[string]any      `json:"metadata,omitempty"`
}

// NewContext creates an empty context for the objective.
func NewContext(objectiveID string) *Context {
	return &Context{
		ObjectiveID: objectiveID,
		FileChanges: make(map[string][]string),
		Metadata:    make(map[string]any),
	}
}

// AddCommand appends cmd to the history and to the success or failure list.
func (c *Context) AddCommand(cmd string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.CommandHistory = append(c.CommandHistory, cmd)
	if success {
		c.SuccessfulCommands = append(c.SuccessfulCommands, cmd)
	} else {
		c.FailedCommands = append(c.FailedCommands, cmd)
	}
}

// AddFileChange records a change of the given kind to path.
func (c *Context) AddFileChange(path, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FileChanges == nil {
		c.FileChanges = make(map[string][]string)
	}
	if _, seen := c.FileChanges[path]; !seen {
		c.fileOrder = append(c.fileOrder, path)
	}
	c.FileChanges[path] = append(c.FileChanges[path], kind)
}

// AddTestResult appends a test summary.
func (c *Context) AddTestResult(tr TestResults) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TestResults = append(c.TestResults, tr)
}

// AddLearnedPattern appends p unless it is already present.
func (c *Context) AddLearnedPattern(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.LearnedPatterns, p) {
		c.LearnedPatterns = append(c.LearnedPatterns, p)
	}
}

// SetProgress updates the step counters.
func (c *Context) SetProgress(current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentStep = current
	c.TotalSteps = total
}

// AdvanceStep increments CurrentStep and returns the new value.
func (c *Context) AdvanceStep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentStep++
	return c.CurrentStep
}

// SuccessRate is successful over total commands, or 0 with no history.
func (c *Context) SuccessRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.CommandHistory) == 0 {
		return 0
	}
	return float64(len(c.SuccessfulCommands)) / float64(len(c.CommandHistory))
}

// Progress is CurrentStep over TotalSteps, or 0 when TotalSteps is 0.
func (c *Context) Progress() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.TotalSteps == 0 {
		return 0
	}
	return float64(c.CurrentStep) / float64(c.TotalSteps)
}

// RecentCommands returns up to the last n commands, oldest first.
func (c *Context) RecentCommands(n int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return tail(c.CommandHistory, n)
}

// RecentSuccessful returns up to the last n successful commands.
func (c *Context) RecentSuccessful(n int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return tail(c.SuccessfulCommands, n)
}

// LastFailed returns the most recent failed command.
func (c *Context) LastFailed() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.FailedCommands) == 0 {
		return "", false
	}
	return c.FailedCommands[len(c.FailedCommands)-1], true
}

// RecentFiles returns up to the last n distinct changed paths in first-change order.
func (c *Context) RecentFiles(n int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return tail(c.fileOrder, n)
}

// Snapshot returns a deep copy that can be read without locking.
func (c *Context) Snapshot() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := &Context{
		ObjectiveID:        c.ObjectiveID,
		CommandHistory:     slices.Clone(c.CommandHistory),
		SuccessfulCommands: slices.Clone(c.SuccessfulCommands),
		FailedCommands:     slices.Clone(c.FailedCommands),
		FileChanges:        make(map[string][]string, len(c.FileChanges)),
		TestResults:        slices.Clone(c.TestResults),
		LearnedPatterns:    slices.Clone(c.LearnedPatterns),
		CurrentStep:        c.CurrentStep,
		TotalSteps:         c.TotalSteps,
		Metadata:           make(map[string]any, len(c.Metadata)),
		fileOrder:          slices.Clone(c.fileOrder),
	}
	for k, v := range c.FileChanges {
		out.FileChanges[k] = slices.Clone(v)
	}
	for k, v := range c.Metadata {
		out.Metadata[k] = v
	}
	return out
}

func tail(s []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return slices.Clone(s)
}
