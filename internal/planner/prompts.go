package planner

import (
	"fmt"
	"strings"

	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// Limits on how much context goes into a prompt.
const (
	recentCommandLimit   = 5
	recentFileLimit      = 10
	recentSuccessLimit   = 3
	outputPreviewLimit   = 1000
	unknownFailedCommand = "Unknown"
	noneText             = "None"
	approachPatternBased = "Pattern-based"
	approachDiscovery    = "Discovery"
)

// planSchema documents the reply expected from the objective prompt.
const planSchema = `Respond with a single JSON object:
{
  "complexity": number between 0 and 1,
  "dependencies": [string],
  "risk_assessment": string,
  "steps": [
    {"command": "/sc:<kind> ...", "description": string, "estimated_time": seconds}
  ]
}`

// proposalSchema documents the reply expected from every command prompt.
const proposalSchema = `Respond with a single JSON object:
{
  "command": "/sc:<kind> ...",
  "reasoning": string,
  "confidence": number between 0 and 1,
  "alternatives": [string],
  "expected_outcome": string,
  "estimated_duration": seconds
}`

const analysisSchema = `Respond with a single JSON object:
{
  "success": boolean,
  "understanding": string,
  "key_findings": [string],
  "missing_elements": [string],
  "next_action": string,
  "confidence": number between 0 and 1,
  "requires_correction": boolean,
  "can_continue": boolean,
  "insights": [string]
}`

// BuildObjectivePrompt asks for a plan. A matched pattern is included as a
// worked example.
func BuildObjectivePrompt(obj *orchestration.Objective, pattern *orchestration.Pattern) string {
	var b strings.Builder

	b.WriteString("Analyze this development objective and create an execution plan using SuperClaude commands.\n\n")
	fmt.Fprintf(&b, "Objective: %s\n", obj.Description)
	b.WriteString("Success Criteria:\n")
	if len(obj.SuccessCriteria) == 0 {
		fmt.Fprintf(&b, "- %s\n", noneText)
	}
	for _, c := range obj.SuccessCriteria {
		fmt.Fprintf(&b, "- %s\n", c)
	}

	if pattern != nil {
		b.WriteString("\nA similar pattern worked before:\n")
		fmt.Fprintf(&b, "Pattern: %s\n", pattern.Name)
		fmt.Fprintf(&b, "Commands used: %s\n", strings.Join(pattern.Commands, ", "))
		fmt.Fprintf(&b, "Success rate: %s\n", percent(pattern.SuccessRate))
	}

	b.WriteString(`
Provide a complexity assessment, the required capabilities and dependencies,
a step-by-step plan of SC commands, a risk assessment and an estimated time
for each step.

Use SuperClaude Framework commands such as /sc:analyze, /sc:implement,
/sc:test and /sc:improve, with flags like --think, --persona-backend and
--with-tests where they help.

`)
	b.WriteString(planSchema)
	return b.String()
}

// BuildCommandPrompt asks for the command of the current step.
func BuildCommandPrompt(octx *orchestration.Context, stepDescription string) string {
	octx = octx.Snapshot()
	var b strings.Builder

	b.WriteString("Generate the next SuperClaude command for this orchestration step.\n\n")
	fmt.Fprintf(&b, "Current Step: %d/%d\n", octx.CurrentStep, octx.TotalSteps)
	fmt.Fprintf(&b, "Step Description: %s\n\n", stepDescription)

	b.WriteString("Recent Command History:\n")
	b.WriteString(lines(octx.RecentCommands(recentCommandLimit)))
	b.WriteString("\nRecent File Changes:\n")
	b.WriteString(joinOrNone(octx.RecentFiles(recentFileLimit)))
	fmt.Fprintf(&b, "\n\nCurrent Success Rate: %s\n", percent(octx.SuccessRate()))

	b.WriteString(`
Generate a specific SC command with appropriate flags and personas. Consider
thinking flags (--think, --think-hard) for complex tasks, personas
(--persona-backend, --persona-frontend) for specialized work, MCP servers
(--seq, --c7, --magic) and --with-tests for quality assurance.

`)
	b.WriteString(proposalSchema)
	return b.String()
}

// BuildResultPrompt asks for an interpretation of an execution result.
func BuildResultPrompt(result *orchestration.ExecutionResult, octx *orchestration.Context) string {
	octx = octx.Snapshot()
	var b strings.Builder

	b.WriteString("Analyze this SuperClaude command execution result.\n\n")
	fmt.Fprintf(&b, "Command Executed: %s\n", result.Command)
	fmt.Fprintf(&b, "Exit Code: %d\n", result.ExitCode)
	fmt.Fprintf(&b, "Execution Time: %.2fs\n", result.ExecutionTime.Seconds())
	fmt.Fprintf(&b, "Files Created: %d\n", len(result.FilesCreated))
	fmt.Fprintf(&b, "Files Modified: %d\n\n", len(result.FilesModified))

	b.WriteString("Output Preview:\n")
	b.WriteString(outputPreview(result))
	b.WriteString("\n\n")

	if result.TestResults != nil {
		fmt.Fprintf(&b, "Test Results: %s passing\n", percent(result.TestResults.SuccessRate()))
	} else {
		b.WriteString("Test Results: No tests run\n")
	}

	b.WriteString("\nContext:\n")
	fmt.Fprintf(&b, "- Step %d/%d\n", octx.CurrentStep, octx.TotalSteps)
	fmt.Fprintf(&b, "- Overall Success Rate: %s\n", percent(octx.SuccessRate()))

	b.WriteString(`
Decide whether the execution succeeded, explain what happened, list key
findings and missing elements, suggest the next action, and say whether a
correction is required and whether the objective can continue.

`)
	b.WriteString(analysisSchema)
	return b.String()
}

// BuildNextStepPrompt asks for a follow-on command after a successful analysis.
func BuildNextStepPrompt(analysis *orchestration.Analysis, octx *orchestration.Context) string {
	octx = octx.Snapshot()
	var b strings.Builder

	b.WriteString("Based on the previous execution analysis, propose the next SuperClaude command.\n\n")
	b.WriteString("Previous Analysis:\n")
	fmt.Fprintf(&b, "- Success: %t\n", analysis.Success)
	fmt.Fprintf(&b, "- Understanding: %s\n", analysis.Understanding)
	fmt.Fprintf(&b, "- Missing Elements: %s\n", joinOrNone(analysis.MissingElements))
	fmt.Fprintf(&b, "- Suggested Action: %s\n\n", analysis.NextAction)
	fmt.Fprintf(&b, "Current Progress: %d/%d (%s)\n\n", octx.CurrentStep, octx.TotalSteps, percent(octx.Progress()))

	b.WriteString("Generate the next SC command that builds on what has been accomplished, addressing the missing elements and the suggested action.\n\n")
	b.WriteString(proposalSchema)
	return b.String()
}

// BuildRecoveryPrompt asks for a corrective command after a failure.
func BuildRecoveryPrompt(analysis *orchestration.Analysis, octx *orchestration.Context) string {
	octx = octx.Snapshot()
	failed, ok := octx.LastFailed()
	if !ok {
		failed = unknownFailedCommand
	}

	var b strings.Builder

	b.WriteString("The previous command failed and needs recovery.\n\n")
	fmt.Fprintf(&b, "Failed Command: %s\n", failed)
	fmt.Fprintf(&b, "Failure Analysis: %s\n", analysis.Understanding)
	fmt.Fprintf(&b, "Missing Elements: %s\n\n", joinOrNone(analysis.MissingElements))

	b.WriteString("Recent Successful Commands:\n")
	b.WriteString(lines(octx.RecentSuccessful(recentSuccessLimit)))

	b.WriteString(`
Propose a recovery using SuperClaude commands. Consider rolling back changes,
fixing the specific issues identified, an alternative approach, or the
--safe-mode and --validate flags.

`)
	b.WriteString(proposalSchema)
	return b.String()
}

// summarizeContext is the one-line context description carried on
// CommandProposed events.
func summarizeContext(octx *orchestration.Context) string {
	octx = octx.Snapshot()
	return fmt.Sprintf("Step %d/%d, %d commands, %d files changed, %s success rate",
		octx.CurrentStep, octx.TotalSteps, len(octx.CommandHistory), len(octx.FileChanges), percent(octx.SuccessRate()))
}

// outputPreview is the first characters of stdout, or of stderr when stdout
// is empty.
func outputPreview(result *orchestration.ExecutionResult) string {
	out := result.Stdout
	if out == "" {
		out = result.Stderr
	}
	if runes := []rune(out); len(runes) > outputPreviewLimit {
		out = string(runes[:outputPreviewLimit])
	}
	return out
}

func percent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

func lines(items []string) string {
	if len(items) == 0 {
		return noneText + "\n"
	}
	return strings.Join(items, "\n") + "\n"
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return noneText
	}
	return strings.Join(items, ", ")
}
