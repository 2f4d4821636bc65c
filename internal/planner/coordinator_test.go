package planner

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
	"github.com/Custos/imthedev-sub000/internal/testutil"
)

const authPlanReply = `{
  "complexity": 0.6,
  "dependencies": ["database"],
  "risk_assessment": "Moderate: touches sessions",
  "steps": [
    {"command": "/sc:analyze . --think", "description": "Understand current auth", "estimated_time": 45},
    {"command": "/sc:implement auth --persona-backend --with-tests", "description": "Implement authentication", "estimated_time": 300}
  ]
}`

const implementReply = `{"command": "/sc:implement auth --persona-backend --with-tests",
 "reasoning": "Backend persona fits", "confidence": 0.85,
 "alternatives": ["/sc:implement auth"], "expected_outcome": "Login endpoints"}`

const successAnalysisReply = `{"success": true, "understanding": "Auth module created",
 "next_action": "add tests", "confidence": 0.9, "can_continue": true}`

const failureAnalysisReply = `{"success": false, "understanding": "Migration failed",
 "missing_elements": ["users table"], "requires_correction": true, "can_continue": true}`

const recoveryReply = `{"command": "/sc:implement migration --safe-mode", "reasoning": "Create the table first",
 "confidence": 0.7, "alternatives": ["/sc:analyze db"]}`

func newCoordinator(t *testing.T, completer Completer, opts ...Option) (*Coordinator, *event.Bus, *testutil.Recorder) {
	t.Helper()
	bus := event.NewBus()
	t.Cleanup(bus.Close)
	return New(completer, bus, opts...), bus, testutil.NewRecorder(bus)
}

func TestCoordinator_AddUserAuthentication(t *testing.T) {
	completer := testutil.NewCompleter(
		authPlanReply,
		implementReply,
		successAnalysisReply,
		failureAnalysisReply,
		recoveryReply,
	)
	c, bus, rec := newCoordinator(t, completer)
	ctx := context.Background()

	obj := orchestration.NewObjective("Add user authentication", "Users can log in", "Passwords are hashed")

	plan, err := c.AnalyzeObjective(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.TotalSteps())
	assert.Equal(t, 345*time.Second, plan.EstimatedTotalTime)
	assert.Equal(t, orchestration.ObjectiveInProgress, obj.Status)

	octx := orchestration.NewContext(obj.ID)
	octx.SetProgress(1, plan.TotalSteps())

	first, _ := plan.Step(1)
	proposal, err := c.ProposeCommand(ctx, octx, first.Description)
	require.NoError(t, err)
	assert.Equal(t, proposal.Confidence >= 0.8, proposal.IsHighConfidence())
	assert.True(t, proposal.IsHighConfidence())
	assert.NotEmpty(t, proposal.ID)

	ok := &orchestration.ExecutionResult{ExecutionID: "exec-ok", Command: proposal.Command, ExitCode: 0, Stdout: "Created: auth.py"}
	octx.AddCommand(proposal.Command, ok.Success())
	analysis, err := c.AnalyzeResult(ctx, ok, octx)
	require.NoError(t, err)
	assert.True(t, analysis.Success)
	assert.Equal(t, "exec-ok", analysis.ExecutionID)

	failed := &orchestration.ExecutionResult{ExecutionID: "exec-bad", Command: "/sc:implement migration", ExitCode: 1, Stderr: "no such table: users"}
	octx.AddCommand(failed.Command, failed.Success())
	analysis, err = c.AnalyzeResult(ctx, failed, octx)
	require.NoError(t, err)
	assert.False(t, analysis.Success)
	require.True(t, analysis.RequiresCorrection)

	next, err := c.DetermineNextStep(ctx, analysis, octx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "/sc:implement migration --safe-mode", next.Command)

	testutil.WaitBus(t, bus)
	assert.Empty(t, rec.OfType(event.TypeNextStepProposed))

	recoveries := rec.OfType(event.TypeRecoveryProposed)
	require.Len(t, recoveries, 1)
	recovery := recoveries[0].(*event.RecoveryProposedEvent)
	assert.Equal(t, obj.ID, recovery.ObjectiveID)
	assert.Equal(t, "Migration failed", recovery.ErrorContext)
	assert.Equal(t, []string{"/sc:implement migration --safe-mode", "/sc:analyze db"}, recovery.RecoveryCommands)
	assert.InDelta(t, 0.7, recovery.SuccessProbability, 1e-9)

	prompts := completer.Prompts()
	require.Len(t, prompts, 5)
	assert.Contains(t, prompts[4], "Failed Command: /sc:implement migration")
	assert.Contains(t, prompts[4], proposal.Command)
}

func TestCoordinator_AnalyzeObjectiveEvents(t *testing.T) {
	c, bus, rec := newCoordinator(t, testutil.NewCompleter(authPlanReply))
	obj := orchestration.NewObjective("Add user authentication")

	_, err := c.AnalyzeObjective(context.Background(), obj)
	require.NoError(t, err)
	testutil.WaitBus(t, bus)

	assert.Equal(t, []string{
		event.TypeObjectiveSubmitted,
		event.TypeObjectiveAnalyzed,
		event.TypePlanGenerated,
	}, rec.Types())

	analyzed := rec.OfType(event.TypeObjectiveAnalyzed)[0].(*event.ObjectiveAnalyzedEvent)
	assert.Equal(t, 2, analyzed.EstimatedSteps)
	assert.InDelta(t, 0.6, analyzed.ComplexityScore, 1e-9)
	assert.Equal(t, "Discovery", analyzed.SuggestedApproach)
	assert.Equal(t, []string{"database"}, analyzed.RequiredCapabilities)
	assert.Equal(t, "Moderate: touches sessions", analyzed.Analysis)
	assert.Nil(t, analyzed.Metadata()["fallback"])

	generated := rec.OfType(event.TypePlanGenerated)[0].(*event.PlanGeneratedEvent)
	require.Len(t, generated.PlanSteps, 2)
	assert.Equal(t, 345*time.Second, generated.TotalEstimatedTime)
}

func TestCoordinator_AnalyzeObjectiveUsesPattern(t *testing.T) {
	pattern := orchestration.NewPattern("auth-flow", `auth(entication)?`, []string{"/sc:analyze .", "/sc:implement auth"})
	pattern.SuccessRate = 0.9
	other := orchestration.NewPattern("ui", "frontend", []string{"/sc:build"})
	patterns := PatternList{other, pattern}

	completer := testutil.NewCompleter(authPlanReply)
	c, bus, rec := newCoordinator(t, completer, WithPatterns(patterns))
	obj := orchestration.NewObjective("Add user authentication")

	_, err := c.AnalyzeObjective(context.Background(), obj)
	require.NoError(t, err)
	testutil.WaitBus(t, bus)

	assert.Equal(t, 1, pattern.UsageCount)
	assert.NotNil(t, pattern.LastUsed)
	assert.Equal(t, 0, other.UsageCount)

	prompt := completer.Prompts()[0]
	assert.Contains(t, prompt, "Pattern: auth-flow")
	assert.Contains(t, prompt, "Commands used: /sc:analyze ., /sc:implement auth")
	assert.Contains(t, prompt, "Success rate: 90.0%")

	applied := rec.OfType(event.TypePatternApplied)
	require.Len(t, applied, 1)
	assert.Equal(t, pattern.ID, applied[0].(*event.PatternAppliedEvent).PatternID)

	analyzed := rec.OfType(event.TypeObjectiveAnalyzed)[0].(*event.ObjectiveAnalyzedEvent)
	assert.Equal(t, "Pattern-based", analyzed.SuggestedApproach)
}

func TestCoordinator_AnalyzeObjectiveFallback(t *testing.T) {
	c, bus, rec := newCoordinator(t, testutil.NewCompleter("I would start by looking around."))
	obj := orchestration.NewObjective("Refactor everything")

	plan, err := c.AnalyzeObjective(context.Background(), obj)
	require.NoError(t, err)
	testutil.WaitBus(t, bus)

	assert.True(t, plan.Fallback)
	require.Equal(t, 1, plan.TotalSteps())
	assert.Equal(t, "/sc:analyze .", plan.Steps[0].Command)
	assert.Equal(t, orchestration.ObjectiveInProgress, obj.Status)

	for _, typ := range []string{event.TypeObjectiveAnalyzed, event.TypePlanGenerated} {
		events := rec.OfType(typ)
		require.Len(t, events, 1, typ)
		assert.Equal(t, true, events[0].Metadata()["fallback"], typ)
	}
}

func TestCoordinator_AnalyzeObjectiveEmptyPlanFallsBack(t *testing.T) {
	c, bus, _ := newCoordinator(t, testutil.NewCompleter(`{"complexity": 0.2, "steps": []}`))

	plan, err := c.AnalyzeObjective(context.Background(), orchestration.NewObjective("Do nothing"))
	require.NoError(t, err)
	testutil.WaitBus(t, bus)

	assert.True(t, plan.Fallback)
	require.Equal(t, 1, plan.TotalSteps())
	assert.Equal(t, "/sc:analyze .", plan.Steps[0].Command)
}

func TestCoordinator_CompleterErrors(t *testing.T) {
	boom := fmt.Errorf("quota exceeded")
	completer := testutil.NewCompleter()
	completer.Err = boom
	c, _, _ := newCoordinator(t, completer)
	ctx := context.Background()

	obj := orchestration.NewObjective("Add caching")
	octx := orchestration.NewContext(obj.ID)
	octx.SetProgress(1, 3)
	analysis := &orchestration.Analysis{CanContinue: true}

	calls := []struct {
		phase string
		call  func() error
	}{
		{PhaseAnalyzeObjective, func() error { _, err := c.AnalyzeObjective(ctx, obj); return err }},
		{PhaseProposeCommand, func() error { _, err := c.ProposeCommand(ctx, octx, ""); return err }},
		{PhaseAnalyzeResult, func() error {
			_, err := c.AnalyzeResult(ctx, &orchestration.ExecutionResult{ExecutionID: "e"}, octx)
			return err
		}},
		{PhaseDetermineNextStep, func() error { _, err := c.DetermineNextStep(ctx, analysis, octx); return err }},
		{PhaseProposeRecovery, func() error { _, err := c.ProposeRecovery(ctx, analysis, octx); return err }},
	}

	for _, tc := range calls {
		t.Run(tc.phase, func(t *testing.T) {
			err := tc.call()
			var cerr *errors.CoordinatorError
			require.True(t, errors.As(err, &cerr), "expected CoordinatorError, got %v", err)
			assert.Equal(t, tc.phase, cerr.Phase)
			assert.Equal(t, obj.ID, cerr.ObjectiveID)
			assert.ErrorIs(t, err, boom)
			assert.False(t, errors.IsRetryable(err))
			assert.Equal(t, errors.SeverityError, errors.GetSeverity(err))
		})
	}
	assert.Equal(t, orchestration.ObjectiveAnalyzing, obj.Status)
}

func TestCoordinator_GenerationFailuresAreRetryable(t *testing.T) {
	completer := testutil.NewCompleter()
	completer.Err = fmt.Errorf("%w: quota exceeded", errors.ErrGenerationFailed)
	c, _, _ := newCoordinator(t, completer)

	_, err := c.AnalyzeObjective(context.Background(), orchestration.NewObjective("Add caching"))

	var cerr *errors.CoordinatorError
	require.ErrorAs(t, err, &cerr)
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, errors.SeverityWarning, errors.GetSeverity(err))
}

func TestCoordinator_ProposeCommandPrompt(t *testing.T) {
	completer := testutil.NewCompleter(implementReply)
	c, bus, rec := newCoordinator(t, completer, WithSource("gemini"))

	octx := orchestration.NewContext("obj-1")
	octx.SetProgress(3, 5)
	for i := 1; i <= 7; i++ {
		octx.AddCommand(fmt.Sprintf("/sc:build step%d", i), i != 4)
	}
	for i := 1; i <= 12; i++ {
		octx.AddFileChange(fmt.Sprintf("file%02d.go", i), orchestration.ChangeCreated)
	}

	_, err := c.ProposeCommand(context.Background(), octx, "Wire the API")
	require.NoError(t, err)
	testutil.WaitBus(t, bus)

	prompt := completer.Prompts()[0]
	assert.Contains(t, prompt, "Current Step: 3/5")
	assert.Contains(t, prompt, "Step Description: Wire the API")
	assert.NotContains(t, prompt, "step2\n")
	assert.Contains(t, prompt, "/sc:build step3\n")
	assert.Contains(t, prompt, "/sc:build step7\n")
	assert.NotContains(t, prompt, "file02.go")
	assert.Contains(t, prompt, "file03.go, ")
	assert.Contains(t, prompt, "file12.go")
	assert.Contains(t, prompt, "Current Success Rate: 85.7%")

	proposed := rec.OfType(event.TypeCommandProposed)
	require.Len(t, proposed, 1)
	ev := proposed[0].(*event.CommandProposedEvent)
	assert.Equal(t, "gemini", ev.Source())
	assert.Equal(t, "Step 3/5, 7 commands, 12 files changed, 85.7% success rate", ev.ContextUsed)
}

func TestCoordinator_ProposeCommandFallback(t *testing.T) {
	c, bus, rec := newCoordinator(t, testutil.NewCompleter(`{"reasoning": "unsure"}`))
	octx := orchestration.NewContext("obj-1")

	proposal, err := c.ProposeCommand(context.Background(), octx, "")
	require.NoError(t, err)
	testutil.WaitBus(t, bus)

	assert.True(t, proposal.Fallback)
	assert.Equal(t, "/sc:help", proposal.Command)
	assert.NotEmpty(t, proposal.ID)

	ev := rec.OfType(event.TypeCommandProposed)[0].(*event.CommandProposedEvent)
	assert.Equal(t, proposal.ID, ev.CommandID)
	assert.Equal(t, true, ev.Metadata()["fallback"])
}

func TestCoordinator_AnalyzeResultPrompt(t *testing.T) {
	completer := testutil.NewCompleter(successAnalysisReply)
	c, _, _ := newCoordinator(t, completer)
	octx := orchestration.NewContext("obj-1")
	octx.SetProgress(2, 4)

	result := &orchestration.ExecutionResult{
		ExecutionID:   "exec-1",
		Command:       "/sc:test",
		ExitCode:      0,
		Stdout:        strings.Repeat("x", 1500),
		ExecutionTime: 1500 * time.Millisecond,
		FilesCreated:  []string{"a.go"},
		TestResults:   &orchestration.TestResults{Passed: 3, Failed: 1},
	}
	_, err := c.AnalyzeResult(context.Background(), result, octx)
	require.NoError(t, err)

	prompt := completer.Prompts()[0]
	assert.Contains(t, prompt, "Command Executed: /sc:test")
	assert.Contains(t, prompt, "Execution Time: 1.50s")
	assert.Contains(t, prompt, "Files Created: 1")
	assert.Contains(t, prompt, strings.Repeat("x", 1000)+"\n")
	assert.NotContains(t, prompt, strings.Repeat("x", 1001))
	assert.Contains(t, prompt, "Test Results: 75.0% passing")
	assert.Contains(t, prompt, "- Step 2/4")
}

func TestCoordinator_AnalyzeResultUsesStderrPreview(t *testing.T) {
	completer := testutil.NewCompleter(successAnalysisReply)
	c, _, _ := newCoordinator(t, completer)

	result := &orchestration.ExecutionResult{ExecutionID: "e", Command: "/sc:build", ExitCode: 2, Stderr: "compile error"}
	_, err := c.AnalyzeResult(context.Background(), result, orchestration.NewContext("obj"))
	require.NoError(t, err)

	prompt := completer.Prompts()[0]
	assert.Contains(t, prompt, "Output Preview:\ncompile error")
	assert.Contains(t, prompt, "Test Results: No tests run")
}

func TestCoordinator_AnalyzeResultFallback(t *testing.T) {
	c, bus, rec := newCoordinator(t, testutil.NewCompleter("It went fine, I think."))
	result := &orchestration.ExecutionResult{ExecutionID: "e", ExitCode: 0}
	octx := orchestration.NewContext("obj")
	octx.SetProgress(1, 2)

	analysis, err := c.AnalyzeResult(context.Background(), result, octx)
	require.NoError(t, err)
	testutil.WaitBus(t, bus)

	assert.True(t, analysis.Fallback)
	assert.True(t, analysis.Success)
	assert.Equal(t, "Parse error in analysis", analysis.Understanding)

	ev := rec.OfType(event.TypeResultAnalyzed)[0].(*event.ResultAnalyzedEvent)
	assert.Equal(t, 1, ev.StepNumber)
	assert.Equal(t, true, ev.Metadata()["fallback"])
}

func TestCoordinator_DetermineNextStep(t *testing.T) {
	t.Run("cannot continue", func(t *testing.T) {
		completer := testutil.NewCompleter(implementReply)
		c, _, _ := newCoordinator(t, completer)
		octx := orchestration.NewContext("obj")
		octx.SetProgress(1, 3)

		next, err := c.DetermineNextStep(context.Background(), &orchestration.Analysis{CanContinue: false, RequiresCorrection: true}, octx)
		require.NoError(t, err)
		assert.Nil(t, next)
		assert.Empty(t, completer.Prompts())
	})

	t.Run("steps exhausted", func(t *testing.T) {
		completer := testutil.NewCompleter(implementReply)
		c, _, _ := newCoordinator(t, completer)
		octx := orchestration.NewContext("obj")
		octx.SetProgress(3, 3)

		next, err := c.DetermineNextStep(context.Background(), &orchestration.Analysis{CanContinue: true}, octx)
		require.NoError(t, err)
		assert.Nil(t, next)
		assert.Empty(t, completer.Prompts())
	})

	t.Run("next step", func(t *testing.T) {
		completer := testutil.NewCompleter(implementReply)
		c, bus, rec := newCoordinator(t, completer)
		octx := orchestration.NewContext("obj")
		octx.SetProgress(1, 3)

		analysis := &orchestration.Analysis{Success: true, CanContinue: true, Understanding: "Analysis done", MissingElements: []string{"code"}, NextAction: "implement"}
		next, err := c.DetermineNextStep(context.Background(), analysis, octx)
		require.NoError(t, err)
		require.NotNil(t, next)
		testutil.WaitBus(t, bus)

		assert.Empty(t, rec.OfType(event.TypeRecoveryProposed))
		events := rec.OfType(event.TypeNextStepProposed)
		require.Len(t, events, 1)
		ev := events[0].(*event.NextStepProposedEvent)
		assert.Equal(t, 2, ev.StepNumber)
		assert.Equal(t, next.Command, ev.NextCommand)
		assert.Equal(t, "Login endpoints", ev.ExpectedOutcome)

		prompt := completer.Prompts()[0]
		assert.Contains(t, prompt, "- Missing Elements: code")
		assert.Contains(t, prompt, "- Suggested Action: implement")
		assert.Contains(t, prompt, "Current Progress: 1/3 (33.3%)")
	})
}

func TestCoordinator_ProposeRecoveryWithoutFailures(t *testing.T) {
	completer := testutil.NewCompleter(recoveryReply)
	c, _, _ := newCoordinator(t, completer)

	_, err := c.ProposeRecovery(context.Background(), &orchestration.Analysis{Understanding: "odd"}, orchestration.NewContext("obj"))
	require.NoError(t, err)

	prompt := completer.Prompts()[0]
	assert.Contains(t, prompt, "Failed Command: Unknown")
	assert.Contains(t, prompt, "Recent Successful Commands:\nNone")
}

func TestCoordinator_CompleteObjective(t *testing.T) {
	c, bus, rec := newCoordinator(t, testutil.NewCompleter())
	obj := orchestration.NewObjective("Add user authentication")
	octx := orchestration.NewContext(obj.ID)
	octx.SetProgress(2, 2)
	octx.AddCommand("/sc:analyze .", true)
	octx.AddCommand("/sc:implement auth", true)
	octx.AddLearnedPattern("analyze before implementing")

	c.CompleteObjective(obj, octx, orchestration.ObjectiveCompleted)
	testutil.WaitBus(t, bus)

	assert.Equal(t, orchestration.ObjectiveCompleted, obj.Status)
	events := rec.OfType(event.TypeObjectiveCompleted)
	require.Len(t, events, 1)

	ev := events[0].(*event.ObjectiveCompletedEvent)
	assert.Equal(t, orchestration.ObjectiveCompleted, ev.Status)
	assert.Equal(t, 2, ev.TotalSteps)
	assert.InDelta(t, 1.0, ev.SuccessMetrics["success_rate"], 1e-9)
	assert.Equal(t, []string{"/sc:analyze .", "/sc:implement auth"}, ev.SuccessfulCommands)
	assert.Equal(t, []string{"analyze before implementing"}, ev.LearnedPatterns)
}

func TestCoordinator_NilBus(t *testing.T) {
	c := New(testutil.NewCompleter(authPlanReply), nil)
	plan, err := c.AnalyzeObjective(context.Background(), orchestration.NewObjective("x"))
	require.NoError(t, err)
	assert.Equal(t, 2, plan.TotalSteps())
}
