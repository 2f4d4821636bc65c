package planner

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "Here you go:\n```json\n{\"a\": {\"b\": 2}}\n```\n", `{"a": {"b": 2}}`, true},
		{"prose around", `The plan is {"steps":[]} as requested.`, `{"steps":[]}`, true},
		{"braces in strings", `{"s":"a } b { c"}`, `{"s":"a } b { c"}`, true},
		{"escaped quote in string", `{"s":"say \"}\""}`, `{"s":"say \"}\""}`, true},
		{"skips invalid candidate", `see {this} then {"ok":true}`, `{"ok":true}`, true},
		{"first of two", `{"a":1} {"b":2}`, `{"a":1}`, true},
		{"unbalanced", `{"a":1`, "", false},
		{"no object", "I cannot help with that.", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePlan(t *testing.T) {
	reply := "```json\n" + `{
  "complexity": 0.7,
  "dependencies": ["database", "jwt"],
  "risk_assessment": "Touches login flow",
  "steps": [
    {"command": "/sc:analyze . --think", "description": "Survey auth code", "estimated_time": 30},
    {"command": "/sc:implement auth --persona-backend", "description": "Build auth", "estimated_time": 120.5},
    {"command": "/sc:test --with-tests", "description": "Verify"}
  ]
}` + "\n```"

	plan, err := ParsePlan(reply, "obj-1")
	require.NoError(t, err)

	assert.Equal(t, "obj-1", plan.ObjectiveID)
	assert.InDelta(t, 0.7, plan.Complexity, 1e-9)
	assert.Equal(t, []string{"database", "jwt"}, plan.Dependencies)
	assert.Equal(t, "Touches login flow", plan.RiskAssessment)
	assert.False(t, plan.Fallback)

	want := []orchestration.PlanStep{
		{Number: 1, Command: "/sc:analyze . --think", Description: "Survey auth code", EstimatedTime: 30 * time.Second},
		{Number: 2, Command: "/sc:implement auth --persona-backend", Description: "Build auth", EstimatedTime: 120500 * time.Millisecond},
		{Number: 3, Command: "/sc:test --with-tests", Description: "Verify", EstimatedTime: DefaultStepEstimate},
	}
	if diff := cmp.Diff(want, plan.Steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, plan.TotalSteps())
	assert.Equal(t, 30*time.Second+120500*time.Millisecond+DefaultStepEstimate, plan.EstimatedTotalTime)
}

func TestParsePlan_Defaults(t *testing.T) {
	plan, err := ParsePlan(`{"steps":[{"command":"/sc:build"}]}`, "obj")
	require.NoError(t, err)
	assert.InDelta(t, DefaultComplexity, plan.Complexity, 1e-9)
	assert.Equal(t, DefaultStepEstimate, plan.EstimatedTotalTime)
}

func TestParsePlan_ClampsComplexity(t *testing.T) {
	plan, err := ParsePlan(`{"complexity": 4, "steps":[{"command":"/sc:build"}]}`, "obj")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, plan.Complexity, 1e-9)
}

func TestParsePlan_ClampsEstimates(t *testing.T) {
	plan, err := ParsePlan(`{"steps":[
  {"command":"/sc:build", "estimated_time": 1e300},
  {"command":"/sc:test", "estimated_time": 90000},
  {"command":"/sc:analyze .", "estimated_time": -5}
]}`, "obj")
	require.NoError(t, err)

	require.Len(t, plan.Steps, 3)
	assert.Equal(t, maxEstimate, plan.Steps[0].EstimatedTime)
	assert.Equal(t, maxEstimate, plan.Steps[1].EstimatedTime)
	assert.Zero(t, plan.Steps[2].EstimatedTime)
	assert.Equal(t, 2*maxEstimate, plan.EstimatedTotalTime)

	proposal, err := ParseProposal(`{"command": "/sc:build", "estimated_duration": 1e300}`)
	require.NoError(t, err)
	assert.Equal(t, maxEstimate, proposal.EstimatedDuration)
}

func TestParsePlan_NoStepsIsInvalid(t *testing.T) {
	plan, err := ParsePlan(`{"complexity": 0.3, "steps": []}`, "obj")
	assert.Nil(t, plan)
	assert.ErrorIs(t, err, errors.ErrPlanInvalid)
	assert.ErrorIs(t, err, errors.ErrParseFailed)

	_, err = ParsePlan("no JSON at all", "obj")
	assert.NotErrorIs(t, err, errors.ErrPlanInvalid)
}

func TestParsePlan_Errors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "Sure! First analyze, then implement."},
		{"no steps", `{"complexity": 0.3, "steps": []}`},
		{"wrong type", `{"steps": "analyze then build"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan(tt.reply, "obj")
			assert.Nil(t, plan)

			var perr *errors.GenerationParseError
			require.True(t, errors.As(err, &perr), "expected GenerationParseError, got %v", err)
			assert.Equal(t, ReplyPlan, perr.ReplyKind)
			assert.NotEmpty(t, perr.Raw)
			assert.True(t, errors.Is(err, errors.ErrParseFailed))
		})
	}
}

func TestParseProposal(t *testing.T) {
	reply := `I suggest:
{"command": " /sc:implement auth --persona-backend --with-tests ", "reasoning": "Backend first",
 "confidence": 0.85, "alternatives": ["/sc:implement auth"], "expected_outcome": "Auth module",
 "estimated_duration": 90, "required_capabilities": ["python"]}`

	got, err := ParseProposal(reply)
	require.NoError(t, err)

	want := &orchestration.CommandProposal{
		Command:              "/sc:implement auth --persona-backend --with-tests",
		Reasoning:            "Backend first",
		Confidence:           0.85,
		Alternatives:         []string{"/sc:implement auth"},
		ExpectedOutcome:      "Auth module",
		EstimatedDuration:    90 * time.Second,
		RequiredCapabilities: []string{"python"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("proposal mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.IsHighConfidence())
}

func TestParseProposal_Defaults(t *testing.T) {
	got, err := ParseProposal(`{"command": "/sc:build"}`)
	require.NoError(t, err)
	assert.InDelta(t, DefaultConfidence, got.Confidence, 1e-9)
	assert.Equal(t, DefaultStepDuration, got.EstimatedDuration)
	assert.False(t, got.IsHighConfidence())
}

func TestParseProposal_MissingCommand(t *testing.T) {
	_, err := ParseProposal(`{"reasoning": "no idea"}`)

	var perr *errors.GenerationParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ReplyProposal, perr.ReplyKind)
}

func TestParseAnalysis(t *testing.T) {
	reply := `{"success": true, "understanding": "Auth added", "key_findings": ["jwt used"],
 "missing_elements": ["tests"], "next_action": "write tests", "confidence": 0.9,
 "requires_correction": false, "can_continue": true, "insights": ["backend persona helps"]}`

	got, err := ParseAnalysis(reply, "exec-1")
	require.NoError(t, err)

	want := &orchestration.Analysis{
		ExecutionID:     "exec-1",
		Success:         true,
		Understanding:   "Auth added",
		Findings:        []string{"jwt used"},
		MissingElements: []string{"tests"},
		NextAction:      "write tests",
		Confidence:      0.9,
		CanContinue:     true,
		LearnedInsights: []string{"backend persona helps"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("analysis mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAnalysis_Defaults(t *testing.T) {
	got, err := ParseAnalysis(`{}`, "exec-1")
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.True(t, got.CanContinue)
	assert.False(t, got.RequiresCorrection)
	assert.InDelta(t, DefaultConfidence, got.Confidence, 1e-9)
}

func TestParseAnalysis_ExplicitFalseCanContinue(t *testing.T) {
	got, err := ParseAnalysis(`{"success": true, "can_continue": false}`, "exec-1")
	require.NoError(t, err)
	assert.False(t, got.CanContinue)
}

func TestFallbacks(t *testing.T) {
	plan := fallbackPlan("obj")
	assert.True(t, plan.Fallback)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "/sc:analyze .", plan.Steps[0].Command)
	assert.Equal(t, "Initial analysis", plan.Steps[0].Description)
	assert.Equal(t, 60*time.Second, plan.EstimatedTotalTime)

	proposal := fallbackProposal()
	assert.True(t, proposal.Fallback)
	assert.Equal(t, "/sc:help", proposal.Command)
	assert.Equal(t, "Parse error", proposal.Reasoning)

	analysis := fallbackAnalysis(&orchestration.ExecutionResult{ExecutionID: "e", ExitCode: 2})
	assert.True(t, analysis.Fallback)
	assert.False(t, analysis.Success)
	assert.Equal(t, "Parse error in analysis", analysis.Understanding)
	assert.True(t, analysis.CanContinue)
}
