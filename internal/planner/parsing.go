package planner

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// Reply kinds reported on GenerationParseError.
const (
	ReplyPlan     = "plan"
	ReplyProposal = "proposal"
	ReplyAnalysis = "analysis"
)

// Defaults applied when a reply omits a field.
const (
	DefaultComplexity    = 0.5
	DefaultStepEstimate  = 60 * time.Second
	DefaultConfidence    = 0.5
	DefaultStepDuration  = 60 * time.Second
	maxEstimate          = 24 * time.Hour
	fallbackPlanCommand  = "/sc:analyze ."
	fallbackPlanStep     = "Initial analysis"
	fallbackHelpCommand  = "/sc:help"
	fallbackProposalNote = "Parse error"
	fallbackAnalysisNote = "Parse error in analysis"
)

// planReply is the JSON shape requested by the objective analysis prompt.
// Pointer fields distinguish "absent" from the zero value.
type planReply struct {
	Complexity     *float64        `json:"complexity"`
	Dependencies   []string        `json:"dependencies"`
	RiskAssessment string          `json:"risk_assessment"`
	Steps          []planStepReply `json:"steps"`
	ParallelGroups [][]int         `json:"parallel_groups"`
}

type planStepReply struct {
	Command       string   `json:"command"`
	Description   string   `json:"description"`
	EstimatedTime *float64 `json:"estimated_time"` // seconds
}

// proposalReply is the JSON shape shared by command, next-step and recovery prompts.
type proposalReply struct {
	Command              string   `json:"command"`
	Reasoning            string   `json:"reasoning"`
	Confidence           *float64 `json:"confidence"`
	Alternatives         []string `json:"alternatives"`
	ExpectedOutcome      string   `json:"expected_outcome"`
	EstimatedDuration    *float64 `json:"estimated_duration"` // seconds
	RequiredCapabilities []string `json:"required_capabilities"`
}

// analysisReply is the JSON shape requested by the result analysis prompt.
type analysisReply struct {
	Success            *bool    `json:"success"`
	Understanding      string   `json:"understanding"`
	KeyFindings        []string `json:"key_findings"`
	MissingElements    []string `json:"missing_elements"`
	NextAction         string   `json:"next_action"`
	Confidence         *float64 `json:"confidence"`
	RequiresCorrection *bool    `json:"requires_correction"`
	CanContinue        *bool    `json:"can_continue"`
	Insights           []string `json:"insights"`
}

// ParsePlan turns a model reply into a Plan for objectiveID. The reply may
// be bare JSON, a fenced ```json block or JSON embedded in prose. A reply
// without any steps is rejected with an error wrapping ErrPlanInvalid, so
// the coordinator runs the fallback plan instead of an empty one.
func ParsePlan(reply, objectiveID string) (*orchestration.Plan, error) {
	var raw planReply
	if err := decodeReply(ReplyPlan, reply, &raw); err != nil {
		return nil, err
	}
	if len(raw.Steps) == 0 {
		return nil, errors.NewGenerationParseError(ReplyPlan, "plan contains no steps", errors.ErrPlanInvalid).WithRaw(reply)
	}

	plan := orchestration.NewPlan(objectiveID)
	plan.Complexity = clampUnit(valueOr(raw.Complexity, DefaultComplexity))
	plan.Dependencies = raw.Dependencies
	plan.RiskAssessment = raw.RiskAssessment
	plan.ParallelGroups = raw.ParallelGroups

	for _, s := range raw.Steps {
		plan.AddStep(strings.TrimSpace(s.Command), s.Description, seconds(s.EstimatedTime, DefaultStepEstimate))
	}
	return plan, nil
}

// ParseProposal turns a model reply into a CommandProposal. A reply without
// a command is rejected.
func ParseProposal(reply string) (*orchestration.CommandProposal, error) {
	var raw proposalReply
	if err := decodeReply(ReplyProposal, reply, &raw); err != nil {
		return nil, err
	}
	command := strings.TrimSpace(raw.Command)
	if command == "" {
		return nil, errors.NewGenerationParseError(ReplyProposal, "proposal has no command", nil).WithRaw(reply)
	}

	return &orchestration.CommandProposal{
		Command:              command,
		Reasoning:            raw.Reasoning,
		Confidence:           clampUnit(valueOr(raw.Confidence, DefaultConfidence)),
		Alternatives:         raw.Alternatives,
		ExpectedOutcome:      raw.ExpectedOutcome,
		EstimatedDuration:    seconds(raw.EstimatedDuration, DefaultStepDuration),
		RequiredCapabilities: raw.RequiredCapabilities,
	}, nil
}

// ParseAnalysis turns a model reply into an Analysis of executionID.
func ParseAnalysis(reply, executionID string) (*orchestration.Analysis, error) {
	var raw analysisReply
	if err := decodeReply(ReplyAnalysis, reply, &raw); err != nil {
		return nil, err
	}

	return &orchestration.Analysis{
		ExecutionID:        executionID,
		Success:            valueOr(raw.Success, false),
		Understanding:      raw.Understanding,
		Findings:           raw.KeyFindings,
		MissingElements:    raw.MissingElements,
		NextAction:         raw.NextAction,
		Confidence:         clampUnit(valueOr(raw.Confidence, DefaultConfidence)),
		RequiresCorrection: valueOr(raw.RequiresCorrection, false),
		CanContinue:        valueOr(raw.CanContinue, true),
		LearnedInsights:    raw.Insights,
	}, nil
}

// fallbackPlan is the single broad-analysis step used when a plan reply
// cannot be parsed.
func fallbackPlan(objectiveID string) *orchestration.Plan {
	plan := orchestration.NewPlan(objectiveID)
	plan.Complexity = DefaultComplexity
	plan.AddStep(fallbackPlanCommand, fallbackPlanStep, DefaultStepEstimate)
	plan.Fallback = true
	return plan
}

func fallbackProposal() *orchestration.CommandProposal {
	return &orchestration.CommandProposal{
		Command:   fallbackHelpCommand,
		Reasoning: fallbackProposalNote,
		Fallback:  true,
	}
}

func fallbackAnalysis(result *orchestration.ExecutionResult) *orchestration.Analysis {
	return &orchestration.Analysis{
		ExecutionID:   result.ExecutionID,
		Success:       result.Success(),
		Understanding: fallbackAnalysisNote,
		CanContinue:   true,
		Fallback:      true,
	}
}

// decodeReply locates the JSON object in reply and unmarshals it into v.
func decodeReply(kind, reply string, v any) error {
	obj, ok := ExtractJSON(reply)
	if !ok {
		return errors.NewGenerationParseError(kind, "no JSON object in reply", nil).WithRaw(reply)
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return errors.NewGenerationParseError(kind, fmt.Sprintf("invalid %s JSON", kind), err).WithRaw(reply)
	}
	return nil
}

// ExtractJSON returns the first balanced, syntactically valid JSON object in
// text. Markdown fences and surrounding prose are skipped over. Braces inside
// JSON strings do not count toward the balance.
func ExtractJSON(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end, ok := matchBrace(text, start); ok {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func clampUnit(v float64) float64 {
	return min(max(v, 0), 1)
}

// seconds converts a duration in seconds, clamped to [0, maxEstimate].
func seconds(p *float64, def time.Duration) time.Duration {
	if p == nil {
		return def
	}
	switch {
	case *p <= 0:
		return 0
	case *p >= maxEstimate.Seconds():
		return maxEstimate
	}
	return time.Duration(*p * float64(time.Second))
}
