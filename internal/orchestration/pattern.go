package orchestration

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// usageSaturation is the usage count at which the reliability bonus stops growing.
const usageSaturation = 10

// Pattern is a previously successful command sequence, reusable when its
// trigger matches a new objective.
type Pattern struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	// Trigger is a regular expression searched case-insensitively. A trigger
	// that does not compile is treated as a plain keyword.
	Trigger             string            `json:"trigger" yaml:"trigger"`
	Commands            []string          `json:"commands" yaml:"commands"`
	SuccessRate         float64           `json:"success_rate" yaml:"success_rate"`
	UsageCount          int               `json:"usage_count" yaml:"usage_count"`
	ContextRequirements map[string]string `json:"context_requirements,omitempty" yaml:"context_requirements,omitempty"`
	CreatedAt           time.Time         `json:"created_at" yaml:"created_at"`
	LastUsed            *time.Time        `json:"last_used,omitempty" yaml:"last_used,omitempty"`
	Tags                []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// NewPattern creates a pattern with a fresh ID.
func NewPattern(name, trigger string, commands []string) *Pattern {
	return &Pattern{
		ID:        uuid.NewString(),
		Name:      name,
		Trigger:   trigger,
		Commands:  append([]string(nil), commands...),
		CreatedAt: time.Now(),
	}
}

// Matches reports whether the trigger occurs in text, ignoring case.
func (p *Pattern) Matches(text string) bool {
	if p.Trigger == "" {
		return false
	}
	re, err := regexp.Compile("(?i)" + p.Trigger)
	if err != nil {
		return strings.Contains(strings.ToLower(text), strings.ToLower(p.Trigger))
	}
	return re.MatchString(text)
}

// ReliabilityScore weighs success rate at 70% and usage at 30%, with the
// usage part saturating at ten uses.
func (p *Pattern) ReliabilityScore() float64 {
	usage := min(float64(p.UsageCount)/usageSaturation, 1.0)
	return p.SuccessRate*0.7 + usage*0.3
}

// Use records one application of the pattern.
func (p *Pattern) Use() {
	now := time.Now()
	p.UsageCount++
	p.LastUsed = &now
}

// SelectPattern returns the matching pattern with the highest reliability
// score. Ties keep the earlier pattern.
func SelectPattern(patterns []*Pattern, text string) (*Pattern, bool) {
	var best *Pattern
	for _, p := range patterns {
		if p == nil || !p.Matches(text) {
			continue
		}
		if best == nil || p.ReliabilityScore() > best.ReliabilityScore() {
			best = p
		}
	}
	return best, best != nil
}
