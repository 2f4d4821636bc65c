package planner

import (
	"github.com/Custos/imthedev-sub000/internal/logging"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// PatternSource supplies stored patterns to objective analysis.
type PatternSource interface {
	// Best returns the most reliable pattern whose trigger matches description.
	Best(description string) (*orchestration.Pattern, bool)
	// Use records that the pattern with the given ID seeded a plan.
	Use(patternID string)
}

// PatternList is a PatternSource over an in-memory slice. It is not safe for
// concurrent mutation.
type PatternList []*orchestration.Pattern

// Best implements PatternSource.
func (l PatternList) Best(description string) (*orchestration.Pattern, bool) {
	return orchestration.SelectPattern(l, description)
}

// Use implements PatternSource.
func (l PatternList) Use(patternID string) {
	for _, p := range l {
		if p != nil && p.ID == patternID {
			p.Use()
			return
		}
	}
}

// coordinatorConfig holds optional configuration for a Coordinator.
type coordinatorConfig struct {
	patterns PatternSource
	logger   *logging.Logger
	source   string
}

// Option configures a Coordinator.
type Option func(*coordinatorConfig)

// WithPatterns sets the pattern store consulted by AnalyzeObjective.
func WithPatterns(src PatternSource) Option {
	return func(c *coordinatorConfig) { c.patterns = src }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *logging.Logger) Option {
	return func(c *coordinatorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSource overrides the source name stamped on emitted events.
func WithSource(name string) Option {
	return func(c *coordinatorConfig) { c.source = name }
}
