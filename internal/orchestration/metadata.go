package orchestration

// Thinking depth levels, ordered from shallowest to deepest.
const (
	ThinkingStandard  = "standard"
	ThinkingThink     = "think"
	ThinkingThinkHard = "think-hard"
	ThinkingUltra     = "ultrathink"
)

// ExecutionMetadata holds the SCF annotations found in command output.
type ExecutionMetadata struct {
	SCFVersion    string   `json:"scf_version,omitempty" yaml:"scf_version,omitempty"`
	CommandType   string   `json:"command_type,omitempty" yaml:"command_type,omitempty"`
	Personas      []string `json:"personas,omitempty" yaml:"personas,omitempty"`
	Flags         []string `json:"flags,omitempty" yaml:"flags,omitempty"`
	MCPServers    []string `json:"mcp_servers,omitempty" yaml:"mcp_servers,omitempty"`
	ThinkingDepth string   `json:"thinking_depth" yaml:"thinking_depth"`
	// PerformanceMetrics holds durations in milliseconds and percentages as 0-1 ratios.
	PerformanceMetrics map[string]float64 `json:"performance_metrics,omitempty" yaml:"performance_metrics,omitempty"`
	Suggestions        []string           `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
	Warnings           []string           `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// HasEnhancedFeatures reports whether personas, MCP servers or a non-default
// thinking depth were used.
func (m ExecutionMetadata) HasEnhancedFeatures() bool {
	return len(m.Personas) > 0 ||
		len(m.MCPServers) > 0 ||
		(m.ThinkingDepth != "" && m.ThinkingDepth != ThinkingStandard)
}
