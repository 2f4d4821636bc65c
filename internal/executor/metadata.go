package executor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// Metadata patterns applied to a completed output blob.
var (
	SCFVersionPattern  = regexp.MustCompile(`SCF Version:\s*(\d+(?:\.\d+)*(?:-[\w.]+)?)`)
	PersonaPattern     = regexp.MustCompile(`--persona-(\w+)`)
	FlagPattern        = regexp.MustCompile(`--([\w-]+)`)
	PerformancePattern = regexp.MustCompile(`(\w+):\s*([\d.]+)(ms|s|%)`)
	commandTypePattern = regexp.MustCompile(`(?:^|\s)/?sc:(\w+)`)
	suggestionPattern  = regexp.MustCompile(`(?m)^\s*Suggestion:\s*(.+?)\s*$`)
	warningPattern     = regexp.MustCompile(`(?m)^\s*Warning:\s*(.+?)\s*$`)
)

// mcpServers maps canonical server names to the flag substrings that
// indicate them, in reporting order.
var mcpServers = []struct {
	name    string
	markers []string
}{
	{"Sequential", []string{"--seq", "--sequential"}},
	{"Context7", []string{"--c7", "--context7"}},
	{"Magic", []string{"--magic"}},
	{"Playwright", []string{"--play", "--playwright"}},
}

// ExtractMetadata derives SCF metadata from command output. It is pure and
// deterministic: lists keep first-seen order without duplicates.
func ExtractMetadata(output string) orchestration.ExecutionMetadata {
	md := orchestration.ExecutionMetadata{
		ThinkingDepth:      thinkingDepth(output),
		PerformanceMetrics: make(map[string]float64),
	}

	if m := SCFVersionPattern.FindStringSubmatch(output); m != nil {
		md.SCFVersion = m[1]
	}
	if m := commandTypePattern.FindStringSubmatch(output); m != nil {
		md.CommandType = m[1]
	}

	md.Personas = uniqueGroups(PersonaPattern, output)
	md.Flags = uniqueGroups(FlagPattern, output)

	for _, server := range mcpServers {
		for _, marker := range server.markers {
			if strings.Contains(output, marker) {
				md.MCPServers = append(md.MCPServers, server.name)
				break
			}
		}
	}

	for _, m := range PerformancePattern.FindAllStringSubmatch(output, -1) {
		value, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		switch m[3] {
		case "s":
			value *= 1000
		case "%":
			value /= 100
		}
		md.PerformanceMetrics[strings.ToLower(m[1])] = value
	}

	md.Suggestions = uniqueGroups(suggestionPattern, output)
	md.Warnings = uniqueGroups(warningPattern, output)
	return md
}

func thinkingDepth(output string) string {
	switch {
	case strings.Contains(output, "--ultrathink"):
		return orchestration.ThinkingUltra
	case strings.Contains(output, "--think-hard"):
		return orchestration.ThinkingThinkHard
	case strings.Contains(output, "--think"):
		return orchestration.ThinkingThink
	default:
		return orchestration.ThinkingStandard
	}
}

// uniqueGroups returns the first capture group of every match, deduplicated.
func uniqueGroups(re *regexp.Regexp, text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// ExtractMetadata derives metadata from output and emits MetadataExtracted.
func (e *Executor) ExtractMetadata(executionID, command, output string) orchestration.ExecutionMetadata {
	md := ExtractMetadata(output)
	if md.CommandType == "" {
		md.CommandType = CommandKind(command)
	}

	e.emit(event.NewMetadataExtractedEvent(
		executionID, command,
		md.SCFVersion, md.Personas, md.Flags, md.MCPServers,
		md.ThinkingDepth, md.PerformanceMetrics,
	))
	return md
}
