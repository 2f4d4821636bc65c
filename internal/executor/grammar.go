package executor

import (
	"regexp"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Custos/imthedev-sub000/internal/errors"
)

// helpCommand is suggested when nothing closer can be derived.
const helpCommand = "/sc:help"

// CommandKinds lists the accepted values of <kind> in /sc:<kind>.
var CommandKinds = []string{
	"analyze", "implement", "test", "improve", "build",
	"document", "git", "workflow", "task", "spawn",
	"help", "index", "load", "cleanup", "estimate",
}

// BooleanFlags lists the flags accepted without a value.
var BooleanFlags = []string{
	// thinking depth
	"--think", "--think-hard", "--ultrathink",
	// personas
	"--persona-architect", "--persona-frontend", "--persona-backend",
	"--persona-analyzer", "--persona-security", "--persona-mentor",
	"--persona-refactorer", "--persona-performance", "--persona-qa",
	"--persona-devops", "--persona-scribe",
	// MCP servers
	"--seq", "--sequential", "--c7", "--context7",
	"--magic", "--play", "--playwright", "--all-mcp", "--no-mcp",
	// other
	"--with-tests", "--safe-mode", "--validate", "--uc",
	"--verbose", "--answer-only", "--introspect",
	"--delegate", "--parallel", "--loop", "--iterations",
}

// ParameterizedFlags lists the prefixes of flags that take a value.
var ParameterizedFlags = []string{
	"--persona-scribe=", "--iterations=", "--concurrency=",
	"--scope=", "--focus=", "--output=", "--strategy=",
}

var (
	// commandPattern anchors a command and captures its kind.
	commandPattern = regexp.MustCompile(`^/?sc:(\w+)`)
	// flagPattern finds every flag occurrence, including an inline value.
	flagPattern = regexp.MustCompile(`--[\w-]+(?:=\S*)?`)

	booleanFlagSet = makeSet(BooleanFlags)
	kindSet        = makeSet(CommandKinds)
	parameterGlobs = compileParameterGlobs(ParameterizedFlags)
)

func makeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func compileParameterGlobs(prefixes []string) []glob.Glob {
	globs := make([]glob.Glob, 0, len(prefixes))
	for _, prefix := range prefixes {
		globs = append(globs, glob.MustCompile(glob.QuoteMeta(prefix)+"*"))
	}
	return globs
}

// Validate checks command against the command grammar. It returns a
// *errors.ValidationError naming the offending part, or nil.
func Validate(command string) error {
	trimmed := strings.TrimSpace(command)

	m := commandPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return errors.NewValidationError("command must start with /sc:<kind>").
			WithField("command").WithValue(command)
	}

	kind := m[1]
	if _, ok := kindSet[kind]; !ok {
		return errors.NewValidationError("unknown command kind").
			WithField("kind").WithValue(kind)
	}

	if !strings.Contains(trimmed, "--") {
		return nil
	}
	for _, flag := range flagPattern.FindAllString(trimmed, -1) {
		if !validFlag(flag) {
			return errors.NewValidationError("flag is not allowed").
				WithField("flag").WithValue(flag)
		}
	}
	return nil
}

// IsValid reports whether command passes Validate.
func IsValid(command string) bool {
	return Validate(command) == nil
}

// CommandKind returns the kind of a command, or "" when it does not match
// the grammar's prefix.
func CommandKind(command string) string {
	m := commandPattern.FindStringSubmatch(strings.TrimSpace(command))
	if m == nil {
		return ""
	}
	return m[1]
}

func validFlag(flag string) bool {
	if strings.Contains(flag, "=") {
		return slices.ContainsFunc(parameterGlobs, func(g glob.Glob) bool {
			return g.Match(flag)
		})
	}
	_, ok := booleanFlagSet[flag]
	return ok
}

// stripPrefix removes a leading "/sc:" or "sc:".
func stripPrefix(command string) string {
	command = strings.TrimSpace(command)
	if rest, ok := strings.CutPrefix(command, "/sc:"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(command, "sc:"); ok {
		return rest
	}
	return command
}

// SuggestFixes returns corrected variants of an invalid command. A missing
// prefix is added when the first word is a known kind, disallowed flags
// are dropped, and an unknown kind falls back to /sc:help. Valid commands
// yield nil.
func SuggestFixes(command string) []string {
	if IsValid(command) {
		return nil
	}
	trimmed := strings.TrimSpace(command)

	if commandPattern.FindStringSubmatch(trimmed) == nil {
		first, _, _ := strings.Cut(trimmed, " ")
		if _, ok := kindSet[first]; ok {
			prefixed := "/sc:" + trimmed
			if IsValid(prefixed) {
				return []string{prefixed}
			}
			return SuggestFixes(prefixed)
		}
		return []string{helpCommand}
	}

	if _, ok := kindSet[CommandKind(trimmed)]; !ok {
		return []string{helpCommand}
	}

	fixed := flagPattern.ReplaceAllStringFunc(trimmed, func(flag string) string {
		if validFlag(flag) {
			return flag
		}
		return ""
	})
	fixed = strings.Join(strings.Fields(fixed), " ")
	if fixed == "" || fixed == trimmed {
		return []string{helpCommand}
	}
	return []string{fixed}
}
