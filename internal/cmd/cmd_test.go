package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
	"github.com/Custos/imthedev-sub000/internal/orchestrator"
	"github.com/Custos/imthedev-sub000/internal/testutil"
)

// resetFlags restores every flag of c and its subcommands to its default.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// executeCommand runs the root command with args and returns captured output
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// writeConfig writes settings as a YAML config file and returns its path.
func writeConfig(t *testing.T, dir string, settings map[string]any) string {
	t.Helper()
	data, err := yaml.Marshal(settings)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// isolate points the default config directory at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("NO_COLOR", "1")
	return dir
}

const cliScript = `case "$1" in
implement)
  echo "SCF Version: 3.1.0"
  echo "Created: $2.go"
  ;;
test)
  echo "Tests: 3/3 passing (100%)"
  ;;
build)
  echo "compile error" >&2
  exit 2
  ;;
esac`

const (
	twoStepPlan = `{"complexity": 0.5, "steps": [
  {"command": "/sc:implement auth --with-tests", "description": "Implement authentication", "estimated_time": 60},
  {"command": "/sc:test auth", "description": "Run the auth tests", "estimated_time": 30}
]}`
	implementProposal = `{"command": "/sc:implement auth --with-tests", "reasoning": "Build it", "confidence": 0.9}`
	testProposal      = `{"command": "/sc:test auth", "reasoning": "Verify it", "confidence": 0.9}`
	successAnalysis   = `{"success": true, "understanding": "Step done", "next_action": "continue",
 "confidence": 0.9, "can_continue": true}`
)

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "imthedev", rootCmd.Use)

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, expected := range []string{"run", "exec", "validate", "metadata", "patterns", "config", "logs"} {
		assert.True(t, names[expected], "missing subcommand %q", expected)
	}
}

func TestValidateCommand(t *testing.T) {
	isolate(t)

	out, err := executeCommand(t, "validate", "/sc:implement auth --with-tests")
	require.NoError(t, err)
	assert.Contains(t, out, "valid: /sc:implement auth --with-tests (implement)")

	out, err = executeCommand(t, "validate", "implement", "auth")
	require.Error(t, err)
	assert.Contains(t, out, "invalid:")
	assert.Contains(t, out, "/sc:implement auth")
}

func TestMetadataCommand(t *testing.T) {
	isolate(t)
	output := filepath.Join(t.TempDir(), "out.log")
	require.NoError(t, os.WriteFile(output, []byte("SCF Version: 3.1.0\nRunning /sc:analyze src --persona-security --think\nparse: 150ms\n"), 0644))

	out, err := executeCommand(t, "metadata", output)
	require.NoError(t, err)

	var md orchestration.ExecutionMetadata
	require.NoError(t, json.Unmarshal([]byte(out), &md))
	assert.Equal(t, "3.1.0", md.SCFVersion)
	assert.Equal(t, "analyze", md.CommandType)
	assert.Equal(t, []string{"security"}, md.Personas)
	assert.Equal(t, orchestration.ThinkingThink, md.ThinkingDepth)
	assert.InDelta(t, 150.0, md.PerformanceMetrics["parse"], 0.001)

	out, err = executeCommand(t, "metadata", output, "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "scf_version: 3.1.0")
	assert.Contains(t, out, "thinking_depth: think")

	_, err = executeCommand(t, "metadata", output, "-o", "xml")
	assert.Error(t, err)
}

func TestConfigShow(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, map[string]any{
		"approval": map[string]any{"mode": "manual", "threshold": 0.6},
		"executor": map[string]any{"timeout": "90s"},
	})

	out, err := executeCommand(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "# Config file: "+path)
	assert.Contains(t, out, "mode: manual")
	assert.Contains(t, out, "threshold: 0.6")
	assert.Contains(t, out, "timeout: 1m30s")
	assert.Contains(t, out, "binary: claude")
}

func TestConfigShow_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("IMTHEDEV_APPROVAL_MODE", "auto")

	out, err := executeCommand(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "(none - using defaults)")
	assert.Contains(t, out, "mode: auto")
}

func TestConfigShow_Invalid(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, map[string]any{"approval": map[string]any{"mode": "sometimes"}})

	_, err := executeCommand(t, "config", "show", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approval.mode")
}

func TestConfigInitAndSet(t *testing.T) {
	dir := isolate(t)
	configFile := filepath.Join(dir, "imthedev", "config.yaml")

	out, err := executeCommand(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, configFile)
	assert.FileExists(t, configFile)

	_, err = executeCommand(t, "config", "init")
	assert.Error(t, err, "second init must not overwrite")

	out, err = executeCommand(t, "config", "set", "approval.mode", "auto")
	require.NoError(t, err)
	assert.Contains(t, out, "Set approval.mode = auto")

	out, err = executeCommand(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "mode: auto")

	_, err = executeCommand(t, "config", "set", "approval.mode", "sometimes")
	assert.Error(t, err)
	_, err = executeCommand(t, "config", "set", "no.such.key", "1")
	assert.Error(t, err)
	_, err = executeCommand(t, "config", "set", "executor.timeout", "soon")
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		key, value string
		want       any
		wantErr    bool
	}{
		{"executor.watchdog", "true", true, false},
		{"executor.watchdog", "maybe", nil, true},
		{"orchestrator.max_steps", "12", 12, false},
		{"orchestrator.max_steps", "-1", nil, true},
		{"approval.threshold", "0.7", 0.7, false},
		{"executor.timeout", "90s", "1m30s", false},
		{"logging.level", "DEBUG", "debug", false},
		{"planner.backend", "static", "static", false},
		{"planner.backend", "openai", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := parseValue(tt.key, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPatternsCommands(t *testing.T) {
	dir := isolate(t)
	patternsFile := filepath.Join(dir, "patterns.yaml")
	path := writeConfig(t, dir, map[string]any{
		"learning": map[string]any{"patterns_file": patternsFile},
	})

	out, err := executeCommand(t, "patterns", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No patterns stored")

	out, err = executeCommand(t, "patterns", "add", "--config", path,
		"--name", "auth workflow", "--trigger", "auth|login",
		"--command", "/sc:implement auth --with-tests", "--command", "/sc:test auth",
		"--tag", "auth")
	require.NoError(t, err)
	assert.Contains(t, out, "Added pattern")
	assert.FileExists(t, patternsFile)

	out, err = executeCommand(t, "patterns", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "auth workflow")
	assert.Contains(t, out, "/sc:implement auth --with-tests → /sc:test auth")

	_, err = executeCommand(t, "patterns", "add", "--config", path,
		"--name", "bad", "--trigger", "x", "--command", "deploy everything")
	assert.Error(t, err, "commands are validated")

	data, err := os.ReadFile(patternsFile)
	require.NoError(t, err)
	var file struct {
		Patterns []orchestration.Pattern `yaml:"patterns"`
	}
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.Len(t, file.Patterns, 1)

	id := file.Patterns[0].ID
	out, err = executeCommand(t, "patterns", "show", "--config", path, id[:8])
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "auth|login")
	assert.Regexp(t, `Last used:\s+never`, out)
	assert.Contains(t, out, "  1. /sc:implement auth --with-tests\n  2. /sc:test auth\n")

	out, err = executeCommand(t, "patterns", "remove", "--config", path, id[:8])
	require.NoError(t, err)
	assert.Contains(t, out, "Removed pattern "+file.Patterns[0].ID)

	out, err = executeCommand(t, "patterns", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No patterns stored")

	var notFound *errors.NotFoundError
	_, err = executeCommand(t, "patterns", "remove", "--config", path, "nope")
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.ResourceID)

	_, err = executeCommand(t, "patterns", "show", "--config", path, id)
	assert.ErrorIs(t, err, &errors.NotFoundError{})
}

// runConfig writes a config for a full run with the static backend and a
// fake CLI.
func runConfig(t *testing.T, dir string, replies ...string) string {
	t.Helper()
	return writeConfig(t, dir, map[string]any{
		"executor": map[string]any{
			"binary":      testutil.FakeCLI(t, cliScript),
			"working_dir": t.TempDir(),
			"timeout":     "10s",
		},
		"planner": map[string]any{
			"backend":         "static",
			"static_replies":  replies,
			"request_timeout": "0s",
		},
		"approval": map[string]any{"mode": "confidence"},
		"learning": map[string]any{"patterns_file": filepath.Join(dir, "patterns.yaml")},
		"logging":  map[string]any{"dir": filepath.Join(dir, "logs"), "level": "debug"},
	})
}

func TestRunCommand(t *testing.T) {
	dir := isolate(t)
	path := runConfig(t, dir, twoStepPlan, implementProposal, successAnalysis, testProposal, successAnalysis)

	out, err := executeCommand(t, "run", "--config", path, "--yes", "Add user authentication")
	require.NoError(t, err, out)

	assert.Contains(t, out, "Objective: Add user authentication")
	assert.Contains(t, out, "Plan: 2 steps")
	assert.Contains(t, out, "→ /sc:implement auth --with-tests")
	assert.Contains(t, out, "tests: 3 passed, 0 failed")
	assert.Contains(t, out, "Status:   completed")
	assert.Contains(t, out, "2. /sc:test auth")

	// The successful sequence was learned.
	out, err = executeCommand(t, "patterns", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "/sc:implement auth --with-tests → /sc:test auth")

	// And the run was logged.
	out, err = executeCommand(t, "logs", "--config", path, "-n", "0", "--grep", "executing command")
	require.NoError(t, err)
	assert.Contains(t, out, "executing command")
	assert.Contains(t, out, "phase=execution")
}

func TestRunCommand_NeedsTerminalForReview(t *testing.T) {
	dir := isolate(t)
	path := runConfig(t, dir, twoStepPlan)

	_, err := executeCommand(t, "run", "--config", path, "Add user authentication")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interactive terminal")
}

func TestRunCommand_StepLimit(t *testing.T) {
	dir := isolate(t)
	path := runConfig(t, dir, twoStepPlan, implementProposal, successAnalysis, testProposal, successAnalysis)

	out, err := executeCommand(t, "run", "--config", path, "--yes", "--max-steps", "1", "Add user authentication")
	require.ErrorIs(t, err, orchestrator.ErrMaxSteps)
	assert.Contains(t, out, "Status:   failed")
	assert.Contains(t, out, "step limit of 1 reached")
	assert.NotContains(t, out, "retrying may succeed")
}

func TestPrintReport_Retryable(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, palette{}, &orchestrator.Report{
		Status:    orchestration.ObjectiveFailed,
		Reason:    "planning failed",
		Retryable: true,
	})
	assert.Contains(t, buf.String(), "Status:   failed (planning failed) retrying may succeed")
}

func TestExecCommand(t *testing.T) {
	dir := isolate(t)
	path := runConfig(t, dir, twoStepPlan)

	out, err := executeCommand(t, "exec", "--config", path, "/sc:test auth")
	require.NoError(t, err)
	assert.Contains(t, out, "Tests: 3/3 passing (100%)")
	assert.Contains(t, out, "exit 0 in")
	assert.Contains(t, out, "tests: 3 passed, 0 failed, 0 skipped")

	out, err = executeCommand(t, "exec", "--config", path, "--metadata", "-o", "yaml", "/sc:implement auth")
	require.NoError(t, err)
	assert.Contains(t, out, "scf_version: 3.1.0")
	assert.Contains(t, out, "command_type: implement")

	out, err = executeCommand(t, "exec", "--config", path, "/sc:build")
	require.Error(t, err)
	assert.Contains(t, out, "compile error")
	assert.Contains(t, out, "exit 2 in")

	out, err = executeCommand(t, "exec", "--config", path, "build")
	require.Error(t, err)
	assert.Contains(t, out, "Suggested fixes: /sc:build")
}

func TestLogsCommand(t *testing.T) {
	dir := isolate(t)
	logDir := filepath.Join(dir, "logs")
	require.NoError(t, os.MkdirAll(logDir, 0755))
	lines := strings.Join([]string{
		`{"time":"2026-01-02T10:00:00Z","level":"DEBUG","msg":"planning","phase":"planning","objective_id":"abc123456789"}`,
		`{"time":"2026-01-02T10:00:01Z","level":"INFO","msg":"executing command","phase":"execution","objective_id":"abc123456789","command":"/sc:build"}`,
		`{"time":"2026-01-02T10:00:02Z","level":"ERROR","msg":"command failed","phase":"execution","objective_id":"zzz"}`,
		`not json`,
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "imthedev.log"), []byte(lines), 0644))

	out, err := executeCommand(t, "logs", "--dir", logDir, "-n", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "[DEBUG] planning")
	assert.Contains(t, out, "command=/sc:build")
	assert.Contains(t, out, "objective_id=abc12345")
	assert.Contains(t, out, "not json")

	out, err = executeCommand(t, "logs", "--dir", logDir, "--level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "command failed")
	assert.NotContains(t, out, "executing command")

	out, err = executeCommand(t, "logs", "--dir", logDir, "--objective", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "executing command")
	assert.NotContains(t, out, "command failed")

	out, err = executeCommand(t, "logs", "--dir", logDir, "-n", "1")
	require.NoError(t, err)
	assert.Equal(t, "not json\n", out)

	out, err = executeCommand(t, "logs", "--dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No logs found")

	_, err = executeCommand(t, "logs", "--dir", logDir, "--grep", "(")
	assert.Error(t, err)
}

func TestPassesFilters(t *testing.T) {
	entry := &logEntry{Level: "INFO", Msg: "executing command", ObjectiveID: "abc", Extra: map[string]any{"command": "/sc:build"}}

	assert.True(t, passesFilters(entry, logFilter{minLevel: -1}))
	assert.False(t, passesFilters(entry, logFilter{minLevel: levelPriority("WARN")}))
	assert.False(t, passesFilters(entry, logFilter{minLevel: -1, objective: "xyz"}))
}
