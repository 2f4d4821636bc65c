package config

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. IMTHEDEV_EXECUTOR_TIMEOUT.
const EnvPrefix = "IMTHEDEV"

// Config represents the complete imthedev configuration
type Config struct {
	Executor     ExecutorConfig     `mapstructure:"executor" yaml:"executor"`
	Planner      PlannerConfig      `mapstructure:"planner" yaml:"planner"`
	Approval     ApprovalConfig     `mapstructure:"approval" yaml:"approval"`
	Learning     LearningConfig     `mapstructure:"learning" yaml:"learning"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry" yaml:"telemetry"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
}

// ExecutorConfig controls how /sc: commands are run
type ExecutorConfig struct {
	// Binary is the CLI invoked with the command arguments (default: "claude")
	Binary string `mapstructure:"binary" yaml:"binary"`
	// WorkingDir is the subprocess working directory. Empty uses the current directory.
	WorkingDir string `mapstructure:"working_dir" yaml:"working_dir"`
	// Timeout bounds one execution (default: 5m)
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// GracePeriod is how long a terminated process may take to exit before it is killed (default: 5s)
	GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
	// Watchdog enforces Timeout on silent processes too. Without it the
	// timeout is only checked when a line of output arrives.
	Watchdog bool `mapstructure:"watchdog" yaml:"watchdog"`
	// Env holds extra environment variables for the subprocess
	Env map[string]string `mapstructure:"env" yaml:"env"`
}

// PlannerConfig selects and configures the completion backend
type PlannerConfig struct {
	// Backend is one of "gemini", "cli" or "static" (default: "gemini")
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Model is the Gemini model name
	Model string `mapstructure:"model" yaml:"model"`
	// APIKeyEnv names the environment variable holding the Gemini API key
	APIKeyEnv string `mapstructure:"api_key_env" yaml:"api_key_env"`
	// CLICommand is the program used by the "cli" backend; the prompt is written to its stdin
	CLICommand string `mapstructure:"cli_command" yaml:"cli_command"`
	// CLIArgs are passed to CLICommand
	CLIArgs []string `mapstructure:"cli_args" yaml:"cli_args"`
	// StaticReplies are returned in order by the "static" backend
	StaticReplies []string `mapstructure:"static_replies" yaml:"static_replies"`
	// RequestTimeout bounds one completion request (default: 2m, 0 disables)
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// ApprovalConfig controls which proposals run without asking
type ApprovalConfig struct {
	// Mode is "auto", "confidence" or "manual" (default: "confidence")
	Mode string `mapstructure:"mode" yaml:"mode"`
	// Threshold is the confidence at or above which "confidence" mode approves (default: 0.8)
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
}

// LearningConfig controls the pattern library
type LearningConfig struct {
	// PatternsFile is the YAML pattern library. Empty uses patterns.yaml in the config directory.
	PatternsFile string `mapstructure:"patterns_file" yaml:"patterns_file"`
	// Watch reloads the library when the file changes on disk
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where imthedev.log is written. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// TelemetryConfig controls the Prometheus endpoint
type TelemetryConfig struct {
	// MetricsAddr is the listen address for /metrics, e.g. ":9464". Empty disables serving.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// OrchestratorConfig bounds an orchestration run
type OrchestratorConfig struct {
	// MaxSteps caps the number of executed commands per objective (default: 20)
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
}

// Planner backends
const (
	BackendGemini = "gemini"
	BackendCLI    = "cli"
	BackendStatic = "static"
)

// Approval modes
const (
	ApprovalAuto       = "auto"
	ApprovalConfidence = "confidence"
	ApprovalManual     = "manual"
)

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Executor: ExecutorConfig{
			Binary:      "claude",
			Timeout:     5 * time.Minute,
			GracePeriod: 5 * time.Second,
		},
		Planner: PlannerConfig{
			Backend:        BackendGemini,
			Model:          "gemini-2.5-flash",
			APIKeyEnv:      "GEMINI_API_KEY",
			CLICommand:     "gemini",
			RequestTimeout: 2 * time.Minute,
		},
		Approval: ApprovalConfig{
			Mode:      ApprovalConfidence,
			Threshold: 0.8,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Orchestrator: OrchestratorConfig{
			MaxSteps: 20,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Executor defaults
	viper.SetDefault("executor.binary", defaults.Executor.Binary)
	viper.SetDefault("executor.working_dir", defaults.Executor.WorkingDir)
	viper.SetDefault("executor.timeout", defaults.Executor.Timeout)
	viper.SetDefault("executor.grace_period", defaults.Executor.GracePeriod)
	viper.SetDefault("executor.watchdog", defaults.Executor.Watchdog)

	// Planner defaults
	viper.SetDefault("planner.backend", defaults.Planner.Backend)
	viper.SetDefault("planner.model", defaults.Planner.Model)
	viper.SetDefault("planner.api_key_env", defaults.Planner.APIKeyEnv)
	viper.SetDefault("planner.cli_command", defaults.Planner.CLICommand)
	viper.SetDefault("planner.cli_args", defaults.Planner.CLIArgs)
	viper.SetDefault("planner.request_timeout", defaults.Planner.RequestTimeout)

	// Approval defaults
	viper.SetDefault("approval.mode", defaults.Approval.Mode)
	viper.SetDefault("approval.threshold", defaults.Approval.Threshold)

	// Learning defaults
	viper.SetDefault("learning.patterns_file", defaults.Learning.PatternsFile)
	viper.SetDefault("learning.watch", defaults.Learning.Watch)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Telemetry defaults
	viper.SetDefault("telemetry.metrics_addr", defaults.Telemetry.MetricsAddr)

	// Orchestrator defaults
	viper.SetDefault("orchestrator.max_steps", defaults.Orchestrator.MaxSteps)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "imthedev")
	}
	// Fall back to ~/.config/imthedev
	home, err := os.UserHomeDir()
	if err != nil {
		return ".imthedev"
	}
	return filepath.Join(home, ".config", "imthedev")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// PatternsPath returns the configured pattern library path, defaulting to
// patterns.yaml next to the config file.
func (c *LearningConfig) PatternsPath() string {
	if c.PatternsFile != "" {
		return c.PatternsFile
	}
	return filepath.Join(ConfigDir(), "patterns.yaml")
}

// ValidBackends returns the list of valid planner backends
func ValidBackends() []string {
	return []string{BackendGemini, BackendCLI, BackendStatic}
}

// ValidApprovalModes returns the list of valid approval modes
func ValidApprovalModes() []string {
	return []string{ApprovalAuto, ApprovalConfidence, ApprovalManual}
}

// IsValidApprovalMode checks if the given mode is valid
func IsValidApprovalMode(mode string) bool {
	return slices.Contains(ValidApprovalModes(), mode)
}
