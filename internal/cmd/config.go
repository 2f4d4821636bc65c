package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Custos/imthedev-sub000/internal/config"
	"github.com/Custos/imthedev-sub000/internal/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify imthedev configuration",
	Long: `View or modify imthedev configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  imthedev config set approval.mode manual
  imthedev config set executor.timeout 10m
  imthedev config set planner.backend cli

Run 'imthedev config keys' to list every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the keys accepted by config set",
	RunE:  runConfigKeys,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/imthedev/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// Value kinds accepted by config set.
const (
	kindString   = "string"
	kindBool     = "bool"
	kindInt      = "int"
	kindFloat    = "float"
	kindDuration = "duration"
)

// settableKeys maps each key accepted by config set to its value kind.
var settableKeys = map[string]string{
	"executor.binary":         kindString,
	"executor.working_dir":    kindString,
	"executor.timeout":        kindDuration,
	"executor.grace_period":   kindDuration,
	"executor.watchdog":       kindBool,
	"planner.backend":         kindString,
	"planner.model":           kindString,
	"planner.api_key_env":     kindString,
	"planner.cli_command":     kindString,
	"planner.request_timeout": kindDuration,
	"approval.mode":           kindString,
	"approval.threshold":      kindFloat,
	"learning.patterns_file":  kindString,
	"learning.watch":          kindBool,
	"logging.level":           kindString,
	"logging.dir":             kindString,
	"telemetry.metrics_addr":  kindString,
	"orchestrator.max_steps":  kindInt,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// parseValue converts value to the kind registered for key and checks
// enumerated keys against their allowed values.
func parseValue(key, value string) (any, error) {
	kind, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'imthedev config keys' to see valid keys", key)
	}

	switch kind {
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected a number", key)
		}
		return f, nil
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected a duration such as 30s or 5m", key)
		}
		return d.String(), nil
	}

	var valid []string
	switch key {
	case "approval.mode":
		valid = config.ValidApprovalModes()
	case "planner.backend":
		valid = config.ValidBackends()
	case "logging.level":
		valid = config.ValidLogLevels()
		value = strings.ToLower(value)
	}
	if valid != nil && !slices.Contains(valid, value) {
		return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s", key, value, strings.Join(valid, ", "))
	}
	return value, nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	typedValue, err := parseValue(key, args[1])
	if err != nil {
		return err
	}

	// Write to the active config file, or create the default one
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		return err
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

func runConfigKeys(cmd *cobra.Command, args []string) error {
	keys := make([]string, 0, len(settableKeys))
	for k := range settableKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := cmd.OutOrStdout()
	for _, k := range keys {
		fmt.Fprintf(out, "%-26s %s\n", k, settableKeys[k])
	}
	return nil
}

const defaultConfigContent = `# imthedev configuration

# How /sc: commands are run
executor:
  # CLI invoked with the command arguments, e.g. "claude implement auth"
  binary: claude
  # Subprocess working directory (empty: current directory)
  working_dir: ""
  # Upper bound for one command
  timeout: 5m
  # Time between SIGTERM and SIGKILL when stopping a command
  grace_period: 5s
  # Enforce the timeout even while a command prints nothing
  watchdog: false

# Model used to plan, propose and analyze
planner:
  # Options: gemini, cli, static
  backend: gemini
  model: gemini-2.5-flash
  # Environment variable holding the Gemini API key
  api_key_env: GEMINI_API_KEY
  # Program used by the cli backend; the prompt is written to its stdin
  cli_command: gemini
  request_timeout: 2m

# Which proposals run without asking
approval:
  # Options: auto, confidence, manual
  mode: confidence
  # Confidence at or above which the confidence mode approves
  threshold: 0.8

# Pattern library
learning:
  # Empty: patterns.yaml next to this file
  patterns_file: ""
  # Reload the library when the file changes
  watch: false

logging:
  # Options: debug, info, warn, error
  level: info
  # Directory for imthedev.log (empty: warnings to stderr only)
  dir: ""

telemetry:
  # Prometheus listen address, e.g. ":9464" (empty: disabled)
  metrics_addr: ""

orchestrator:
  # Commands per objective, recovery attempts included
  max_steps: 20
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'imthedev config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize imthedev's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", configFile)
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_APPROVAL_MODE)\n", config.EnvPrefix, config.EnvPrefix)
	fmt.Fprintf(out, "Log file: %s inside logging.dir\n", logging.LogFileName)
	return nil
}
