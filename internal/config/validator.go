package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "executor.timeout")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Upper bounds that catch unit mistakes such as "timeout: 300" read as nanoseconds
// or a runaway max_steps.
const (
	maxExecutorTimeout = 24 * time.Hour
	maxGracePeriod     = 5 * time.Minute
	maxSteps           = 1000
)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateExecutor()...)
	errors = append(errors, c.validatePlanner()...)
	errors = append(errors, c.validateApproval()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateTelemetry()...)
	errors = append(errors, c.validateOrchestrator()...)

	return errors
}

// validateExecutor validates the ExecutorConfig
func (c *Config) validateExecutor() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Executor.Binary) == "" {
		errors = append(errors, ValidationError{
			Field:   "executor.binary",
			Value:   c.Executor.Binary,
			Message: "must not be empty",
		})
	}

	if c.Executor.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "executor.timeout",
			Value:   c.Executor.Timeout,
			Message: "must be positive",
		})
	} else if c.Executor.Timeout < time.Second {
		errors = append(errors, ValidationError{
			Field:   "executor.timeout",
			Value:   c.Executor.Timeout,
			Message: "must be at least 1s (use a unit such as 300s or 5m)",
		})
	} else if c.Executor.Timeout > maxExecutorTimeout {
		errors = append(errors, ValidationError{
			Field:   "executor.timeout",
			Value:   c.Executor.Timeout,
			Message: fmt.Sprintf("exceeds maximum of %s", maxExecutorTimeout),
		})
	}

	if c.Executor.GracePeriod < 0 {
		errors = append(errors, ValidationError{
			Field:   "executor.grace_period",
			Value:   c.Executor.GracePeriod,
			Message: "must be non-negative",
		})
	} else if c.Executor.GracePeriod > maxGracePeriod {
		errors = append(errors, ValidationError{
			Field:   "executor.grace_period",
			Value:   c.Executor.GracePeriod,
			Message: fmt.Sprintf("exceeds maximum of %s", maxGracePeriod),
		})
	}

	for key := range c.Executor.Env {
		if key == "" || strings.ContainsAny(key, "= ") {
			errors = append(errors, ValidationError{
				Field:   "executor.env",
				Value:   key,
				Message: "variable names must be non-empty and contain no '=' or spaces",
			})
		}
	}

	return errors
}

// validatePlanner validates the PlannerConfig
func (c *Config) validatePlanner() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidBackends(), c.Planner.Backend) {
		errors = append(errors, ValidationError{
			Field:   "planner.backend",
			Value:   c.Planner.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}

	switch c.Planner.Backend {
	case BackendGemini:
		if c.Planner.Model == "" {
			errors = append(errors, ValidationError{
				Field:   "planner.model",
				Value:   c.Planner.Model,
				Message: "is required for the gemini backend",
			})
		}
		if c.Planner.APIKeyEnv == "" {
			errors = append(errors, ValidationError{
				Field:   "planner.api_key_env",
				Value:   c.Planner.APIKeyEnv,
				Message: "is required for the gemini backend",
			})
		}
	case BackendCLI:
		if strings.TrimSpace(c.Planner.CLICommand) == "" {
			errors = append(errors, ValidationError{
				Field:   "planner.cli_command",
				Value:   c.Planner.CLICommand,
				Message: "is required for the cli backend",
			})
		}
	case BackendStatic:
		if len(c.Planner.StaticReplies) == 0 {
			errors = append(errors, ValidationError{
				Field:   "planner.static_replies",
				Value:   c.Planner.StaticReplies,
				Message: "must contain at least one reply for the static backend",
			})
		}
	}

	if c.Planner.RequestTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "planner.request_timeout",
			Value:   c.Planner.RequestTimeout,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateApproval validates the ApprovalConfig
func (c *Config) validateApproval() []ValidationError {
	var errors []ValidationError

	if !IsValidApprovalMode(c.Approval.Mode) {
		errors = append(errors, ValidationError{
			Field:   "approval.mode",
			Value:   c.Approval.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidApprovalModes(), ", ")),
		})
	}

	if c.Approval.Threshold < 0 || c.Approval.Threshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "approval.threshold",
			Value:   c.Approval.Threshold,
			Message: "must be between 0 and 1",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

// validateTelemetry validates the TelemetryConfig
func (c *Config) validateTelemetry() []ValidationError {
	var errors []ValidationError

	if addr := c.Telemetry.MetricsAddr; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errors = append(errors, ValidationError{
				Field:   "telemetry.metrics_addr",
				Value:   addr,
				Message: "must be a host:port listen address",
			})
		}
	}

	return errors
}

// validateOrchestrator validates the OrchestratorConfig
func (c *Config) validateOrchestrator() []ValidationError {
	var errors []ValidationError

	if c.Orchestrator.MaxSteps < 1 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_steps",
			Value:   c.Orchestrator.MaxSteps,
			Message: "must be at least 1",
		})
	} else if c.Orchestrator.MaxSteps > maxSteps {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_steps",
			Value:   c.Orchestrator.MaxSteps,
			Message: fmt.Sprintf("exceeds maximum of %d", maxSteps),
		})
	}

	return errors
}
