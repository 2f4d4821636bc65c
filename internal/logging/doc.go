// Package logging provides structured logging for orchestration runs.
//
// This package wraps Go's log/slog to emit JSON lines. Every entry can carry
// the objective, execution and phase it belongs to, so a single log file can
// be filtered per run after the fact (for example with jq).
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/imthedev", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	objLogger := logger.WithObjective(obj.ID).WithPhase("planning")
//	objLogger.Info("plan generated", "steps", plan.TotalSteps())
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"plan generated","objective_id":"...","phase":"planning","steps":3}
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a
// bytes.Buffer to assert on what was written.
//
// # Log Levels
//
//   - [LevelDebug]: Detailed information for debugging
//   - [LevelInfo]: General operational information (default)
//   - [LevelWarn]: Degraded behavior such as parse fallbacks or slow events
//   - [LevelError]: Error conditions that affect functionality
package logging
