// Package executor runs /sc: commands through the external CLI and turns
// their output into orchestration events.
//
// A command must match the grammar before anything is spawned:
//
//	/sc:<kind> [args...] [--flag ...]
//
// where <kind> is one of [CommandKinds] and every flag is either one of
// [BooleanFlags] or starts with one of [ParameterizedFlags].
//
// [Executor.Execute] strips the /sc: prefix, runs "<binary> <args...>" with
// SCF_ENABLED=1 and returns a [Stream]. Each pulled line is published as an
// OutputStreaming event and scanned for file, test and progress markers
// ([DeriveLine]); the stream accumulates everything into an
// orchestration.ExecutionResult and publishes ExecutionComplete when the
// process exits.
//
// One Executor owns at most one subprocess at a time. Use separate
// executors to run commands concurrently.
package executor
