package executor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/logging"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// OutputLine is one line of subprocess output.
type OutputLine struct {
	// Stream is event.StreamStdout or event.StreamStderr.
	Stream string
	// Text is the decoded line with ANSI sequences removed.
	Text string
	// Offset is the time since the process started.
	Offset time.Duration
}

// Stream is a lazily pulled, single-use sequence of output lines from one
// execution. It is not safe for concurrent use; Executor.Cancel is the way
// to stop an execution from another goroutine.
//
//	s, err := exec.Execute(ctx, "/sc:build", 0)
//	if err != nil { ... }
//	defer s.Close()
//	for s.Next() {
//	    fmt.Println(s.Line().Text)
//	}
//	result, err := s.Result(), s.Err()
type Stream struct {
	exec    *Executor
	proc    *process
	command string
	timeout time.Duration
	start   time.Time
	logger  *logging.Logger

	stopCtx  func() bool
	watchdog *time.Timer

	result   *orchestration.ExecutionResult
	stdout   strings.Builder
	stderr   strings.Builder
	current  OutputLine
	err      error
	finished bool
}

// ExecutionID returns the id shared by every event of this execution.
func (s *Stream) ExecutionID() string {
	return s.proc.id
}

// Next advances to the next output line. It returns false once the process
// has exited or the stream was stopped; Err then reports why.
//
// The timeout is checked each time a line arrives, so without the watchdog
// option a process that stays silent can outlive its timeout.
func (s *Stream) Next() bool {
	if s.finished {
		return false
	}

	for line := range s.proc.lines {
		if s.proc.stopReason() != nil {
			// Stopping: discard what is still buffered.
			continue
		}
		if time.Since(s.start) > s.timeout {
			s.logger.Warn("command exceeded timeout", "timeout", s.timeout.String())
			s.exec.stop(s.proc, s.timeoutError())
			continue
		}
		s.record(line)
		s.current = line
		return true
	}

	s.finish()
	return false
}

// Line returns the line produced by the last successful call to Next.
func (s *Stream) Line() OutputLine {
	return s.current
}

// Err returns the error that ended the stream: a *errors.CancellationError,
// a *errors.TimeoutError or a *errors.ExecutionError. It is nil while lines
// remain, after a zero exit and after Close.
func (s *Stream) Err() error {
	return s.err
}

// Result returns the result aggregated from every streamed line. It is
// complete once Next has returned false.
func (s *Stream) Result() *orchestration.ExecutionResult {
	return s.result
}

// Close stops the execution if it is still running and releases the
// executor. Calling Close on a finished stream is a no-op.
func (s *Stream) Close() error {
	if s.finished {
		return nil
	}
	s.exec.stop(s.proc, errors.ErrStreamClosed)
	for range s.proc.lines {
	}
	s.finish()
	return nil
}

func (s *Stream) timeoutError() *errors.TimeoutError {
	return errors.NewTimeoutError(fmt.Sprintf("executing %s", s.command), s.timeout)
}

// record accumulates line into the result and emits the events derived
// from it.
func (s *Stream) record(line OutputLine) {
	if line.Stream == event.StreamStderr {
		appendLine(&s.stderr, line.Text)
	} else {
		appendLine(&s.stdout, line.Text)
	}

	id, e := s.proc.id, s.exec
	e.emit(event.NewOutputStreamingEvent(id, s.command, line.Stream, line.Text, line.Offset))

	d := DeriveLine(line.Text)
	if d.Created != nil {
		path := d.Created.Path
		if !slices.Contains(s.result.FilesCreated, path) {
			s.result.FilesCreated = append(s.result.FilesCreated, path)
		}
		size, fileType := e.fileInfo(path)
		e.emit(event.NewFileCreatedEvent(id, s.command, path, size, fileType))
	}
	if d.Modified != nil {
		m := d.Modified
		if !slices.Contains(s.result.FilesModified, m.Path) {
			s.result.FilesModified = append(s.result.FilesModified, m.Path)
		}
		e.emit(event.NewFileModifiedEvent(id, s.command, m.Path, m.LinesAdded, m.LinesRemoved, m.LinesModified))
	}
	if d.Tests != nil {
		tr := *d.Tests
		s.result.TestResults = &tr
		e.emit(event.NewTestExecutedEvent(id, s.command, tr.Suite, tr.Passed, tr.Failed, tr.Skipped, tr.Coverage))
	}
	if d.Progress != nil {
		pr := d.Progress
		e.emit(event.NewExecutionProgressEvent(id, s.command, pr.Message, pr.Percentage, pr.Operation))
	}
}

// finish assembles the final result once the process is gone and emits the
// terminal events.
func (s *Stream) finish() {
	s.finished = true
	if s.stopCtx != nil {
		s.stopCtx()
	}
	if s.watchdog != nil {
		s.watchdog.Stop()
	}

	p := s.proc
	p.mu.Lock()
	reason, waitErr, readErr := p.reason, p.waitErr, p.readErr
	p.mu.Unlock()
	s.exec.release(p)

	r := s.result
	r.Stdout = s.stdout.String()
	r.Stderr = s.stderr.String()
	r.ExecutionTime = time.Since(s.start)
	r.Timestamp = time.Now()
	r.ExitCode = exitCode(waitErr)

	id, e := p.id, s.exec
	switch {
	case reason == errors.ErrStreamClosed:
		s.logger.Debug("stream closed before the process exited")

	case reason != nil:
		s.err = reason
		var timeoutErr *errors.TimeoutError
		if errors.As(reason, &timeoutErr) {
			e.emit(event.NewExecutionFailedEvent(id, s.command, reason.Error(), "timeout",
				[]string{"raise the timeout", "split the command into smaller steps"}))
			s.logger.Warn("command timed out", "elapsed", r.ExecutionTime.String())
		} else {
			s.logger.Info("command cancelled", "elapsed", r.ExecutionTime.String())
		}

	case readErr != nil || (waitErr != nil && r.ExitCode < 0):
		cause := readErr
		if cause == nil {
			cause = waitErr
		}
		execErr := errors.NewExecutionError("command output could not be collected", cause).
			WithExecutionID(id).WithCommand(s.command).WithExitCode(r.ExitCode).WithKind("transport")
		s.err = execErr
		e.emit(event.NewExecutionFailedEvent(id, s.command, execErr.Error(), execErr.Kind, nil))
		s.logger.Error("command transport failed", "error", cause.Error())

	default:
		md := e.ExtractMetadata(id, s.command, r.Stdout)
		r.Metadata["scf"] = md
		e.emit(event.NewExecutionCompleteEvent(id, s.command, r.ExitCode, r.Stdout, r.Stderr,
			r.ExecutionTime, r.FilesCreated, r.FilesModified))

		if r.ExitCode != 0 {
			execErr := errors.NewExecutionError(fmt.Sprintf("command exited with status %d", r.ExitCode), nil).
				WithExecutionID(id).WithCommand(s.command).WithExitCode(r.ExitCode).WithKind("exit")
			s.err = execErr
			e.emit(event.NewExecutionFailedEvent(id, s.command, execErr.Error(), execErr.Kind, nil))
		}
		s.logger.Info("command completed",
			"exit_code", r.ExitCode,
			"elapsed", r.ExecutionTime.String(),
			"files_created", len(r.FilesCreated),
			"files_modified", len(r.FilesModified))
	}
}

// exitCode maps a Wait error to a process exit code: 0 on success, the
// status on a normal non-zero exit, -1 when killed or not waited on.
func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func appendLine(b *strings.Builder, line string) {
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(line)
}

// fileInfo returns the size and extension of a reported path, resolved
// against the working directory. Missing files report size 0.
func (e *Executor) fileInfo(path string) (int64, string) {
	fileType := strings.TrimPrefix(filepath.Ext(path), ".")
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.workingDir(), path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fileType
	}
	return info.Size(), fileType
}
