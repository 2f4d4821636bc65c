package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/logging"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// Defaults applied by New when the corresponding option is zero.
const (
	DefaultBinary      = "claude"
	DefaultTimeout     = 300 * time.Second
	DefaultGracePeriod = 5 * time.Second
)

// EnableEnv is the environment marker that switches the downstream tool
// into its enhanced-output mode.
const EnableEnv = "SCF_ENABLED=1"

// maxLineSize bounds a single output line.
const maxLineSize = 1024 * 1024

// Options configures an Executor.
type Options struct {
	// Binary is the CLI invoked for every command.
	Binary string
	// WorkingDir is the subprocess working directory; empty means the
	// current directory.
	WorkingDir string
	// Env holds extra environment variables on top of the inherited ones.
	Env map[string]string
	// Timeout is used when Execute is called with a zero timeout.
	Timeout time.Duration
	// GracePeriod is how long a terminated process may take to exit before
	// it is killed.
	GracePeriod time.Duration
	// Watchdog enforces the timeout with a timer even while the process is
	// silent. Without it the timeout is checked once per output line.
	Watchdog bool
	Logger   *logging.Logger
}

// Executor validates commands and runs them as subprocesses, one at a time.
type Executor struct {
	opts   Options
	bus    *event.Bus
	logger *logging.Logger

	mu     sync.Mutex
	active *process
}

// New creates an Executor. The bus may be nil, in which case no events are
// emitted.
func New(bus *event.Bus, opts Options) *Executor {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{
		opts:   opts,
		bus:    bus,
		logger: logger.With("component", "executor"),
	}
}

// Running reports whether a subprocess is currently owned by the executor.
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Execute validates command and starts it, returning a stream of its output.
// A zero timeout selects the configured default. Invalid commands are
// rejected with a *errors.ValidationError before anything is spawned.
func (e *Executor) Execute(ctx context.Context, command string, timeout time.Duration) (*Stream, error) {
	if err := Validate(command); err != nil {
		e.logger.Warn("command rejected", "command", command, "error", err.Error())
		return nil, err
	}
	args, err := splitArgs(stripPrefix(command))
	if err != nil {
		return nil, errors.NewValidationError("command cannot be tokenized").
			WithField("command").WithValue(command).WithCause(err)
	}
	if timeout <= 0 {
		timeout = e.opts.Timeout
	}

	p := &process{
		id:    uuid.NewString(),
		lines: make(chan OutputLine, 64),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	e.mu.Lock()
	if e.active != nil {
		e.mu.Unlock()
		return nil, errors.ErrExecutionInProgress
	}
	e.active = p
	e.mu.Unlock()

	logger := e.logger.WithExecution(p.id)
	e.emit(event.NewExecutionStartedEvent(p.id, command, e.workingDir(), e.envSnapshot(), timeout))
	logger.Info("executing command", "command", command, "timeout", timeout.String())

	if err := e.spawn(p, args); err != nil {
		close(p.lines)
		close(p.done)
		e.release(p)
		execErr := errors.NewExecutionError("failed to start command", err).
			WithExecutionID(p.id).WithCommand(command).WithKind("transport")
		e.emit(event.NewExecutionFailedEvent(p.id, command, execErr.Error(), execErr.Kind, spawnSuggestions(e.opts.Binary)))
		logger.Error("command failed to start", "error", err.Error())
		return nil, execErr
	}

	s := &Stream{
		exec:    e,
		proc:    p,
		command: command,
		timeout: timeout,
		start:   p.started,
		logger:  logger,
		result: &orchestration.ExecutionResult{
			ExecutionID: p.id,
			Command:     command,
			ExitCode:    -1,
			Metadata:    make(map[string]any),
		},
	}

	s.stopCtx = context.AfterFunc(ctx, func() {
		e.stop(p, errors.NewCancellationError("execution cancelled", ctx.Err()).WithExecutionID(p.id))
	})
	if e.opts.Watchdog {
		s.watchdog = time.AfterFunc(timeout, func() {
			e.stop(p, s.timeoutError())
		})
	}
	return s, nil
}

// Run executes command and drains its output, returning the aggregated
// result. The result is non-nil whenever the process was started, even when
// an error is returned.
func (e *Executor) Run(ctx context.Context, command string, timeout time.Duration) (*orchestration.ExecutionResult, error) {
	s, err := e.Execute(ctx, command, timeout)
	if err != nil {
		return nil, err
	}
	for s.Next() {
	}
	return s.Result(), s.Err()
}

// Cancel terminates the running subprocess, if any: SIGTERM first, then a
// kill once the grace period has passed. It is a no-op when nothing runs.
func (e *Executor) Cancel() error {
	e.mu.Lock()
	p := e.active
	e.mu.Unlock()
	if p == nil {
		return nil
	}

	e.logger.Info("cancelling execution", "execution_id", p.id)
	e.stop(p, errors.NewCancellationError("execution cancelled", nil).WithExecutionID(p.id))
	return nil
}

// process tracks one running subprocess.
type process struct {
	id      string
	cmd     *exec.Cmd
	started time.Time

	lines chan OutputLine
	// quit is closed when the stream stops consuming output.
	quit chan struct{}
	// done is closed once the process has been reaped and lines is closed.
	done chan struct{}

	mu      sync.Mutex
	reason  error
	waitErr error
	readErr error
}

// requestStop records why the process is being stopped and releases the
// readers. Only the first reason is kept.
func (p *process) requestStop(reason error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reason != nil {
		return false
	}
	p.reason = reason
	close(p.quit)
	return true
}

func (p *process) command() *exec.Cmd {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd
}

func (p *process) stopReason() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

func (p *process) setReadErr(err error) {
	p.mu.Lock()
	if p.readErr == nil {
		p.readErr = err
	}
	p.mu.Unlock()
}

func (e *Executor) spawn(p *process, args []string) error {
	cmd := exec.Command(e.opts.Binary, args...)
	cmd.Dir = e.opts.WorkingDir
	cmd.Env = append(os.Environ(), EnableEnv)
	for _, k := range sortedKeys(e.opts.Env) {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, e.opts.Env[k]))
	}
	configureProcess(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.started = time.Now()
	stopped := p.reason != nil
	p.mu.Unlock()

	var readers sync.WaitGroup
	readers.Add(2)
	go e.readLines(p, stdout, event.StreamStdout, &readers)
	go e.readLines(p, stderr, event.StreamStderr, &readers)
	go func() {
		// Wait must not run before the pipes have been read to completion.
		readers.Wait()
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.lines)
		close(p.done)
	}()

	// Cancel may have been called while the process was starting.
	if stopped {
		_ = signalTerminate(cmd)
	}
	return nil
}

// readLines decodes r as UTF-8, replacing invalid bytes, strips ANSI
// sequences and forwards each line until EOF or until the stream stops.
func (e *Executor) readLines(p *process, r io.Reader, stream string, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(transform.NewReader(r, unicode.UTF8.NewDecoder()))
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := OutputLine{
			Stream: stream,
			Text:   ansi.Strip(scanner.Text()),
			Offset: time.Since(p.started),
		}
		select {
		case p.lines <- line:
		case <-p.quit:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-p.quit:
		default:
			p.setReadErr(fmt.Errorf("reading %s: %w", stream, err))
		}
	}
}

// stop records reason and terminates p: SIGTERM, then a kill once the
// grace period has passed. It returns when the process is gone.
func (e *Executor) stop(p *process, reason error) {
	p.requestStop(reason)

	select {
	case <-p.done:
		return
	default:
	}

	logger := e.logger.WithExecution(p.id)
	cmd := p.command()
	if err := signalTerminate(cmd); err != nil {
		logger.Debug("terminate signal failed", "error", err.Error())
	}

	select {
	case <-p.done:
		return
	case <-time.After(e.opts.GracePeriod):
	}

	logger.Warn("process did not exit after SIGTERM, killing", "grace_period", e.opts.GracePeriod.String())
	if err := forceKill(cmd); err != nil {
		logger.Debug("kill failed", "error", err.Error())
	}
	<-p.done
}

func (e *Executor) release(p *process) {
	e.mu.Lock()
	if e.active == p {
		e.active = nil
	}
	e.mu.Unlock()
}

func (e *Executor) emit(ev event.Event) {
	if e.bus != nil {
		e.bus.Emit(ev)
	}
}

func (e *Executor) workingDir() string {
	if e.opts.WorkingDir != "" {
		return e.opts.WorkingDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// envSnapshot lists the variables the executor adds to the inherited
// environment. The inherited environment itself is not published.
func (e *Executor) envSnapshot() map[string]string {
	env := map[string]string{"SCF_ENABLED": "1"}
	for k, v := range e.opts.Env {
		env[k] = v
	}
	return env
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func spawnSuggestions(binary string) []string {
	return []string{
		fmt.Sprintf("check that %q is installed and on PATH", binary),
		"check the configured working directory exists",
	}
}
