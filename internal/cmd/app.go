package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/Custos/imthedev-sub000/internal/ai"
	"github.com/Custos/imthedev-sub000/internal/approval"
	"github.com/Custos/imthedev-sub000/internal/config"
	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/executor"
	"github.com/Custos/imthedev-sub000/internal/learning"
	"github.com/Custos/imthedev-sub000/internal/logging"
	"github.com/Custos/imthedev-sub000/internal/orchestrator"
	"github.com/Custos/imthedev-sub000/internal/planner"
	"github.com/Custos/imthedev-sub000/internal/telemetry"
)

// closeTimeout bounds how long close waits for queued events.
const closeTimeout = 5 * time.Second

// app holds the components of one orchestration session, built from config.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *event.Bus
	executor *executor.Executor
	library  *learning.Library
	loop     *learning.FeedbackLoop
	gate     *approval.Gate
	recorder *telemetry.Recorder
	server   *telemetry.Server
	orch     *orchestrator.Orchestrator

	stopWatch context.CancelFunc
}

// appOptions carries command-line overrides and the prompt streams.
type appOptions struct {
	autoApprove bool
	maxSteps    int
	in          io.Reader
	out         io.Writer
}

// newLogger opens the configured log file, or logs warnings and errors to
// stderr when no log directory is set.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if cfg.Logging.Dir == "" {
		return logging.NewWriterLogger(os.Stderr, logging.LevelWarn), nil
	}
	return logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
}

// newApp wires every component. Call close when done.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open log")
	}

	a := &app{cfg: cfg, logger: logger}
	a.bus = event.NewBus(event.WithLogger(logger.WithPhase("bus")))

	if err := a.wire(ctx, opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, opts appOptions) error {
	cfg := a.cfg

	a.executor = executor.New(a.bus, executor.Options{
		Binary:      cfg.Executor.Binary,
		WorkingDir:  cfg.Executor.WorkingDir,
		Env:         cfg.Executor.Env,
		Timeout:     cfg.Executor.Timeout,
		GracePeriod: cfg.Executor.GracePeriod,
		Watchdog:    cfg.Executor.Watchdog,
		Logger:      a.logger.WithPhase("execution"),
	})

	a.library = learning.NewLibrary(cfg.Learning.PatternsPath(),
		learning.WithLibraryLogger(a.logger.WithPhase("learning")))
	if err := a.library.Load(); err != nil {
		return errors.Wrap(err, "failed to load pattern library")
	}
	if cfg.Learning.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		a.stopWatch = cancel
		go func() {
			if err := a.library.Watch(watchCtx); err != nil {
				a.logger.Warn("pattern library watch disabled", "error", err.Error())
			}
		}()
	}

	a.loop = learning.NewFeedbackLoop(a.bus, a.library,
		learning.WithLoopLogger(a.logger.WithPhase("feedback")))
	a.loop.Start()

	backend, err := ai.NewFromConfig(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create planner backend")
	}
	coord := planner.New(backend, a.bus,
		planner.WithPatterns(a.library),
		planner.WithLogger(a.logger.WithPhase("planning")),
	)
	a.logger.Info("planner backend ready", "backend", string(backend.Name()))

	mode := approval.Mode(cfg.Approval.Mode)
	if opts.autoApprove {
		mode = approval.ModeAuto
	}
	a.gate, err = approval.NewGate(mode, a.bus,
		approval.WithThreshold(cfg.Approval.Threshold),
		approval.WithPrompter(approval.NewTerminalPrompter(opts.in, opts.out)),
		approval.WithLogger(a.logger.WithPhase("approval")),
	)
	if err != nil {
		return err
	}

	reg, metrics := telemetry.NewRegistry(a.bus)
	a.recorder = telemetry.NewRecorder(a.bus, metrics, telemetry.WithLogger(a.logger))
	a.recorder.Start()
	if cfg.Telemetry.MetricsAddr != "" {
		a.server = telemetry.NewServer(cfg.Telemetry.MetricsAddr, reg, a.logger.WithPhase("telemetry"))
		if err := a.server.Start(); err != nil {
			a.server = nil
			return err
		}
	}

	maxSteps := cfg.Orchestrator.MaxSteps
	if opts.maxSteps > 0 {
		maxSteps = opts.maxSteps
	}
	a.orch = orchestrator.New(coord, a.executor, a.gate, a.bus,
		orchestrator.WithMaxSteps(maxSteps),
		orchestrator.WithStepTimeout(cfg.Executor.Timeout),
		orchestrator.WithObserver(a.loop),
		orchestrator.WithLogger(a.logger.WithPhase("orchestrator")),
	)
	return nil
}

// close waits for queued events, then releases everything newApp opened.
func (a *app) close() {
	if a.bus != nil {
		waitCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := a.bus.Wait(waitCtx); err != nil {
			a.logger.Warn("event queue not drained", "error", err.Error())
		}
		cancel()
	}
	if a.server != nil {
		if err := a.server.Shutdown(context.Background()); err != nil {
			a.logger.Warn("metrics server shutdown failed", "error", err.Error())
		}
	}
	if a.recorder != nil {
		a.recorder.Stop()
	}
	if a.loop != nil {
		a.loop.Stop()
	}
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if a.library != nil && a.library.Path() != "" && a.library.Len() > 0 {
		if err := a.library.Save(); err != nil {
			a.logger.Warn("failed to save pattern library", "error", err.Error())
		}
	}
	if a.bus != nil {
		a.bus.Close()
	}
	_ = a.logger.Close()
}
