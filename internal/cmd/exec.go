package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Custos/imthedev-sub000/internal/config"
	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/executor"
)

var execCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Run a single /sc: command without planning",
	Long: `Exec validates and runs one /sc: command with the configured executor,
streaming its output as it arrives. The exit status of the command becomes
the exit status of imthedev.

Examples:
  imthedev exec "/sc:analyze src --think"
  imthedev exec "/sc:test auth" --timeout 2m --metadata`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

var (
	execTimeout  time.Duration
	execMetadata bool
	execFormat   string
)

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "Override executor.timeout")
	execCmd.Flags().BoolVar(&execMetadata, "metadata", false, "Print the metadata found in the output")
	execCmd.Flags().StringVarP(&execFormat, "output", "o", formatJSON, "Metadata format (json/yaml)")
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	command := strings.Join(args, " ")

	if err := executor.Validate(command); err != nil {
		if fixes := executor.SuggestFixes(command); len(fixes) > 0 {
			fmt.Fprintf(out, "Suggested fixes: %s\n", strings.Join(fixes, ", "))
		}
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	bus := event.NewBus(event.WithLogger(logger.WithPhase("bus")))
	defer bus.Close()

	exec := executor.New(bus, executor.Options{
		Binary:      cfg.Executor.Binary,
		WorkingDir:  cfg.Executor.WorkingDir,
		Env:         cfg.Executor.Env,
		Timeout:     cfg.Executor.Timeout,
		GracePeriod: cfg.Executor.GracePeriod,
		Watchdog:    cfg.Executor.Watchdog,
		Logger:      logger.WithPhase("execution"),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := exec.Execute(ctx, command, execTimeout)
	if err != nil {
		return err
	}
	defer stream.Close()

	styles := newPalette(out)
	for stream.Next() {
		line := stream.Line()
		if line.Stream == event.StreamStderr {
			fmt.Fprintln(out, styles.warn.Render(line.Text))
			continue
		}
		fmt.Fprintln(out, line.Text)
	}

	result := stream.Result()
	fmt.Fprintln(out)
	summary := fmt.Sprintf("exit %d in %s", result.ExitCode, result.ExecutionTime.Round(10*time.Millisecond))
	if result.Success() {
		fmt.Fprintln(out, styles.ok.Render(summary))
	} else {
		fmt.Fprintln(out, styles.err.Render(summary))
	}
	if n := result.FileChangesCount(); n > 0 {
		fmt.Fprintf(out, "files: %d created, %d modified\n", len(result.FilesCreated), len(result.FilesModified))
	}
	if tr := result.TestResults; tr != nil {
		fmt.Fprintf(out, "tests: %d passed, %d failed, %d skipped\n", tr.Passed, tr.Failed, tr.Skipped)
	}

	if execMetadata {
		md := exec.ExtractMetadata(stream.ExecutionID(), command, result.Stdout)
		if err := writeFormatted(out, execFormat, md); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return errors.Wrapf(err, "%s", command)
	}
	return nil
}
