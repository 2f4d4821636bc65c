package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Custos/imthedev-sub000/internal/config"
	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
	"github.com/Custos/imthedev-sub000/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run <objective>",
	Short: "Pursue an objective with /sc: commands",
	Long: `Run plans the objective, then proposes, approves, executes and analyzes
one /sc: command at a time until the objective is complete.

Approval follows approval.mode from the config:
  auto        every proposal runs
  confidence  proposals below approval.threshold are shown for review
  manual      every proposal is shown for review

Reviews need an interactive terminal. Use --yes to approve everything.

Examples:
  imthedev run "Add user authentication with JWT"
  imthedev run "Fix the flaky login test" --criteria "all tests pass" --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runCriteria []string
	runYes      bool
	runMaxSteps int
	runVerbose  bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayVar(&runCriteria, "criteria", nil, "Success criterion (repeatable)")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Approve every proposed command")
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", 0, "Override orchestrator.max_steps")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Show command output and approvals")
}

// errObjectiveNotCompleted is returned when a run ends in any status other
// than completed, so the process exits non-zero.
var errObjectiveNotCompleted = errors.New("objective not completed")

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()
	if !runYes && cfg.Approval.Mode != config.ApprovalAuto && !isTerminal(in) {
		return fmt.Errorf("approval mode %q needs an interactive terminal; pass --yes or set approval.mode to auto", cfg.Approval.Mode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{
		autoApprove: runYes,
		maxSteps:    runMaxSteps,
		in:          in,
		out:         out,
	})
	if err != nil {
		return err
	}
	defer a.close()

	printer := newEventPrinter(out, runVerbose)
	subID := printer.subscribe(a.bus)
	defer a.bus.Unsubscribe(subID)

	obj := orchestration.NewObjective(strings.Join(args, " "), runCriteria...)
	report, runErr := a.orch.Run(ctx, obj)

	// Let queued events print before the summary.
	_ = a.bus.Wait(context.Background())

	if report != nil {
		printReport(out, printer.styles, report)
	}
	if runErr != nil && !errors.Is(runErr, orchestrator.ErrCommandRejected) && !errors.IsCancellation(runErr) {
		return runErr
	}
	if report == nil || report.Status != orchestration.ObjectiveCompleted {
		return errObjectiveNotCompleted
	}
	return nil
}

// printReport writes the run summary.
func printReport(w io.Writer, s palette, r *orchestrator.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, s.title.Render("Summary"))
	status := statusStyle(s, r.Status).Render(string(r.Status))
	if r.Reason != "" {
		status += s.muted.Render(" (" + r.Reason + ")")
	}
	if r.Retryable {
		status += s.muted.Render(" retrying may succeed")
	}
	fmt.Fprintf(w, "  Status:   %s\n", status)
	fmt.Fprintf(w, "  Steps:    %d\n", len(r.Steps))
	fmt.Fprintf(w, "  Duration: %s\n", r.Duration.Round(time.Second))

	if r.Context == nil {
		return
	}
	fmt.Fprintf(w, "  Success:  %.0f%%\n", r.Context.SuccessRate()*100)
	if files := r.Context.RecentFiles(len(r.Context.FileChanges)); len(files) > 0 {
		fmt.Fprintf(w, "  Files:    %s\n", strings.Join(files, ", "))
	}
	for _, step := range r.Steps {
		mark := s.ok.Render("✓")
		if step.Status != orchestration.StepCompleted {
			mark = s.err.Render("✗")
		}
		fmt.Fprintf(w, "  %s %d. %s\n", mark, step.Number, step.Command)
	}
}
