package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// Color palette
var (
	primaryColor   = lipgloss.Color("#A78BFA") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#F87171") // Red
	mutedColor     = lipgloss.Color("#9CA3AF") // Gray
	accentColor    = lipgloss.Color("#60A5FA") // Blue
)

// palette holds the styles used for terminal output. The zero palette
// renders plain text.
type palette struct {
	title   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	muted   lipgloss.Style
	command lipgloss.Style
}

// isTerminal reports whether w is a terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// newPalette returns colored styles when out is a terminal and NO_COLOR is
// unset, and plain styles otherwise.
func newPalette(out io.Writer) palette {
	if !isTerminal(out) || os.Getenv("NO_COLOR") != "" {
		return palette{}
	}
	r := lipgloss.NewRenderer(out)
	return palette{
		title:   r.NewStyle().Bold(true).Foreground(primaryColor),
		ok:      r.NewStyle().Foreground(secondaryColor),
		warn:    r.NewStyle().Foreground(warningColor),
		err:     r.NewStyle().Bold(true).Foreground(errorColor),
		muted:   r.NewStyle().Foreground(mutedColor),
		command: r.NewStyle().Foreground(accentColor),
	}
}

// eventPrinter writes a line per interesting bus event.
type eventPrinter struct {
	out     io.Writer
	styles  palette
	verbose bool

	mu sync.Mutex
}

func newEventPrinter(out io.Writer, verbose bool) *eventPrinter {
	return &eventPrinter{out: out, styles: newPalette(out), verbose: verbose}
}

// subscribe registers the printer for every event on bus and returns the
// subscription ID.
func (p *eventPrinter) subscribe(bus *event.Bus) string {
	return bus.SubscribeAll(p.handle)
}

func (p *eventPrinter) handle(_ context.Context, e event.Event) error {
	line := p.format(e)
	if line == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.out, line)
	return err
}

func (p *eventPrinter) format(e event.Event) string {
	s := p.styles
	switch ev := e.(type) {
	case *event.ObjectiveSubmittedEvent:
		return s.title.Render("Objective: " + ev.ObjectiveText)

	case *event.PlanGeneratedEvent:
		var sb strings.Builder
		sb.WriteString(s.title.Render(fmt.Sprintf("Plan: %d steps", len(ev.PlanSteps))))
		for _, step := range ev.PlanSteps {
			fmt.Fprintf(&sb, "\n  %d. %s %s", step.Number, s.command.Render(step.Command), s.muted.Render(step.Description))
		}
		return sb.String()

	case *event.PatternAppliedEvent:
		return s.muted.Render(fmt.Sprintf("Using pattern %q (%.0f%%)", ev.PatternName, ev.Confidence*100))

	case *event.CommandProposedEvent:
		return fmt.Sprintf("%s %s %s", s.title.Render("→"), s.command.Render(ev.CommandText),
			s.muted.Render(fmt.Sprintf("(confidence %.0f%%)", ev.Confidence*100)))

	case *event.CommandApprovedEvent:
		if !p.verbose {
			return ""
		}
		return s.muted.Render("  approved by " + ev.ApprovedBy)

	case *event.CommandModifiedEvent:
		return s.warn.Render(fmt.Sprintf("  edited to %s", ev.Modified))

	case *event.CommandRejectedEvent:
		msg := "  rejected by " + ev.RejectedBy
		if ev.Reason != "" {
			msg += ": " + ev.Reason
		}
		return s.err.Render(msg)

	case *event.CommandValidatedEvent:
		if ev.IsValid {
			return ""
		}
		msg := s.err.Render("  invalid: " + strings.Join(ev.ValidationErrors, "; "))
		if len(ev.SuggestedFixes) > 0 {
			msg += "\n" + s.muted.Render("  try: "+strings.Join(ev.SuggestedFixes, ", "))
		}
		return msg

	case *event.OutputStreamingEvent:
		if !p.verbose {
			return ""
		}
		if ev.OutputType == event.StreamStderr {
			return s.warn.Render("  | " + ev.Content)
		}
		return s.muted.Render("  | " + ev.Content)

	case *event.FileCreatedEvent:
		return s.ok.Render("  + " + ev.FilePath)

	case *event.FileModifiedEvent:
		return s.ok.Render("  ~ " + ev.FilePath)

	case *event.TestExecutedEvent:
		style := s.ok
		if ev.Failed > 0 {
			style = s.err
		}
		return style.Render(fmt.Sprintf("  tests: %d passed, %d failed", ev.Passed, ev.Failed))

	case *event.ExecutionCompleteEvent:
		if ev.ExitCode == 0 {
			return s.ok.Render(fmt.Sprintf("  ✓ done in %s", ev.ExecutionTime.Round(10*time.Millisecond)))
		}
		return s.err.Render(fmt.Sprintf("  ✗ exit %d after %s", ev.ExitCode, ev.ExecutionTime.Round(10*time.Millisecond)))

	case *event.ExecutionFailedEvent:
		if ev.ErrorType == "exit" {
			return ""
		}
		return s.err.Render(fmt.Sprintf("  ✗ %s: %s", ev.ErrorType, ev.ErrorMessage))

	case *event.ResultAnalyzedEvent:
		return s.muted.Render("  " + ev.Understanding)

	case *event.RecoveryProposedEvent:
		return s.warn.Render("Recovering: " + ev.RecoveryStrategy)

	case *event.PatternDetectedEvent:
		return s.muted.Render(fmt.Sprintf("Learned pattern %q", ev.PatternName))

	case *event.ObjectiveCompletedEvent:
		return statusStyle(s, ev.Status).Render(fmt.Sprintf("Objective %s after %d steps", ev.Status, ev.TotalSteps))
	}
	return ""
}

func statusStyle(s palette, status orchestration.ObjectiveStatus) lipgloss.Style {
	switch status {
	case orchestration.ObjectiveCompleted:
		return s.ok
	case orchestration.ObjectiveFailed:
		return s.err
	default:
		return s.warn
	}
}
