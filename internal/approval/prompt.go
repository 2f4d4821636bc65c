package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// TerminalPrompter asks for a decision on a line-oriented terminal:
// "y" approves, "n" rejects, "e" asks for an edited command.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter creates a prompter reading answers from in and
// writing questions to out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

// Review implements Prompter. It keeps asking until it gets a valid answer,
// the input ends or ctx is done.
func (t *TerminalPrompter) Review(ctx context.Context, p *orchestration.CommandProposal) (Decision, error) {
	fmt.Fprintf(t.out, "\nProposed command: %s\n", p.Command)
	if p.Reasoning != "" {
		fmt.Fprintf(t.out, "Reasoning: %s\n", p.Reasoning)
	}
	fmt.Fprintf(t.out, "Confidence: %.0f%%\n", p.Confidence*100)

	for {
		answer, err := t.readLine(ctx, "Approve? [y]es / [n]o / [e]dit: ")
		if err != nil {
			return Decision{}, err
		}

		switch strings.ToLower(answer) {
		case "y", "yes":
			return Decision{Action: ActionApprove, Command: p.Command}, nil
		case "n", "no":
			reason, err := t.readLine(ctx, "Reason (optional): ")
			if err != nil {
				return Decision{}, err
			}
			return Decision{Action: ActionReject, Command: p.Command, Reason: reason}, nil
		case "e", "edit":
			cmd, err := t.readLine(ctx, "Command: ")
			if err != nil {
				return Decision{}, err
			}
			if cmd == "" {
				fmt.Fprintln(t.out, "Empty command, try again.")
				continue
			}
			return Decision{Action: ActionModify, Command: cmd}, nil
		default:
			fmt.Fprintf(t.out, "Unrecognized answer %q.\n", answer)
		}
	}
}

// readLine prints prompt and returns the next trimmed input line. A final
// line without a newline is accepted; an empty input is io.EOF.
func (t *TerminalPrompter) readLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(t.out, prompt)

	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
