package ai

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Custos/imthedev-sub000/internal/errors"
)

// maxStderrExcerpt bounds how much stderr is quoted in an error.
const maxStderrExcerpt = 500

// CLIBackend implements Backend by running a command-line model client. The
// prompt is written to the command's stdin and stdout is the reply.
type CLIBackend struct {
	command string
	args    []string
}

// NewCLIBackend creates a CLI backend running command with args.
func NewCLIBackend(command string, args ...string) *CLIBackend {
	return &CLIBackend{
		command: command,
		args:    append([]string(nil), args...),
	}
}

// Name implements Backend.
func (c *CLIBackend) Name() BackendName { return BackendCLI }

// Generate runs the command once. Cancelling ctx kills the process.
func (c *CLIBackend) Generate(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s: %w", c.command, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderrExcerpt {
			msg = msg[:maxStderrExcerpt] + "..."
		}
		if msg != "" {
			return "", fmt.Errorf("%w: %s: %w: %s", errors.ErrGenerationFailed, c.command, err, msg)
		}
		return "", fmt.Errorf("%w: %s: %w", errors.ErrGenerationFailed, c.command, err)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
