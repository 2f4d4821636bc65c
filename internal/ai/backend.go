// Package ai provides the text-completion backends used by the planner.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Custos/imthedev-sub000/internal/config"
	"github.com/Custos/imthedev-sub000/internal/errors"
)

// BackendName identifies a supported completion backend.
type BackendName string

const (
	BackendGemini BackendName = config.BackendGemini
	BackendCLI    BackendName = config.BackendCLI
	BackendStatic BackendName = config.BackendStatic
)

// Backend turns a prompt into model text. Every Backend satisfies
// planner.Completer.
type Backend interface {
	Name() BackendName
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrUnknownBackend is returned when the configured backend is unsupported.
var ErrUnknownBackend = errors.New("unknown AI backend")

// ErrEmptyReply is returned when a backend produced no text. It wraps
// errors.ErrGenerationFailed like every other backend failure.
var ErrEmptyReply = fmt.Errorf("%w: empty reply from model", errors.ErrGenerationFailed)

// NewFromConfig builds a Backend from configuration. The Gemini backend
// reads its API key from the environment variable named by the config.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing config")
	}

	pc := cfg.Planner
	var (
		backend Backend
		err     error
	)
	switch BackendName(strings.ToLower(pc.Backend)) {
	case BackendGemini, "":
		backend, err = NewGeminiBackend(ctx, pc.APIKeyEnv, WithModel(pc.Model))
	case BackendCLI:
		backend = NewCLIBackend(pc.CLICommand, pc.CLIArgs...)
	case BackendStatic:
		backend = NewStaticBackend(pc.StaticReplies...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, pc.Backend)
	}
	if err != nil {
		return nil, err
	}

	if pc.RequestTimeout > 0 {
		backend = WithRequestTimeout(backend, pc.RequestTimeout)
	}
	return backend, nil
}

// WithRequestTimeout bounds every Generate call of b by d.
func WithRequestTimeout(b Backend, d time.Duration) Backend {
	return &timeoutBackend{Backend: b, timeout: d}
}

type timeoutBackend struct {
	Backend
	timeout time.Duration
}

func (t *timeoutBackend) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Backend.Generate(ctx, prompt)
}
