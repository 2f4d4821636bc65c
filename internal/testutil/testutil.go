// Package testutil provides testing utilities for imthedev tests: fake CLI
// scripts, work directories, event recorders and a scripted completer.
package testutil

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/Custos/imthedev-sub000/internal/event"
)

// SetupWorkDir creates a temporary working directory populated with files.
// The files map contains relative paths to file contents. The directory is
// automatically cleaned up when the test completes.
func SetupWorkDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for path, content := range files {
		fullPath := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", path, err)
		}
	}
	return dir
}

// FakeCLI writes an executable /bin/sh script with the given body and
// returns its path. The script receives the command arguments as "$@".
//
//	bin := testutil.FakeCLI(t, `echo "Created: auth.py"; exit 0`)
func FakeCLI(t *testing.T, body string) string {
	t.Helper()
	SkipIfNoShell(t)

	path := filepath.Join(t.TempDir(), "fake-cli")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake CLI: %v", err)
	}
	return path
}

// SkipIfNoShell skips the test if no POSIX shell is available.
func SkipIfNoShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake CLI scripts need a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH, skipping test")
	}
}

// WaitBus blocks until bus has delivered every queued event.
func WaitBus(t *testing.T, bus *event.Bus) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bus.Wait(ctx); err != nil {
		t.Fatalf("event bus did not drain: %v", err)
	}
}

// Recorder captures every event delivered by a bus.
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
}

// NewRecorder subscribes a recorder to every event on bus.
func NewRecorder(bus *event.Bus) *Recorder {
	r := &Recorder{}
	bus.SubscribeAll(func(_ context.Context, e event.Event) error {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
		return nil
	})
	return r
}

// Events returns the recorded events in delivery order.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// Types returns the type of every recorded event in delivery order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.EventType()
	}
	return types
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(eventType string) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, e := range r.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Completer replays canned replies in order, recording every prompt. Once
// the replies are exhausted the last one is repeated. It satisfies the
// planner's completion interface.
type Completer struct {
	mu      sync.Mutex
	replies []string
	prompts []string
	next    int
	// Err, when set, is returned instead of a reply.
	Err error
}

// NewCompleter creates a Completer that answers with replies in order.
func NewCompleter(replies ...string) *Completer {
	return &Completer{replies: replies}
}

// Generate returns the next canned reply.
func (c *Completer) Generate(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prompts = append(c.prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Err != nil {
		return "", c.Err
	}
	if len(c.replies) == 0 {
		return "", fmt.Errorf("no scripted reply for prompt %d", len(c.prompts))
	}

	i := c.next
	if i >= len(c.replies) {
		i = len(c.replies) - 1
	} else {
		c.next++
	}
	return c.replies[i], nil
}

// Prompts returns every prompt received so far.
func (c *Completer) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}
