package learning

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/logging"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// reloadDebounce collapses the bursts of events editors produce for a save.
const reloadDebounce = 50 * time.Millisecond

// ErrInvalidPattern is returned when a pattern cannot be stored.
var ErrInvalidPattern = errors.New("invalid pattern")

// libraryFile is the on-disk layout of the pattern library.
type libraryFile struct {
	Patterns []*orchestration.Pattern `yaml:"patterns"`
}

// Library is a set of stored patterns backed by a YAML file. An empty path
// keeps the library in memory only.
//
// All methods are safe for concurrent use. Patterns returned by the library
// are copies; mutate stored patterns through Add and Use.
type Library struct {
	mu       sync.RWMutex
	path     string
	patterns []*orchestration.Pattern
	logger   *logging.Logger
	onReload func(n int)
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithLibraryLogger sets the logger. A nil logger is ignored.
func WithLibraryLogger(l *logging.Logger) LibraryOption {
	return func(lib *Library) {
		if l != nil {
			lib.logger = l
		}
	}
}

// WithReloadCallback registers fn to run after Watch reloads the file, with
// the number of patterns loaded.
func WithReloadCallback(fn func(n int)) LibraryOption {
	return func(lib *Library) { lib.onReload = fn }
}

// NewLibrary creates a library bound to path. Call Load to read it.
func NewLibrary(path string, opts ...LibraryOption) *Library {
	l := &Library{
		path:   path,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the backing file, or "" for an in-memory library.
func (l *Library) Path() string { return l.path }

// Load replaces the stored patterns with the file contents. A missing file
// leaves the library empty.
func (l *Library) Load() error {
	if l.path == "" {
		return nil
	}
	patterns, err := readLibrary(l.path)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.patterns = patterns
	l.mu.Unlock()
	return nil
}

func readLibrary(path string) ([]*orchestration.Pattern, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pattern library: %w", err)
	}

	var file libraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pattern library %s: %w", path, err)
	}

	patterns := make([]*orchestration.Pattern, 0, len(file.Patterns))
	for _, p := range file.Patterns {
		if p == nil || validatePattern(p) != nil {
			continue
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// Save writes the library to its file, creating parent directories. The file
// is replaced atomically.
func (l *Library) Save() error {
	if l.path == "" {
		return nil
	}

	l.mu.RLock()
	data, err := yaml.Marshal(libraryFile{Patterns: l.patterns})
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal pattern library: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create pattern library directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".patterns-*.yaml")
	if err != nil {
		return fmt.Errorf("write pattern library: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write pattern library: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write pattern library: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("write pattern library: %w", err)
	}
	return nil
}

// Len returns the number of stored patterns.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.patterns)
}

// Patterns returns copies of every stored pattern, most reliable first.
func (l *Library) Patterns() []*orchestration.Pattern {
	l.mu.RLock()
	out := make([]*orchestration.Pattern, 0, len(l.patterns))
	for _, p := range l.patterns {
		out = append(out, clonePattern(p))
	}
	l.mu.RUnlock()

	sortByReliability(out)
	return out
}

// Match returns copies of the patterns whose trigger matches text, most
// reliable first.
func (l *Library) Match(text string) []*orchestration.Pattern {
	l.mu.RLock()
	var out []*orchestration.Pattern
	for _, p := range l.patterns {
		if p.Matches(text) {
			out = append(out, clonePattern(p))
		}
	}
	l.mu.RUnlock()

	sortByReliability(out)
	return out
}

// Best returns a copy of the most reliable pattern matching text.
func (l *Library) Best(text string) (*orchestration.Pattern, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := orchestration.SelectPattern(l.patterns, text)
	if !ok {
		return nil, false
	}
	return clonePattern(p), true
}

// Get returns a copy of the pattern with the given ID, or a
// *errors.NotFoundError.
func (l *Library) Get(id string) (*orchestration.Pattern, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if p := l.find(id); p != nil {
		return clonePattern(p), nil
	}
	return nil, errors.NewNotFoundError("pattern", id)
}

// Use records one application of the pattern and persists the library.
// Unknown IDs are ignored.
func (l *Library) Use(id string) {
	l.mu.Lock()
	p := l.find(id)
	if p != nil {
		p.Use()
	}
	l.mu.Unlock()

	if p == nil {
		return
	}
	if err := l.Save(); err != nil {
		l.logger.Warn("failed to persist pattern usage", "pattern_id", id, "error", err.Error())
	}
}

// Add stores p. When a pattern with the same command sequence already
// exists, the two are merged: the stored success rate becomes the mean of
// both and the new trigger and tags are folded in. Otherwise a pattern whose
// ID is already taken is rejected with a *errors.AlreadyExistsError. Add
// reports whether the pattern was merged and returns a copy of the stored
// pattern.
func (l *Library) Add(p *orchestration.Pattern) (*orchestration.Pattern, bool, error) {
	if p == nil {
		return nil, false, fmt.Errorf("%w: nil pattern", ErrInvalidPattern)
	}
	if err := validatePattern(p); err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	stored, merged, err := l.merge(p)
	if err != nil {
		l.mu.Unlock()
		return nil, false, err
	}
	out := clonePattern(stored)
	l.mu.Unlock()

	if err := l.Save(); err != nil {
		return out, merged, err
	}
	return out, merged, nil
}

func (l *Library) merge(p *orchestration.Pattern) (*orchestration.Pattern, bool, error) {
	for _, existing := range l.patterns {
		if !slices.Equal(existing.Commands, p.Commands) {
			continue
		}
		existing.SuccessRate = (existing.SuccessRate + p.SuccessRate) / 2
		existing.Trigger = joinTriggers(existing.Trigger, p.Trigger)
		for _, tag := range p.Tags {
			if !slices.Contains(existing.Tags, tag) {
				existing.Tags = append(existing.Tags, tag)
			}
		}
		return existing, true, nil
	}
	if p.ID != "" && l.find(p.ID) != nil {
		return nil, false, errors.NewAlreadyExistsError("pattern", p.ID)
	}

	stored := clonePattern(p)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	l.patterns = append(l.patterns, stored)
	return stored, false, nil
}

// joinTriggers folds added into the alternation of existing. A trigger that
// is not a valid regular expression is quoted first so the joined trigger
// still matches it literally.
func joinTriggers(existing, added string) string {
	existing, added = regexTrigger(existing), regexTrigger(added)
	switch {
	case added == "":
		return existing
	case existing == "":
		return added
	case slices.Contains(strings.Split(existing, "|"), added):
		return existing
	}
	return existing + "|" + added
}

func regexTrigger(trigger string) string {
	if _, err := regexp.Compile(trigger); err != nil {
		return regexp.QuoteMeta(trigger)
	}
	return trigger
}

// Remove deletes the pattern with the given ID and persists the library.
// An unknown ID yields a *errors.NotFoundError.
func (l *Library) Remove(id string) error {
	l.mu.Lock()
	idx := slices.IndexFunc(l.patterns, func(p *orchestration.Pattern) bool { return p.ID == id })
	if idx >= 0 {
		l.patterns = slices.Delete(l.patterns, idx, idx+1)
	}
	l.mu.Unlock()

	if idx < 0 {
		return errors.NewNotFoundError("pattern", id)
	}
	return l.Save()
}

// Watch reloads the library whenever its file changes, until ctx is done.
// The parent directory is watched so atomic replacements are seen. Watch
// blocks; run it in its own goroutine.
func (l *Library) Watch(ctx context.Context) error {
	if l.path == "" {
		return fmt.Errorf("pattern library has no file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create pattern library directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(l.path)
	debounce := time.NewTimer(0)
	<-debounce.C
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			debounce.Reset(reloadDebounce)

		case <-debounce.C:
			l.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("pattern library watcher error", "error", err.Error())
		}
	}
}

func (l *Library) reload() {
	patterns, err := readLibrary(l.path)
	if err != nil {
		l.logger.Warn("pattern library reload failed, keeping previous patterns", "error", err.Error())
		return
	}

	l.mu.Lock()
	l.patterns = patterns
	l.mu.Unlock()

	l.logger.Info("pattern library reloaded", "patterns", len(patterns))
	if l.onReload != nil {
		l.onReload(len(patterns))
	}
}

func (l *Library) find(id string) *orchestration.Pattern {
	for _, p := range l.patterns {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func validatePattern(p *orchestration.Pattern) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidPattern)
	case p.Trigger == "":
		return fmt.Errorf("%w: trigger is required", ErrInvalidPattern)
	case len(p.Commands) == 0:
		return fmt.Errorf("%w: at least one command is required", ErrInvalidPattern)
	case p.SuccessRate < 0 || p.SuccessRate > 1:
		return fmt.Errorf("%w: success rate %.2f outside [0, 1]", ErrInvalidPattern, p.SuccessRate)
	}
	return nil
}

func clonePattern(p *orchestration.Pattern) *orchestration.Pattern {
	c := *p
	c.Commands = slices.Clone(p.Commands)
	c.Tags = slices.Clone(p.Tags)
	if p.ContextRequirements != nil {
		c.ContextRequirements = make(map[string]string, len(p.ContextRequirements))
		for k, v := range p.ContextRequirements {
			c.ContextRequirements[k] = v
		}
	}
	if p.LastUsed != nil {
		t := *p.LastUsed
		c.LastUsed = &t
	}
	return &c
}

func sortByReliability(patterns []*orchestration.Pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].ReliabilityScore() > patterns[j].ReliabilityScore()
	})
}
