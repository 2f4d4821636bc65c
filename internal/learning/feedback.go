package learning

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/logging"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

const (
	// defaultMinPatternSuccess is the objective success rate a command
	// sequence needs before it is stored as a pattern.
	defaultMinPatternSuccess = 0.7

	// maxTriggerKeywords bounds the keywords taken from an objective.
	maxTriggerKeywords = 3

	patternTypeSequence = "command_sequence"

	learningSuccess = "success_pattern"
	learningFailure = "failure_mode"

	contextLearnedPatterns = "learned_patterns"
)

// stopWords are skipped when deriving a trigger from an objective.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "add": true, "make": true,
	"create": true, "implement": true, "build": true, "some": true,
	"using": true, "have": true, "should": true, "will": true,
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_-]*`)

// PatternStore receives patterns detected by the feedback loop.
type PatternStore interface {
	Add(p *orchestration.Pattern) (*orchestration.Pattern, bool, error)
}

// cycle is one feedback cycle, opened by an execution.
type cycle struct {
	executionID string
	command     string
	started     time.Time
}

// session collects the feedback state of one objective.
type session struct {
	id          string
	objectiveID string
	objective   string
	octx        *orchestration.Context

	cycles         map[string]*cycle
	learnings      int
	executions     int
	execTime       time.Duration
	proposals      int
	interventions  int
	patternApplied bool
}

// FeedbackLoop listens to the event bus and turns what happened during an
// objective into learnings, context updates, metrics and stored patterns.
// It emits feedback events on the same bus.
type FeedbackLoop struct {
	mu              sync.Mutex
	bus             *event.Bus
	store           PatternStore
	logger          *logging.Logger
	minSuccess      float64
	subscriptionIDs []string

	sessions map[string]*session
	active   string
	contexts map[string]*orchestration.Context
	seen     map[string]int

	// run-level aggregates across completed objectives
	completed    int
	totalSteps   int
	reusedPlans  int
	totalExecs   int
	totalExecDur time.Duration
}

// LoopOption configures a FeedbackLoop.
type LoopOption func(*FeedbackLoop)

// WithLoopLogger sets the logger. A nil logger is ignored.
func WithLoopLogger(l *logging.Logger) LoopOption {
	return func(f *FeedbackLoop) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMinPatternSuccess sets the success rate an objective needs before its
// command sequence is stored.
func WithMinPatternSuccess(rate float64) LoopOption {
	return func(f *FeedbackLoop) { f.minSuccess = rate }
}

// NewFeedbackLoop creates a loop that stores detected patterns in store,
// which may be nil to only emit events.
func NewFeedbackLoop(bus *event.Bus, store PatternStore, opts ...LoopOption) *FeedbackLoop {
	f := &FeedbackLoop{
		bus:        bus,
		store:      store,
		logger:     logging.NopLogger(),
		minSuccess: defaultMinPatternSuccess,
		sessions:   make(map[string]*session),
		contexts:   make(map[string]*orchestration.Context),
		seen:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start subscribes to the bus. Call Stop to unsubscribe.
func (f *FeedbackLoop) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscriptionIDs = append(f.subscriptionIDs,
		f.bus.Subscribe(event.TypeObjectiveSubmitted, f.handleObjectiveSubmitted),
		f.bus.Subscribe(event.TypePatternApplied, f.handlePatternApplied),
		f.bus.Subscribe(event.TypeCommandProposed, f.handleCommandProposed),
		f.bus.Subscribe(event.TypeCommandRejected, f.handleIntervention),
		f.bus.Subscribe(event.TypeCommandModified, f.handleIntervention),
		f.bus.Subscribe(event.TypeExecutionStarted, f.handleExecutionStarted),
		f.bus.Subscribe(event.TypeExecutionComplete, f.handleExecutionComplete),
		f.bus.Subscribe(event.TypeResultAnalyzed, f.handleResultAnalyzed),
		f.bus.Subscribe(event.TypeObjectiveCompleted, f.handleObjectiveCompleted),
	)
}

// Stop unsubscribes from all events. It is safe to call Stop even if Start
// was never called.
func (f *FeedbackLoop) Stop() {
	f.mu.Lock()
	ids := f.subscriptionIDs
	f.subscriptionIDs = nil
	f.mu.Unlock()

	for _, id := range ids {
		f.bus.Unsubscribe(id)
	}
}

// Attach links the orchestration context of an objective so captured
// learnings are added to it. Attach before submitting the objective.
func (f *FeedbackLoop) Attach(octx *orchestration.Context) {
	if octx == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.contexts[octx.ObjectiveID] = octx
	if s, ok := f.sessions[octx.ObjectiveID]; ok {
		s.octx = octx
	}
}

// SessionID returns the feedback session of an objective.
func (f *FeedbackLoop) SessionID(objectiveID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[objectiveID]
	if !ok {
		return "", false
	}
	return s.id, true
}

func (f *FeedbackLoop) handleObjectiveSubmitted(_ context.Context, e event.Event) error {
	submitted, ok := e.(*event.ObjectiveSubmittedEvent)
	if !ok {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions[submitted.ObjectiveID] = &session{
		id:          uuid.NewString(),
		objectiveID: submitted.ObjectiveID,
		objective:   submitted.ObjectiveText,
		octx:        f.contexts[submitted.ObjectiveID],
		cycles:      make(map[string]*cycle),
	}
	f.active = submitted.ObjectiveID
	return nil
}

func (f *FeedbackLoop) handlePatternApplied(_ context.Context, _ event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s := f.activeSession(); s != nil {
		s.patternApplied = true
	}
	return nil
}

func (f *FeedbackLoop) handleCommandProposed(_ context.Context, _ event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s := f.activeSession(); s != nil {
		s.proposals++
	}
	return nil
}

// handleIntervention counts proposals a user rejected or edited.
func (f *FeedbackLoop) handleIntervention(_ context.Context, _ event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s := f.activeSession(); s != nil {
		s.interventions++
	}
	return nil
}

func (f *FeedbackLoop) handleExecutionStarted(_ context.Context, e event.Event) error {
	started, ok := e.(*event.ExecutionStartedEvent)
	if !ok {
		return nil
	}

	f.mu.Lock()
	s := f.activeSession()
	if s == nil {
		f.mu.Unlock()
		return nil
	}
	s.cycles[started.ExecutionID] = &cycle{
		executionID: started.ExecutionID,
		command:     started.Command,
		started:     time.Now(),
	}
	sessionID, objectiveID := s.id, s.objectiveID
	f.mu.Unlock()

	f.bus.Emit(event.NewFeedbackCycleStartedEvent(sessionID, started.ExecutionID, objectiveID))
	return nil
}

func (f *FeedbackLoop) handleExecutionComplete(_ context.Context, e event.Event) error {
	complete, ok := e.(*event.ExecutionCompleteEvent)
	if !ok {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if s := f.activeSession(); s != nil {
		s.executions++
		s.execTime += complete.ExecutionTime
	}
	return nil
}

func (f *FeedbackLoop) handleResultAnalyzed(_ context.Context, e event.Event) error {
	analyzed, ok := e.(*event.ResultAnalyzedEvent)
	if !ok {
		return nil
	}

	f.mu.Lock()
	s, ok := f.sessions[analyzed.ObjectiveID]
	if !ok {
		f.mu.Unlock()
		return nil
	}
	c := s.cycles[analyzed.ExecutionID]
	delete(s.cycles, analyzed.ExecutionID)
	sessionID, octx := s.id, s.octx
	f.mu.Unlock()

	learnings := slices.Clone(analyzed.Insights)
	if len(learnings) == 0 && analyzed.Understanding != "" {
		learnings = []string{analyzed.Understanding}
	}

	learningType := learningFailure
	if analyzed.Success {
		learningType = learningSuccess
	}
	var command string
	if c != nil {
		command = c.command
	}
	for _, text := range learnings {
		f.bus.Emit(event.NewLearningCapturedEvent(sessionID, learningType, text, map[string]any{
			"execution_id": analyzed.ExecutionID,
			"command":      command,
			"step":         analyzed.StepNumber,
		}, analyzed.Confidence, commandTags(command)))
	}

	updates := 0
	if added := f.recordLearnings(octx, learnings); len(added) > 0 {
		size := len(added)
		if octx != nil {
			size = len(octx.Snapshot().LearnedPatterns)
		}
		f.bus.Emit(event.NewContextUpdatedEvent(sessionID, contextLearnedPatterns, added, nil, size))
		updates = 1
	}

	f.mu.Lock()
	s.learnings += len(learnings)
	f.mu.Unlock()

	var elapsed time.Duration
	if c != nil {
		elapsed = time.Since(c.started)
	}
	f.bus.Emit(event.NewFeedbackCycleCompleteEvent(sessionID, elapsed, 0, len(learnings), updates, analyzed.NextAction != ""))
	return nil
}

// recordLearnings adds learnings to octx and returns the ones that were new.
// Without a context every learning counts as new.
func (f *FeedbackLoop) recordLearnings(octx *orchestration.Context, learnings []string) []string {
	if octx == nil {
		return learnings
	}
	known := octx.Snapshot().LearnedPatterns
	var added []string
	for _, l := range learnings {
		if slices.Contains(known, l) || slices.Contains(added, l) {
			continue
		}
		octx.AddLearnedPattern(l)
		added = append(added, l)
	}
	return added
}

func (f *FeedbackLoop) handleObjectiveCompleted(_ context.Context, e event.Event) error {
	completed, ok := e.(*event.ObjectiveCompletedEvent)
	if !ok {
		return nil
	}

	f.mu.Lock()
	s, ok := f.sessions[completed.ObjectiveID]
	if !ok {
		f.mu.Unlock()
		return nil
	}
	delete(f.sessions, completed.ObjectiveID)
	delete(f.contexts, completed.ObjectiveID)
	if f.active == completed.ObjectiveID {
		f.active = ""
	}
	f.mu.Unlock()

	successRate := completed.SuccessMetrics["success_rate"]
	patterns := 0
	if p := f.detectPattern(s, completed, successRate); p != nil {
		patterns = 1
	}

	f.mu.Lock()
	f.completed++
	f.totalSteps += completed.TotalSteps
	f.totalExecs += s.executions
	f.totalExecDur += s.execTime
	if s.patternApplied {
		f.reusedPlans++
	}
	avgSteps := float64(f.totalSteps) / float64(f.completed)
	reuseRate := float64(f.reusedPlans) / float64(f.completed)
	var avgExec time.Duration
	if f.totalExecs > 0 {
		avgExec = f.totalExecDur / time.Duration(f.totalExecs)
	}
	f.mu.Unlock()

	interventionRate := 0.0
	if s.proposals > 0 {
		interventionRate = float64(s.interventions) / float64(s.proposals)
	}
	custom := make(map[string]float64, len(completed.SuccessMetrics)+1)
	for k, v := range completed.SuccessMetrics {
		custom[k] = v
	}
	custom["total_time_seconds"] = completed.TotalTime.Seconds()

	f.bus.Emit(event.NewMetricsCalculatedEvent(s.id, successRate, avgSteps, avgExec, reuseRate, interventionRate, custom))

	// Executions that were never analyzed close with the objective.
	for _, c := range s.cycles {
		f.bus.Emit(event.NewFeedbackCycleCompleteEvent(s.id, time.Since(c.started), 0, 0, 0, false))
	}
	f.bus.Emit(event.NewFeedbackCycleCompleteEvent(s.id, completed.TotalTime, patterns, s.learnings, 0, false))

	f.logger.WithObjective(completed.ObjectiveID).Info("feedback session closed",
		"status", string(completed.Status),
		"success_rate", successRate,
		"patterns", patterns,
		"learnings", s.learnings)
	return nil
}

// detectPattern stores the successful command sequence of a completed
// objective as a pattern when it is reliable enough.
func (f *FeedbackLoop) detectPattern(s *session, completed *event.ObjectiveCompletedEvent, successRate float64) *orchestration.Pattern {
	if completed.Status != orchestration.ObjectiveCompleted || len(completed.SuccessfulCommands) == 0 {
		return nil
	}
	if successRate < f.minSuccess {
		return nil
	}
	keywords := triggerKeywords(s.objective)
	if len(keywords) == 0 {
		return nil
	}

	p := orchestration.NewPattern(patternName(keywords), triggerFor(keywords), completed.SuccessfulCommands)
	p.SuccessRate = successRate
	p.Tags = commandTags(completed.SuccessfulCommands...)

	f.mu.Lock()
	key := strings.Join(p.Commands, "\n")
	f.seen[key]++
	occurrences := f.seen[key]
	f.mu.Unlock()

	f.bus.Emit(event.NewPatternDetectedEvent(s.id, p.Name, patternTypeSequence, keywords, p.Commands, successRate, occurrences))

	if f.store != nil {
		if _, _, err := f.store.Add(p); err != nil {
			f.logger.WithObjective(completed.ObjectiveID).Warn("failed to store pattern",
				"pattern", p.Name, "error", err.Error())
		}
	}
	return p
}

// activeSession returns the session of the objective currently running.
// Callers must hold f.mu.
func (f *FeedbackLoop) activeSession() *session {
	if f.active == "" {
		return nil
	}
	return f.sessions[f.active]
}

// triggerKeywords picks the first distinct significant words of text.
func triggerKeywords(text string) []string {
	var out []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 4 || stopWords[w] || slices.Contains(out, w) {
			continue
		}
		out = append(out, w)
		if len(out) == maxTriggerKeywords {
			break
		}
	}
	return out
}

func triggerFor(keywords []string) string {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return strings.Join(quoted, "|")
}

func patternName(keywords []string) string {
	return fmt.Sprintf("%s workflow", strings.Join(keywords, " "))
}

// commandTags returns the distinct command verbs, "/sc:implement" style.
func commandTags(commands ...string) []string {
	var tags []string
	for _, c := range commands {
		fields := strings.Fields(c)
		if len(fields) == 0 || slices.Contains(tags, fields[0]) {
			continue
		}
		tags = append(tags, fields[0])
	}
	return tags
}
