package approval

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Custos/imthedev-sub000/internal/config"
	"github.com/Custos/imthedev-sub000/internal/errors"
	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/logging"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// Mode selects how proposals are approved.
type Mode string

const (
	// ModeAuto approves every proposal.
	ModeAuto Mode = config.ApprovalAuto
	// ModeConfidence approves proposals at or above the threshold and asks
	// the prompter about the rest.
	ModeConfidence Mode = config.ApprovalConfidence
	// ModeManual asks the prompter about every proposal.
	ModeManual Mode = config.ApprovalManual
)

// DefaultThreshold is the confidence at which ModeConfidence approves
// without asking.
const DefaultThreshold = 0.8

// Reviewer names stamped on approval events.
const (
	ReviewerAuto   = "auto"
	ReviewerPolicy = "confidence_policy"
	ReviewerUser   = "user"
)

// Sentinel errors returned by gate operations.
var (
	ErrInvalidMode        = errors.New("invalid approval mode")
	ErrNoPrompter         = errors.New("approval requires a prompter")
	ErrEmptyModification  = errors.New("modified command is empty")
	ErrAlreadyUnderReview = errors.New("proposal is already under review")
)

// Action is the outcome of a review.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionModify  Action = "modify"
)

// Decision is what the gate, or the person behind it, decided about one
// proposal.
type Decision struct {
	Action Action
	// Command is the command to run. For ActionModify it is the edited
	// command; otherwise it is the proposed one.
	Command string
	Reason  string
	By      string
}

// Approved reports whether the command may run.
func (d Decision) Approved() bool {
	return d.Action == ActionApprove || d.Action == ActionModify
}

// Prompter asks a person to review a proposal.
type Prompter interface {
	Review(ctx context.Context, p *orchestration.CommandProposal) (Decision, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, p *orchestration.CommandProposal) (Decision, error)

// Review implements Prompter.
func (f PrompterFunc) Review(ctx context.Context, p *orchestration.CommandProposal) (Decision, error) {
	return f(ctx, p)
}

// Gate decides whether proposed commands may run and publishes the outcome
// as command lifecycle events.
type Gate struct {
	mu        sync.Mutex
	mode      Mode
	threshold float64
	prompter  Prompter
	bus       *event.Bus
	logger    *logging.Logger
	pending   map[string]*orchestration.CommandProposal // proposal ID -> proposal under human review
}

// Option configures a Gate.
type Option func(*Gate)

// WithThreshold sets the confidence threshold used by ModeConfidence.
func WithThreshold(t float64) Option {
	return func(g *Gate) { g.threshold = t }
}

// WithPrompter sets who is asked when the policy does not decide.
func WithPrompter(p Prompter) Option {
	return func(g *Gate) { g.prompter = p }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGate creates a gate. The bus may be nil.
func NewGate(mode Mode, bus *event.Bus, opts ...Option) (*Gate, error) {
	switch mode {
	case ModeAuto, ModeConfidence, ModeManual:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	g := &Gate{
		mode:      mode,
		threshold: DefaultThreshold,
		bus:       bus,
		logger:    logging.NopLogger(),
		pending:   make(map[string]*orchestration.CommandProposal),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.mode == ModeManual && g.prompter == nil {
		return nil, ErrNoPrompter
	}
	return g, nil
}

// Mode returns the approval mode.
func (g *Gate) Mode() Mode { return g.mode }

// Review decides about p and publishes CommandApproved, CommandRejected or
// CommandModified followed by CommandApproved. Errors from the prompter are
// returned without publishing anything.
func (g *Gate) Review(ctx context.Context, p *orchestration.CommandProposal) (Decision, error) {
	if p == nil {
		return Decision{}, fmt.Errorf("review: nil proposal")
	}

	switch {
	case g.mode == ModeAuto:
		return g.finish(p, Decision{Action: ActionApprove, Command: p.Command, By: ReviewerAuto}), nil

	case g.mode == ModeConfidence && !p.Fallback && p.Confidence >= g.threshold:
		return g.finish(p, Decision{Action: ActionApprove, Command: p.Command, By: ReviewerPolicy}), nil

	case g.prompter == nil:
		reason := fmt.Sprintf("confidence %.2f below threshold %.2f", p.Confidence, g.threshold)
		if p.Fallback {
			reason = "proposal is a fallback after an unreadable reply"
		}
		return g.finish(p, Decision{Action: ActionReject, Command: p.Command, Reason: reason, By: ReviewerPolicy}), nil
	}

	d, err := g.ask(ctx, p)
	if err != nil {
		return Decision{}, err
	}
	return g.finish(p, d), nil
}

// ask hands p to the prompter, tracking it as pending meanwhile.
func (g *Gate) ask(ctx context.Context, p *orchestration.CommandProposal) (Decision, error) {
	g.mu.Lock()
	if p.ID != "" {
		if _, busy := g.pending[p.ID]; busy {
			g.mu.Unlock()
			return Decision{}, fmt.Errorf("%w: %s", ErrAlreadyUnderReview, p.ID)
		}
		g.pending[p.ID] = p
	}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.pending, p.ID)
		g.mu.Unlock()
	}()

	d, err := g.prompter.Review(ctx, p)
	if err != nil {
		return Decision{}, fmt.Errorf("review %q: %w", p.Command, err)
	}

	if d.By == "" {
		d.By = ReviewerUser
	}
	switch d.Action {
	case ActionModify:
		d.Command = strings.TrimSpace(d.Command)
		if d.Command == "" {
			return Decision{}, ErrEmptyModification
		}
		if d.Command == p.Command {
			d.Action = ActionApprove
		}
	case ActionApprove, ActionReject:
		d.Command = p.Command
	default:
		return Decision{}, fmt.Errorf("review %q: unknown action %q", p.Command, d.Action)
	}
	return d, nil
}

// finish publishes the events for d.
func (g *Gate) finish(p *orchestration.CommandProposal, d Decision) Decision {
	log := g.logger.With("command_id", p.ID, "command", p.Command)

	switch d.Action {
	case ActionApprove:
		g.emit(event.NewCommandApprovedEvent(p.ID, d.Command, d.By, ""))
		log.Info("command approved", "by", d.By, "confidence", p.Confidence)
	case ActionModify:
		g.emit(event.NewCommandModifiedEvent(p.ID, p.Command, d.Command, d.By))
		g.emit(event.NewCommandApprovedEvent(p.ID, d.Command, d.By, d.Command))
		log.Info("command modified", "by", d.By, "modified", d.Command)
	case ActionReject:
		g.emit(event.NewCommandRejectedEvent(p.ID, p.Command, d.By, d.Reason))
		log.Info("command rejected", "by", d.By, "reason", d.Reason)
	}
	return d
}

func (g *Gate) emit(e event.Event) {
	if g.bus != nil {
		g.bus.Emit(e)
	}
}

// PendingApprovals returns the IDs of proposals currently waiting on the
// prompter. The returned slice is a copy and safe to modify.
func (g *Gate) PendingApprovals() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.pending))
	for id := range g.pending {
		ids = append(ids, id)
	}
	return ids
}

// IsAwaitingApproval returns true if the proposal is waiting on the prompter.
func (g *Gate) IsAwaitingApproval(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.pending[id]
	return ok
}
