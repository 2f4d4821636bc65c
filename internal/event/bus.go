package event

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Custos/imthedev-sub000/internal/logging"
)

// SlowEventThreshold is the per-event processing time above which the bus
// logs a warning.
const SlowEventThreshold = 10 * time.Millisecond

// Handler is a function that handles an event. A returned error is counted
// and logged; it never stops delivery to other handlers.
type Handler func(ctx context.Context, e Event) error

// subscription represents a registered event handler.
type subscription struct {
	id      string
	kind    string
	handler Handler
}

// Metrics is a snapshot of the bus counters.
type Metrics struct {
	EventsProcessed       int64
	EventsFailed          int64
	HandlerErrors         int64
	TotalProcessingTime   time.Duration
	AverageProcessingTime time.Duration
	EventsInHistory       int
	HandlersRegistered    int
}

// Bus is an asynchronous pub-sub event bus with hierarchy-aware dispatch.
//
// Emit never blocks: events are queued and drained in FIFO order by a single
// goroutine that exists only while the queue is non-empty. All handlers
// matching one event run concurrently, and the next event is not dispatched
// until every one of them has returned.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription // kind -> subscriptions
	nextID        atomic.Uint64

	queueMu  sync.Mutex
	queue    []Event
	draining bool
	idle     chan struct{} // closed when the current drain loop exits
	closed   bool

	historyMu sync.RWMutex
	history   []Event

	processed     atomic.Int64
	failed        atomic.Int64
	handlerErrors atomic.Int64
	totalNanos    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	logger *logging.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used for handler failures and slow events.
func WithLogger(logger *logging.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates a new event bus.
func NewBus(opts ...BusOption) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subscriptions: make(map[string][]subscription),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for an event type or a category.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(kind string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.generateID()
	b.subscriptions[kind] = append(b.subscriptions[kind], subscription{
		id:      id,
		kind:    kind,
		handler: handler,
	})
	return id
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(CategoryOrchestration, handler)
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				remaining := make([]subscription, 0, len(subs)-1)
				remaining = append(remaining, subs[:i]...)
				remaining = append(remaining, subs[i+1:]...)
				if len(remaining) == 0 {
					delete(b.subscriptions, kind)
				} else {
					b.subscriptions[kind] = remaining
				}
				return true
			}
		}
	}
	return false
}

// Emit queues an event for delivery and returns immediately.
// Events emitted after Close are dropped.
func (b *Bus) Emit(e Event) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	if b.closed {
		b.logger.Debug("event dropped on closed bus", "event_type", e.EventType())
		return
	}

	b.queue = append(b.queue, e)
	if !b.draining {
		b.draining = true
		b.idle = make(chan struct{})
		go b.drain()
	}
}

// drain delivers queued events until the queue is empty.
func (b *Bus) drain() {
	for {
		b.queueMu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			close(b.idle)
			b.queueMu.Unlock()
			return
		}
		e := b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
		b.queueMu.Unlock()

		b.dispatch(e)
	}
}

// dispatch records e in history and runs every matching handler. Events
// without handlers are kept in history only; they count toward neither the
// processed total nor the processing time.
func (b *Bus) dispatch(e Event) {
	b.historyMu.Lock()
	b.history = append(b.history, e)
	b.historyMu.Unlock()

	subs := b.matching(e)
	if len(subs) == 0 {
		return
	}

	start := time.Now()
	var failures atomic.Int64
	p := pool.New().WithErrors()
	for _, sub := range subs {
		p.Go(func() error {
			err := b.safeCall(sub, e)
			if err != nil {
				failures.Add(1)
			}
			return err
		})
	}
	_ = p.Wait()

	b.processed.Add(1)
	if n := failures.Load(); n > 0 {
		b.failed.Add(1)
		b.handlerErrors.Add(n)
	}

	elapsed := time.Since(start)
	b.totalNanos.Add(int64(elapsed))
	if elapsed > SlowEventThreshold {
		b.logger.Warn("slow event processing",
			"event_type", e.EventType(),
			"event_id", e.ID(),
			"duration_ms", elapsed.Milliseconds(),
			"handlers", len(subs))
	}
}

// matching resolves the union of subscriptions for every category of e.
// A subscription is returned at most once.
func (b *Bus) matching(e Event) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[string]struct{})
	var subs []subscription
	for _, kind := range e.Categories() {
		for _, sub := range b.subscriptions[kind] {
			if _, dup := seen[sub.id]; dup {
				continue
			}
			seen[sub.id] = struct{}{}
			subs = append(subs, sub)
		}
	}
	return subs
}

// safeCall invokes a handler, turning panics into errors so one misbehaving
// handler cannot block delivery to the others.
func (b *Bus) safeCall(sub subscription, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
			b.logger.Error("event handler panicked",
				"event_type", e.EventType(),
				"subscription", sub.id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	if err := sub.handler(b.ctx, e); err != nil {
		b.logger.Error("event handler failed",
			"event_type", e.EventType(),
			"subscription", sub.id,
			"error", err.Error())
		return err
	}
	return nil
}

// Replay re-emits historical events that satisfy filter, in their original
// order. A nil filter replays everything. Replayed events go through Emit,
// so they interleave with live events and are appended to history again.
// Returns the number of events queued.
func (b *Bus) Replay(filter func(Event) bool) int {
	b.historyMu.RLock()
	snapshot := make([]Event, len(b.history))
	copy(snapshot, b.history)
	b.historyMu.RUnlock()

	count := 0
	for _, e := range snapshot {
		if filter != nil && !filter(e) {
			continue
		}
		b.Emit(e)
		count++
	}
	return count
}

// History returns a copy of every dispatched event in dispatch order.
func (b *Bus) History() []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// ClearHistory drops all recorded events.
func (b *Bus) ClearHistory() {
	b.historyMu.Lock()
	b.history = nil
	b.historyMu.Unlock()
	b.logger.Info("event history cleared")
}

// Metrics returns a snapshot of the bus counters.
func (b *Bus) Metrics() Metrics {
	b.historyMu.RLock()
	historySize := len(b.history)
	b.historyMu.RUnlock()

	m := Metrics{
		EventsProcessed:     b.processed.Load(),
		EventsFailed:        b.failed.Load(),
		HandlerErrors:       b.handlerErrors.Load(),
		TotalProcessingTime: time.Duration(b.totalNanos.Load()),
		EventsInHistory:     historySize,
		HandlersRegistered:  b.SubscriptionCount(),
	}
	if m.EventsProcessed > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.EventsProcessed)
	}
	return m
}

// Wait blocks until the queue is empty and no drain loop is running, or ctx
// is done.
func (b *Bus) Wait(ctx context.Context) error {
	for {
		b.queueMu.Lock()
		if !b.draining {
			b.queueMu.Unlock()
			return nil
		}
		idle := b.idle
		b.queueMu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting events and cancels the context handed to handlers.
// Events already queued are still delivered.
func (b *Bus) Close() {
	b.queueMu.Lock()
	b.closed = true
	b.queueMu.Unlock()
	b.cancel()
}

// generateID creates a unique subscription ID.
func (b *Bus) generateID() string {
	return "sub-" + strconv.FormatUint(b.nextID.Add(1), 10)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string][]subscription)
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}
