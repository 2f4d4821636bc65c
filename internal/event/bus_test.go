package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitBus(t *testing.T, bus *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bus.Wait(ctx); err != nil {
		t.Fatalf("bus did not drain: %v", err)
	}
}

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe("test.event", func(ctx context.Context, e Event) error {
		called = true
		return nil
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is emitted")
	}
}

func TestBus_EmitDeliversByType(t *testing.T) {
	bus := NewBus()

	var received atomic.Value
	bus.Subscribe(TypeFileCreated, func(ctx context.Context, e Event) error {
		received.Store(e)
		return nil
	})

	bus.Emit(NewFileCreatedEvent("exec-1", "/sc:implement auth", "auth.py", 0, "py"))
	waitBus(t, bus)

	got, ok := received.Load().(*FileCreatedEvent)
	if !ok {
		t.Fatal("Handler should have received a *FileCreatedEvent")
	}
	if got.FilePath != "auth.py" {
		t.Errorf("Expected file path 'auth.py', got '%s'", got.FilePath)
	}
	if got.Source() != "execution_agent" {
		t.Errorf("Expected default source 'execution_agent', got '%s'", got.Source())
	}
}

func TestBus_BaseCategoryReceivesEverySubtype(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var all, execution []string
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		all = append(all, e.EventType())
		return nil
	})
	bus.Subscribe(CategoryExecution, func(ctx context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		execution = append(execution, e.EventType())
		return nil
	})

	bus.Emit(NewExecutionStartedEvent("exec-1", "/sc:build", "/tmp", nil, time.Minute))
	bus.Emit(NewCommandApprovedEvent("cmd-1", "/sc:build", "auto", ""))
	bus.Emit(NewLearningCapturedEvent("s-1", "insight", "tests first", nil, 0.5, nil))
	bus.Emit(NewGeneric("", "custom.ping"))
	waitBus(t, bus)

	mu.Lock()
	defer mu.Unlock()
	if len(all) != 4 {
		t.Errorf("SubscribeAll handler should see 4 events, got %d: %v", len(all), all)
	}
	if len(execution) != 1 || execution[0] != TypeExecutionStarted {
		t.Errorf("execution handler should only see execution events, got %v", execution)
	}
}

func TestBus_SubscriptionDeliveredOnce(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	h := func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	}
	bus.Subscribe(CategoryOrchestration, h)

	bus.Emit(NewTestExecutedEvent("exec-1", "/sc:test", "", 1, 0, 0, 0))
	waitBus(t, bus)

	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
}

func TestBus_HandlerErrorDoesNotStopSiblings(t *testing.T) {
	bus := NewBus()

	var ran atomic.Int32
	bus.Subscribe(TypeCommandRejected, func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(TypeCommandRejected, func(ctx context.Context, e Event) error {
		panic("handler panic")
	})
	bus.Subscribe(TypeCommandRejected, func(ctx context.Context, e Event) error {
		ran.Add(1)
		return nil
	})

	bus.Emit(NewCommandRejectedEvent("cmd-1", "/sc:build", "user", "too risky"))
	bus.Emit(NewCommandRejectedEvent("cmd-2", "/sc:build", "user", "still risky"))
	waitBus(t, bus)

	if ran.Load() != 2 {
		t.Errorf("healthy handler should run for both events, ran %d times", ran.Load())
	}

	m := bus.Metrics()
	if m.EventsProcessed != 2 {
		t.Errorf("Expected 2 processed events, got %d", m.EventsProcessed)
	}
	if m.EventsFailed != 2 {
		t.Errorf("Expected 2 failed events, got %d", m.EventsFailed)
	}
	if m.HandlerErrors != 4 {
		t.Errorf("Expected 4 handler errors, got %d", m.HandlerErrors)
	}
}

func TestBus_FIFOAndHandlersSettleBeforeNextEvent(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var order []string
	inFlight := atomic.Int32{}
	overlap := atomic.Bool{}

	record := func(delay time.Duration) Handler {
		return func(ctx context.Context, e Event) error {
			if inFlight.Add(1) > 2 {
				overlap.Store(true)
			}
			time.Sleep(delay)
			mu.Lock()
			order = append(order, e.(*Generic).ID())
			mu.Unlock()
			inFlight.Add(-1)
			return nil
		}
	}
	bus.Subscribe("test.seq", record(5*time.Millisecond))
	bus.Subscribe("test.seq", record(time.Millisecond))

	var ids []string
	for i := 0; i < 5; i++ {
		e := NewGeneric("", "test.seq")
		ids = append(ids, e.ID())
		bus.Emit(e)
	}
	waitBus(t, bus)

	if overlap.Load() {
		t.Error("handlers of different events must not overlap")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 10 {
		t.Fatalf("Expected 10 handler calls, got %d", len(order))
	}
	for i, id := range ids {
		pair := order[2*i : 2*i+2]
		if pair[0] != id || pair[1] != id {
			t.Errorf("event %d delivered out of order: %v", i, pair)
		}
	}
}

func TestBus_EmitIsNonBlocking(t *testing.T) {
	bus := NewBus()

	release := make(chan struct{})
	bus.Subscribe("test.slow", func(ctx context.Context, e Event) error {
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		bus.Emit(NewGeneric("", "test.slow"))
		bus.Emit(NewGeneric("", "test.slow"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow handler")
	}
	close(release)
	waitBus(t, bus)
}

func TestBus_ReplayPreservesOrder(t *testing.T) {
	bus := NewBus()

	var first []string
	for i := 0; i < 3; i++ {
		e := NewGeneric(CategoryPlanning, TypePlanGenerated)
		first = append(first, e.ID())
		bus.Emit(e)
	}
	bus.Emit(NewGeneric(CategoryCommand, TypeCommandProposed))
	waitBus(t, bus)

	var mu sync.Mutex
	var replayed []string
	bus.Subscribe(TypePlanGenerated, func(ctx context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		replayed = append(replayed, e.ID())
		return nil
	})

	n := bus.Replay(func(e Event) bool { return e.EventType() == TypePlanGenerated })
	waitBus(t, bus)

	if n != 3 {
		t.Errorf("Replay should queue 3 events, queued %d", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(replayed) != 3 {
		t.Fatalf("Expected 3 replayed events, got %d", len(replayed))
	}
	for i := range first {
		if replayed[i] != first[i] {
			t.Errorf("replayed[%d] = %s, want %s", i, replayed[i], first[i])
		}
	}
	if got := len(bus.History()); got != 7 {
		t.Errorf("replayed events are re-recorded; expected history of 7, got %d", got)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	id := bus.Subscribe("test.event", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})

	if !bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return true for existing subscription")
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return false for an already removed subscription")
	}

	bus.Emit(NewGeneric("", "test.event"))
	waitBus(t, bus)

	if calls.Load() != 0 {
		t.Error("Handler should not be called after unsubscribe")
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions, got %d", bus.SubscriptionCount())
	}
}

func TestBus_MetricsAndHistory(t *testing.T) {
	bus := NewBus()
	bus.Subscribe("test.event", func(ctx context.Context, e Event) error { return nil })

	// Events without handlers are recorded but neither counted nor timed.
	bus.Emit(NewGeneric("", "test.unhandled"))
	bus.Emit(NewGeneric("", "test.event"))
	bus.Emit(NewGeneric("", "test.event"))
	waitBus(t, bus)

	m := bus.Metrics()
	if m.EventsProcessed != 2 {
		t.Errorf("Expected 2 processed, got %d", m.EventsProcessed)
	}
	if m.EventsInHistory != 3 {
		t.Errorf("Expected 3 events in history, got %d", m.EventsInHistory)
	}
	if m.HandlersRegistered != 1 {
		t.Errorf("Expected 1 handler, got %d", m.HandlersRegistered)
	}
	if m.AverageProcessingTime != m.TotalProcessingTime/2 {
		t.Errorf("average %v does not match total %v over 2 events", m.AverageProcessingTime, m.TotalProcessingTime)
	}

	bus.ClearHistory()
	if got := bus.Metrics().EventsInHistory; got != 0 {
		t.Errorf("Expected empty history after clear, got %d", got)
	}
}

func TestBus_UnhandledEventsAreNotTimed(t *testing.T) {
	bus := NewBus()
	for range 50 {
		bus.Emit(NewGeneric("", "test.unhandled"))
	}
	waitBus(t, bus)

	m := bus.Metrics()
	if m.EventsInHistory != 50 {
		t.Errorf("Expected 50 events in history, got %d", m.EventsInHistory)
	}
	if m.EventsProcessed != 0 {
		t.Errorf("Expected 0 processed, got %d", m.EventsProcessed)
	}
	if m.TotalProcessingTime != 0 || m.AverageProcessingTime != 0 {
		t.Errorf("unhandled events should not be timed, total %v average %v",
			m.TotalProcessingTime, m.AverageProcessingTime)
	}
}

func TestBus_CloseDropsNewEvents(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})
	bus.Close()
	bus.Emit(NewGeneric("", "test.event"))
	waitBus(t, bus)

	if calls.Load() != 0 {
		t.Error("events emitted after Close should be dropped")
	}
}

func TestBus_ConcurrentEmit(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				bus.Emit(NewGeneric("", "test.concurrent"))
			}
		}()
	}
	wg.Wait()
	waitBus(t, bus)

	if calls.Load() != 200 {
		t.Errorf("Expected 200 deliveries, got %d", calls.Load())
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe("a", func(ctx context.Context, e Event) error { return nil })
	bus.SubscribeAll(func(ctx context.Context, e Event) error { return nil })

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions after Clear, got %d", bus.SubscriptionCount())
	}
}
