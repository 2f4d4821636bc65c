// Package event provides the orchestration event bus and the event taxonomy
// exchanged between the planning agent, the execution pipeline, the approval
// gate and the learning loop.
//
// Components publish what happened without knowing who listens; UI,
// telemetry and persistence collaborators subscribe without knowing who
// produces.
//
// # Main Types
//
//   - [Event]: envelope interface (ID, type, timestamp, source, metadata, categories)
//   - [Bus]: asynchronous FIFO dispatcher with history, replay and metrics
//   - [Handler]: func(context.Context, Event) error
//
// # Categories
//
// Every event lists the categories it belongs to, from the most general to
// its own type:
//
//	orchestration -> execution -> execution.file_created
//
// Subscribing to a category delivers every event that lists it, so a
// handler registered for [CategoryOrchestration] sees everything and one
// registered for [CategoryExecution] sees every execution event.
//
// Families:
//   - planning: objective submitted/analyzed/completed, plan generated,
//     result analyzed, next step and recovery proposed
//   - command: proposed, approved, rejected, modified, validated
//   - execution: started, output, progress, file created/modified, test
//     executed, completed, failed, metadata extracted
//   - feedback: cycle started/completed, pattern detected/applied, learning
//     captured, context updated, metrics calculated
//
// # Delivery
//
// [Bus.Emit] queues and returns. A single drain goroutine delivers events in
// emission order; handlers for one event run concurrently and the next event
// waits for all of them. Handler errors and panics are counted in
// [Bus.Metrics] and logged, never propagated.
//
// # Basic Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//
//	bus.Subscribe(event.TypeFileCreated, func(ctx context.Context, e event.Event) error {
//	    created := e.(*event.FileCreatedEvent)
//	    fmt.Println("created", created.FilePath)
//	    return nil
//	})
//
//	bus.Emit(event.NewFileCreatedEvent(execID, cmd, "auth.py", 0, "py"))
//	_ = bus.Wait(ctx)
//
//	// Hand everything that already happened to a late subscriber.
//	bus.Replay(nil)
package event
