// Package orchestrator drives one objective through the loop
//
//	plan -> propose -> review -> validate -> execute -> analyze -> next
//
// until the planner has nothing further to propose.
//
// [Orchestrator.Run] wires the pieces together through small interfaces:
// a [Planner] (the planning coordinator), a [Runner] (the command
// executor), a [Reviewer] (the approval gate) and any number of
// [ContextObserver]s such as the feedback loop.
//
// A proposal that fails validation or cannot be started is not fatal. It
// becomes a failed result that the planner analyzes like any other, so a
// recovery can be proposed. A recovery retries the current step number.
//
// Runs end as completed, failed or cancelled. A rejected command cancels
// the run. The step limit counts every attempt, recoveries included.
package orchestrator
