// Package approval decides whether a proposed command may run.
//
// The core type is [Gate]. Its [Mode] picks the policy:
//
//   - [ModeAuto]: every proposal is approved
//   - [ModeConfidence]: proposals at or above the threshold are approved;
//     the rest go to the [Prompter], or are rejected when there is none
//   - [ModeManual]: every proposal goes to the [Prompter]
//
// Fallback proposals, produced when the planning agent's reply could not be
// read, never pass the confidence policy on their own.
//
// # Usage
//
//	gate, err := approval.NewGate(approval.ModeConfidence, bus,
//	    approval.WithThreshold(0.8),
//	    approval.WithPrompter(approval.NewTerminalPrompter(os.Stdin, os.Stdout)),
//	)
//
//	d, err := gate.Review(ctx, proposal)
//	if d.Approved() {
//	    // run d.Command, which may have been edited
//	}
//
// # Events
//
// Approval publishes CommandApproved. A rejection publishes CommandRejected.
// An edit publishes CommandModified followed by CommandApproved for the
// edited command.
//
// # Thread Safety
//
// All methods on [Gate] are safe for concurrent use via an internal mutex.
package approval
