// Package feedback decides whether and when to ask the user how the
// conversation went.
//
// The Gate is a small state machine: Idle → Eligible → Prompted → Resolved.
// A completed exchange with at least one retrieved result makes the gate
// eligible; after a fixed delay with no new streaming activity it prompts.
// Starting a new send cancels a pending prompt outright rather than delaying
// it. Once resolved — by submission or dismissal — the gate stays quiet for
// the rest of the session; Reset returns it to Idle.
//
// Submission is fire and forget: transport errors are logged and never reach
// the conversation state machine.
package feedback
