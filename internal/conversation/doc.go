// Package conversation orchestrates one exchange at a time between the
// message store and a streaming channel.
//
// # Overview
//
// Send appends the user message and an empty streaming assistant placeholder,
// opens a channel, and wires its events into store mutations: chunks append,
// metadata merges, a terminal event finalizes or fails the placeholder and
// releases the send guard. A send while an exchange is in flight is silently
// dropped — that is a UI-debouncing concern, not an error.
//
// The controller retains the live handle so Reset (or teardown) can cancel
// it. Late events from a cancelled exchange are doubly fenced: the store
// ignores mutations for unknown message IDs, and session-level effects are
// gated on a generation counter that Reset bumps.
//
// Terminal failures never propagate to the caller of Send; they resolve into
// the placeholder's content plus LastError.
package conversation
