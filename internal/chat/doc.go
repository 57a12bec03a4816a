// Package chat holds the in-memory conversation state shared between the
// conversation controller and whatever renders it.
//
// # Overview
//
// A Store owns exactly one Session: an ordered sequence of Messages plus a
// streaming flag. The controller is the only mutator; readers take snapshots.
// The Store enforces the session invariants:
//
//   - message IDs are unique within the session
//   - at most one message is streaming at a time, and it is always the most
//     recently appended assistant message
//   - the session streaming flag is true iff such a message exists
//
// Mutate is deliberately a silent no-op for unknown IDs. A cancelled or reset
// session can race with late channel events, and those must land nowhere.
//
// ExchangeMetadata accumulates the sidecar diagnostics (retrieval latency,
// generation latency, applied filters) for the current exchange. Merging is
// field-wise only, so a later event never erases a field set by an earlier one
// unless it carries a replacement value.
package chat
