// Package store provides persistent storage for the backend using SQLite.
//
// # Architecture
//
// The Store interface covers everything the backend persists: session
// transcripts, latency measurements, product recommendations, and both
// flavors of user feedback. SQLiteStore is the single implementation.
//
// # Data Models
//
//   - StoredMessage: One logged chat message in a session transcript
//   - SessionMetrics: Per-session rollup (turn count, average latencies,
//     recommended SKUs, per-message feedback)
//   - AggregateMetrics: Fleet-wide rollup across all sessions
//   - ConversationSummary: One row of the conversation listing
//   - ConversationFeedback: A 1-5 rating of a whole conversation
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The schema is created automatically on open. Use a temporary directory
// path in tests; the parent directory is created if needed.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested record does not exist
//   - ErrDuplicateMessage: Message ID already logged
//
// All methods accept context.Context for cancellation support.
package store
