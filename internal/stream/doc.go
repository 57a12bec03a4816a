// Package stream owns the duplex channel to the assistant backend.
//
// # Overview
//
// One websocket connection is opened per exchange. The Dialer writes the
// single request frame and hands back a Handle whose Events channel delivers
// a strictly ordered sequence of zero or more chunk/metadata events followed
// by exactly one terminal event (complete or failure). After the terminal
// event the channel is closed and the transport released.
//
// # Frame handling
//
// Inbound frames are JSON discriminated by a "type" field:
//
//   - chunk: incremental reply text, appended verbatim
//   - metadata: sidecar diagnostics, merged non-terminally
//   - complete: terminal success with the final reply payload
//   - error: terminal failure with an optional message
//
// A frame that fails to decode is dropped and counted; the exchange only
// escalates to a failure after maxConsecutiveParseFailures undecodable frames
// in a row. Transport loss before a terminal frame synthesizes a failure with
// Transport set, so callers can tell "connection died" from "server said no".
//
// # Cancellation
//
// Handle.Cancel is idempotent and safe after termination. Once cancelled, no
// further event is delivered, including frames already decoded and in flight.
package stream
