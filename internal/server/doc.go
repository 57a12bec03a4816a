// Package server implements the development backend the client talks to.
//
// # Overview
//
// The backend exposes one websocket endpoint, /ws/chat, speaking the frame
// protocol the client consumes: the client sends a single request frame,
// then receives a metadata frame, a run of chunk frames, and a terminal
// complete frame (or an error frame on failure). Replies are composed from
// a keyword search over a canned laptop catalogue and streamed word by word
// with a configurable delay, so streaming behavior can be exercised without
// a model behind it.
//
// REST endpoints cover the rest of the surface:
//
//   - POST /api/chat/feedback          per-message thumbs up/down
//   - POST /api/chat/feedback/submit   conversation rating
//   - GET  /api/chat/history/{session_id}
//   - GET  /api/chat/conversations
//   - GET  /api/metrics/summary
//   - GET  /api/metrics/sessions
//   - GET  /api/metrics/session/{session_id}
//
// All activity is persisted through the store package: transcripts,
// retrieval and streaming latencies, recommended SKUs, and feedback.
package server
