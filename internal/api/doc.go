// Package api is the HTTP client for the assistant backend's REST surface:
// feedback submission, history rehydration, and conversation summaries.
// The streaming conversation itself never goes through here — that is the
// websocket protocol owned by the stream package.
package api
