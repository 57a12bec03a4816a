// ABOUTME: Wire frame decoding for the chat streaming protocol
// ABOUTME: JSON frames discriminated by "type"; bad frames are reported, not fatal

package stream

import (
	"encoding/json"
	"fmt"
)

// Frame type discriminators used on the wire.
const (
	frameChunk    = "chunk"
	frameMetadata = "metadata"
	frameComplete = "complete"
	frameError    = "error"
)

// frame is the outer envelope of every server frame.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// decodeFrame parses a raw websocket text message into an Event.
// Errors here mean the frame is unusable; the caller decides whether to drop
// it or escalate.
func decodeFrame(raw []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Event{}, fmt.Errorf("decoding frame envelope: %w", err)
	}

	switch f.Type {
	case frameChunk:
		var text string
		if err := json.Unmarshal(f.Data, &text); err != nil {
			return Event{}, fmt.Errorf("decoding chunk data: %w", err)
		}
		return Event{Kind: EventChunk, Text: text}, nil

	case frameMetadata:
		var meta MetadataPayload
		if err := json.Unmarshal(f.Data, &meta); err != nil {
			return Event{}, fmt.Errorf("decoding metadata data: %w", err)
		}
		return Event{Kind: EventMetadata, Metadata: &meta}, nil

	case frameComplete:
		var payload CompletePayload
		if err := json.Unmarshal(f.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("decoding complete data: %w", err)
		}
		return Event{Kind: EventComplete, Complete: &payload}, nil

	case frameError:
		var payload FailurePayload
		if err := json.Unmarshal(f.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("decoding error data: %w", err)
		}
		return Event{Kind: EventFailure, Failure: &payload}, nil

	default:
		return Event{}, fmt.Errorf("unknown frame type %q", f.Type)
	}
}
