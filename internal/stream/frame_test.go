// ABOUTME: Table tests for wire frame decoding
// ABOUTME: Valid frames map to the right Event variant; junk is an error, not a panic

package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame_Chunk(t *testing.T) {
	ev, err := decodeFrame([]byte(`{"type":"chunk","data":"Here are"}`))
	require.NoError(t, err)

	assert.Equal(t, EventChunk, ev.Kind)
	assert.Equal(t, "Here are", ev.Text)
	assert.False(t, ev.Terminal())
}

func TestDecodeFrame_Metadata(t *testing.T) {
	ev, err := decodeFrame([]byte(`{"type":"metadata","data":{"retrieval_latency_ms":120,"filters":{"price_max":1000}}}`))
	require.NoError(t, err)

	assert.Equal(t, EventMetadata, ev.Kind)
	require.NotNil(t, ev.Metadata)
	require.NotNil(t, ev.Metadata.RetrievalLatencyMS)
	assert.Equal(t, 120.0, *ev.Metadata.RetrievalLatencyMS)
	assert.Equal(t, 1000.0, ev.Metadata.Filters["price_max"])
}

func TestDecodeFrame_Complete(t *testing.T) {
	raw := `{"type":"complete","data":{"reply":"Two options.","reasoning":null,"products":[{"sku":"LT-100","name":"Apex 14","price":899}],"llm_latency_ms":300,"comparison":null}}`
	ev, err := decodeFrame([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, EventComplete, ev.Kind)
	assert.True(t, ev.Terminal())
	require.NotNil(t, ev.Complete)
	assert.Equal(t, "Two options.", ev.Complete.Reply)
	assert.Nil(t, ev.Complete.Reasoning)
	require.Len(t, ev.Complete.Products, 1)
	assert.Equal(t, "LT-100", ev.Complete.Products[0].SKU)
	assert.Equal(t, 300.0, *ev.Complete.LLMLatencyMS)
	assert.Nil(t, ev.Complete.Comparison)
}

func TestDecodeFrame_Error(t *testing.T) {
	ev, err := decodeFrame([]byte(`{"type":"error","data":{"message":"rate limited"}}`))
	require.NoError(t, err)

	assert.Equal(t, EventFailure, ev.Kind)
	assert.True(t, ev.Terminal())
	assert.Equal(t, "rate limited", ev.Failure.Message)
	assert.False(t, ev.Failure.Transport)
}

func TestDecodeFrame_ErrorWithoutMessage(t *testing.T) {
	ev, err := decodeFrame([]byte(`{"type":"error","data":{}}`))
	require.NoError(t, err)

	assert.Equal(t, EventFailure, ev.Kind)
	assert.Empty(t, ev.Failure.Message)
}

func TestDecodeFrame_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `this is not json`},
		{"unknown type", `{"type":"telemetry","data":{}}`},
		{"chunk with object data", `{"type":"chunk","data":{"text":"nope"}}`},
		{"metadata with string data", `{"type":"metadata","data":"nope"}`},
		{"complete with array data", `{"type":"complete","data":[1,2,3]}`},
		{"empty object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeFrame([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}
