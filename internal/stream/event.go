// ABOUTME: Event union delivered by a streaming channel, one variant per frame kind
// ABOUTME: Payload types mirror the backend's wire shapes

package stream

// EventKind discriminates the variants of an Event.
type EventKind int

const (
	EventChunk EventKind = iota
	EventMetadata
	EventComplete
	EventFailure
)

// Event is one decoded occurrence on a streaming channel. Exactly the payload
// matching Kind is set.
type Event struct {
	Kind     EventKind
	Text     string           // EventChunk
	Metadata *MetadataPayload // EventMetadata
	Complete *CompletePayload // EventComplete
	Failure  *FailurePayload  // EventFailure
}

// Terminal reports whether the event ends the exchange.
func (e Event) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventFailure
}

// MetadataPayload carries sidecar diagnostics delivered before completion.
type MetadataPayload struct {
	RetrievalLatencyMS *float64       `json:"retrieval_latency_ms,omitempty"`
	Filters            map[string]any `json:"filters,omitempty"`
}

// CompletePayload is the terminal success payload.
type CompletePayload struct {
	Reply        string         `json:"reply"`
	Reasoning    *string        `json:"reasoning,omitempty"`
	Products     []ProductRef   `json:"products"`
	LLMLatencyMS *float64       `json:"llm_latency_ms,omitempty"`
	Comparison   *ComparisonRef `json:"comparison,omitempty"`
}

// FailurePayload is the terminal failure payload. Transport is set when the
// failure was synthesized from a dropped connection rather than received as
// an explicit error frame.
type FailurePayload struct {
	Message   string `json:"message,omitempty"`
	Transport bool   `json:"-"`
}

// ProductRef is a retrieved catalogue entry surfaced alongside a reply.
type ProductRef struct {
	SKU         string   `json:"sku"`
	Vendor      string   `json:"vendor,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	CPU         string   `json:"cpu,omitempty"`
	GPU         string   `json:"gpu,omitempty"`
	RAM         string   `json:"ram,omitempty"`
	Storage     string   `json:"storage,omitempty"`
	Price       float64  `json:"price"`
	Similarity  float64  `json:"similarity,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	Highlights  []string `json:"highlights,omitempty"`
}

// ComparisonRef summarizes a head-to-head between the top recommendations.
type ComparisonRef struct {
	Summary   string `json:"comparison_summary"`
	Reasoning string `json:"recommendation_reasoning,omitempty"`
}
