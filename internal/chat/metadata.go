// ABOUTME: ExchangeMetadata accumulates sidecar diagnostics for one exchange
// ABOUTME: Field-wise merge only; later events never erase earlier fields

package chat

// ExchangeMetadata collects the optional diagnostics delivered alongside an
// assistant reply. Fields arrive incrementally from metadata and complete
// frames and are merged one at a time.
type ExchangeMetadata struct {
	RetrievalLatencyMS *float64
	LLMLatencyMS       *float64
	Filters            map[string]any
	ResultCount        *int
}

// Merge folds other into m. A field is overwritten only when other supplies a
// value for it; filters are merged key by key.
func (m *ExchangeMetadata) Merge(other ExchangeMetadata) {
	if other.RetrievalLatencyMS != nil {
		m.RetrievalLatencyMS = other.RetrievalLatencyMS
	}
	if other.LLMLatencyMS != nil {
		m.LLMLatencyMS = other.LLMLatencyMS
	}
	if other.ResultCount != nil {
		m.ResultCount = other.ResultCount
	}
	if len(other.Filters) > 0 {
		if m.Filters == nil {
			m.Filters = make(map[string]any, len(other.Filters))
		}
		for k, v := range other.Filters {
			m.Filters[k] = v
		}
	}
}
