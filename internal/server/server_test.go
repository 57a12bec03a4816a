// ABOUTME: Tests for the development backend
// ABOUTME: Exercises the websocket frame sequence and REST endpoints end to end

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackpine/advisor/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := New(Options{
		Store:      st,
		ChunkDelay: time.Millisecond,
	})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, st
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
}

type testFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func runExchange(t *testing.T, ts *httptest.Server, sessionID, message string) []testFrame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 20)

	err = wsjson.Write(ctx, conn, map[string]any{
		"session_id": sessionID,
		"message":    message,
	})
	require.NoError(t, err)

	var frames []testFrame
	for {
		var f testFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			break
		}
		frames = append(frames, f)
		if f.Type == "complete" || f.Type == "error" {
			break
		}
	}
	return frames
}

func TestChatStream_FrameSequence(t *testing.T) {
	ts, _ := newTestServer(t)

	frames := runExchange(t, ts, "s1", "gaming laptop under $2000")
	require.NotEmpty(t, frames)

	assert.Equal(t, "metadata", frames[0].Type)
	var metadata struct {
		RetrievalLatencyMS float64        `json:"retrieval_latency_ms"`
		Filters            map[string]any `json:"filters"`
	}
	require.NoError(t, json.Unmarshal(frames[0].Data, &metadata))
	assert.Contains(t, metadata.Filters, "price_range")

	last := frames[len(frames)-1]
	require.Equal(t, "complete", last.Type)
	var complete struct {
		Reply        string  `json:"reply"`
		Reasoning    string  `json:"reasoning"`
		LLMLatencyMS float64 `json:"llm_latency_ms"`
		Products     []struct {
			SKU   string  `json:"sku"`
			Price float64 `json:"price"`
		} `json:"products"`
	}
	require.NoError(t, json.Unmarshal(last.Data, &complete))
	assert.NotEmpty(t, complete.Reply)
	assert.NotEmpty(t, complete.Products)
	for _, p := range complete.Products {
		assert.LessOrEqual(t, p.Price, 2000.0)
	}

	// Chunks between metadata and complete reassemble into the reply
	var assembled strings.Builder
	for _, f := range frames[1 : len(frames)-1] {
		require.Equal(t, "chunk", f.Type)
		var chunk string
		require.NoError(t, json.Unmarshal(f.Data, &chunk))
		assembled.WriteString(chunk)
	}
	assert.Equal(t, complete.Reply, assembled.String())
}

func TestChatStream_PersistsTranscriptAndMetrics(t *testing.T) {
	ts, st := newTestServer(t)

	runExchange(t, ts, "s1", "cheap student laptop")

	ctx := context.Background()
	history, err := st.SessionHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "cheap student laptop", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)

	metrics, err := st.GetSessionMetrics(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TurnCount)
	assert.NotEmpty(t, metrics.RecommendedProducts)
}

func TestChatStream_RejectsEmptyMessage(t *testing.T) {
	ts, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{
		"session_id": "s1",
		"message":    "   ",
	}))

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestMessageFeedbackEndpoint(t *testing.T) {
	ts, st := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/chat/feedback", map[string]any{
		"session_id": "s1",
		"message_id": "m1",
		"feedback":   "positive",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metrics, err := st.GetSessionMetrics(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "positive", metrics.UserFeedback["m1"])
}

func TestMessageFeedbackEndpoint_RejectsBadSentiment(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/chat/feedback", map[string]any{
		"session_id": "s1",
		"message_id": "m1",
		"feedback":   "meh",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConversationFeedbackEndpoint(t *testing.T) {
	ts, st := newTestServer(t)

	// Unknown session is a 404
	resp := postJSON(t, ts.URL+"/api/chat/feedback/submit", map[string]any{
		"session_id": "ghost",
		"rating":     5,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	runExchange(t, ts, "s1", "any laptop")

	resp = postJSON(t, ts.URL+"/api/chat/feedback/submit", map[string]any{
		"session_id": "s1",
		"rating":     4,
		"comment":    "useful",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	fb, err := st.GetConversationFeedback(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, fb.Rating)
	assert.Equal(t, "useful", fb.Comment)
}

func TestConversationFeedbackEndpoint_RejectsBadRating(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/chat/feedback/submit", map[string]any{
		"session_id": "s1",
		"rating":     9,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	runExchange(t, ts, "s7", "workstation laptop")

	resp, err := http.Get(ts.URL + "/api/chat/history/s7")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		SessionID string `json:"session_id"`
		Messages  []struct {
			ID      string `json:"id"`
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "s7", body.SessionID)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "user", body.Messages[0].Role)
}

func TestConversationsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	runExchange(t, ts, "s1", "thin laptop")

	resp, err := http.Get(ts.URL + "/api/chat/conversations")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summaries []struct {
		SessionID        string `json:"session_id"`
		MessageCount     int    `json:"message_count"`
		FirstUserMessage string `json:"first_user_message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "s1", summaries[0].SessionID)
	assert.Equal(t, 2, summaries[0].MessageCount)
	assert.Equal(t, "thin laptop", summaries[0].FirstUserMessage)
}

func TestSessionMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	runExchange(t, ts, "s1", "gaming laptop")

	resp, err := http.Get(ts.URL + "/api/metrics/session/s1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var metrics struct {
		SessionID           string   `json:"session_id"`
		TurnCount           int      `json:"turn_count"`
		RetrievalLatencyMS  float64  `json:"retrieval_latency_ms"`
		RecommendedProducts []string `json:"recommended_products"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&metrics))
	assert.Equal(t, "s1", metrics.SessionID)
	assert.Equal(t, 1, metrics.TurnCount)
	assert.NotEmpty(t, metrics.RecommendedProducts)
}

func TestSessionMetricsEndpoint_UnknownSession(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/metrics/session/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	runExchange(t, ts, "s1", "gaming laptop")
	runExchange(t, ts, "s2", "student laptop")

	resp, err := http.Get(ts.URL + "/api/metrics/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sessions []string `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.ElementsMatch(t, []string{"s1", "s2"}, body.Sessions)
}

func TestMetricsSummaryEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	runExchange(t, ts, "s1", "gaming laptop")

	resp, err := http.Get(ts.URL + "/api/metrics/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var agg struct {
		TotalSessions           int      `json:"total_sessions"`
		AverageTurns            float64  `json:"average_turns"`
		MostRecommendedProducts []string `json:"most_recommended_products"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&agg))
	assert.Equal(t, 1, agg.TotalSessions)
	assert.Equal(t, 1.0, agg.AverageTurns)
	assert.NotEmpty(t, agg.MostRecommendedProducts)
}
