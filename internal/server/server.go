// ABOUTME: Development backend serving the chat websocket and REST endpoints
// ABOUTME: Streams word-chunked replies over the catalogue and records metrics

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/stackpine/advisor/internal/store"
)

const defaultChunkDelay = 30 * time.Millisecond

// Options configures a Server.
type Options struct {
	Store      store.Store
	Catalog    *Catalog // nil for the built-in demo catalogue
	TopK       int
	ChunkDelay time.Duration
	Logger     *slog.Logger
}

// Server is the development backend: one websocket endpoint that streams
// chat exchanges, plus REST endpoints for feedback, history, and metrics.
type Server struct {
	store      store.Store
	catalog    *Catalog
	topK       int
	chunkDelay time.Duration
	logger     *slog.Logger
}

// New creates a Server from the given options.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}
	chunkDelay := opts.ChunkDelay
	if chunkDelay <= 0 {
		chunkDelay = defaultChunkDelay
	}
	return &Server{
		store:      opts.Store,
		catalog:    catalog,
		topK:       topK,
		chunkDelay: chunkDelay,
		logger:     logger.With("component", "server"),
	}
}

// RegisterRoutes attaches all endpoints to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/chat", s.handleChatStream)

	mux.HandleFunc("POST /api/chat/feedback", s.handleMessageFeedback)
	mux.HandleFunc("POST /api/chat/feedback/submit", s.handleConversationFeedback)
	mux.HandleFunc("GET /api/chat/history/{session_id}", s.handleHistory)
	mux.HandleFunc("GET /api/chat/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/metrics/summary", s.handleMetricsSummary)
	mux.HandleFunc("GET /api/metrics/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/metrics/session/{session_id}", s.handleSessionMetrics)
}

// ---------------------------------------------------------------- websocket

// chatRequest is the single frame a client sends after connecting.
type chatRequest struct {
	SessionID       string         `json:"session_id"`
	Message         string         `json:"message"`
	UserPreferences map[string]any `json:"user_preferences"`
}

// frame is the envelope for every server-to-client websocket message.
type frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()

	var req chatRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		conn.Close(websocket.StatusUnsupportedData, "unreadable request frame")
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		conn.Close(websocket.StatusPolicyViolation, "session_id and message are required")
		return
	}

	if err := s.streamExchange(ctx, conn, req); err != nil {
		s.logger.Error("exchange failed", "session_id", req.SessionID, "error", err)
		payload := map[string]any{
			"message": "I ran into an issue finalising that recommendation. Please try again.",
		}
		_ = wsjson.Write(ctx, conn, frame{Type: "error", Data: payload})
		conn.Close(websocket.StatusInternalError, "exchange failed")
		return
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) streamExchange(ctx context.Context, conn *websocket.Conn, req chatRequest) error {
	now := time.Now()
	userMsg := &store.StoredMessage{
		ID:        fmt.Sprintf("%s-user-%s", req.SessionID, uuid.New().String()),
		SessionID: req.SessionID,
		Role:      "user",
		Content:   req.Message,
		CreatedAt: now,
	}
	if err := s.store.LogMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("logging user message: %w", err)
	}

	prefs := EnrichPreferences(req.Message, req.UserPreferences)
	result, err := s.catalog.Search(req.Message, prefs, s.topK)
	if err != nil {
		return fmt.Errorf("searching catalogue: %w", err)
	}
	if err := s.store.RecordRetrievalLatency(ctx, req.SessionID, result.LatencyMS); err != nil {
		return fmt.Errorf("recording retrieval latency: %w", err)
	}

	metadata := map[string]any{
		"retrieval_latency_ms": result.LatencyMS,
		"filters":              result.Filters,
	}
	if err := wsjson.Write(ctx, conn, frame{Type: "metadata", Data: metadata}); err != nil {
		return fmt.Errorf("sending metadata frame: %w", err)
	}

	reply, reasoning := composeReply(req.Message, result.Products)

	llmStart := time.Now()
	for _, chunk := range chunkReply(reply) {
		if err := wsjson.Write(ctx, conn, frame{Type: "chunk", Data: chunk}); err != nil {
			return fmt.Errorf("sending chunk frame: %w", err)
		}
		select {
		case <-time.After(s.chunkDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	llmLatencyMS := float64(time.Since(llmStart).Microseconds()) / 1000

	if err := s.store.RecordLLMLatency(ctx, req.SessionID, llmLatencyMS); err != nil {
		return fmt.Errorf("recording llm latency: %w", err)
	}

	skus := make([]string, 0, len(result.Products))
	for _, p := range result.Products {
		skus = append(skus, p.SKU)
	}
	if err := s.store.RecordRecommendations(ctx, req.SessionID, skus); err != nil {
		return fmt.Errorf("recording recommendations: %w", err)
	}

	assistantMsg := &store.StoredMessage{
		ID:        fmt.Sprintf("%s-assistant-%s", req.SessionID, uuid.New().String()),
		SessionID: req.SessionID,
		Role:      "assistant",
		Content:   reply,
		CreatedAt: time.Now(),
	}
	if err := s.store.LogMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("logging assistant message: %w", err)
	}

	complete := map[string]any{
		"reply":          reply,
		"reasoning":      reasoning,
		"llm_latency_ms": llmLatencyMS,
		"products":       result.Products,
		"comparison":     nil,
	}
	if err := wsjson.Write(ctx, conn, frame{Type: "complete", Data: complete}); err != nil {
		return fmt.Errorf("sending complete frame: %w", err)
	}

	s.logger.Info("exchange complete",
		"session_id", req.SessionID,
		"products", len(result.Products),
		"llm_latency_ms", llmLatencyMS)
	return nil
}

// composeReply renders the retrieval outcome as assistant prose. This stands
// in for a model call; the wire contract is the same either way.
func composeReply(query string, products []ScoredProduct) (reply, reasoning string) {
	if len(products) == 0 {
		return "I couldn't find anything in the catalogue matching that. " +
				"Try loosening the budget or naming a different use case.",
			"No catalogue entries passed the active filters."
	}

	var b strings.Builder
	b.WriteString("Here's what I'd look at:\n")
	for i, p := range products {
		fmt.Fprintf(&b, "%d. %s by %s ($%.0f) — %s\n", i+1, p.Name, p.Vendor, p.Price, p.Description)
	}
	top := products[0]
	fmt.Fprintf(&b, "My top pick is the %s: %s, %s, and %s for $%.0f.",
		top.Name, top.CPU, top.RAM, top.Storage, top.Price)

	reasoning = fmt.Sprintf("Matched %d catalogue entries against %q; ranked by keyword overlap.",
		len(products), query)
	return b.String(), reasoning
}

// chunkReply splits a reply into word chunks, each carrying its trailing
// whitespace, so concatenating the chunks reproduces the reply byte for byte.
func chunkReply(reply string) []string {
	var chunks []string
	start := 0
	inSpace := false
	for i, r := range reply {
		isSpace := unicode.IsSpace(r)
		if inSpace && !isSpace {
			chunks = append(chunks, reply[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(reply) {
		chunks = append(chunks, reply[start:])
	}
	return chunks
}

// --------------------------------------------------------------------- REST

type messageFeedbackRequest struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Feedback  string `json:"feedback"`
}

type conversationFeedbackRequest struct {
	SessionID string `json:"session_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

func (s *Server) handleMessageFeedback(w http.ResponseWriter, r *http.Request) {
	var req messageFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.MessageID == "" {
		http.Error(w, "session_id and message_id are required", http.StatusBadRequest)
		return
	}
	if req.Feedback != "positive" && req.Feedback != "negative" {
		http.Error(w, "feedback must be positive or negative", http.StatusBadRequest)
		return
	}

	if err := s.store.RecordMessageFeedback(r.Context(), req.SessionID, req.MessageID, req.Feedback); err != nil {
		s.logger.Error("recording message feedback failed", "error", err)
		http.Error(w, "Failed to record feedback", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleConversationFeedback(w http.ResponseWriter, r *http.Request) {
	var req conversationFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		http.Error(w, "rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	history, err := s.store.SessionHistory(r.Context(), req.SessionID)
	if err != nil {
		s.logger.Error("loading session history failed", "error", err)
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}
	if len(history) == 0 {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if err := s.store.RecordConversationFeedback(r.Context(), req.SessionID, req.Rating, req.Comment); err != nil {
		s.logger.Error("recording conversation feedback failed", "error", err)
		http.Error(w, "Failed to record feedback", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok", "message": "Feedback recorded successfully"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	history, err := s.store.SessionHistory(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("loading session history failed", "error", err)
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	messages := make([]map[string]any, 0, len(history))
	for _, msg := range history {
		messages = append(messages, map[string]any{
			"id":        msg.ID,
			"role":      msg.Role,
			"content":   msg.Content,
			"timestamp": msg.CreatedAt,
		})
	}
	s.writeJSON(w, map[string]any{
		"session_id": sessionID,
		"messages":   messages,
	})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListConversations(r.Context())
	if err != nil {
		s.logger.Error("listing conversations failed", "error", err)
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []*store.ConversationSummary{}
	}
	s.writeJSON(w, summaries)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListConversations(r.Context())
	if err != nil {
		s.logger.Error("listing sessions failed", "error", err)
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	sessions := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		sessions = append(sessions, summary.SessionID)
	}
	s.writeJSON(w, map[string]any{"sessions": sessions})
}

func (s *Server) handleSessionMetrics(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	metrics, err := s.store.GetSessionMetrics(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("loading session metrics failed", "error", err)
		http.Error(w, "Failed to load session metrics", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, metrics)
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	agg, err := s.store.GetAggregateMetrics(r.Context())
	if err != nil {
		s.logger.Error("aggregating metrics failed", "error", err)
		http.Error(w, "Failed to aggregate metrics", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, agg)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response failed", "error", err)
	}
}
