// ABOUTME: Storage interface and domain types for backend persistence
// ABOUTME: Covers session history, latency metrics, recommendations, and feedback

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record doesn't exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateMessage is returned when a message ID already exists
var ErrDuplicateMessage = errors.New("message already exists")

// StoredMessage is one logged chat message in a session transcript
type StoredMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// ConversationFeedback is a user's rating of a whole conversation
type ConversationFeedback struct {
	SessionID           string    `json:"session_id"`
	Rating              int       `json:"rating"`
	Comment             string    `json:"comment,omitempty"`
	ProductsRecommended []string  `json:"products_recommended"`
	CreatedAt           time.Time `json:"created_at"`
}

// ConversationSummary describes one session for the conversation listing
type ConversationSummary struct {
	SessionID           string                `json:"session_id"`
	StartedAt           time.Time             `json:"started_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
	MessageCount        int                   `json:"message_count"`
	ProductsRecommended []string              `json:"products_recommended"`
	Feedback            *ConversationFeedback `json:"feedback,omitempty"`
	FirstUserMessage    string                `json:"first_user_message,omitempty"`
}

// SessionMetrics is the per-session rollup: turn count plus average latencies
type SessionMetrics struct {
	SessionID           string            `json:"session_id"`
	TurnCount           int               `json:"turn_count"`
	RetrievalLatencyMS  float64           `json:"retrieval_latency_ms"`
	LLMLatencyMS        float64           `json:"llm_latency_ms"`
	RecommendedProducts []string          `json:"recommended_products"`
	UserFeedback        map[string]string `json:"user_feedback"`
	StartedAt           time.Time         `json:"started_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// AggregateMetrics is the fleet-wide rollup across all sessions.
// PositiveFeedbackRatio is nil when no per-message feedback has been recorded.
type AggregateMetrics struct {
	TotalSessions             int      `json:"total_sessions"`
	AverageTurns              float64  `json:"average_turns"`
	AverageRetrievalLatencyMS float64  `json:"average_retrieval_latency_ms"`
	AverageLLMLatencyMS       float64  `json:"average_llm_latency_ms"`
	MostRecommendedProducts   []string `json:"most_recommended_products"`
	PositiveFeedbackRatio     *float64 `json:"positive_feedback_ratio"`
}

// Store persists session transcripts, latency metrics, recommendations,
// and feedback for the backend
type Store interface {
	// LogMessage appends a message to a session's transcript.
	// Returns ErrDuplicateMessage if the message ID already exists.
	LogMessage(ctx context.Context, msg *StoredMessage) error

	// SessionHistory returns a session's messages in chronological order.
	// An unknown session yields an empty slice, not an error.
	SessionHistory(ctx context.Context, sessionID string) ([]*StoredMessage, error)

	// RecordRetrievalLatency logs one retrieval timing for a session
	RecordRetrievalLatency(ctx context.Context, sessionID string, latencyMS float64) error

	// RecordLLMLatency logs one model-call timing for a session
	RecordLLMLatency(ctx context.Context, sessionID string, latencyMS float64) error

	// RecordRecommendations logs product SKUs surfaced in a session
	RecordRecommendations(ctx context.Context, sessionID string, skus []string) error

	// RecordMessageFeedback stores a thumbs-up/down on one assistant message.
	// A repeat submission for the same message replaces the earlier one.
	RecordMessageFeedback(ctx context.Context, sessionID, messageID, feedback string) error

	// RecordConversationFeedback stores a rating for a whole conversation,
	// replacing any earlier rating for the same session
	RecordConversationFeedback(ctx context.Context, sessionID string, rating int, comment string) error

	// GetConversationFeedback returns a session's conversation rating.
	// Returns ErrNotFound if none has been recorded.
	GetConversationFeedback(ctx context.Context, sessionID string) (*ConversationFeedback, error)

	// ListConversations returns summaries of all sessions, most recent first
	ListConversations(ctx context.Context) ([]*ConversationSummary, error)

	// GetSessionMetrics returns the rollup for one session.
	// Returns ErrNotFound for a session with no recorded activity.
	GetSessionMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error)

	// GetAggregateMetrics returns the rollup across all sessions
	GetAggregateMetrics(ctx context.Context) (*AggregateMetrics, error)

	// Close releases the underlying storage
	Close() error
}
