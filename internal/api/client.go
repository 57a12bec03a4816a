// ABOUTME: REST client for the backend's feedback and history endpoints
// ABOUTME: Thin wrapper over net/http with JSON bodies and sentinel errors

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stackpine/advisor/internal/chat"
)

// ErrNotFound is returned when the backend has no record of the requested
// session.
var ErrNotFound = errors.New("not found")

const defaultTimeout = 10 * time.Second

// Client talks to the backend's REST endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client for the given base URL (scheme://host[:port]).
// Pass nil logger for the default.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger.With("component", "api"),
	}
}

// MessageFeedback is sentiment on a single assistant message.
type MessageFeedback struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Feedback  string `json:"feedback"` // "positive" or "negative"
}

// ConversationFeedback is a 1-5 rating for a whole conversation.
type ConversationFeedback struct {
	SessionID string `json:"session_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
}

// ConversationSummary describes a past conversation. Feedback is nil for
// conversations that were never rated.
type ConversationSummary struct {
	SessionID           string                `json:"session_id"`
	StartedAt           time.Time             `json:"started_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
	MessageCount        int                   `json:"message_count"`
	ProductsRecommended []string              `json:"products_recommended"`
	Feedback            *ConversationFeedback `json:"feedback,omitempty"`
	FirstUserMessage    string                `json:"first_user_message,omitempty"`
}

type historyResponse struct {
	SessionID string         `json:"session_id"`
	Messages  []chat.Message `json:"messages"`
}

// SubmitMessageFeedback records thumbs up/down for one message.
func (c *Client) SubmitMessageFeedback(ctx context.Context, fb MessageFeedback) error {
	return c.post(ctx, "/api/chat/feedback", fb)
}

// SubmitConversationFeedback records a rating for the whole conversation.
// Implements the feedback gate's Submitter interface.
func (c *Client) SubmitConversationFeedback(ctx context.Context, sessionID string, rating int, comment string) error {
	return c.post(ctx, "/api/chat/feedback/submit", ConversationFeedback{
		SessionID: sessionID,
		Rating:    rating,
		Comment:   comment,
	})
}

// FetchHistory rehydrates the stored transcript for a session.
func (c *Client) FetchHistory(ctx context.Context, sessionID string) ([]chat.Message, error) {
	var resp historyResponse
	if err := c.get(ctx, "/api/chat/history/"+url.PathEscape(sessionID), &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ListConversations returns summaries of all recorded conversations.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var out []ConversationSummary
	if err := c.get(ctx, "/api/chat/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	return c.checkStatus(path, resp)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(path, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) checkStatus(path string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode >= 400:
		// Bounded read; error bodies are small JSON or plain text.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: unexpected status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		return nil
	}
}
