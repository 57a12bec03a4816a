// ABOUTME: REST client tests against httptest servers
// ABOUTME: Verifies paths, bodies, and error mapping

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackpine/advisor/internal/chat"
)

func TestClient_SubmitMessageFeedback(t *testing.T) {
	var got MessageFeedback
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/feedback", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	err := c.SubmitMessageFeedback(context.Background(), MessageFeedback{
		SessionID: "s1",
		MessageID: "m1",
		Feedback:  "positive",
	})

	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "m1", got.MessageID)
	assert.Equal(t, "positive", got.Feedback)
}

func TestClient_SubmitConversationFeedback(t *testing.T) {
	var got ConversationFeedback
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/feedback/submit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	err := c.SubmitConversationFeedback(context.Background(), "s1", 5, "great")

	require.NoError(t, err)
	assert.Equal(t, 5, got.Rating)
	assert.Equal(t, "great", got.Comment)
}

func TestClient_FetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/history/sess-42", r.URL.Path)
		json.NewEncoder(w).Encode(historyResponse{
			SessionID: "sess-42",
			Messages: []chat.Message{
				{ID: "m1", Role: chat.RoleUser, Content: "hi"},
				{ID: "m2", Role: chat.RoleAssistant, Content: "hello"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	msgs, err := c.FetchHistory(context.Background(), "sess-42")

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[1].Content)
}

func TestClient_FetchHistoryNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Session not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.FetchHistory(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_ListConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/conversations", r.URL.Path)
		json.NewEncoder(w).Encode([]ConversationSummary{
			{
				SessionID:        "s1",
				MessageCount:     4,
				Feedback:         &ConversationFeedback{SessionID: "s1", Rating: 4},
				FirstUserMessage: "hi",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	convs, err := c.ListConversations(context.Background())

	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "s1", convs[0].SessionID)
	require.NotNil(t, convs[0].Feedback)
	assert.Equal(t, 4, convs[0].Feedback.Rating)
}

func TestClient_ServerErrorIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	err := c.SubmitConversationFeedback(context.Background(), "s", 1, "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "boom")
}
