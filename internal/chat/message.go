// ABOUTME: Message and Session types for a single conversation
// ABOUTME: Plain data; all mutation goes through the Store

package chat

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single entry in the conversation transcript.
// Role is immutable after creation. While Streaming is true the content only
// grows by append; it is replaced wholesale exactly once when streaming ends.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
	Streaming bool      `json:"-"`
}

// NewUserMessage builds a complete user message.
func NewUserMessage(id, content string) Message {
	return Message{
		ID:        id,
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewAssistantPlaceholder builds the empty streaming message that channel
// events mutate in place until the exchange terminates.
func NewAssistantPlaceholder(id string) Message {
	return Message{
		ID:        id,
		Role:      RoleAssistant,
		CreatedAt: time.Now().UTC(),
		Streaming: true,
	}
}

// Session is a snapshot of one conversation.
type Session struct {
	ID        string
	Messages  []Message
	Streaming bool
}
