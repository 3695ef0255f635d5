package chat

import (
	"time"

	"github.com/google/uuid"
)

// Session captures a transient anonymous conversation.
type Session struct {
	ID        string        `json:"id"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
}

// NewSession returns an empty session with the given identifier.
func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		Messages:  make([]ChatMessage, 0, 16),
		CreatedAt: time.Now().UTC(),
	}
}

// Append records a new transcript entry and returns it.
func (s *Session) Append(role Role, content string) ChatMessage {
	message := ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	s.Messages = append(s.Messages, message)
	return message
}

// Clone returns a copy whose transcript does not alias the receiver's.
func (s *Session) Clone() Session {
	messages := make([]ChatMessage, len(s.Messages))
	copy(messages, s.Messages)
	return Session{ID: s.ID, Messages: messages, CreatedAt: s.CreatedAt}
}
