package chat

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the roles accepted by the relay.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is a transient role/content pair used to shape upstream requests.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatMessage is one persisted transcript entry.
type ChatMessage struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
}

// chatMessageJSON keeps the wire timestamp as float seconds since the epoch.
type chatMessageJSON struct {
	ID        string  `json:"id"`
	Role      Role    `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(chatMessageJSON{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: float64(m.Timestamp.UnixNano()) / float64(time.Second),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw chatMessageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.ID = raw.ID
	m.Role = raw.Role
	m.Content = raw.Content
	m.Timestamp = time.Unix(0, int64(raw.Timestamp*float64(time.Second)))
	return nil
}
