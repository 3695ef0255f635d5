package chat

// ChatRequest is the payload accepted by both the HTTP and WebSocket endpoints.
type ChatRequest struct {
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
}

// ChatResponse is returned by the request/response endpoint.
type ChatResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// Event is one item of a generation stream. Exactly one event per turn has
// Finished set, and it is always the last.
type Event struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	Finished  bool   `json:"finished"`
}

// Input is a client payload resolved to either a single text turn or a full
// conversation history.
type Input interface {
	// Messages returns the ordered messages to send upstream.
	Messages() []Message
	isInput()
}

// TextInput carries only the newest user text.
type TextInput struct {
	Text string
}

func (TextInput) isInput() {}

// Messages implements Input.
func (in TextInput) Messages() []Message {
	return []Message{{Role: RoleUser, Content: in.Text}}
}

// HistoryInput carries a caller-supplied conversation, newest turn last.
type HistoryInput struct {
	History []Message
}

func (HistoryInput) isInput() {}

// Messages implements Input.
func (in HistoryInput) Messages() []Message {
	return append([]Message(nil), in.History...)
}

// Input resolves the request into its canonical form. A non-empty history
// list wins over the plain text field.
func (r ChatRequest) Input() Input {
	if len(r.Messages) > 0 {
		return HistoryInput{History: r.Messages}
	}
	return TextInput{Text: r.Message}
}
