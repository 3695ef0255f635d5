package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/chat-relay/backend/internal/config"
	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

var (
	ErrNoMessages  = errors.New("at least one message is required")
	ErrInvalidRole = errors.New("message role must be user, assistant or system")
)

// SessionStore is the subset of the session store used by the pipeline.
type SessionStore interface {
	ResolveOrCreate(ctx context.Context, sessionID string) (string, bool)
	AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string) (chat.ChatMessage, error)
}

// Generator produces the event stream for one conversational turn.
type Generator interface {
	Generate(ctx context.Context, messages []chat.Message, sessionID string) (*schema.StreamReader[chat.Event], error)
}

// Service relays chat turns to the upstream model and records transcripts.
type Service struct {
	chatModel model.BaseChatModel
	sessions  SessionStore
	cfg       config.AIConfig
}

var _ Generator = (*Service)(nil)

// NewService creates a new AI service backed by the configured upstream model.
func NewService(ctx context.Context, sessions SessionStore, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(chatModel, sessions, cfg), nil
}

// NewServiceWithModel creates a service around an existing chat model.
func NewServiceWithModel(chatModel model.BaseChatModel, sessions SessionStore, cfg config.AIConfig) *Service {
	return &Service{
		chatModel: chatModel,
		sessions:  sessions,
		cfg:       cfg,
	}
}

// Generate records the newest turn, starts the upstream stream and returns a
// reader of events. The reader always yields at least one event and the last
// one has Finished set. Callers should Close the reader when done; closing
// early stops delivery but not the upstream call, whose result is still
// recorded.
func (s *Service) Generate(ctx context.Context, messages []chat.Message, sessionID string) (*schema.StreamReader[chat.Event], error) {
	if err := validateMessages(messages); err != nil {
		return nil, err
	}

	sessionID, created := s.sessions.ResolveOrCreate(ctx, sessionID)
	if created {
		log.Printf("[ai] created session=%s", sessionID)
	}

	latest := messages[len(messages)-1]
	if _, err := s.sessions.AppendMessage(ctx, sessionID, latest.Role, latest.Content); err != nil {
		return nil, fmt.Errorf("failed to record %s message: %w", latest.Role, err)
	}

	input := s.buildUpstreamMessages(messages)

	reader, writer := schema.Pipe[chat.Event](1)
	go s.produce(context.WithoutCancel(ctx), sessionID, input, writer)

	return reader, nil
}

// produce drives one upstream call and feeds the writer until the turn ends.
func (s *Service) produce(ctx context.Context, sessionID string, input []*schema.Message, writer *schema.StreamWriter[chat.Event]) {
	defer writer.Close()

	detached := false
	emit := func(event chat.Event) {
		if detached {
			return
		}
		if closed := writer.Send(event, nil); closed {
			detached = true
			log.Printf("[ai] consumer left session=%s, draining upstream", sessionID)
		}
	}

	response, err := s.streamUpstream(ctx, input, func(fragment string) {
		emit(chat.Event{SessionID: sessionID, Content: fragment})
	})
	if err != nil {
		errorText := fmt.Sprintf("An error occurred: %v", err)
		s.record(ctx, sessionID, errorText)
		log.Printf("[ai] upstream failed for session=%s: %v", sessionID, err)
		emit(chat.Event{SessionID: sessionID, Content: errorText, Finished: true})
		return
	}

	s.record(ctx, sessionID, response)
	log.Printf("[ai] generated response for session=%s, length=%d", sessionID, len(response))
	emit(chat.Event{SessionID: sessionID, Finished: true})
}

// streamUpstream calls the model and hands every non-empty fragment to
// onFragment in arrival order. It returns the concatenated response.
func (s *Service) streamUpstream(ctx context.Context, input []*schema.Message, onFragment func(string)) (string, error) {
	var opts []model.Option
	if s.cfg.Model != "" {
		opts = append(opts, model.WithModel(s.cfg.Model))
	}

	stream, err := s.chatModel.Stream(ctx, input, opts...)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			return builder.String(), nil
		}
		if recvErr != nil {
			return "", recvErr
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		builder.WriteString(chunk.Content)
		onFragment(chunk.Content)
	}
}

func (s *Service) record(ctx context.Context, sessionID, content string) {
	if _, err := s.sessions.AppendMessage(ctx, sessionID, chat.RoleAssistant, content); err != nil {
		log.Printf("[ai] failed to save assistant message for session=%s: %v", sessionID, err)
	}
}

// buildUpstreamMessages projects the input onto role/content pairs and
// prepends the configured system prompt unless one is already present.
func (s *Service) buildUpstreamMessages(messages []chat.Message) []*schema.Message {
	upstream := make([]*schema.Message, 0, len(messages)+1)
	hasSystem := false

	for _, msg := range messages {
		if msg.Role == chat.RoleSystem {
			hasSystem = true
		}
		upstream = append(upstream, &schema.Message{
			Role:    toSchemaRole(msg.Role),
			Content: msg.Content,
		})
	}

	if !hasSystem {
		upstream = append([]*schema.Message{schema.SystemMessage(s.cfg.SystemPrompt)}, upstream...)
	}
	return upstream
}

func toSchemaRole(role chat.Role) schema.RoleType {
	switch role {
	case chat.RoleSystem:
		return schema.System
	case chat.RoleAssistant:
		return schema.Assistant
	default:
		return schema.User
	}
}

func validateMessages(messages []chat.Message) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("message %d has role %q: %w", i, msg.Role, ErrInvalidRole)
		}
	}
	return nil
}
