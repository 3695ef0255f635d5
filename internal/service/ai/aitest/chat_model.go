// Package aitest provides a scripted chat model for exercising the relay
// without a network upstream.
package aitest

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Call records one Stream or Generate invocation.
type Call struct {
	Messages []*schema.Message
	Options  *model.Options
}

// ChatModel streams Fragments, then fails with StreamErr if set. OpenErr fails
// the call before any fragment is produced. When Gate is set, Stream holds
// everything after the first fragment until Gate is closed.
type ChatModel struct {
	Fragments []string
	StreamErr error
	OpenErr   error
	Gate      chan struct{}

	mu    sync.Mutex
	calls []Call
}

var _ model.BaseChatModel = (*ChatModel)(nil)

// Generate implements model.BaseChatModel.
func (m *ChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.record(input, opts)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	return schema.AssistantMessage(strings.Join(m.Fragments, ""), nil), nil
}

// Stream implements model.BaseChatModel.
func (m *ChatModel) Stream(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input, opts)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}

	reader, writer := schema.Pipe[*schema.Message](len(m.Fragments) + 1)
	if m.Gate == nil {
		m.emit(writer)
	} else {
		go m.emit(writer)
	}

	return reader, nil
}

func (m *ChatModel) emit(writer *schema.StreamWriter[*schema.Message]) {
	defer writer.Close()

	for i, fragment := range m.Fragments {
		if i == 1 && m.Gate != nil {
			<-m.Gate
		}
		writer.Send(schema.AssistantMessage(fragment, nil), nil)
	}
	if m.StreamErr != nil {
		writer.Send(nil, m.StreamErr)
	}
}

// Calls returns the recorded invocations.
func (m *ChatModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *ChatModel) record(input []*schema.Message, opts []model.Option) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{
		Messages: input,
		Options:  model.GetCommonOptions(nil, opts...),
	})
}
