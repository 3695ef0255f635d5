package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	chat "github.com/zhouzirui/chat-relay/backend/internal/service/chat"
)

func TestServiceResolveOrCreateNewSession(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	id, created := svc.ResolveOrCreate(ctx, "")
	require.True(t, created)
	require.NotEmpty(t, id)

	session, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, session.ID)
	assert.Empty(t, session.Messages)
}

func TestServiceResolveOrCreateUnknownIDGetsFreshID(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	id, created := svc.ResolveOrCreate(ctx, "missing")
	require.True(t, created)
	assert.NotEqual(t, "missing", id)

	_, err := svc.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestServiceResolveOrCreateKnownSession(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	id, _ := svc.ResolveOrCreate(ctx, "")
	again, created := svc.ResolveOrCreate(ctx, id)

	assert.False(t, created)
	assert.Equal(t, id, again)
	assert.Len(t, svc.ListSessions(ctx), 1)
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := chat.NewService()

	if _, err := svc.GetSession(context.Background(), "missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestServiceAppendMessage(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()
	id, _ := svc.ResolveOrCreate(ctx, "")

	msg, err := svc.AppendMessage(ctx, id, model.RoleUser, "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	_, err = svc.AppendMessage(ctx, "missing", model.RoleUser, "hi")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)

	session, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, msg, session.Messages[0])
}

func TestServiceGetSessionReturnsSnapshot(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()
	id, _ := svc.ResolveOrCreate(ctx, "")

	snapshot, err := svc.GetSession(ctx, id)
	require.NoError(t, err)

	_, err = svc.AppendMessage(ctx, id, model.RoleUser, "hi")
	require.NoError(t, err)
	assert.Empty(t, snapshot.Messages)
}

func TestServiceListSessionsOldestFirst(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	first, _ := svc.ResolveOrCreate(ctx, "")
	second, _ := svc.ResolveOrCreate(ctx, "")

	sessions := svc.ListSessions(ctx)
	require.Len(t, sessions, 2)
	ids := []string{sessions[0].ID, sessions[1].ID}
	assert.ElementsMatch(t, []string{first, second}, ids)
	assert.False(t, sessions[1].CreatedAt.Before(sessions[0].CreatedAt))
}

func TestServiceConcurrentAppends(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()
	id, _ := svc.ResolveOrCreate(ctx, "")

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if _, err := svc.AppendMessage(ctx, id, model.RoleUser, "x"); err != nil {
					t.Errorf("AppendMessage err: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	session, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Len(t, session.Messages, writers*perWriter)
}
