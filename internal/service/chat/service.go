package chat

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

// Service owns every chat session for the lifetime of the process.
//
// The mutex only keeps the map and each transcript slice consistent. Two
// turns racing on the same session id are not ordered against each other, so
// their transcript entries may interleave.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*chat.Session
}

// NewService bootstraps an empty in-memory session store.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]*chat.Session),
	}
}

// ResolveOrCreate returns sessionID when it names a known session. Otherwise a
// fresh session is created under a new identifier and created is true.
func (s *Service) ResolveOrCreate(_ context.Context, sessionID string) (id string, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID != "" {
		if _, ok := s.sessions[sessionID]; ok {
			return sessionID, false
		}
	}

	id = uuid.NewString()
	s.sessions[id] = chat.NewSession(id)
	return id, true
}

// AppendMessage appends a transcript entry to the session.
func (s *Service) AppendMessage(_ context.Context, sessionID string, role chat.Role, content string) (chat.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.ChatMessage{}, ErrSessionNotFound
	}
	return session.Append(role, content), nil
}

// GetSession retrieves a snapshot of a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// ListSessions returns snapshots of all sessions, oldest first.
func (s *Service) ListSessions(_ context.Context) []chat.Session {
	s.mu.RLock()
	sessions := make([]chat.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}
