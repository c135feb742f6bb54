package chatlog

import (
	"context"
	"sort"
	"sync"

	"juris-rag/internal/model"
)

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   uint
	sessions map[string][]model.Message
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]model.Message)}
}

func (s *MemoryStore) Create(_ context.Context, message *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	message.ID = s.nextID
	s.sessions[message.SessionID] = append(s.sessions[message.SessionID], *message)
	return nil
}

func (s *MemoryStore) ListBySessionID(_ context.Context, sessionID string, limit int) ([]model.Message, error) {
	s.mu.RLock()
	messages := append([]model.Message(nil), s.sessions[sessionID]...)
	s.mu.RUnlock()

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}
