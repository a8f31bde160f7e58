package state

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// MemoryStore keeps states in process memory. It backs degraded-persistence
// mode and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*ConversationState, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	m.mu.RLock()
	payload, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrStateNotFound
	}

	var st ConversationState
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (m *MemoryStore) Save(ctx context.Context, st *ConversationState) error {
	if st == nil {
		return ErrNilState
	}
	if strings.TrimSpace(st.SessionID) == "" {
		return ErrInvalidSession
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sessions[st.SessionID] = payload
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}
