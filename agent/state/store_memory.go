package state

import (
	"context"
	"sync"
)

// MemoryStore keeps encoded sessions in process memory. Loads return copies,
// so callers never share a *SessionState across turns.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*SessionState, error) {
	if _, err := sessionKey("", sessionID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	raw, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrStateNotFound
	}
	return decodeState(raw)
}

func (s *MemoryStore) Save(_ context.Context, st *SessionState) error {
	payload, err := encodeState(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[st.SessionID] = payload
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}
