package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/permalink-studio/pos/internal/domain"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

// SessionStore keeps checkout sessions in process memory, encoded the same
// way the Redis store encodes them.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string][]byte)}
}

func sessionKey(tenantID, terminalID string) string {
	return tenantID + "/" + terminalID
}

// Get implements repository.SessionRepository.
func (s *SessionStore) Get(_ context.Context, tenantID, terminalID string) (*domain.Checkout, error) {
	s.mu.RLock()
	raw, ok := s.sessions[sessionKey(tenantID, terminalID)]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("checkout session", terminalID)
	}
	var co domain.Checkout
	if err := json.Unmarshal(raw, &co); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &co, nil
}

// Save implements repository.SessionRepository.
func (s *SessionStore) Save(_ context.Context, co *domain.Checkout) error {
	raw, err := json.Marshal(co)
	if err != nil {
		return fmt.Errorf("encode checkout session: %w", err)
	}
	s.mu.Lock()
	s.sessions[sessionKey(co.TenantID, co.TerminalID)] = raw
	s.mu.Unlock()
	return nil
}

// Delete implements repository.SessionRepository.
func (s *SessionStore) Delete(_ context.Context, tenantID, terminalID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionKey(tenantID, terminalID))
	s.mu.Unlock()
	return nil
}
