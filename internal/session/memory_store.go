package session

import (
	"context"
	"sync"

	"admin-auth-service/internal/models"
)

// MemoryStore keeps sessions in-process. Tests and development use it in
// place of the Redis store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.AdminSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.AdminSession)}
}

func (s *MemoryStore) Save(ctx context.Context, session models.AdminSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.TokenHash] = session
	return nil
}

func (s *MemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (*models.AdminSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return ErrNotFound
	}
	sess.Revoked = true
	s.sessions[tokenHash] = sess
	return nil
}
