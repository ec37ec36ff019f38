package audit

import (
	"context"
	"sync"
	"time"

	"admin-auth-service/internal/models"
)

// MemoryStore keeps events in-process. Tests and development use it in place
// of the ClickHouse store.
type MemoryStore struct {
	mu     sync.RWMutex
	events []models.SecurityEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, event models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) RecentByUser(ctx context.Context, userID string, since time.Time) ([]models.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.SecurityEvent
	for _, ev := range s.events {
		if ev.UserID == userID && !ev.EventTime.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) RecentByIP(ctx context.Context, clientIP string, since time.Time) ([]models.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.SecurityEvent
	for _, ev := range s.events {
		if ev.ClientIP == clientIP && !ev.EventTime.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// All returns a copy of every stored event, newest last.
func (s *MemoryStore) All() []models.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SecurityEvent, len(s.events))
	copy(out, s.events)
	return out
}
