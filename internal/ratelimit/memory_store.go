package ratelimit

import (
	"context"
	"sync"
	"time"

	"admin-auth-service/internal/models"
)

// MemoryStore is an in-process CounterStore. Production uses the Redis-backed
// store; this one serves tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.RateLimitRecord
	windows map[string]time.Duration
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.RateLimitRecord),
		windows: make(map[string]time.Duration),
		now:     time.Now,
	}
}

// SetClock overrides the time source for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[key]
	if !ok || now.Sub(rec.WindowStart) >= s.windows[key] {
		// Lazily overwrite an elapsed window.
		rec = &models.RateLimitRecord{Key: key, WindowStart: now}
		s.records[key] = rec
		s.windows[key] = window
	}
	rec.Count++

	remaining := s.windows[key] - now.Sub(rec.WindowStart)
	return rec.Count, remaining, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[key]
	if !ok || now.Sub(rec.WindowStart) >= s.windows[key] {
		return 0, 0, nil
	}

	return rec.Count, s.windows[key] - now.Sub(rec.WindowStart), nil
}

func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	delete(s.windows, key)
	return nil
}
