package mfa

import (
	"context"
	"errors"
	"sync"

	"admin-auth-service/internal/models"
)

// ErrEnrollmentNotFound is returned by a Store when the user has no MFA
// enrollment.
var ErrEnrollmentNotFound = errors.New("mfa enrollment not found")

// Store persists MFA enrollments.
type Store interface {
	Get(ctx context.Context, userID string) (*models.MFAEnrollment, error)
	Save(ctx context.Context, enrollment models.MFAEnrollment) error
	Delete(ctx context.Context, userID string) error
}

// MemoryStore keeps enrollments in-process. Tests and development use it in
// place of the Scylla repository.
type MemoryStore struct {
	mu          sync.RWMutex
	enrollments map[string]models.MFAEnrollment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{enrollments: make(map[string]models.MFAEnrollment)}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*models.MFAEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enr, ok := s.enrollments[userID]
	if !ok {
		return nil, ErrEnrollmentNotFound
	}
	codes := make([]string, len(enr.BackupCodes))
	copy(codes, enr.BackupCodes)
	enr.BackupCodes = codes
	return &enr, nil
}

func (s *MemoryStore) Save(ctx context.Context, enrollment models.MFAEnrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[enrollment.UserID] = enrollment
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.enrollments, userID)
	return nil
}
