package session

import (
	"context"
	"errors"

	"admin-auth-service/internal/models"
)

// ErrNotFound is returned by a Store when no session exists for a token hash.
var ErrNotFound = errors.New("session not found")

// Store persists admin sessions keyed by token hash. The plaintext token
// never reaches a Store.
type Store interface {
	Save(ctx context.Context, session models.AdminSession) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.AdminSession, error)
	Revoke(ctx context.Context, tokenHash string) error
}
