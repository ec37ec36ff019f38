package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/util"
)

// ErrInvalidSession covers every validation failure: unknown token, expired
// session, revoked session. Callers get no finer distinction.
var ErrInvalidSession = errors.New("invalid session")

const tokenBytes = 32

// Manager issues and validates admin session tokens. Sessions have a fixed
// lifetime from creation; validation never extends it.
type Manager struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(store Store, ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Create mints a new session and returns the plaintext token exactly once.
// Only the token's hash is stored.
func (m *Manager) Create(ctx context.Context, userID, clientIP, userAgent string) (string, *models.AdminSession, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := m.now().UTC()
	sess := models.AdminSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: hashing.HashSessionToken(token),
		ClientIP:  clientIP,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.store.Save(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.logger.Info("admin session created",
		util.String("session_id", sess.ID),
		util.String("user_id", userID),
		util.String("client_ip", clientIP))

	return token, &sess, nil
}

// Validate resolves a plaintext token to its live session. A revoked or
// expired session fails exactly like an unknown token.
func (m *Manager) Validate(ctx context.Context, token string) (*models.AdminSession, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	sess, err := m.store.GetByTokenHash(ctx, hashing.HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	if !sess.Valid(m.now().UTC()) {
		return nil, ErrInvalidSession
	}
	return sess, nil
}

// Terminate revokes the session behind a token. Revocation is permanent and
// idempotent: terminating an unknown or already-revoked token succeeds.
func (m *Manager) Terminate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	tokenHash := hashing.HashSessionToken(token)
	if err := m.store.Revoke(ctx, tokenHash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	m.logger.Info("admin session terminated")
	return nil
}
