package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"admin-auth-service/internal/client"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/session"
	"admin-auth-service/internal/util"
)

const sessionPrefix = "admin_session:"

// SessionCache stores admin sessions in Redis keyed by token hash, with the
// key TTL matched to the session expiry so stale entries evict themselves.
type SessionCache struct {
	client *client.RedisClient
}

func NewSessionCache(client *client.RedisClient) *SessionCache {
	return &SessionCache{client: client}
}

func (c *SessionCache) Save(ctx context.Context, sess models.AdminSession) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired: %s", sess.ID)
	}

	key := sessionPrefix + sess.TokenHash
	if err := c.client.Set(ctx, key, string(payload), ttl); err != nil {
		util.Error("Failed to save admin session",
			util.String("session_id", sess.ID),
			util.ErrorField(err))
		return fmt.Errorf("failed to save session: %w", err)
	}

	util.Debug("Admin session saved",
		util.String("session_id", sess.ID),
		util.Duration("ttl", ttl))
	return nil
}

func (c *SessionCache) GetByTokenHash(ctx context.Context, tokenHash string) (*models.AdminSession, error) {
	key := sessionPrefix + tokenHash

	payload, err := c.client.Get(ctx, key)
	if err != nil {
		if strings.Contains(err.Error(), "key not found") {
			return nil, session.ErrNotFound
		}
		util.Error("Failed to get admin session", util.ErrorField(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess models.AdminSession
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// revokeScript rewrites the stored session with revoked=true in a single
// server-side step, keeping the remaining TTL. Running inside EVAL makes the
// read-modify-write atomic with respect to concurrent revocations and
// validations.
const revokeScript = `
local payload = redis.call('GET', KEYS[1])
if not payload then
  return 0
end
local sess = cjson.decode(payload)
if sess['revoked'] then
  return 1
end
sess['revoked'] = true
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  ttl = 60000
end
redis.call('SET', KEYS[1], cjson.encode(sess), 'PX', ttl)
return 1
`

// Revoke marks the session revoked in place. The tombstone keeps the key's
// remaining TTL so it evicts when the session would have expired anyway.
func (c *SessionCache) Revoke(ctx context.Context, tokenHash string) error {
	key := sessionPrefix + tokenHash

	found, err := c.client.Eval(ctx, revokeScript, []string{key})
	if err != nil {
		util.Error("Failed to revoke admin session", util.ErrorField(err))
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if n, ok := found.(int64); ok && n == 0 {
		return session.ErrNotFound
	}

	util.Info("Admin session revoked", util.String("token_hash_prefix", tokenHash[:min(8, len(tokenHash))]))
	return nil
}
