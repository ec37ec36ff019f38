package models

import "time"

type AdminSession struct {
	ID        string    `db:"session_id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	TokenHash string    `db:"token_hash" json:"-"`
	ClientIP  string    `db:"client_ip" json:"client_ip"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Revoked   bool      `db:"revoked" json:"revoked"`
}

// Valid reports whether the session is usable at the given instant.
// TTL is fixed at creation; validation never extends it.
func (s *AdminSession) Valid(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}
