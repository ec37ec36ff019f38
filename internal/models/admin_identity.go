package models

import "time"

// AdminIdentity is the snapshot returned by the external identity provider
// after a successful credential check. The role is already parsed into the
// typed enum; whatever metadata shape the provider uses stays outside.
type AdminIdentity struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
