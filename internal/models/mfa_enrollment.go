package models

import "time"

// MFAEnrollment is the persisted MFA state for one admin user.
// SecretEnc is the envelope-encrypted TOTP secret; the plaintext secret is
// only ever returned once, at enrollment time. BackupCodes holds argon2id
// encoded hashes, never the codes themselves; each entry is single-use and
// removed once consumed.
type MFAEnrollment struct {
	UserID      string    `db:"user_id" json:"user_id"`
	SecretEnc   string    `db:"secret_enc" json:"-"`
	BackupCodes []string  `db:"backup_codes" json:"-"`
	Enabled     bool      `db:"enabled" json:"enabled"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
