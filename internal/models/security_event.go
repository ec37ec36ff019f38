package models

import "time"

// EventType is the closed set of security-relevant event kinds.
type EventType string

const (
	EventLogin       EventType = "login"
	EventFailedLogin EventType = "failed_login"
	EventMFAEnabled  EventType = "mfa_enabled"
	EventAdminAccess EventType = "admin_access"
	EventIPBlocked   EventType = "ip_blocked"
)

// SecurityEvent is one append-only audit record. Events are immutable once
// written; EventBucket and EventDate are partitioning keys for the ClickHouse
// append log.
type SecurityEvent struct {
	EventBucket int               `db:"event_bucket" json:"event_bucket"`
	UserID      string            `db:"user_id" json:"user_id,omitempty"`
	EventDate   string            `db:"event_date" json:"event_date"`
	EventTime   time.Time         `db:"event_time" json:"event_time"`
	EventType   EventType         `db:"event_type" json:"event_type"`
	ClientIP    string            `db:"client_ip" json:"client_ip"`
	UserAgent   string            `db:"user_agent" json:"user_agent"`
	SessionID   string            `db:"session_id" json:"session_id,omitempty"`
	Details     map[string]string `db:"details" json:"details,omitempty"`
}
