package models

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityCritical Severity = "critical"
)

// SuspiciousActivityAlert is derived on demand from recent security events.
// It is never persisted by itself.
type SuspiciousActivityAlert struct {
	UserID    string    `json:"user_id,omitempty"`
	ClientIP  string    `json:"client_ip"`
	Severity  Severity  `json:"severity"`
	Reason    string    `json:"reason"`
	GeoRegion string    `json:"geo_region"`
	Timestamp time.Time `json:"timestamp"`
}
