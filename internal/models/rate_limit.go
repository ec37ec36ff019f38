package models

import "time"

// RateLimitRecord is one fixed-window counter for a (subject, action) pair.
// Owned exclusively by the rate limiter; lazily overwritten once the window
// elapses.
type RateLimitRecord struct {
	Key         string    `db:"key"`
	WindowStart time.Time `db:"window_start"`
	Count       int64     `db:"count"`
}
