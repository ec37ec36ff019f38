package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"admin-auth-service/internal/util"
)

// CounterStore is the storage backing fixed-window attempt counters. The
// single atomic IncrementAndGet is what makes concurrent check-then-increment
// safe: the blocking decision is derived from the post-increment count, never
// from a separate read.
type CounterStore interface {
	// IncrementAndGet atomically increments the counter for key, starting a
	// fresh window of the given duration when none is active, and returns the
	// post-increment count plus the time remaining in the window.
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)

	// Get returns the current count and remaining window without mutating.
	// A key with no active window reports count 0.
	Get(ctx context.Context, key string) (int64, time.Duration, error)

	// Reset discards the counter for key.
	Reset(ctx context.Context, key string) error
}

// Result is the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// Limiter enforces a fixed-window attempt limit per (subject, action) key.
// Store failures deny: admin-login actions never fail open.
type Limiter struct {
	store  CounterStore
	limit  int64
	window time.Duration
	logger *zap.Logger
}

func NewLimiter(store CounterStore, limit int, window time.Duration, logger *zap.Logger) *Limiter {
	return &Limiter{
		store:  store,
		limit:  int64(limit),
		window: window,
		logger: logger,
	}
}

func key(subject, action string) string {
	return action + ":" + subject
}

// Allow records one attempt and reports whether it is within the limit. This
// is the authoritative gate: the count it compares is the one its own
// increment produced, so M concurrent callers admit at most limit attempts.
func (l *Limiter) Allow(ctx context.Context, subject, action string) (Result, error) {
	count, ttl, err := l.store.IncrementAndGet(ctx, key(subject, action), l.window)
	if err != nil {
		l.logger.Error("rate limit store unavailable, denying",
			util.String("subject", subject),
			util.String("action", action),
			util.ErrorField(err))
		return Result{Allowed: false, ResetTime: time.Now().Add(l.window)},
			fmt.Errorf("rate limit increment failed: %w", err)
	}

	return Result{
		Allowed:   count <= l.limit,
		Remaining: remaining(l.limit, count),
		ResetTime: time.Now().Add(ttl),
	}, nil
}

// Check reports the current window state without recording an attempt.
func (l *Limiter) Check(ctx context.Context, subject, action string) (Result, error) {
	count, ttl, err := l.store.Get(ctx, key(subject, action))
	if err != nil {
		return Result{Allowed: false, ResetTime: time.Now().Add(l.window)},
			fmt.Errorf("rate limit read failed: %w", err)
	}

	if count == 0 {
		// Fresh window.
		return Result{Allowed: true, Remaining: int(l.limit), ResetTime: time.Now().Add(l.window)}, nil
	}

	return Result{
		Allowed:   count < l.limit,
		Remaining: remaining(l.limit, count),
		ResetTime: time.Now().Add(ttl),
	}, nil
}

// Increment records one attempt without consulting the limit. Successful
// logins still count toward the window to bound total attempts.
func (l *Limiter) Increment(ctx context.Context, subject, action string) error {
	if _, _, err := l.store.IncrementAndGet(ctx, key(subject, action), l.window); err != nil {
		return fmt.Errorf("rate limit increment failed: %w", err)
	}
	return nil
}

// Reset clears the window for a key.
func (l *Limiter) Reset(ctx context.Context, subject, action string) error {
	return l.store.Reset(ctx, key(subject, action))
}

func remaining(limit, count int64) int {
	if count >= limit {
		return 0
	}
	return int(limit - count)
}
