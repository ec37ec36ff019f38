package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

const testTTL = 30 * time.Minute

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *time.Time) {
	t.Helper()
	store := NewMemoryStore()
	mgr := NewManager(store, testTTL, zap.NewNop())
	current := time.Now().UTC()
	mgr.SetClock(func() time.Time { return current })
	return mgr, store, &current
}

func TestCreateAndValidate(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	token, sess, err := mgr.Create(ctx, "admin-1", "10.0.0.1", "cli/1.0")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}
	if sess.TokenHash == token {
		t.Fatal("stored hash must not equal the plaintext token")
	}

	got, err := mgr.Validate(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.UserID != "admin-1" || got.ID != sess.ID {
		t.Fatalf("validated wrong session: %+v", got)
	}
}

func TestValidateUnknownToken(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	if _, err := mgr.Validate(context.Background(), "no-such-token"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("err = %v, want ErrInvalidSession", err)
	}
	if _, err := mgr.Validate(context.Background(), ""); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("empty token: err = %v, want ErrInvalidSession", err)
	}
}

func TestTTLBoundary(t *testing.T) {
	mgr, _, current := newTestManager(t)
	ctx := context.Background()

	token, _, err := mgr.Create(ctx, "admin-1", "10.0.0.1", "cli/1.0")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// One second before expiry: still valid.
	*current = current.Add(testTTL - time.Second)
	if _, err := mgr.Validate(ctx, token); err != nil {
		t.Fatalf("1799s: expected valid, got %v", err)
	}

	// One second past expiry: invalid.
	*current = current.Add(2 * time.Second)
	if _, err := mgr.Validate(ctx, token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("1801s: err = %v, want ErrInvalidSession", err)
	}
}

func TestNoSlidingExpiration(t *testing.T) {
	mgr, _, current := newTestManager(t)
	ctx := context.Background()

	token, _, err := mgr.Create(ctx, "admin-1", "10.0.0.1", "cli/1.0")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Validate repeatedly through the lifetime; none of it may extend the
	// session past its original expiry.
	for i := 0; i < 29; i++ {
		*current = current.Add(time.Minute)
		if _, err := mgr.Validate(ctx, token); err != nil {
			t.Fatalf("minute %d: expected valid, got %v", i+1, err)
		}
	}

	*current = current.Add(2 * time.Minute)
	if _, err := mgr.Validate(ctx, token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("past original expiry: err = %v, want ErrInvalidSession", err)
	}
}

func TestTerminateIsPermanent(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	token, _, err := mgr.Create(ctx, "admin-1", "10.0.0.1", "cli/1.0")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := mgr.Terminate(ctx, token); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if _, err := mgr.Validate(ctx, token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("after terminate: err = %v, want ErrInvalidSession", err)
	}

	// Idempotent: terminating again succeeds.
	if err := mgr.Terminate(ctx, token); err != nil {
		t.Fatalf("second terminate: %v", err)
	}
	if err := mgr.Terminate(ctx, "unknown-token"); err != nil {
		t.Fatalf("terminate of unknown token: %v", err)
	}
}

func TestTokensAreUnique(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, _, err := mgr.Create(ctx, "admin-1", "10.0.0.1", "cli/1.0")
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if seen[token] {
			t.Fatal("duplicate session token generated")
		}
		seen[token] = true
	}
}
