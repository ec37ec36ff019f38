package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestAllowWithinLimit(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), 5, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := limiter.Allow(ctx, "10.0.0.1", "admin_login")
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("attempt %d: expected allowed", i)
		}
		if want := 5 - i; res.Remaining != want {
			t.Fatalf("attempt %d: remaining = %d, want %d", i, res.Remaining, want)
		}
	}

	res, err := limiter.Allow(ctx, "10.0.0.1", "admin_login")
	if err != nil {
		t.Fatalf("attempt 6: unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatal("attempt 6: expected blocked")
	}
	if res.Remaining != 0 {
		t.Fatalf("attempt 6: remaining = %d, want 0", res.Remaining)
	}
}

func TestWindowExpiryResetsCount(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.SetClock(func() time.Time { return current })

	limiter := NewLimiter(store, 2, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limiter.Allow(ctx, "10.0.0.2", "admin_login")
	}
	if res, _ := limiter.Check(ctx, "10.0.0.2", "admin_login"); res.Allowed {
		t.Fatal("expected blocked before window expiry")
	}

	current = current.Add(time.Minute + time.Second)

	res, err := limiter.Allow(ctx, "10.0.0.2", "admin_login")
	if err != nil {
		t.Fatalf("unexpected error after window expiry: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected allowed in fresh window")
	}
	if res.Remaining != 1 {
		t.Fatalf("remaining = %d, want 1", res.Remaining)
	}
}

func TestSubjectsAreIndependent(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), 1, time.Minute, zap.NewNop())
	ctx := context.Background()

	if res, _ := limiter.Allow(ctx, "10.0.0.3", "admin_login"); !res.Allowed {
		t.Fatal("first subject should be allowed")
	}
	if res, _ := limiter.Allow(ctx, "10.0.0.3", "admin_login"); res.Allowed {
		t.Fatal("first subject should now be blocked")
	}
	if res, _ := limiter.Allow(ctx, "10.0.0.4", "admin_login"); !res.Allowed {
		t.Fatal("second subject should be unaffected")
	}
}

func TestCheckDoesNotConsume(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), 3, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if res, _ := limiter.Check(ctx, "10.0.0.5", "admin_login"); !res.Allowed {
			t.Fatalf("check %d: expected allowed, nothing has been consumed", i)
		}
	}
	if res, _ := limiter.Allow(ctx, "10.0.0.5", "admin_login"); !res.Allowed {
		t.Fatal("first real attempt should be allowed")
	}
}

func TestConcurrentAllowAdmitsAtMostLimit(t *testing.T) {
	const limit = 5
	const attempts = 100

	limiter := NewLimiter(NewMemoryStore(), limit, time.Minute, zap.NewNop())
	ctx := context.Background()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Allow(ctx, "10.0.0.6", "admin_login")
			if err == nil && res.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != limit {
		t.Fatalf("admitted %d attempts, want exactly %d", got, limit)
	}
}

type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return 0, 0, errStoreDown
}

func (failingStore) Get(ctx context.Context, key string) (int64, time.Duration, error) {
	return 0, 0, errStoreDown
}

func (failingStore) Reset(ctx context.Context, key string) error {
	return errStoreDown
}

func TestStoreFailureDenies(t *testing.T) {
	limiter := NewLimiter(failingStore{}, 5, time.Minute, zap.NewNop())

	res, err := limiter.Allow(context.Background(), "10.0.0.7", "admin_login")
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if res.Allowed {
		t.Fatal("store failure must deny, not fail open")
	}
}
