package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"admin-auth-service/internal/bucketing"
	"admin-auth-service/internal/config"
	"admin-auth-service/internal/models"
)

func testBuckets() *bucketing.BucketingManager {
	return bucketing.NewBucketingManager(&config.Config{
		Bucketing: config.BucketingConfig{UserBuckets: 16, EventBuckets: 32},
	})
}

func TestLogFillsPartitionFields(t *testing.T) {
	store := NewMemoryStore()
	logger := NewLogger(store, nil, testBuckets(), zap.NewNop())

	err := logger.Log(context.Background(), models.SecurityEvent{
		EventType: models.EventLogin,
		UserID:    "admin-1",
		ClientIP:  "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	events := store.All()
	if len(events) != 1 {
		t.Fatalf("stored %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.EventTime.IsZero() {
		t.Fatal("event time not filled")
	}
	if ev.EventDate != ev.EventTime.UTC().Format("2006-01-02") {
		t.Fatalf("event date %q does not match event time %v", ev.EventDate, ev.EventTime)
	}
}

func TestLogRejectsUnknownEventType(t *testing.T) {
	store := NewMemoryStore()
	logger := NewLogger(store, nil, testBuckets(), zap.NewNop())

	err := logger.Log(context.Background(), models.SecurityEvent{
		EventType: models.EventType("password_changed"),
		UserID:    "admin-1",
	})
	if err == nil {
		t.Fatal("expected rejection of event type outside the closed set")
	}
	if len(store.All()) != 0 {
		t.Fatal("rejected event must not be stored")
	}
}

func TestSameUserEventsShareBucket(t *testing.T) {
	store := NewMemoryStore()
	logger := NewLogger(store, nil, testBuckets(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := logger.Log(ctx, models.SecurityEvent{
			EventType: models.EventFailedLogin,
			UserID:    "admin-1",
			ClientIP:  "10.0.0.1",
		}); err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
	}

	events := store.All()
	for _, ev := range events[1:] {
		if ev.EventBucket != events[0].EventBucket {
			t.Fatal("events for the same user landed in different buckets")
		}
	}
}

func TestLogPreservesCausalOrder(t *testing.T) {
	store := NewMemoryStore()
	logger := NewLogger(store, nil, testBuckets(), zap.NewNop())
	ctx := context.Background()

	types := []models.EventType{
		models.EventFailedLogin,
		models.EventFailedLogin,
		models.EventLogin,
	}
	for _, et := range types {
		if err := logger.Log(ctx, models.SecurityEvent{EventType: et, UserID: "admin-1"}); err != nil {
			t.Fatalf("log %s: %v", et, err)
		}
	}

	events := store.All()
	for i, et := range types {
		if events[i].EventType != et {
			t.Fatalf("event %d is %s, want %s", i, events[i].EventType, et)
		}
	}
}

type failingEventStore struct{}

func (failingEventStore) Append(ctx context.Context, event models.SecurityEvent) error {
	return errors.New("clickhouse down")
}

func (failingEventStore) RecentByUser(ctx context.Context, userID string, since time.Time) ([]models.SecurityEvent, error) {
	return nil, errors.New("clickhouse down")
}

func (failingEventStore) RecentByIP(ctx context.Context, clientIP string, since time.Time) ([]models.SecurityEvent, error) {
	return nil, errors.New("clickhouse down")
}

func TestAppendFailurePropagates(t *testing.T) {
	logger := NewLogger(failingEventStore{}, nil, testBuckets(), zap.NewNop())

	err := logger.Log(context.Background(), models.SecurityEvent{
		EventType: models.EventLogin,
		UserID:    "admin-1",
	})
	if err == nil {
		t.Fatal("append failure must propagate so callers fail closed")
	}
}

type failingIndexer struct{}

func (failingIndexer) IndexEvent(ctx context.Context, id string, event models.SecurityEvent) error {
	return errors.New("elasticsearch down")
}

func TestIndexerFailureIsBestEffort(t *testing.T) {
	store := NewMemoryStore()
	logger := NewLogger(store, failingIndexer{}, testBuckets(), zap.NewNop())

	err := logger.Log(context.Background(), models.SecurityEvent{
		EventType: models.EventLogin,
		UserID:    "admin-1",
	})
	if err != nil {
		t.Fatalf("indexer outage must not fail the append: %v", err)
	}
	if len(store.All()) != 1 {
		t.Fatal("event must still be stored")
	}
}
