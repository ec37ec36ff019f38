package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"admin-auth-service/internal/bucketing"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/util"
)

// Store is the append-only persistence behind the security event log.
type Store interface {
	Append(ctx context.Context, event models.SecurityEvent) error
	RecentByUser(ctx context.Context, userID string, since time.Time) ([]models.SecurityEvent, error)
	RecentByIP(ctx context.Context, clientIP string, since time.Time) ([]models.SecurityEvent, error)
}

// Indexer mirrors events into a search index for forensic review. Mirroring
// is best-effort and never blocks or fails the caller's operation.
type Indexer interface {
	IndexEvent(ctx context.Context, id string, event models.SecurityEvent) error
}

const forensicIndex = "admin-security-events"

var validEventTypes = map[models.EventType]struct{}{
	models.EventLogin:       {},
	models.EventFailedLogin: {},
	models.EventMFAEnabled:  {},
	models.EventAdminAccess: {},
	models.EventIPBlocked:   {},
}

// Logger is the security event log. Append failures propagate: an operation
// that cannot be audited must not proceed.
type Logger struct {
	store   Store
	indexer Indexer
	buckets *bucketing.BucketingManager
	logger  *zap.Logger
}

func NewLogger(store Store, indexer Indexer, buckets *bucketing.BucketingManager, logger *zap.Logger) *Logger {
	return &Logger{
		store:   store,
		indexer: indexer,
		buckets: buckets,
		logger:  logger,
	}
}

// Log appends one immutable event. The event type must belong to the closed
// set; partition fields are filled in here so callers only describe what
// happened.
func (l *Logger) Log(ctx context.Context, event models.SecurityEvent) error {
	if _, ok := validEventTypes[event.EventType]; !ok {
		return fmt.Errorf("unknown security event type: %q", event.EventType)
	}

	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}
	event.EventDate = l.buckets.GetDateBucket(event.EventTime)

	bucketKey := event.UserID
	if bucketKey == "" {
		bucketKey = event.ClientIP
	}
	event.EventBucket = l.buckets.GetEventBucket(bucketKey)

	if err := l.store.Append(ctx, event); err != nil {
		l.logger.Error("security event append failed",
			util.String("event_type", string(event.EventType)),
			util.String("user_id", event.UserID),
			util.ErrorField(err))
		return fmt.Errorf("failed to append security event: %w", err)
	}

	l.logger.Debug("security event logged",
		util.String("event_type", string(event.EventType)),
		util.String("user_id", event.UserID),
		util.String("client_ip", event.ClientIP))

	if l.indexer != nil {
		if err := l.indexer.IndexEvent(ctx, uuid.New().String(), event); err != nil {
			l.logger.Warn("forensic index mirror failed",
				util.String("event_type", string(event.EventType)),
				util.ErrorField(err))
		}
	}

	return nil
}

// RecentByUser returns the user's events since the given instant.
func (l *Logger) RecentByUser(ctx context.Context, userID string, since time.Time) ([]models.SecurityEvent, error) {
	return l.store.RecentByUser(ctx, userID, since)
}

// RecentByIP returns the address's events since the given instant.
func (l *Logger) RecentByIP(ctx context.Context, clientIP string, since time.Time) ([]models.SecurityEvent, error) {
	return l.store.RecentByIP(ctx, clientIP, since)
}

// ESIndexer adapts the Elasticsearch client to the Indexer interface.
type ESIndexer struct {
	Index func(ctx context.Context, index, id string, doc interface{}) error
}

func (e *ESIndexer) IndexEvent(ctx context.Context, id string, event models.SecurityEvent) error {
	return e.Index(ctx, forensicIndex, id, event)
}
