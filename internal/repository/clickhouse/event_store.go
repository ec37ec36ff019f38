package clickhouse

import (
	"context"
	"fmt"
	"time"

	"admin-auth-service/internal/client"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/util"
)

const eventsTable = "admin_security_events"

// EventStore appends security events to a ClickHouse table partitioned by
// event date and bucket. Events are insert-only; there is no update path.
type EventStore struct {
	client *client.ClickHouseClient
}

func NewEventStore(client *client.ClickHouseClient) *EventStore {
	return &EventStore{client: client}
}

func (s *EventStore) Append(ctx context.Context, event models.SecurityEvent) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(event_bucket, user_id, event_date, event_time, event_type, client_ip, user_agent, session_id, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, eventsTable)

	details := event.Details
	if details == nil {
		details = map[string]string{}
	}

	err := s.client.Exec(ctx, query,
		uint16(event.EventBucket),
		event.UserID,
		event.EventDate,
		event.EventTime,
		string(event.EventType),
		event.ClientIP,
		event.UserAgent,
		event.SessionID,
		details,
	)
	if err != nil {
		util.Error("Failed to insert security event",
			util.String("event_type", string(event.EventType)),
			util.ErrorField(err))
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}

func (s *EventStore) RecentByUser(ctx context.Context, userID string, since time.Time) ([]models.SecurityEvent, error) {
	query := fmt.Sprintf(`SELECT event_bucket, user_id, event_date, event_time, event_type, client_ip, user_agent, session_id, details
		FROM %s
		WHERE user_id = ? AND event_time >= ?
		ORDER BY event_time`, eventsTable)
	return s.queryEvents(ctx, query, userID, since)
}

func (s *EventStore) RecentByIP(ctx context.Context, clientIP string, since time.Time) ([]models.SecurityEvent, error) {
	query := fmt.Sprintf(`SELECT event_bucket, user_id, event_date, event_time, event_type, client_ip, user_agent, session_id, details
		FROM %s
		WHERE client_ip = ? AND event_time >= ?
		ORDER BY event_time`, eventsTable)
	return s.queryEvents(ctx, query, clientIP, since)
}

func (s *EventStore) queryEvents(ctx context.Context, query string, args ...interface{}) ([]models.SecurityEvent, error) {
	rows, err := s.client.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	var out []models.SecurityEvent
	for rows.Next() {
		var (
			ev        models.SecurityEvent
			bucket    uint16
			eventType string
			details   map[string]string
		)
		if err := rows.Scan(&bucket, &ev.UserID, &ev.EventDate, &ev.EventTime, &eventType,
			&ev.ClientIP, &ev.UserAgent, &ev.SessionID, &details); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		ev.EventBucket = int(bucket)
		ev.EventType = models.EventType(eventType)
		ev.Details = details
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read security events: %w", err)
	}
	return out, nil
}
