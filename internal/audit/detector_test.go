package audit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/models"
)

func detectorConfig() config.SecurityConfig {
	return config.SecurityConfig{
		FailedLoginWindow:   15 * time.Minute,
		FailedLoginMedium:   3,
		FailedLoginCritical: 8,
	}
}

func newTestDetector(t *testing.T, store Store, notifier Notifier) *Detector {
	t.Helper()
	events := NewLogger(store, nil, testBuckets(), zap.NewNop())
	detector, err := NewDetector(events, notifier, detectorConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	return detector
}

type capturingNotifier struct {
	alerts []models.SuspiciousActivityAlert
}

func (n *capturingNotifier) PublishAlert(ctx context.Context, alert models.SuspiciousActivityAlert) error {
	n.alerts = append(n.alerts, alert)
	return nil
}

func seedEvents(t *testing.T, store *MemoryStore, userID, ip string, eventType models.EventType, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := store.Append(context.Background(), models.SecurityEvent{
			EventType: eventType,
			UserID:    userID,
			ClientIP:  ip,
			EventTime: time.Now().UTC().Add(-time.Minute),
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestDetectQuietAccount(t *testing.T) {
	detector := newTestDetector(t, NewMemoryStore(), nil)

	alert, err := detector.Detect(context.Background(), "admin-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if alert != nil {
		t.Fatalf("quiet account should produce no alert, got %+v", alert)
	}
}

func TestDetectFailedLoginBurst(t *testing.T) {
	store := NewMemoryStore()
	detector := newTestDetector(t, store, nil)

	seedEvents(t, store, "admin-1", "10.0.0.1", models.EventFailedLogin, 3)

	alert, err := detector.Detect(context.Background(), "admin-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if alert == nil || alert.Severity != models.SeverityMedium {
		t.Fatalf("3 failures should score medium, got %+v", alert)
	}
	if alert.Reason != "failed_login_burst" {
		t.Fatalf("reason = %q", alert.Reason)
	}
}

func TestDetectRepeatedFailuresAreCritical(t *testing.T) {
	store := NewMemoryStore()
	detector := newTestDetector(t, store, nil)

	seedEvents(t, store, "admin-1", "10.0.0.1", models.EventFailedLogin, 8)

	alert, err := detector.Detect(context.Background(), "admin-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if alert == nil || alert.Severity != models.SeverityCritical {
		t.Fatalf("8 failures should score critical, got %+v", alert)
	}
}

func TestDetectLoginFromNewIP(t *testing.T) {
	store := NewMemoryStore()
	detector := newTestDetector(t, store, nil)

	// History from one address, current attempt from another.
	seedEvents(t, store, "admin-1", "10.0.0.1", models.EventLogin, 2)

	alert, err := detector.Detect(context.Background(), "admin-1", "198.51.100.9")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if alert == nil || alert.Reason != "login_from_new_ip" {
		t.Fatalf("expected new-IP alert, got %+v", alert)
	}
	if alert.GeoRegion != "unknown" {
		t.Fatalf("geo region = %q, want unknown placeholder", alert.GeoRegion)
	}

	// Same address as history: no alert.
	alert, err = detector.Detect(context.Background(), "admin-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if alert != nil {
		t.Fatalf("known address should not alert, got %+v", alert)
	}
}

func TestNotifyCooldownDeduplicates(t *testing.T) {
	notifier := &capturingNotifier{}
	detector := newTestDetector(t, NewMemoryStore(), notifier)

	alert := models.SuspiciousActivityAlert{
		UserID:   "admin-1",
		ClientIP: "10.0.0.1",
		Severity: models.SeverityMedium,
		Reason:   "failed_login_burst",
	}

	ctx := context.Background()
	detector.Notify(ctx, alert)
	detector.Notify(ctx, alert)
	detector.Notify(ctx, alert)

	if len(notifier.alerts) != 1 {
		t.Fatalf("published %d alerts, want 1 within the cooldown", len(notifier.alerts))
	}

	// A different reason is a different alert.
	alert.Reason = "login_from_new_ip"
	detector.Notify(ctx, alert)
	if len(notifier.alerts) != 2 {
		t.Fatalf("published %d alerts, want 2", len(notifier.alerts))
	}
}

func TestDetectStoreOutageSurfacesError(t *testing.T) {
	detector := newTestDetector(t, failingEventStore{}, nil)

	alert, err := detector.Detect(context.Background(), "admin-1", "10.0.0.1")
	if err == nil {
		t.Fatal("detect over an unreadable event store must return an error")
	}
	if alert != nil {
		t.Fatalf("unreadable store must not fabricate alerts, got %+v", alert)
	}
}

func TestDetectFailedLoginsAcrossAccounts(t *testing.T) {
	store := NewMemoryStore()
	detector := newTestDetector(t, store, nil)

	// One address hammering several accounts, none of them the current one.
	for i := 0; i < 8; i++ {
		seedEvents(t, store, "admin-"+string(rune('a'+i)), "203.0.113.7", models.EventFailedLogin, 1)
	}

	alert, err := detector.Detect(context.Background(), "admin-target", "203.0.113.7")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if alert == nil || alert.Severity != models.SeverityCritical {
		t.Fatalf("address-wide failures should score critical, got %+v", alert)
	}
	if alert.Reason != "failed_logins_across_accounts" {
		t.Fatalf("reason = %q", alert.Reason)
	}
}
