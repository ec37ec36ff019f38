package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/util"
)

// Notifier delivers suspicious activity alerts to downstream consumers.
type Notifier interface {
	PublishAlert(ctx context.Context, alert models.SuspiciousActivityAlert) error
}

const (
	alertCooldown     = 5 * time.Minute
	cooldownCacheSize = 4096
)

// Detector scores recent security events for an account and address pair.
// Scoring reads the same event log the login path writes to, so detection
// quality tracks audit completeness.
type Detector struct {
	events   *Logger
	notifier Notifier
	cooldown *lru.Cache[string, time.Time]
	cfg      config.SecurityConfig
	logger   *zap.Logger
}

func NewDetector(events *Logger, notifier Notifier, cfg config.SecurityConfig, logger *zap.Logger) (*Detector, error) {
	cache, err := lru.New[string, time.Time](cooldownCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert cooldown cache: %w", err)
	}
	return &Detector{
		events:   events,
		notifier: notifier,
		cooldown: cache,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Detect evaluates the heuristics and returns the highest-severity alert, or
// nil when nothing looks suspicious. An error reading the event log
// propagates: with no history the heuristics cannot vouch for the attempt,
// and the caller must fail closed rather than skip the check.
func (d *Detector) Detect(ctx context.Context, userID, clientIP string) (*models.SuspiciousActivityAlert, error) {
	since := time.Now().UTC().Add(-d.cfg.FailedLoginWindow)

	userEvents, err := d.events.RecentByUser(ctx, userID, since)
	if err != nil {
		d.logger.Error("suspicious activity lookup failed",
			util.String("user_id", userID),
			util.ErrorField(err))
		return nil, fmt.Errorf("failed to read recent events: %w", err)
	}

	ipEvents, err := d.events.RecentByIP(ctx, clientIP, since)
	if err != nil {
		d.logger.Error("suspicious activity lookup failed",
			util.String("client_ip", clientIP),
			util.ErrorField(err))
		return nil, fmt.Errorf("failed to read recent events: %w", err)
	}

	failed := 0
	seenIP := false
	hasHistory := false
	for _, ev := range userEvents {
		switch ev.EventType {
		case models.EventFailedLogin:
			failed++
		case models.EventLogin:
			hasHistory = true
		}
		if ev.ClientIP == clientIP {
			seenIP = true
		}
	}

	// Failed logins from this address against other accounts point at the
	// address, not the account.
	ipFailed := 0
	for _, ev := range ipEvents {
		if ev.EventType == models.EventFailedLogin && ev.UserID != userID {
			ipFailed++
		}
	}

	alert := &models.SuspiciousActivityAlert{
		UserID:    userID,
		ClientIP:  clientIP,
		GeoRegion: lookupGeoRegion(clientIP),
		Timestamp: time.Now().UTC(),
	}

	switch {
	case failed >= d.cfg.FailedLoginCritical:
		alert.Severity = models.SeverityCritical
		alert.Reason = "repeated_failed_logins"
	case ipFailed >= d.cfg.FailedLoginCritical:
		alert.Severity = models.SeverityCritical
		alert.Reason = "failed_logins_across_accounts"
	case failed >= d.cfg.FailedLoginMedium:
		alert.Severity = models.SeverityMedium
		alert.Reason = "failed_login_burst"
	case hasHistory && !seenIP:
		alert.Severity = models.SeverityMedium
		alert.Reason = "login_from_new_ip"
	default:
		return nil, nil
	}

	return alert, nil
}

// Notify publishes the alert unless an identical one fired within the
// cooldown window. Publish failures are logged and swallowed.
func (d *Detector) Notify(ctx context.Context, alert models.SuspiciousActivityAlert) {
	key := alert.UserID + "|" + alert.ClientIP + "|" + alert.Reason
	if last, ok := d.cooldown.Get(key); ok && time.Since(last) < alertCooldown {
		return
	}
	d.cooldown.Add(key, time.Now())

	if d.notifier == nil {
		return
	}
	if err := d.notifier.PublishAlert(ctx, alert); err != nil {
		d.logger.Warn("suspicious activity alert publish failed",
			util.String("user_id", alert.UserID),
			util.String("reason", alert.Reason),
			util.ErrorField(err))
		return
	}

	d.logger.Info("suspicious activity alert published",
		util.String("user_id", alert.UserID),
		util.String("severity", string(alert.Severity)),
		util.String("reason", alert.Reason))
}

// lookupGeoRegion is a placeholder for a real geolocation backend. Every
// address currently resolves to "unknown", which the heuristics treat as
// uninformative.
func lookupGeoRegion(clientIP string) string {
	return "unknown"
}

// KafkaNotifier publishes alerts as JSON messages keyed by user ID.
type KafkaNotifier struct {
	Produce func(ctx context.Context, topic string, key, value []byte) error
	Topic   string
}

func (n *KafkaNotifier) PublishAlert(ctx context.Context, alert models.SuspiciousActivityAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	return n.Produce(ctx, n.Topic, []byte(alert.UserID), payload)
}
