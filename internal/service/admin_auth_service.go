package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"admin-auth-service/internal/audit"
	"admin-auth-service/internal/ipallow"
	"admin-auth-service/internal/mfa"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/ratelimit"
	"admin-auth-service/internal/session"
	"admin-auth-service/internal/util"
)

const loginAction = "admin_login"

// IdentityProvider is the external credential backend. Authenticate returns
// ErrInvalidCredentials for a bad email/password pair; any other error is an
// infrastructure failure and the attempt fails closed.
type IdentityProvider interface {
	Authenticate(ctx context.Context, email, password string) (*models.AdminIdentity, error)
}

// LoginInput is one admin login attempt.
type LoginInput struct {
	Email     string
	Password  string
	MFACode   string
	ClientIP  string
	UserAgent string
}

// LoginResult is a completed login: the plaintext session token (returned
// exactly once) and the created session.
type LoginResult struct {
	Token    string
	Session  *models.AdminSession
	Identity *models.AdminIdentity
}

// AdminAuthService runs the admin login pipeline: rate limit, IP allowlist,
// credential check, MFA, suspicious activity scoring, session creation.
// Stages run in that order and the first failure stops the pipeline; every
// failure is recorded as exactly one security event.
type AdminAuthService struct {
	identity   IdentityProvider
	limiter    *ratelimit.Limiter
	allowlist  *ipallow.Allowlist
	mfaEngine  *mfa.Engine
	sessions   *session.Manager
	events     *audit.Logger
	detector   *audit.Detector
	extTimeout time.Duration
	logger     *zap.Logger
}

func NewAdminAuthService(
	identity IdentityProvider,
	limiter *ratelimit.Limiter,
	allowlist *ipallow.Allowlist,
	mfaEngine *mfa.Engine,
	sessions *session.Manager,
	events *audit.Logger,
	detector *audit.Detector,
	extTimeout time.Duration,
	logger *zap.Logger,
) *AdminAuthService {
	return &AdminAuthService{
		identity:   identity,
		limiter:    limiter,
		allowlist:  allowlist,
		mfaEngine:  mfaEngine,
		sessions:   sessions,
		events:     events,
		detector:   detector,
		extTimeout: extTimeout,
		logger:     logger,
	}
}

// Login runs the full pipeline for one attempt. ErrMFARequired is a flow
// branch, not a terminal failure: the caller re-submits with a code and no
// partial login state is kept server-side in between.
func (s *AdminAuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	// Every attempt consumes rate-limit budget, and the blocking decision is
	// derived from the same atomic increment, so concurrent attempts cannot
	// sneak past the limit. A blocked attempt never reaches the credential
	// check.
	res, err := s.limiter.Allow(ctx, input.ClientIP, loginAction)
	if err != nil || !res.Allowed {
		s.logFailure(ctx, input, "", "rate_limited")
		return nil, &RateLimitError{ResetTime: res.ResetTime}
	}

	if !s.allowlist.Allows(input.ClientIP) {
		s.logEvent(ctx, models.SecurityEvent{
			EventType: models.EventIPBlocked,
			ClientIP:  input.ClientIP,
			UserAgent: input.UserAgent,
			Details:   map[string]string{"action": loginAction},
		})
		return nil, ErrIPBlocked
	}

	identity, err := s.authenticate(ctx, input)
	if err != nil {
		return nil, err
	}

	mfaVerified, err := s.checkMFA(ctx, identity.UserID, input)
	if err != nil {
		return nil, err
	}

	if err := s.checkSuspiciousActivity(ctx, identity.UserID, input, mfaVerified); err != nil {
		return nil, err
	}

	token, sess, err := s.sessions.Create(ctx, identity.UserID, input.ClientIP, input.UserAgent)
	if err != nil {
		s.logFailure(ctx, input, identity.UserID, "session_error")
		s.logger.Error("session creation failed",
			util.String("user_id", identity.UserID),
			util.ErrorField(err))
		return nil, ErrSessionCreationFailed
	}

	// The success event must land; a login that cannot be audited is rolled
	// back.
	err = s.events.Log(ctx, models.SecurityEvent{
		EventType: models.EventLogin,
		UserID:    identity.UserID,
		ClientIP:  input.ClientIP,
		UserAgent: input.UserAgent,
		SessionID: sess.ID,
	})
	if err != nil {
		if termErr := s.sessions.Terminate(ctx, token); termErr != nil {
			s.logger.Error("failed to roll back unaudited session",
				util.String("session_id", sess.ID),
				util.ErrorField(termErr))
		}
		return nil, ErrSessionCreationFailed
	}

	return &LoginResult{Token: token, Session: sess, Identity: identity}, nil
}

// ValidateSession resolves a session token. Unknown, expired and revoked
// tokens all come back as ErrInvalidSession.
func (s *AdminAuthService) ValidateSession(ctx context.Context, token string) (*models.AdminSession, error) {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrInvalidSession) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("session validation failed: %w", err)
	}
	return sess, nil
}

// Logout revokes the session behind a token. Idempotent.
func (s *AdminAuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Terminate(ctx, token)
}

func (s *AdminAuthService) authenticate(ctx context.Context, input LoginInput) (*models.AdminIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.extTimeout)
	defer cancel()

	identity, err := s.identity.Authenticate(ctx, input.Email, input.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.logFailure(ctx, input, "", "invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		// Provider timeout or outage: fail closed, never guess.
		s.logFailure(ctx, input, "", "provider_error")
		s.logger.Error("identity provider call failed", util.ErrorField(err))
		return nil, fmt.Errorf("identity provider unavailable: %w", err)
	}

	if !identity.IsActive {
		s.logFailure(ctx, input, identity.UserID, "inactive_account")
		return nil, ErrInvalidCredentials
	}

	if !identity.Role.AtLeast(models.RoleAdmin) {
		s.logFailure(ctx, input, identity.UserID, "insufficient_privileges")
		return nil, ErrInsufficientPrivilege
	}

	return identity, nil
}

// checkMFA returns whether a fresh MFA verification happened on this attempt.
func (s *AdminAuthService) checkMFA(ctx context.Context, userID string, input LoginInput) (bool, error) {
	enabled, err := s.mfaEngine.Enabled(ctx, userID)
	if err != nil {
		s.logFailure(ctx, input, userID, "mfa_check_error")
		return false, fmt.Errorf("mfa state lookup failed: %w", err)
	}
	if !enabled {
		return false, nil
	}

	if input.MFACode == "" {
		s.logFailure(ctx, input, userID, "mfa_required")
		return false, ErrMFARequired
	}

	if err := s.mfaEngine.Verify(ctx, userID, input.MFACode); err != nil {
		if errors.Is(err, mfa.ErrInvalidCode) || errors.Is(err, mfa.ErrNotEnrolled) {
			// The engine has already recorded the failed attempt.
			return false, ErrInvalidMFACode
		}
		s.logFailure(ctx, input, userID, "mfa_check_error")
		return false, fmt.Errorf("mfa verification failed: %w", err)
	}
	return true, nil
}

// checkSuspiciousActivity scores the attempt. A critical alert demands a
// fresh MFA verification on this very attempt; without one the login is
// refused even though credentials were good. An unreadable event log means
// the critical gate cannot be evaluated, so the attempt fails closed.
func (s *AdminAuthService) checkSuspiciousActivity(ctx context.Context, userID string, input LoginInput, mfaVerified bool) error {
	alert, err := s.detector.Detect(ctx, userID, input.ClientIP)
	if err != nil {
		s.logFailure(ctx, input, userID, "detector_error")
		s.logger.Error("suspicious activity check unavailable",
			util.String("user_id", userID),
			util.ErrorField(err))
		return ErrSessionCreationFailed
	}
	if alert == nil {
		return nil
	}

	s.detector.Notify(ctx, *alert)

	if alert.Severity == models.SeverityCritical && !mfaVerified {
		s.logFailure(ctx, input, userID, "suspicious_activity")
		return ErrMFARequired
	}
	return nil
}

func (s *AdminAuthService) logFailure(ctx context.Context, input LoginInput, userID, reason string) {
	s.logEvent(ctx, models.SecurityEvent{
		EventType: models.EventFailedLogin,
		UserID:    userID,
		ClientIP:  input.ClientIP,
		UserAgent: input.UserAgent,
		Details:   map[string]string{"reason": reason},
	})
}

// logEvent records a denial event. The attempt is already being refused, so
// an audit store outage here is logged but does not change the outcome.
func (s *AdminAuthService) logEvent(ctx context.Context, event models.SecurityEvent) {
	if err := s.events.Log(ctx, event); err != nil {
		s.logger.Error("failed to record security event",
			util.String("event_type", string(event.EventType)),
			util.ErrorField(err))
	}
}
