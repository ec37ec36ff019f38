package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"admin-auth-service/internal/audit"
	"admin-auth-service/internal/bucketing"
	"admin-auth-service/internal/config"
	"admin-auth-service/internal/encryption"
	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/ipallow"
	"admin-auth-service/internal/mfa"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/ratelimit"
	"admin-auth-service/internal/service"
	"admin-auth-service/internal/session"
)

type stubProvider struct {
	identity *models.AdminIdentity
	password string
}

func (p *stubProvider) Authenticate(ctx context.Context, email, password string) (*models.AdminIdentity, error) {
	if p.identity == nil || email != p.identity.Email || password != p.password {
		return nil, service.ErrInvalidCredentials
	}
	ident := *p.identity
	return &ident, nil
}

type pinnedVerifier struct{}

func (pinnedVerifier) VerifyTOTP(secret, code string, at time.Time) bool {
	return code == "123456"
}

type testServer struct {
	router    chi.Router
	mfaEngine *mfa.Engine
	events    *audit.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Environment: "development",
		KMS:         config.KMSConfig{Enabled: false},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
		Bucketing: config.BucketingConfig{UserBuckets: 16, EventBuckets: 32},
		Security: config.SecurityConfig{
			LoginRateLimit:      5,
			LoginRateWindow:     time.Minute,
			SessionTTL:          30 * time.Minute,
			MFAIssuer:           "storefront-admin",
			BackupCodeCount:     10,
			ExternalTimeout:     time.Second,
			FailedLoginWindow:   15 * time.Minute,
			FailedLoginMedium:   3,
			FailedLoginCritical: 8,
		},
	}

	nop := zap.NewNop()
	events := audit.NewMemoryStore()
	eventLog := audit.NewLogger(events, nil, bucketing.NewBucketingManager(cfg), nop)

	detector, err := audit.NewDetector(eventLog, nil, cfg.Security, nop)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	allowlist, err := ipallow.New(nil)
	if err != nil {
		t.Fatalf("new allowlist: %v", err)
	}

	mfaEngine := mfa.NewEngine(
		mfa.NewMemoryStore(),
		encryption.NewEncryptionManager(cfg, nil),
		hashing.NewHasher(cfg),
		pinnedVerifier{},
		eventLog,
		cfg.Security.MFAIssuer,
		cfg.Security.BackupCodeCount,
		nop,
	)

	authService := service.NewAdminAuthService(
		&stubProvider{
			identity: &models.AdminIdentity{
				UserID:   "admin-1",
				Email:    "admin@example.com",
				Role:     models.RoleAdmin,
				IsActive: true,
			},
			password: "hunter2!",
		},
		ratelimit.NewLimiter(ratelimit.NewMemoryStore(), cfg.Security.LoginRateLimit, cfg.Security.LoginRateWindow, nop),
		allowlist,
		mfaEngine,
		session.NewManager(session.NewMemoryStore(), cfg.Security.SessionTTL, nop),
		eventLog,
		detector,
		cfg.Security.ExternalTimeout,
		nop,
	)

	authHandler := NewAuthHandler(authService, mfaEngine, eventLog, cfg, nop)
	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r)
	})

	return &testServer{router: router, mfaEngine: mfaEngine, events: events}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:51234"
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}

func login(t *testing.T, ts *testServer) *http.Cookie {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/admin/auth/login", map[string]string{
		"email":    "admin@example.com",
		"password": "hunter2!",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatal("no session cookie set")
	}
	return cookie
}

func TestLoginSetsSessionCookie(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/auth/login", map[string]string{
		"email":    "admin@example.com",
		"password": "hunter2!",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatal("no session cookie set")
	}
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Fatal("session cookie must be SameSite=Strict")
	}
	if cookie.MaxAge != 1800 {
		t.Fatalf("cookie MaxAge = %d, want 1800", cookie.MaxAge)
	}

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatalf("success = false: %+v", resp)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	ts := newTestServer(t)

	badPassword := ts.do(t, http.MethodPost, "/api/v1/admin/auth/login", map[string]string{
		"email":    "admin@example.com",
		"password": "wrong",
	}, nil)
	unknownUser := ts.do(t, http.MethodPost, "/api/v1/admin/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "hunter2!",
	}, nil)

	if badPassword.Code != http.StatusUnauthorized || unknownUser.Code != http.StatusUnauthorized {
		t.Fatalf("statuses = %d, %d, want 401 for both", badPassword.Code, unknownUser.Code)
	}
	if badPassword.Body.String() != unknownUser.Body.String() {
		t.Fatal("credential failures must be byte-identical externally")
	}
}

func TestLoginRateLimitResponse(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]string{"email": "admin@example.com", "password": "wrong"}
	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = ts.do(t, http.MethodPost, "/api/v1/admin/auth/login", body, nil)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last.Code)
	}
	resp := decodeResponse(t, last)
	data, ok := resp.Data.(map[string]interface{})
	if !ok || data["reset_time"] == nil {
		t.Fatalf("429 payload missing reset_time: %+v", resp)
	}
}

func TestLoginRequiresMFABranch(t *testing.T) {
	ts := newTestServer(t)

	// Enroll and activate via the API using a fresh session.
	cookie := login(t, ts)
	rec := ts.do(t, http.MethodPost, "/api/v1/admin/mfa/enable", map[string]string{
		"account_name": "admin@example.com",
	}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("mfa enable status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodPost, "/api/v1/admin/mfa/verify", map[string]string{
		"code": "123456",
	}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("mfa verify status = %d: %s", rec.Code, rec.Body.String())
	}

	// Login without a code branches to requires_mfa and sets no cookie.
	rec = ts.do(t, http.MethodPost, "/api/v1/admin/auth/login", map[string]string{
		"email":    "admin@example.com",
		"password": "hunter2!",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	if !ok || data["requires_mfa"] != true {
		t.Fatalf("expected requires_mfa branch, got %+v", resp)
	}
	if sessionCookie(rec) != nil {
		t.Fatal("no cookie may be set before MFA completes")
	}

	// With the code the login completes.
	rec = ts.do(t, http.MethodPost, "/api/v1/admin/auth/login", map[string]string{
		"email":    "admin@example.com",
		"password": "hunter2!",
		"mfa_code": "123456",
	}, nil)
	if rec.Code != http.StatusOK || sessionCookie(rec) == nil {
		t.Fatalf("mfa login failed: status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestValidateAndLogout(t *testing.T) {
	ts := newTestServer(t)
	cookie := login(t, ts)

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/auth/validate", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/auth/logout", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	cleared := sessionCookie(rec)
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Fatal("logout must clear the session cookie")
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/auth/validate", nil, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("validate after logout status = %d, want 401", rec.Code)
	}
}

func TestMFARoutesRequireSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/mfa/enable", map[string]string{
		"account_name": "admin@example.com",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a session", rec.Code)
	}
}

func TestGuardedRouteLogsAdminAccess(t *testing.T) {
	ts := newTestServer(t)
	cookie := login(t, ts)

	ts.do(t, http.MethodPost, "/api/v1/admin/mfa/enable", map[string]string{
		"account_name": "admin@example.com",
	}, cookie)

	var accessEvents int
	for _, ev := range ts.events.All() {
		if ev.EventType == models.EventAdminAccess {
			accessEvents++
			if ev.Details["path"] != "/api/v1/admin/mfa/enable" {
				t.Fatalf("admin_access path = %q", ev.Details["path"])
			}
		}
	}
	if accessEvents != 1 {
		t.Fatalf("admin_access events = %d, want 1", accessEvents)
	}
}

func TestMFAVerifyFailureRecordsSecurityEvent(t *testing.T) {
	ts := newTestServer(t)
	cookie := login(t, ts)

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/mfa/enable", map[string]string{
		"account_name": "admin@example.com",
	}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("mfa enable status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/mfa/verify", map[string]string{
		"code": "000000",
	}, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code status = %d: %s", rec.Code, rec.Body.String())
	}

	var attempts []models.SecurityEvent
	for _, ev := range ts.events.All() {
		if ev.EventType == models.EventFailedLogin {
			attempts = append(attempts, ev)
		}
	}
	if len(attempts) != 1 {
		t.Fatalf("failed_login events = %d, want 1", len(attempts))
	}
	if attempts[0].UserID != "admin-1" || attempts[0].Details["reason"] != "invalid_mfa_code" {
		t.Fatalf("unexpected attempt event %+v", attempts[0])
	}
}

func TestLoginRejectsSuspiciousEmail(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/auth/login", map[string]string{
		"email":    "<script>alert(1)</script>@example.com",
		"password": "hunter2!",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := len(ts.events.All()); got != 0 {
		t.Fatalf("rejected input reached the audit trail: %d events", got)
	}
}
