package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"admin-auth-service/internal/audit"
	"admin-auth-service/internal/config"
	"admin-auth-service/internal/mfa"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/service"
	"admin-auth-service/internal/util"
)

const sessionCookieName = "admin-session-token"

// genericAuthMessage is the single message every credential-class failure
// surfaces. Bad password, unknown account, non-admin role and bad MFA code
// are indistinguishable from outside.
const genericAuthMessage = "Authentication failed"

type sessionContextKey struct{}

// AuthHandler serves the admin authentication endpoints.
type AuthHandler struct {
	authService *service.AdminAuthService
	mfaEngine   *mfa.Engine
	events      *audit.Logger
	cfg         *config.Config
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AdminAuthService, mfaEngine *mfa.Engine, events *audit.Logger, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		mfaEngine:   mfaEngine,
		events:      events,
		cfg:         cfg,
		logger:      logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(message string) Response {
	return Response{
		Success: false,
		Error:   message,
	}
}

// RegisterRoutes registers the auth and MFA routes.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/validate", h.ValidateSession)
		r.Post("/logout", h.Logout)
	})

	router.Route("/admin/mfa", func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Post("/enable", h.EnableMFA)
		r.Post("/verify", h.VerifyMFA)
		r.Post("/disable", h.DisableMFA)
		r.Post("/backup-codes", h.RegenerateBackupCodes)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.respondWithError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if util.ContainsSuspicious(req.Email) {
		h.logger.Warn("login rejected for suspicious input", util.String("client_ip", clientIP(r)))
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	input := service.LoginInput{
		Email:     util.SanitizeInput(req.Email),
		Password:  req.Password,
		MFACode:   req.MFACode,
		ClientIP:  clientIP(r),
		UserAgent: util.SanitizeUserAgent(r.UserAgent()),
	}

	result, err := h.authService.Login(r.Context(), input)
	if err != nil {
		h.respondLoginError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"user": map[string]interface{}{
			"id":    result.Identity.UserID,
			"email": result.Identity.Email,
			"role":  result.Identity.Role.String(),
		},
		"admin_session": map[string]interface{}{
			"id":         result.Session.ID,
			"expires_at": result.Session.ExpiresAt,
		},
	}, "Login successful"))
}

func (h *AuthHandler) respondLoginError(w http.ResponseWriter, err error) {
	var rle *service.RateLimitError
	switch {
	case errors.As(err, &rle):
		h.respondWithJSON(w, http.StatusTooManyRequests, Response{
			Success: false,
			Error:   "Too many login attempts",
			Data:    map[string]interface{}{"reset_time": rle.ResetTime},
		})
	case errors.Is(err, service.ErrIPBlocked):
		h.respondWithError(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, service.ErrMFARequired):
		// Flow branch, not a failure: the caller re-submits with a code.
		h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
			"requires_mfa": true,
		}, "MFA verification required"))
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInsufficientPrivilege),
		errors.Is(err, service.ErrInvalidMFACode):
		h.respondWithError(w, http.StatusUnauthorized, genericAuthMessage)
	default:
		h.logger.Error("login failed", util.ErrorField(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

type validateRequest struct {
	SessionToken string `json:"session_token,omitempty"`
}

func (h *AuthHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	token := h.sessionToken(r)
	if token == "" {
		var req validateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.SessionToken
		}
	}

	sess, err := h.authService.ValidateSession(r.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSession) {
			h.respondWithJSON(w, http.StatusUnauthorized, Response{
				Success: false,
				Error:   "Invalid session",
				Data:    map[string]interface{}{"valid": false},
			})
			return
		}
		h.logger.Error("session validation failed", util.ErrorField(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"valid":      true,
		"user_id":    sess.UserID,
		"expires_at": sess.ExpiresAt,
	}, "Session is valid"))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.sessionToken(r)
	if err := h.authService.Logout(r.Context(), token); err != nil {
		h.logger.Error("logout failed", util.ErrorField(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.clearSessionCookie(w)
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}

// RequireSession guards MFA management routes. Every admitted request is
// recorded as an admin_access event.
func (h *AuthHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.authService.ValidateSession(r.Context(), h.sessionToken(r))
		if err != nil {
			h.respondWithError(w, http.StatusUnauthorized, genericAuthMessage)
			return
		}

		err = h.events.Log(r.Context(), models.SecurityEvent{
			EventType: models.EventAdminAccess,
			UserID:    sess.UserID,
			ClientIP:  clientIP(r),
			UserAgent: util.SanitizeUserAgent(r.UserAgent()),
			SessionID: sess.ID,
			Details:   map[string]string{"path": r.URL.Path},
		})
		if err != nil {
			// Unauditable admin access does not proceed.
			h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) *models.AdminSession {
	sess, _ := ctx.Value(sessionContextKey{}).(*models.AdminSession)
	return sess
}

func (h *AuthHandler) EnableMFA(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var req struct {
		AccountName string `json:"account_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountName == "" {
		h.respondWithError(w, http.StatusBadRequest, "Account name is required")
		return
	}

	result, err := h.mfaEngine.Enable(r.Context(), sess.UserID, util.SanitizeInput(req.AccountName))
	if err != nil {
		if errors.Is(err, mfa.ErrAlreadyEnabled) {
			h.respondWithError(w, http.StatusConflict, "MFA is already enabled")
			return
		}
		h.logger.Error("mfa enable failed", util.ErrorField(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Scan the QR code and verify to activate MFA"))
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

func (h *AuthHandler) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var req mfaCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		h.respondWithError(w, http.StatusBadRequest, "Code is required")
		return
	}

	wasEnabled, err := h.mfaEngine.Enabled(r.Context(), sess.UserID)
	if err != nil {
		h.logger.Error("mfa state lookup failed", util.ErrorField(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := h.mfaEngine.Verify(r.Context(), sess.UserID, req.Code); err != nil {
		h.respondMFAError(w, err)
		return
	}

	// First successful verification activates the enrollment.
	if !wasEnabled {
		err := h.events.Log(r.Context(), models.SecurityEvent{
			EventType: models.EventMFAEnabled,
			UserID:    sess.UserID,
			ClientIP:  clientIP(r),
			UserAgent: util.SanitizeUserAgent(r.UserAgent()),
			SessionID: sess.ID,
		})
		if err != nil {
			h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"verified": true,
	}, "Code verified"))
}

func (h *AuthHandler) DisableMFA(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var req mfaCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		h.respondWithError(w, http.StatusBadRequest, "Code is required")
		return
	}

	if err := h.mfaEngine.Disable(r.Context(), sess.UserID, req.Code); err != nil {
		h.respondMFAError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "MFA disabled"))
}

func (h *AuthHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var req mfaCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		h.respondWithError(w, http.StatusBadRequest, "Code is required")
		return
	}

	codes, err := h.mfaEngine.RegenerateBackupCodes(r.Context(), sess.UserID, req.Code)
	if err != nil {
		h.respondMFAError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"backup_codes": codes,
	}, "Backup codes regenerated"))
}

func (h *AuthHandler) respondMFAError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mfa.ErrInvalidCode), errors.Is(err, mfa.ErrNotEnrolled):
		h.respondWithError(w, http.StatusUnauthorized, genericAuthMessage)
	default:
		h.logger.Error("mfa operation failed", util.ErrorField(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *AuthHandler) sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.Security.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}

func clientIP(r *http.Request) string {
	// middleware.RealIP has already rewritten RemoteAddr from the forwarding
	// headers; strip the port if one is present.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.logger.Warn("HTTP error response",
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(message))
}
