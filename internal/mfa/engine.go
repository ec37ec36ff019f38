package mfa

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"admin-auth-service/internal/audit"
	"admin-auth-service/internal/encryption"
	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/util"
)

var (
	ErrNotEnrolled    = errors.New("mfa not enrolled")
	ErrAlreadyEnabled = errors.New("mfa already enabled")
	ErrInvalidCode    = errors.New("invalid mfa code")
)

const (
	totpCodeLength   = 6
	backupCodeLength = 8
	totpPeriod       = 30
	qrImageSize      = 256
)

// CodeVerifier checks a TOTP code against a secret. The engine treats it as
// an external capability so tests can pin the outcome.
type CodeVerifier interface {
	VerifyTOTP(secret, code string, at time.Time) bool
}

// TOTPVerifier validates RFC 6238 codes with one period of clock skew in
// either direction.
type TOTPVerifier struct{}

func (TOTPVerifier) VerifyTOTP(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// EnrollmentResult carries the one-time enrollment material. The plaintext
// secret and backup codes exist only in this value; the store holds the
// encrypted secret and code hashes.
type EnrollmentResult struct {
	Secret          string   `json:"secret"`
	ProvisioningURL string   `json:"provisioning_url"`
	QRCodePNG       string   `json:"qr_code_png"`
	BackupCodes     []string `json:"backup_codes"`
}

// Engine owns TOTP enrollment and verification for admin accounts. The TOTP
// secret is envelope-encrypted at rest; backup codes are stored hashed and
// consumed on first use.
type Engine struct {
	store           Store
	secrets         *encryption.EncryptionManager
	hasher          *hashing.Hasher
	verifier        CodeVerifier
	events          *audit.Logger
	issuer          string
	backupCodeCount int
	logger          *zap.Logger
	now             func() time.Time
}

func NewEngine(store Store, secrets *encryption.EncryptionManager, hasher *hashing.Hasher, verifier CodeVerifier, events *audit.Logger, issuer string, backupCodeCount int, logger *zap.Logger) *Engine {
	if verifier == nil {
		verifier = TOTPVerifier{}
	}
	return &Engine{
		store:           store,
		secrets:         secrets,
		hasher:          hasher,
		verifier:        verifier,
		events:          events,
		issuer:          issuer,
		backupCodeCount: backupCodeCount,
		logger:          logger,
		now:             time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Enable provisions a new enrollment and returns the secret, otpauth URL, QR
// code and backup codes. The enrollment stays inactive until the first
// successful Verify proves the authenticator was set up.
func (e *Engine) Enable(ctx context.Context, userID, accountName string) (*EnrollmentResult, error) {
	if existing, err := e.store.Get(ctx, userID); err == nil && existing.Enabled {
		return nil, ErrAlreadyEnabled
	} else if err != nil && !errors.Is(err, ErrEnrollmentNotFound) {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}

	codes, hashes, err := e.generateBackupCodes()
	if err != nil {
		return nil, err
	}

	secretEnc, err := e.encryptSecret(ctx, key.Secret())
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	enrollment := models.MFAEnrollment{
		UserID:      userID,
		SecretEnc:   secretEnc,
		BackupCodes: hashes,
		Enabled:     false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.Save(ctx, enrollment); err != nil {
		return nil, fmt.Errorf("failed to save enrollment: %w", err)
	}

	e.logger.Info("mfa enrollment created", util.String("user_id", userID))

	return &EnrollmentResult{
		Secret:          key.Secret(),
		ProvisioningURL: key.URL(),
		QRCodePNG:       base64.StdEncoding.EncodeToString(png),
		BackupCodes:     codes,
	}, nil
}

// Verify checks a submitted code. Six digits dispatch to TOTP, eight
// characters to the backup code set; anything else is rejected before
// touching either path. A matching backup code is removed so it can never be
// replayed. The first successful verification activates a pending
// enrollment.
func (e *Engine) Verify(ctx context.Context, userID, code string) error {
	enrollment, err := e.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrEnrollmentNotFound) {
			e.logAttempt(ctx, userID, "none", false)
			return ErrNotEnrolled
		}
		return fmt.Errorf("failed to load enrollment: %w", err)
	}

	switch len(code) {
	case totpCodeLength:
		err = e.verifyTOTP(ctx, enrollment, code)
	case backupCodeLength:
		err = e.verifyBackupCode(ctx, enrollment, code)
	default:
		e.logAttempt(ctx, userID, "malformed", false)
		return ErrInvalidCode
	}
	if err != nil {
		return err
	}

	if !enrollment.Enabled {
		enrollment.Enabled = true
		enrollment.UpdatedAt = e.now().UTC()
		if err := e.store.Save(ctx, *enrollment); err != nil {
			return fmt.Errorf("failed to activate enrollment: %w", err)
		}
		e.logger.Info("mfa enrollment activated", util.String("user_id", userID))
	}
	return nil
}

// Enabled reports whether the user has an active enrollment.
func (e *Engine) Enabled(ctx context.Context, userID string) (bool, error) {
	enrollment, err := e.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrEnrollmentNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load enrollment: %w", err)
	}
	return enrollment.Enabled, nil
}

// Disable removes the enrollment. A fresh valid code is required; a stolen
// session alone cannot turn MFA off.
func (e *Engine) Disable(ctx context.Context, userID, code string) error {
	if err := e.Verify(ctx, userID, code); err != nil {
		return err
	}
	if err := e.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete enrollment: %w", err)
	}
	e.logger.Info("mfa disabled", util.String("user_id", userID))
	return nil
}

// RegenerateBackupCodes replaces the whole backup code set after a fresh
// verification and returns the new plaintext codes once.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if err := e.Verify(ctx, userID, code); err != nil {
		return nil, err
	}

	enrollment, err := e.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}

	codes, hashes, err := e.generateBackupCodes()
	if err != nil {
		return nil, err
	}
	enrollment.BackupCodes = hashes
	enrollment.UpdatedAt = e.now().UTC()
	if err := e.store.Save(ctx, *enrollment); err != nil {
		return nil, fmt.Errorf("failed to save backup codes: %w", err)
	}

	e.logger.Info("mfa backup codes regenerated", util.String("user_id", userID))
	return codes, nil
}

func (e *Engine) verifyTOTP(ctx context.Context, enrollment *models.MFAEnrollment, code string) error {
	secret, err := e.decryptSecret(ctx, enrollment.SecretEnc)
	if err != nil {
		return err
	}
	if !e.verifier.VerifyTOTP(secret, code, e.now()) {
		e.logAttempt(ctx, enrollment.UserID, "totp", false)
		return ErrInvalidCode
	}
	e.logAttempt(ctx, enrollment.UserID, "totp", true)
	return nil
}

func (e *Engine) verifyBackupCode(ctx context.Context, enrollment *models.MFAEnrollment, code string) error {
	for i, encoded := range enrollment.BackupCodes {
		match, err := e.hasher.VerifyBackupCode(code, encoded)
		if err != nil {
			return fmt.Errorf("failed to verify backup code: %w", err)
		}
		if match {
			enrollment.BackupCodes = append(enrollment.BackupCodes[:i], enrollment.BackupCodes[i+1:]...)
			enrollment.UpdatedAt = e.now().UTC()
			if err := e.store.Save(ctx, *enrollment); err != nil {
				return fmt.Errorf("failed to consume backup code: %w", err)
			}
			e.logAttempt(ctx, enrollment.UserID, "backup_code", true)
			return nil
		}
	}
	e.logAttempt(ctx, enrollment.UserID, "backup_code", false)
	return ErrInvalidCode
}

func (e *Engine) encryptSecret(ctx context.Context, secret string) (string, error) {
	enc, err := e.secrets.EncryptField(ctx, secret)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt totp secret: %w", err)
	}
	envelope, err := encryption.MarshalEnvelope(enc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal secret envelope: %w", err)
	}
	return envelope, nil
}

func (e *Engine) decryptSecret(ctx context.Context, secretEnc string) (string, error) {
	envelope, err := encryption.UnmarshalEnvelope(secretEnc)
	if err != nil {
		return "", fmt.Errorf("failed to unmarshal secret envelope: %w", err)
	}
	secret, err := e.secrets.DecryptField(ctx, envelope)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt totp secret: %w", err)
	}
	return secret, nil
}

var backupCodeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func (e *Engine) generateBackupCodes() ([]string, []string, error) {
	codes := make([]string, 0, e.backupCodeCount)
	hashes := make([]string, 0, e.backupCodeCount)
	for i := 0; i < e.backupCodeCount; i++ {
		raw := make([]byte, 5)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		code := backupCodeEncoding.EncodeToString(raw)
		hash, err := e.hasher.HashBackupCode(code)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash backup code: %w", err)
		}
		codes = append(codes, code)
		hashes = append(hashes, hash)
	}
	return codes, hashes, nil
}

// logAttempt records one verification attempt. Failed attempts also land in
// the security event log so brute-forced codes are visible to the detector;
// successful attempts surface through the success-path events (login,
// mfa_enabled). The attempt is already being refused when the append fails,
// so an event-log outage here is logged but does not change the outcome.
func (e *Engine) logAttempt(ctx context.Context, userID, method string, success bool) {
	e.logger.Info("mfa verification attempt",
		util.String("user_id", userID),
		util.String("method", method),
		util.Bool("success", success))

	if success || e.events == nil {
		return
	}
	err := e.events.Log(ctx, models.SecurityEvent{
		EventType: models.EventFailedLogin,
		UserID:    userID,
		Details: map[string]string{
			"reason":  "invalid_mfa_code",
			"method":  method,
			"success": "false",
		},
	})
	if err != nil {
		e.logger.Error("failed to record mfa attempt",
			util.String("user_id", userID),
			util.ErrorField(err))
	}
}
