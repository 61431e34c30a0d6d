package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginRateLimited    = "login_rate_limited"
	auditEventLoginLockout        = "login_lockout"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshInvalid      = "refresh_invalid"
	auditEventRefreshRateLimited  = "refresh_rate_limited"
	auditEventDeviceMismatch      = "device_mismatch"
	auditEventValidateFailure     = "validate_failure"
	auditEventLogoutSession       = "logout_session"
	auditEventLogoutAll           = "logout_all"
	auditEventRegisterSuccess     = "register_success"
	auditEventRegisterFailure     = "register_failure"
	auditEventRegisterDuplicate   = "register_duplicate"
	auditEventVerificationRequest = "verification_request"
	auditEventVerificationConfirm = "verification_confirm"
	auditEventPasswordResetReq    = "password_reset_request"
	auditEventPasswordResetDone   = "password_reset_confirm"
	auditEventPasswordChange      = "password_change"
	auditEventAccountStatusChange = "account_status_change"
	auditEventSessionRevoked      = "session_revoked"
	auditEventSessionsSwept       = "sessions_swept"
	auditEventSuspiciousFlagged   = "suspicious_flagged"
)

type auditErrorCode string

const (
	auditErrInvalidCredentials  auditErrorCode = "invalid_credentials"
	auditErrRateLimited         auditErrorCode = "rate_limited"
	auditErrAccountLocked       auditErrorCode = "account_locked"
	auditErrAccountSuspended    auditErrorCode = "account_suspended"
	auditErrInvalidToken        auditErrorCode = "invalid_token"
	auditErrTokenRevoked        auditErrorCode = "token_revoked"
	auditErrTokenStale          auditErrorCode = "token_stale"
	auditErrSessionNotFound     auditErrorCode = "session_not_found"
	auditErrSessionNotActive    auditErrorCode = "session_not_active"
	auditErrDeviceMismatch      auditErrorCode = "device_mismatch"
	auditErrVerificationInvalid auditErrorCode = "verification_invalid"
	auditErrVerificationExpired auditErrorCode = "verification_expired"
	auditErrTooManyAttempts     auditErrorCode = "too_many_attempts"
	auditErrDuplicate           auditErrorCode = "duplicate"
	auditErrWeakPassword        auditErrorCode = "weak_password"
	auditErrPasswordMismatch    auditErrorCode = "password_mismatch"
	auditErrUnavailable         auditErrorCode = "backend_unavailable"
	auditErrInternal            auditErrorCode = "internal_error"
)

// emitAudit builds and dispatches a single audit event. It never blocks the
// calling operation beyond the dispatcher's configured buffering policy.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := errorCodeOf(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func errorCodeOf(err error) auditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountSuspended):
		return auditErrAccountSuspended
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenStale):
		return auditErrTokenStale
	case errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrTokenClaimsInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionNotActive):
		return auditErrSessionNotActive
	case errors.Is(err, ErrDeviceMismatch):
		return auditErrDeviceMismatch
	case errors.Is(err, ErrVerificationCodeInvalid),
		errors.Is(err, ErrAlreadyVerified):
		return auditErrVerificationInvalid
	case errors.Is(err, ErrVerificationExpired):
		return auditErrVerificationExpired
	case errors.Is(err, ErrTooManyAttempts):
		return auditErrTooManyAttempts
	case errors.Is(err, ErrDuplicateIdentifier):
		return auditErrDuplicate
	case errors.Is(err, ErrWeakPassword):
		return auditErrWeakPassword
	case errors.Is(err, ErrPasswordMismatch):
		return auditErrPasswordMismatch
	case errors.Is(err, ErrCacheUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
