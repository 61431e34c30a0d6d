package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/skillbridge/authcore/events"
	"github.com/skillbridge/authcore/internal/flows"
	"github.com/skillbridge/authcore/token"
)

// ChangePasswordOutcome reports the invalidation scope of an
// authenticated password change plus the fresh pair minted for the
// session that performed it.
type ChangePasswordOutcome struct {
	SessionsRevoked int
	NewEpoch        int64

	// Pair replaces the caller's tokens: the epoch bump staled the
	// refresh token they logged in with.
	Pair TokenPair
}

// RequestPasswordReset issues a reset code to the account's email.
// Unknown identifiers succeed silently so the response never reveals
// whether an account exists.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	if err := e.ready(); err != nil {
		return err
	}

	userID, err := e.service.RequestPasswordReset(ctx, identifier)
	if err != nil {
		err = fmt.Errorf("password reset request: %w", err)
		e.emitAudit(ctx, auditEventPasswordResetReq, false, userID, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetReq, true, userID, "", nil, nil)
	if userID != "" {
		e.publishEvent(ctx, events.PasswordResetRequested{
			Base:   events.Now(),
			UserID: userID,
		})
	}
	return nil
}

// ResetPassword redeems a reset code and installs the new password.
// Every session is revoked and the token epoch bumped: a reset means the
// old credential may be compromised, so nothing minted before it
// survives. Wrong codes and unknown identifiers are indistinguishable.
func (e *Engine) ResetPassword(ctx context.Context, identifier, code, newPassword string) (*InvalidationOutcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	result, err := e.service.ConfirmPasswordReset(ctx, identifier, code, newPassword)
	if err != nil {
		mapped := passwordSentinel(err)
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetDone, false, result.UserID, "", mapped, nil)
		return nil, mapped
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.metricInc(MetricEpochBump)
	e.emitAudit(ctx, auditEventPasswordResetDone, true, result.UserID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": fmt.Sprint(result.SessionsRevoked)}
	})
	e.publishEvent(ctx, events.PasswordResetCompleted{
		Base:            events.Now(),
		UserID:          result.UserID,
		SessionsRevoked: result.SessionsRevoked,
	})
	e.publishEvent(ctx, events.TokenEpochBumped{
		Base:   events.Now(),
		UserID: result.UserID,
		Epoch:  result.NewEpoch,
		Cause:  "password_reset",
	})

	return &InvalidationOutcome{
		SessionsRevoked: result.SessionsRevoked,
		NewEpoch:        result.NewEpoch,
	}, nil
}

// ChangePassword verifies the current password and installs the new one.
// Every other session is revoked and the epoch bumped; the session named
// by the access token survives and receives a fresh pair minted at the
// new epoch.
func (e *Engine) ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) (*ChangePasswordOutcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, tokenSentinel(err)
	}

	result, err := e.service.ChangePassword(ctx, flows.ChangePasswordInput{
		UserID:           claims.UserID,
		CurrentPassword:  currentPassword,
		NewPassword:      newPassword,
		CurrentSessionID: claims.SessionID,
	})
	if err != nil {
		mapped := passwordSentinel(err)
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChange, false, claims.UserID, claims.SessionID, mapped, nil)
		return nil, mapped
	}

	pair, err := e.codec.IssuePair(token.Subject{
		UserID:       claims.UserID,
		Role:         claims.Role,
		Status:       claims.Status,
		Verification: claims.Verification,
		Platform:     claims.Platform,
	}, claims.SessionID, claims.DeviceID, result.NewEpoch)
	if err != nil {
		return nil, fmt.Errorf("change password: reissue: %w", err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.metricInc(MetricEpochBump)
	e.emitAudit(ctx, auditEventPasswordChange, true, claims.UserID, claims.SessionID, nil, func() map[string]string {
		return map[string]string{"sessions_revoked": fmt.Sprint(result.SessionsRevoked)}
	})
	e.publishEvent(ctx, events.PasswordChanged{
		Base:            events.Now(),
		UserID:          claims.UserID,
		SessionsRevoked: result.SessionsRevoked,
	})
	e.publishEvent(ctx, events.TokenEpochBumped{
		Base:   events.Now(),
		UserID: claims.UserID,
		Epoch:  result.NewEpoch,
		Cause:  "password_change",
	})

	return &ChangePasswordOutcome{
		SessionsRevoked: result.SessionsRevoked,
		NewEpoch:        result.NewEpoch,
		Pair:            pairFromToken(pair),
	}, nil
}

func passwordSentinel(err error) error {
	switch {
	case errors.Is(err, flows.ErrPasswordMismatch):
		return ErrPasswordMismatch
	case errors.Is(err, flows.ErrVerificationInvalid):
		return ErrVerificationCodeInvalid
	case errors.Is(err, flows.ErrVerificationExpired):
		return ErrVerificationExpired
	case errors.Is(err, flows.ErrTooManyAttempts):
		return ErrTooManyAttempts
	case errors.Is(err, ErrWeakPassword):
		return ErrWeakPassword
	default:
		return fmt.Errorf("password: %w", err)
	}
}
