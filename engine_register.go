package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/skillbridge/authcore/events"
	"github.com/skillbridge/authcore/internal/flows"
)

// RegisterRequest carries a signup. Phone is optional; when present, the
// account must verify it in addition to email before activating. Role
// defaults to the configured account role when empty.
type RegisterRequest struct {
	Identifier string
	Phone      string
	Password   string
	Role       string
	Device     DeviceInfo
}

// Register creates a pending account, dispatches verification challenges
// on the supplied channels, and auto-logs the account in so the client
// can drive verification while already holding tokens.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*LoginOutcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	result := e.service.Register(ctx, flows.RegisterInput{
		Identifier: req.Identifier,
		Phone:      req.Phone,
		Password:   req.Password,
		Role:       req.Role,
		Device:     toFlowDevice(req.Device),
	})

	if result.Failure != flows.RegisterFailureNone {
		return nil, e.registerFailed(ctx, result)
	}

	e.metricInc(MetricRegisterSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, result.User.ID, result.Session.ID, nil, func() map[string]string {
		return map[string]string{
			"role":     result.User.Role,
			"platform": req.Device.Platform,
		}
	})
	e.publishEvent(ctx, events.UserRegistered{
		Base:       events.Now(),
		UserID:     result.User.ID,
		Identifier: result.User.Identifier,
		Role:       result.User.Role,
	})
	e.publishEvent(ctx, events.SessionCreated{
		Base:      events.Now(),
		UserID:    result.User.ID,
		SessionID: result.Session.ID,
		Platform:  req.Device.Platform,
		DeviceID:  req.Device.DeviceID,
	})

	return &LoginOutcome{
		UserID:    result.User.ID,
		SessionID: result.Session.ID,
		Pair:      pairFromToken(result.Pair),
	}, nil
}

func (e *Engine) registerFailed(ctx context.Context, result flows.RegisterResult) error {
	switch result.Failure {
	case flows.RegisterFailureDuplicate:
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrDuplicateIdentifier, nil)
		return ErrDuplicateIdentifier
	case flows.RegisterFailureWeakPassword:
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", result.Err, nil)
		return result.Err
	case flows.RegisterFailureBadInput:
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	default:
		err := fmt.Errorf("register: %w", result.Err)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return err
	}
}

// RequestVerification issues a fresh challenge for the channel and sends
// it through the notifier. Reissuing replaces any pending challenge for
// the same channel. Returns the destination the challenge went to.
func (e *Engine) RequestVerification(ctx context.Context, userID, channel string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	user, err := e.creds.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("request verification: %w", err)
	}

	destination, err := e.service.RequestVerification(ctx, user, channel)
	if err != nil {
		mapped := verificationSentinel(err)
		e.emitAudit(ctx, auditEventVerificationRequest, false, userID, "", mapped, nil)
		return "", mapped
	}

	e.metricInc(MetricVerificationRequest)
	e.emitAudit(ctx, auditEventVerificationRequest, true, userID, "", nil, func() map[string]string {
		return map[string]string{"channel": channel}
	})
	return destination, nil
}

// ConfirmVerification redeems a pending challenge and marks the channel
// verified. When the last required channel confirms, a pending account
// becomes active.
func (e *Engine) ConfirmVerification(ctx context.Context, userID, channel, secret string) (*VerificationOutcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.creds.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("confirm verification: %w", err)
	}

	result, err := e.service.ConfirmVerification(ctx, user, channel, secret)
	if err != nil {
		mapped := verificationSentinel(err)
		e.metricInc(MetricVerificationFailure)
		e.emitAudit(ctx, auditEventVerificationConfirm, false, userID, "", mapped, func() map[string]string {
			return map[string]string{"channel": channel}
		})
		return nil, mapped
	}

	e.metricInc(MetricVerificationSuccess)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, userID, "", nil, func() map[string]string {
		return map[string]string{"channel": channel}
	})

	switch result.Channel {
	case ChannelEmail:
		e.publishEvent(ctx, events.EmailVerified{
			Base:      events.Now(),
			UserID:    userID,
			Activated: result.Activated,
		})
	case ChannelPhone:
		e.publishEvent(ctx, events.PhoneVerified{
			Base:      events.Now(),
			UserID:    userID,
			Activated: result.Activated,
		})
	}
	if result.Activated {
		e.publishEvent(ctx, events.AccountStatusChanged{
			Base:   events.Now(),
			UserID: userID,
			Status: AccountActive,
		})
	}

	return &VerificationOutcome{
		Channel:   result.Channel,
		Activated: result.Activated,
	}, nil
}

// VerifyEmail redeems an email link token. Shorthand for
// ConfirmVerification on the email channel.
func (e *Engine) VerifyEmail(ctx context.Context, userID, linkToken string) (*VerificationOutcome, error) {
	return e.ConfirmVerification(ctx, userID, ChannelEmail, linkToken)
}

// VerifyPhone redeems a phone OTP. Shorthand for ConfirmVerification on
// the phone channel.
func (e *Engine) VerifyPhone(ctx context.Context, userID, code string) (*VerificationOutcome, error) {
	return e.ConfirmVerification(ctx, userID, ChannelPhone, code)
}

func verificationSentinel(err error) error {
	switch {
	case errors.Is(err, flows.ErrAlreadyVerified):
		return ErrAlreadyVerified
	case errors.Is(err, flows.ErrVerificationInvalid):
		return ErrVerificationCodeInvalid
	case errors.Is(err, flows.ErrVerificationExpired):
		return ErrVerificationExpired
	case errors.Is(err, flows.ErrTooManyAttempts):
		return ErrTooManyAttempts
	default:
		return fmt.Errorf("verification: %w", err)
	}
}
