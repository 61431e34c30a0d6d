package flows

import (
	"context"
	"errors"
	"time"

	"github.com/skillbridge/authcore/internal/stores"
)

// Flow-level verification sentinels, mapped to public errors by the root
// engine.
var (
	ErrAlreadyVerified     = errors.New("channel already verified")
	ErrUnknownChannel      = errors.New("unknown verification channel")
	ErrNoDestination       = errors.New("no destination on record")
	ErrVerificationInvalid = errors.New("verification code invalid")
	ErrVerificationExpired = errors.New("verification code expired")
	ErrTooManyAttempts     = errors.New("verification attempts exceeded")
)

// VerificationDeps is everything the verification flow needs injected.
type VerificationDeps struct {
	Credentials CredentialStore
	Artifacts   ArtifactStore
	Notifier    Notifier

	NewLinkToken func() (string, error)
	NewOTP       func(digits int) (string, error)
	NewSalt      func() ([16]byte, error)
	HashSecret   func(salt [16]byte, secret string) [32]byte
	Now          func() time.Time

	LinkTTL     time.Duration
	OTPTTL      time.Duration
	OTPDigits   int
	MaxAttempts int

	Warn func(string, ...any)
}

// RunRequestVerification issues a fresh one-time challenge for the
// channel and dispatches it. Reissuing replaces and invalidates any
// pending challenge for the same channel. Delivery failures are logged,
// not surfaced: the caller cannot distinguish delivery from throttling.
// Returns the destination the challenge went to.
func RunRequestVerification(ctx context.Context, user *UserRecord, channel string, deps VerificationDeps) (string, error) {
	var (
		purpose     stores.Purpose
		destination string
	)
	switch channel {
	case "email":
		if user.EmailVerified {
			return "", ErrAlreadyVerified
		}
		purpose = stores.PurposeEmailVerify
		destination = user.Identifier
	case "phone":
		if user.PhoneVerified {
			return "", ErrAlreadyVerified
		}
		if user.Phone == "" {
			return "", ErrNoDestination
		}
		purpose = stores.PurposePhoneVerify
		destination = user.Phone
	default:
		return "", ErrUnknownChannel
	}

	var (
		secret string
		ttl    time.Duration
		err    error
	)
	if purpose == stores.PurposeEmailVerify {
		secret, err = deps.NewLinkToken()
		ttl = deps.LinkTTL
	} else {
		secret, err = deps.NewOTP(deps.OTPDigits)
		ttl = deps.OTPTTL
	}
	if err != nil {
		return "", err
	}

	if err := deps.saveArtifact(ctx, user.ID, purpose, secret, destination, ttl); err != nil {
		return "", err
	}

	switch purpose {
	case stores.PurposeEmailVerify:
		err = deps.Notifier.SendEmailVerification(ctx, destination, secret)
	case stores.PurposePhoneVerify:
		err = deps.Notifier.SendOTP(ctx, destination, secret)
	}
	if err != nil && deps.Warn != nil {
		deps.Warn("verification delivery failed", "user_id", user.ID, "channel", channel)
	}

	return destination, nil
}

// ConfirmVerificationResult reports what a confirmation changed.
type ConfirmVerificationResult struct {
	Channel string
	// Activated reports that this confirmation completed the required
	// set of channels and moved the account from pending to active.
	Activated bool
}

// RunConfirmVerification redeems a pending challenge and marks the
// channel verified. Email must always be verified; the phone channel is
// required only when a phone number is on record. When the last required
// channel confirms, a pending account becomes active.
func RunConfirmVerification(ctx context.Context, user *UserRecord, channel, secret string, deps VerificationDeps) (ConfirmVerificationResult, error) {
	var purpose stores.Purpose
	switch channel {
	case "email":
		if user.EmailVerified {
			return ConfirmVerificationResult{}, ErrAlreadyVerified
		}
		purpose = stores.PurposeEmailVerify
	case "phone":
		if user.PhoneVerified {
			return ConfirmVerificationResult{}, ErrAlreadyVerified
		}
		purpose = stores.PurposePhoneVerify
	default:
		return ConfirmVerificationResult{}, ErrUnknownChannel
	}

	if _, err := deps.Artifacts.Consume(ctx, user.ID, purpose, secret, deps.MaxAttempts); err != nil {
		return ConfirmVerificationResult{}, mapArtifactError(err)
	}

	if err := deps.Credentials.MarkVerified(ctx, user.ID, channel); err != nil {
		return ConfirmVerificationResult{}, err
	}
	if channel == "email" {
		user.EmailVerified = true
	} else {
		user.PhoneVerified = true
	}

	result := ConfirmVerificationResult{Channel: channel}
	if user.Status == "pending" && user.EmailVerified && (user.Phone == "" || user.PhoneVerified) {
		if err := deps.Credentials.SetStatus(ctx, user.ID, "active"); err != nil {
			return result, err
		}
		user.Status = "active"
		result.Activated = true
	}

	return result, nil
}

func (deps *VerificationDeps) saveArtifact(
	ctx context.Context,
	userID string,
	purpose stores.Purpose,
	secret, payload string,
	ttl time.Duration,
) error {
	salt, err := deps.NewSalt()
	if err != nil {
		return err
	}
	return deps.Artifacts.Save(ctx, userID, &stores.ArtifactRecord{
		Purpose:    purpose,
		ExpiresAt:  deps.Now().Add(ttl).Unix(),
		Salt:       salt,
		SecretHash: deps.HashSecret(salt, secret),
		Payload:    payload,
	}, ttl)
}

func mapArtifactError(err error) error {
	switch {
	case errors.Is(err, stores.ErrArtifactNotFound),
		errors.Is(err, stores.ErrArtifactSecretMismatch):
		return ErrVerificationInvalid
	case errors.Is(err, stores.ErrArtifactExpired):
		return ErrVerificationExpired
	case errors.Is(err, stores.ErrArtifactAttemptsExceeded):
		return ErrTooManyAttempts
	default:
		return err
	}
}
