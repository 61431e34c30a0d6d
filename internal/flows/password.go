package flows

import (
	"context"
	"errors"
	"time"

	"github.com/skillbridge/authcore/internal/stores"
)

// ErrPasswordMismatch is returned by change-password when the current
// password does not verify.
var ErrPasswordMismatch = errors.New("current password mismatch")

// PasswordDeps is everything the password reset and change flow needs injected.
type PasswordDeps struct {
	Credentials CredentialStore
	Hasher      PasswordHasher
	Sessions    SessionManager
	Revocation  RevocationCache
	Artifacts   ArtifactStore
	Notifier    Notifier

	NewOTP     func(digits int) (string, error)
	NewSalt    func() ([16]byte, error)
	HashSecret func(salt [16]byte, secret string) [32]byte
	Now        func() time.Time

	CheckStrength func(password string) error

	ResetTTL    time.Duration
	OTPDigits   int
	MaxAttempts int

	ErrUserNotFound error
	Warn            func(string, ...any)
}

// RunRequestPasswordReset issues a reset code to the account's email.
// Unknown identifiers succeed silently: the response never reveals
// whether an account exists. The matched user ID, empty on a miss, is
// returned for internal bookkeeping only and must never reach the
// caller's response.
func RunRequestPasswordReset(ctx context.Context, identifier string, deps PasswordDeps) (string, error) {
	user, err := deps.Credentials.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, deps.ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}

	code, err := deps.NewOTP(deps.OTPDigits)
	if err != nil {
		return "", err
	}

	salt, err := deps.NewSalt()
	if err != nil {
		return "", err
	}
	record := &stores.ArtifactRecord{
		Purpose:    stores.PurposePasswordReset,
		ExpiresAt:  deps.Now().Add(deps.ResetTTL).Unix(),
		Salt:       salt,
		SecretHash: deps.HashSecret(salt, code),
		Payload:    user.Identifier,
	}
	if err := deps.Artifacts.Save(ctx, user.ID, record, deps.ResetTTL); err != nil {
		return "", err
	}

	if err := deps.Notifier.SendPasswordReset(ctx, user.Identifier, code); err != nil && deps.Warn != nil {
		deps.Warn("password reset delivery failed", "user_id", user.ID)
	}

	return user.ID, nil
}

// ResetPasswordResult reports the invalidation scope of a reset.
type ResetPasswordResult struct {
	UserID          string
	SessionsRevoked int
	NewEpoch        int64
}

// RunConfirmPasswordReset redeems a reset code and installs the new
// password. Every session is revoked and the token epoch bumped: a
// password reset means the old credential may be compromised, so nothing
// minted before it survives.
func RunConfirmPasswordReset(ctx context.Context, identifier, code, newPassword string, deps PasswordDeps) (ResetPasswordResult, error) {
	user, err := deps.Credentials.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, deps.ErrUserNotFound) {
			// Indistinguishable from a wrong code.
			return ResetPasswordResult{}, ErrVerificationInvalid
		}
		return ResetPasswordResult{}, err
	}

	if err := deps.CheckStrength(newPassword); err != nil {
		return ResetPasswordResult{}, err
	}

	if _, err := deps.Artifacts.Consume(ctx, user.ID, stores.PurposePasswordReset, code, deps.MaxAttempts); err != nil {
		return ResetPasswordResult{}, mapArtifactError(err)
	}

	hash, err := deps.Hasher.Hash(newPassword)
	if err != nil {
		return ResetPasswordResult{}, err
	}
	if err := deps.Credentials.UpdatePassword(ctx, user.ID, hash); err != nil {
		return ResetPasswordResult{}, err
	}
	if err := deps.Credentials.ClearLoginFailures(ctx, user.ID); err != nil && deps.Warn != nil {
		deps.Warn("failed-attempt reset after password reset failed", "user_id", user.ID)
	}

	epoch, err := deps.Revocation.BumpEpoch(ctx, user.ID)
	if err != nil {
		return ResetPasswordResult{UserID: user.ID}, err
	}
	count, err := deps.Sessions.RevokeAll(ctx, user.ID, "")
	if err != nil {
		return ResetPasswordResult{UserID: user.ID, NewEpoch: epoch}, err
	}

	return ResetPasswordResult{UserID: user.ID, SessionsRevoked: count, NewEpoch: epoch}, nil
}

// ChangePasswordInput is an authenticated password change.
type ChangePasswordInput struct {
	UserID           string
	CurrentPassword  string
	NewPassword      string
	CurrentSessionID string
}

// ChangePasswordResult reports the invalidation scope of a change.
type ChangePasswordResult struct {
	SessionsRevoked int
	NewEpoch        int64
}

// RunChangePassword verifies the current password and installs the new
// one. All other sessions are revoked and the epoch bumped; the session
// performing the change stays alive, but its refresh token is stale and
// the next refresh on it uses the pair minted after this call.
func RunChangePassword(ctx context.Context, in ChangePasswordInput, deps PasswordDeps) (ChangePasswordResult, error) {
	user, err := deps.Credentials.FindByID(ctx, in.UserID)
	if err != nil {
		return ChangePasswordResult{}, err
	}

	if err := deps.Hasher.Compare(user.PasswordHash, in.CurrentPassword); err != nil {
		return ChangePasswordResult{}, ErrPasswordMismatch
	}
	if err := deps.CheckStrength(in.NewPassword); err != nil {
		return ChangePasswordResult{}, err
	}

	hash, err := deps.Hasher.Hash(in.NewPassword)
	if err != nil {
		return ChangePasswordResult{}, err
	}
	if err := deps.Credentials.UpdatePassword(ctx, in.UserID, hash); err != nil {
		return ChangePasswordResult{}, err
	}

	epoch, err := deps.Revocation.BumpEpoch(ctx, in.UserID)
	if err != nil {
		return ChangePasswordResult{}, err
	}
	count, err := deps.Sessions.RevokeAll(ctx, in.UserID, in.CurrentSessionID)
	if err != nil {
		return ChangePasswordResult{NewEpoch: epoch}, err
	}

	return ChangePasswordResult{SessionsRevoked: count, NewEpoch: epoch}, nil
}
