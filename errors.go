package authcore

import "errors"

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// passwords; callers cannot tell which.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout window holds, even
	// for correct passwords.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountSuspended is returned for suspended accounts on login,
	// refresh, and validation.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrTokenExpired reports a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed reports a token that failed parsing or signature
	// verification.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenRevoked reports a token whose jti is on the denylist.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenStale reports a refresh token minted before the account's
	// current epoch.
	ErrTokenStale = errors.New("token stale")
	// ErrTokenClaimsInvalid reports a verified token whose claims fail
	// domain checks.
	ErrTokenClaimsInvalid = errors.New("token claims invalid")
	// ErrSessionNotFound reports a missing or purged session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotActive reports a session in a terminal state.
	ErrSessionNotActive = errors.New("session not active")
	// ErrDeviceMismatch reports a refresh attempt from a device that does
	// not match the session's binding.
	ErrDeviceMismatch = errors.New("device mismatch")
	// ErrVerificationCodeInvalid covers wrong and consumed verification
	// codes; callers cannot tell which.
	ErrVerificationCodeInvalid = errors.New("verification code invalid")
	// ErrVerificationExpired reports a verification code or link past
	// its lifetime.
	ErrVerificationExpired = errors.New("verification expired")
	// ErrTooManyAttempts reports a verification artifact killed by
	// repeated wrong codes.
	ErrTooManyAttempts = errors.New("too many verification attempts")
	// ErrAlreadyVerified reports a confirmation for a channel that is
	// already verified.
	ErrAlreadyVerified = errors.New("channel already verified")
	// ErrPasswordMismatch reports a wrong current password on a password
	// change.
	ErrPasswordMismatch = errors.New("current password mismatch")
	// ErrWeakPassword reports a new password that fails the strength
	// policy.
	ErrWeakPassword = errors.New("password policy violation")
	// ErrRateLimited reports a throttled login or refresh attempt.
	ErrRateLimited = errors.New("rate limited")
	// ErrCacheUnavailable reports a Redis outage surfaced by a fail-closed
	// revocation or session check.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrDuplicateIdentifier reports a registration against an identifier
	// that is already taken. CredentialStore implementations return it
	// from Create.
	ErrDuplicateIdentifier = errors.New("identifier already registered")
	// ErrUserNotFound is the sentinel CredentialStore implementations
	// return for missing accounts. The engine never surfaces it: lookup
	// misses become ErrInvalidCredentials or silent no-ops.
	ErrUserNotFound = errors.New("user not found")
	// ErrEngineNotReady reports use of an Engine that was not built.
	ErrEngineNotReady = errors.New("engine not initialized")
)
