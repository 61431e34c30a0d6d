package flows

import (
	"context"
	"errors"
	"time"

	"github.com/skillbridge/authcore/session"
	"github.com/skillbridge/authcore/token"
)

// LoginFailureKind names the gate a failed login stopped at so the
// caller can map it to a public sentinel.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureBadInput
	LoginFailureUserNotFound
	LoginFailureLocked
	LoginFailurePassword
	LoginFailureSuspended
	LoginFailureStore
	LoginFailureSession
	LoginFailureIssue
)

// LoginInput is the credential presentation for a login attempt.
type LoginInput struct {
	Identifier string
	Password   string
	Device     DeviceInfo
}

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error

	User    *UserRecord
	Session *session.Session
	Pair    token.Pair

	// Locked reports that this attempt tripped the lockout threshold.
	Locked bool
}

// LoginDeps is everything the login flow needs injected.
type LoginDeps struct {
	Credentials CredentialStore
	Hasher      PasswordHasher
	Sessions    SessionManager
	Tokens      TokenCodec
	Revocation  RevocationCache
	RateLimiter LoginRateLimiter

	Fingerprint func(platform, userAgent string) [32]byte
	Now         func() time.Time

	// DummyHash is compared against when the identifier is unknown, so
	// lookup misses cost the same as password mismatches.
	DummyHash string

	MaxFailedAttempts int
	LockDuration      time.Duration

	ErrUserNotFound error
}

// RunLogin executes credential verification, lockout accounting, session
// creation, and token issuance without root package dependencies.
//
// Order matters: rate limit, then lookup, then lockout, then password.
// The lockout gate runs before the password comparison, so a correct
// password during an active lockout is still rejected and reveals
// nothing. The failure counter moves only on password mismatch.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) LoginResult {
	platform, ok := session.ParsePlatform(in.Device.Platform)
	if !ok {
		return LoginResult{Failure: LoginFailureBadInput, Err: errors.New("unknown platform")}
	}
	if in.Identifier == "" || in.Password == "" {
		return LoginResult{Failure: LoginFailureBadInput, Err: errors.New("missing credentials")}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckLogin(ctx, in.Identifier, in.Device.IPAddress); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	user, err := deps.Credentials.FindByIdentifier(ctx, in.Identifier)
	if err != nil {
		if errors.Is(err, deps.ErrUserNotFound) {
			// Burn a comparison so unknown identifiers are not cheaper
			// than wrong passwords.
			_ = deps.Hasher.Compare(deps.DummyHash, in.Password)
			deps.countFailure(ctx, in, nil)
			return LoginResult{Failure: LoginFailureUserNotFound, Err: err}
		}
		return LoginResult{Failure: LoginFailureStore, Err: err}
	}

	now := deps.Now()
	if user.LockUntil > now.Unix() {
		return LoginResult{Failure: LoginFailureLocked, Err: errors.New("account locked"), User: user}
	}

	if err := deps.Hasher.Compare(user.PasswordHash, in.Password); err != nil {
		locked := deps.recordPasswordFailure(ctx, user, now)
		deps.countFailure(ctx, in, user)
		return LoginResult{Failure: LoginFailurePassword, Err: err, User: user, Locked: locked}
	}

	if user.Status == "suspended" {
		return LoginResult{Failure: LoginFailureSuspended, Err: errors.New("account suspended"), User: user}
	}

	if user.FailedAttempts > 0 {
		if err := deps.Credentials.ClearLoginFailures(ctx, user.ID); err != nil {
			return LoginResult{Failure: LoginFailureStore, Err: err, User: user}
		}
	}
	if deps.RateLimiter != nil {
		_ = deps.RateLimiter.ResetLogin(ctx, in.Identifier, in.Device.IPAddress)
	}

	sess, err := deps.Sessions.Create(ctx, session.CreateInput{
		UserID:      user.ID,
		DeviceID:    in.Device.DeviceID,
		Platform:    platform,
		UserAgent:   in.Device.UserAgent,
		IPAddress:   in.Device.IPAddress,
		Location:    in.Device.Location,
		Fingerprint: deps.Fingerprint(in.Device.Platform, in.Device.UserAgent),
	})
	if err != nil {
		return LoginResult{Failure: LoginFailureSession, Err: err, User: user}
	}

	epoch, err := deps.Revocation.CurrentEpoch(ctx, user.ID)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, User: user, Session: sess}
	}

	pair, err := deps.Tokens.IssuePair(token.Subject{
		UserID:       user.ID,
		Role:         user.Role,
		Status:       user.Status,
		Verification: user.Verification(),
		Platform:     in.Device.Platform,
	}, sess.ID, in.Device.DeviceID, epoch)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, User: user, Session: sess}
	}

	return LoginResult{User: user, Session: sess, Pair: pair}
}

// recordPasswordFailure advances the account failure counter and arms
// the lockout when the threshold is reached. Reports whether this
// attempt armed it.
func (deps *LoginDeps) recordPasswordFailure(ctx context.Context, user *UserRecord, now time.Time) bool {
	var lockUntil int64
	if deps.MaxFailedAttempts > 0 && user.FailedAttempts+1 >= deps.MaxFailedAttempts {
		lockUntil = now.Add(deps.LockDuration).Unix()
	}

	attempts, err := deps.Credentials.RecordLoginFailure(ctx, user.ID, lockUntil)
	if err != nil {
		return false
	}
	user.FailedAttempts = attempts
	if lockUntil > 0 {
		user.LockUntil = lockUntil
	}
	return lockUntil > 0
}

func (deps *LoginDeps) countFailure(ctx context.Context, in LoginInput, _ *UserRecord) {
	if deps.RateLimiter == nil {
		return
	}
	_ = deps.RateLimiter.IncrementLogin(ctx, in.Identifier, in.Device.IPAddress)
}
