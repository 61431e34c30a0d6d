package flows

import (
	"context"
	"errors"

	"github.com/skillbridge/authcore/session"
	"github.com/skillbridge/authcore/token"
)

// RegisterFailureKind names the gate a failed registration stopped at so the
// caller can map it to a public sentinel.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureBadInput
	RegisterFailureWeakPassword
	RegisterFailureDuplicate
	RegisterFailureStore
	RegisterFailureSession
	RegisterFailureIssue
)

// RegisterInput carries a signup request.
type RegisterInput struct {
	Identifier string
	Phone      string
	Password   string
	Role       string
	Device     DeviceInfo
}

// RegisterResult carries the created account with its auto-login pair,
// or failure metadata. The account starts in pending status; tokens are
// issued immediately so the client can drive verification while already
// signed in.
type RegisterResult struct {
	Failure RegisterFailureKind
	Err     error

	User    *UserRecord
	Session *session.Session
	Pair    token.Pair
}

// RegisterDeps is everything the registration flow needs injected.
type RegisterDeps struct {
	Credentials CredentialStore
	Hasher      PasswordHasher
	Sessions    SessionManager
	Tokens      TokenCodec
	Revocation  RevocationCache

	Verification VerificationDeps

	CheckStrength func(password string) error
	Fingerprint   func(platform, userAgent string) [32]byte

	DefaultRole string

	ErrDuplicate error
	Warn         func(string, ...any)
}

// RunRegister creates a pending account, kicks off verification on the
// channels the user supplied, and auto-logs the new account in.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) RegisterResult {
	platform, ok := session.ParsePlatform(in.Device.Platform)
	if !ok {
		return RegisterResult{Failure: RegisterFailureBadInput, Err: errors.New("unknown platform")}
	}
	if in.Identifier == "" {
		return RegisterResult{Failure: RegisterFailureBadInput, Err: errors.New("identifier required")}
	}
	if err := deps.CheckStrength(in.Password); err != nil {
		return RegisterResult{Failure: RegisterFailureWeakPassword, Err: err}
	}

	hash, err := deps.Hasher.Hash(in.Password)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureStore, Err: err}
	}

	role := in.Role
	if role == "" {
		role = deps.DefaultRole
	}

	user, err := deps.Credentials.Create(ctx, NewUser{
		Identifier:   in.Identifier,
		Phone:        in.Phone,
		PasswordHash: hash,
		Role:         role,
		Status:       "pending",
	})
	if err != nil {
		if errors.Is(err, deps.ErrDuplicate) {
			return RegisterResult{Failure: RegisterFailureDuplicate, Err: err}
		}
		return RegisterResult{Failure: RegisterFailureStore, Err: err}
	}

	// Verification challenges are best effort at signup; the client can
	// always re-request them.
	if _, err := RunRequestVerification(ctx, user, "email", deps.Verification); err != nil && deps.Warn != nil {
		deps.Warn("signup email verification dispatch failed", "user_id", user.ID)
	}
	if user.Phone != "" {
		if _, err := RunRequestVerification(ctx, user, "phone", deps.Verification); err != nil && deps.Warn != nil {
			deps.Warn("signup phone verification dispatch failed", "user_id", user.ID)
		}
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
		return RegisterResult{Failure: RegisterFailureSession, Err: err, User: user}
	}

	epoch, err := deps.Revocation.CurrentEpoch(ctx, user.ID)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureIssue, Err: err, User: user, Session: sess}
	}

	pair, err := deps.Tokens.IssuePair(token.Subject{
		UserID:       user.ID,
		Role:         user.Role,
		Status:       user.Status,
		Verification: user.Verification(),
		Platform:     in.Device.Platform,
	}, sess.ID, in.Device.DeviceID, epoch)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureIssue, Err: err, User: user, Session: sess}
	}

	return RegisterResult{User: user, Session: sess, Pair: pair}
}

// DefaultCheckStrength is the stock password policy: at least eight
// characters with one letter and one digit.
func DefaultCheckStrength(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			hasLetter = true
		}
	}
	if !hasLetter || !hasDigit {
		return errors.New("password must mix letters and digits")
	}
	return nil
}
