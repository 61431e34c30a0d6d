package flows

import (
	"context"
	"time"

	"github.com/skillbridge/authcore/internal/stores"
	"github.com/skillbridge/authcore/session"
	"github.com/skillbridge/authcore/token"
)

// UserRecord is the flow-level view of a stored account. The root engine
// converts between this and its public user type; flows never see the
// credential backend directly.
type UserRecord struct {
	ID         string
	Identifier string
	Phone      string

	PasswordHash string
	Role         string
	Status       string

	EmailVerified bool
	PhoneVerified bool

	FailedAttempts int
	// LockUntil is the unix second the lockout lapses, zero when unlocked.
	LockUntil int64
}

// Verification reports the record's verification state as carried in
// access token claims.
func (u *UserRecord) Verification() string {
	switch {
	case u.EmailVerified && u.PhoneVerified:
		return "both"
	case u.EmailVerified:
		return "email"
	case u.PhoneVerified:
		return "phone"
	default:
		return "none"
	}
}

// NewUser carries the fields needed to create an account.
type NewUser struct {
	Identifier   string
	Phone        string
	PasswordHash string
	Role         string
	Status       string
}

// CredentialStore is the durable account backend. Lookup misses return
// ErrUserNotFound sentinel supplied in deps; duplicates on create return
// the ErrDuplicate sentinel.
type CredentialStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)
	FindByID(ctx context.Context, id string) (*UserRecord, error)
	Create(ctx context.Context, user NewUser) (*UserRecord, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	RecordLoginFailure(ctx context.Context, userID string, lockUntil int64) (int, error)
	ClearLoginFailures(ctx context.Context, userID string) error
	MarkVerified(ctx context.Context, userID, channel string) error
	SetStatus(ctx context.Context, userID, status string) error
}

// PasswordHasher hashes and verifies passwords. Compare returns a
// non-nil error on mismatch.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// SessionManager is the slice of the session manager flows depend on.
type SessionManager interface {
	Create(ctx context.Context, in session.CreateInput) (*session.Session, error)
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Touch(ctx context.Context, sessionID string, act session.Activity) error
	Revoke(ctx context.Context, sessionID string) (bool, error)
	RevokeAll(ctx context.Context, userID, exceptSessionID string) (int, error)
	MarkSuspicious(ctx context.Context, sessionID string) error
}

// TokenCodec issues and verifies token pairs.
type TokenCodec interface {
	IssuePair(sub token.Subject, sessionID, deviceID string, epoch int64) (token.Pair, error)
	VerifyAccess(tokenStr string) (*token.AccessClaims, error)
	VerifyRefresh(tokenStr string) (*token.RefreshClaims, error)
}

// RevocationCache tracks revoked JTIs and per-user token epochs.
type RevocationCache interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	CurrentEpoch(ctx context.Context, userID string) (int64, error)
	BumpEpoch(ctx context.Context, userID string) (int64, error)
}

// ArtifactStore persists one-time verification artifacts.
type ArtifactStore interface {
	Save(ctx context.Context, userID string, record *stores.ArtifactRecord, ttl time.Duration) error
	Consume(ctx context.Context, userID string, purpose stores.Purpose, presented string, maxAttempts int) (*stores.ArtifactRecord, error)
	Delete(ctx context.Context, userID string, purpose stores.Purpose) error
}

// LoginRateLimiter throttles login attempts per identifier and IP.
type LoginRateLimiter interface {
	CheckLogin(ctx context.Context, identifier, ip string) error
	IncrementLogin(ctx context.Context, identifier, ip string) error
	ResetLogin(ctx context.Context, identifier, ip string) error
}

// RefreshRateLimiter throttles refresh attempts per session.
type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, sessionID string) error
}

// Notifier delivers verification secrets out of band. Delivery failures
// are logged, never surfaced to callers.
type Notifier interface {
	SendEmailVerification(ctx context.Context, email, linkToken string) error
	SendOTP(ctx context.Context, phone, code string) error
	SendPasswordReset(ctx context.Context, email, code string) error
}

// DeviceInfo is the client context presented with a request.
type DeviceInfo struct {
	DeviceID  string
	Platform  string
	UserAgent string
	IPAddress string
	Location  string
}

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login        LoginDeps
	Refresh      RefreshDeps
	Validate     ValidateDeps
	Logout       LogoutDeps
	Register     RegisterDeps
	Verification VerificationDeps
	Password     PasswordDeps
	Status       StatusDeps
}
