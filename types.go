package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/skillbridge/authcore/internal/audit"
	"github.com/skillbridge/authcore/internal/flows"
	internalmetrics "github.com/skillbridge/authcore/internal/metrics"
)

// Account status values stored in the CredentialStore. Transitions are
// owned by the engine: registration creates pending accounts, completed
// verification activates them, SetAccountStatus suspends and restores.
const (
	AccountActive    = "active"
	AccountPending   = "pending"
	AccountSuspended = "suspended"
)

// Verification summary values carried in access token claims.
const (
	VerificationNone  = "none"
	VerificationEmail = "email"
	VerificationPhone = "phone"
	VerificationBoth  = "both"
)

// Verification channels accepted by RequestVerification and
// ConfirmVerification.
const (
	ChannelEmail = "email"
	ChannelPhone = "phone"
)

// UserRecord is the account record exchanged with the CredentialStore.
// The engine never persists it; ownership of user rows stays with the
// caller's database.
type UserRecord struct {
	ID           string
	Identifier   string
	Phone        string
	PasswordHash string
	Role         string
	Status       string

	EmailVerified bool
	PhoneVerified bool

	FailedAttempts int
	// LockUntil is a unix timestamp; zero means not locked.
	LockUntil int64
}

// NewUser is the input for CredentialStore.Create.
type NewUser struct {
	Identifier   string
	Phone        string
	PasswordHash string
	Role         string
	Status       string
}

// CredentialStore is the primary interface callers implement to
// integrate authcore with their user database. Implementations return
// ErrUserNotFound for missing accounts and ErrDuplicateIdentifier from
// Create when the identifier is taken.
type CredentialStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)
	FindByID(ctx context.Context, userID string) (*UserRecord, error)
	Create(ctx context.Context, user NewUser) (*UserRecord, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	// RecordLoginFailure increments the failed-attempt counter and, when
	// lockUntil is non-zero, arms the lockout. Returns the new count.
	RecordLoginFailure(ctx context.Context, userID string, lockUntil int64) (int, error)
	ClearLoginFailures(ctx context.Context, userID string) error
	MarkVerified(ctx context.Context, userID, channel string) error
	SetStatus(ctx context.Context, userID, status string) error
}

// Notifier delivers verification and reset secrets out of band. Delivery
// failures are logged by the engine, never surfaced to the caller.
type Notifier interface {
	SendEmailVerification(ctx context.Context, email, linkToken string) error
	SendOTP(ctx context.Context, phone, code string) error
	SendPasswordReset(ctx context.Context, email, code string) error
}

// PasswordHasher abstracts the password hash algorithm. The default is
// bcrypt (package password); installs via Builder.WithPasswordHasher.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// DeviceInfo describes the client a login or registration comes from.
// Platform is "web" or "mobile".
type DeviceInfo struct {
	DeviceID  string
	Platform  string
	UserAgent string
	IPAddress string
	Location  string
}

// TokenPair is the issued access+refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string

	AccessExpiresIn  time.Duration
	RefreshExpiresIn time.Duration
}

// AuthResult is the claims summary returned by ValidateToken.
type AuthResult struct {
	UserID       string
	SessionID    string
	DeviceID     string
	Role         string
	Status       string
	Verification string
	Platform     string
}

// LoginOutcome is returned by Login and Register: the issued pair plus
// the session it is bound to.
type LoginOutcome struct {
	UserID    string
	SessionID string
	Pair      TokenPair
}

// RefreshOutcome is returned by Refresh: a freshly minted pair at the
// same epoch. The presented refresh token remains valid alongside it.
type RefreshOutcome struct {
	UserID    string
	SessionID string
	Pair      TokenPair
}

// VerificationOutcome is returned by ConfirmVerification.
type VerificationOutcome struct {
	Channel string
	// Activated reports that this confirmation moved the account from
	// pending to active.
	Activated bool
}

// InvalidationOutcome reports the scope of a bulk credential
// invalidation (password reset, password change, suspension, logout
// everywhere).
type InvalidationOutcome struct {
	SessionsRevoked int
	NewEpoch        int64
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's async audit
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an AuditSink that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an AuditSink that writes JSON-encoded events to an
// io.Writer.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func toFlowUser(u *UserRecord) *flows.UserRecord {
	if u == nil {
		return nil
	}
	return &flows.UserRecord{
		ID:             u.ID,
		Identifier:     u.Identifier,
		Phone:          u.Phone,
		PasswordHash:   u.PasswordHash,
		Role:           u.Role,
		Status:         u.Status,
		EmailVerified:  u.EmailVerified,
		PhoneVerified:  u.PhoneVerified,
		FailedAttempts: u.FailedAttempts,
		LockUntil:      u.LockUntil,
	}
}

func fromFlowUser(u *flows.UserRecord) *UserRecord {
	if u == nil {
		return nil
	}
	return &UserRecord{
		ID:             u.ID,
		Identifier:     u.Identifier,
		Phone:          u.Phone,
		PasswordHash:   u.PasswordHash,
		Role:           u.Role,
		Status:         u.Status,
		EmailVerified:  u.EmailVerified,
		PhoneVerified:  u.PhoneVerified,
		FailedAttempts: u.FailedAttempts,
		LockUntil:      u.LockUntil,
	}
}

func toFlowDevice(d DeviceInfo) flows.DeviceInfo {
	return flows.DeviceInfo{
		DeviceID:  d.DeviceID,
		Platform:  d.Platform,
		UserAgent: d.UserAgent,
		IPAddress: d.IPAddress,
		Location:  d.Location,
	}
}

// MetricID identifies a specific counter or histogram bucket in the
// in-process metrics system.
type MetricID = internalmetrics.MetricID

// Metrics holds atomic counters and the optional validate-latency
// histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a Metrics instance configured by cfg. When Enabled
// is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}

const (
	MetricLoginSuccess          = internalmetrics.MetricLoginSuccess
	MetricLoginFailure          = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited      = internalmetrics.MetricLoginRateLimited
	MetricLoginLockout          = internalmetrics.MetricLoginLockout
	MetricRefreshSuccess        = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure        = internalmetrics.MetricRefreshFailure
	MetricRefreshRateLimited    = internalmetrics.MetricRefreshRateLimited
	MetricTokenStale            = internalmetrics.MetricTokenStale
	MetricTokenRevoked          = internalmetrics.MetricTokenRevoked
	MetricDeviceMismatch        = internalmetrics.MetricDeviceMismatch
	MetricValidateSuccess       = internalmetrics.MetricValidateSuccess
	MetricValidateFailure       = internalmetrics.MetricValidateFailure
	MetricLogout                = internalmetrics.MetricLogout
	MetricLogoutAll             = internalmetrics.MetricLogoutAll
	MetricRegisterSuccess       = internalmetrics.MetricRegisterSuccess
	MetricRegisterDuplicate     = internalmetrics.MetricRegisterDuplicate
	MetricVerificationRequest   = internalmetrics.MetricVerificationRequest
	MetricVerificationSuccess   = internalmetrics.MetricVerificationSuccess
	MetricVerificationFailure   = internalmetrics.MetricVerificationFailure
	MetricPasswordResetRequest  = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetSuccess  = internalmetrics.MetricPasswordResetSuccess
	MetricPasswordResetFailure  = internalmetrics.MetricPasswordResetFailure
	MetricPasswordChangeSuccess = internalmetrics.MetricPasswordChangeSuccess
	MetricPasswordChangeFailure = internalmetrics.MetricPasswordChangeFailure
	MetricSessionCreated        = internalmetrics.MetricSessionCreated
	MetricSessionRevoked        = internalmetrics.MetricSessionRevoked
	MetricSessionsSwept         = internalmetrics.MetricSessionsSwept
	MetricSessionsPurged        = internalmetrics.MetricSessionsPurged
	MetricSuspiciousFlagged     = internalmetrics.MetricSuspiciousFlagged
	MetricEpochBump             = internalmetrics.MetricEpochBump
	MetricCacheFailure          = internalmetrics.MetricCacheFailure
	MetricValidateLatency       = internalmetrics.MetricValidateLatency
)
