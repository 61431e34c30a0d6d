package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/skillbridge/authcore/events"
	"github.com/skillbridge/authcore/internal"
	internalaudit "github.com/skillbridge/authcore/internal/audit"
	"github.com/skillbridge/authcore/internal/flows"
	"github.com/skillbridge/authcore/internal/rate"
	"github.com/skillbridge/authcore/internal/revocation"
	"github.com/skillbridge/authcore/internal/stores"
	"github.com/skillbridge/authcore/password"
	"github.com/skillbridge/authcore/session"
	"github.com/skillbridge/authcore/token"
)

// Builder assembles an Engine. Dependencies are injected explicitly;
// there are no package-level defaults to reach for.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	notifier    Notifier
	hasher      PasswordHasher
	eventSink   events.Sink
	auditSink   AuditSink
	logger      *zap.Logger

	built bool
}

// New returns a Builder preloaded with DefaultConfig. Token secrets,
// the Redis client, and a CredentialStore must still be supplied.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithNotifier installs the out-of-band delivery channel for
// verification links, OTPs, and reset codes. Without one, challenges
// are still stored but nothing is delivered.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithPasswordHasher replaces the default bcrypt hasher.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithEventSink installs a lifecycle event publisher. Publication is
// best-effort; sink errors are logged and swallowed.
func (b *Builder) WithEventSink(sink events.Sink) *Builder {
	b.eventSink = sink
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration, wires every component, and returns
// a ready Engine. A Builder builds once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	codec, err := token.NewCodec(token.Config{
		AccessSecret:    cfg.Token.AccessSecret,
		RefreshSecret:   cfg.Token.RefreshSecret,
		Issuer:          cfg.Token.Issuer,
		AccessAudience:  cfg.Token.AccessAudience,
		RefreshAudience: cfg.Token.RefreshAudience,
		AccessTTL:       cfg.Token.AccessTTL,
		RefreshTTL:      cfg.Token.RefreshTTL,
		Leeway:          cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(b.redis, session.Config{
		TTL:       cfg.Session.TTL,
		Retention: cfg.Session.Retention,
		WebCap:    cfg.Session.WebCap,
		MobileCap: cfg.Session.MobileCap,
	})
	if err != nil {
		return nil, err
	}

	revoker, err := revocation.NewCache(b.redis)
	if err != nil {
		return nil, err
	}

	artifacts := stores.NewArtifactStore(b.redis, "")

	hasher := b.hasher
	if hasher == nil {
		bc, err := password.NewBcrypt(cfg.Password.BcryptCost)
		if err != nil {
			return nil, err
		}
		hasher = bc
	}
	dummyHash, err := dummyHashFor(hasher)
	if err != nil {
		return nil, err
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	// Typed-nil limiters must not reach the flow interfaces, so the
	// interface locals stay nil unless the throttle is on.
	var loginLimiter flows.LoginRateLimiter
	var refreshLimiter flows.RefreshRateLimiter
	if cfg.RateLimit.EnableLoginThrottle || cfg.RateLimit.EnableRefreshThrottle {
		limiter := rate.New(b.redis, rate.Config{
			EnableIPThrottle:        cfg.RateLimit.EnableLoginThrottle,
			EnableRefreshThrottle:   cfg.RateLimit.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.RateLimit.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.RateLimit.LoginCooldown,
			MaxRefreshAttempts:      cfg.RateLimit.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.RateLimit.RefreshCooldown,
		})
		if cfg.RateLimit.EnableLoginThrottle {
			loginLimiter = limiter
		}
		if cfg.RateLimit.EnableRefreshThrottle {
			refreshLimiter = limiter
		}
	}

	creds := credStoreAdapter{store: b.credentials}
	warn := logger.Sugar().Warnw
	checkStrength := strengthPolicy(cfg.Password.MinLength)

	verificationDeps := flows.VerificationDeps{
		Credentials:  creds,
		Artifacts:    artifacts,
		Notifier:     notifier,
		NewLinkToken: newLinkToken,
		NewOTP:       internal.NewOTP,
		NewSalt:      internal.NewArtifactSalt,
		HashSecret:   internal.HashArtifactSecret,
		Now:          time.Now,
		LinkTTL:      cfg.Verification.LinkTTL,
		OTPTTL:       cfg.Verification.OTPTTL,
		OTPDigits:    cfg.Verification.OTPDigits,
		MaxAttempts:  cfg.Verification.MaxAttempts,
		Warn:         warn,
	}

	deps := flows.Deps{
		Login: flows.LoginDeps{
			Credentials:       creds,
			Hasher:            hasher,
			Sessions:          sessions,
			Tokens:            codec,
			Revocation:        revoker,
			RateLimiter:       loginLimiter,
			Fingerprint:       internal.DeviceFingerprint,
			Now:               time.Now,
			DummyHash:         dummyHash,
			MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
			LockDuration:      cfg.Lockout.LockDuration,
			ErrUserNotFound:   ErrUserNotFound,
		},
		Refresh: flows.RefreshDeps{
			Credentials:     creds,
			Sessions:        sessions,
			Tokens:          codec,
			Revocation:      revoker,
			RateLimiter:     refreshLimiter,
			Fingerprint:     internal.DeviceFingerprint,
			FailOpen:        cfg.Revocation.FailOpen,
			Warn:            warn,
			ErrUserNotFound: ErrUserNotFound,
		},
		Validate: flows.ValidateDeps{
			Sessions:   sessions,
			Tokens:     codec,
			Revocation: revoker,
			FailOpen:   cfg.Revocation.FailOpen,
			Warn:       warn,
		},
		Logout: flows.LogoutDeps{
			Sessions:   sessions,
			Tokens:     codec,
			Revocation: revoker,
			Now:        time.Now,
		},
		Register: flows.RegisterDeps{
			Credentials:   creds,
			Hasher:        hasher,
			Sessions:      sessions,
			Tokens:        codec,
			Revocation:    revoker,
			Verification:  verificationDeps,
			CheckStrength: checkStrength,
			Fingerprint:   internal.DeviceFingerprint,
			DefaultRole:   cfg.Account.DefaultRole,
			ErrDuplicate:  ErrDuplicateIdentifier,
			Warn:          warn,
		},
		Verification: verificationDeps,
		Password: flows.PasswordDeps{
			Credentials:     creds,
			Hasher:          hasher,
			Sessions:        sessions,
			Revocation:      revoker,
			Artifacts:       artifacts,
			Notifier:        notifier,
			NewOTP:          internal.NewOTP,
			NewSalt:         internal.NewArtifactSalt,
			HashSecret:      internal.HashArtifactSecret,
			Now:             time.Now,
			CheckStrength:   checkStrength,
			ResetTTL:        cfg.PasswordReset.ResetTTL,
			OTPDigits:       cfg.PasswordReset.OTPDigits,
			MaxAttempts:     cfg.PasswordReset.MaxAttempts,
			ErrUserNotFound: ErrUserNotFound,
			Warn:            warn,
		},
		Status: flows.StatusDeps{
			Credentials: creds,
			Sessions:    sessions,
			Revocation:  revoker,
		},
	}

	engine := &Engine{
		config:     cfg,
		logger:     logger,
		codec:      codec,
		sessions:   sessions,
		revocation: revoker,
		creds:      creds,
		service:    flows.New(deps),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		events:  b.eventSink,
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true
	return engine, nil
}

// credStoreAdapter bridges the public CredentialStore to the flow-level
// record types.
type credStoreAdapter struct {
	store CredentialStore
}

func (a credStoreAdapter) FindByIdentifier(ctx context.Context, identifier string) (*flows.UserRecord, error) {
	u, err := a.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return toFlowUser(u), nil
}

func (a credStoreAdapter) FindByID(ctx context.Context, userID string) (*flows.UserRecord, error) {
	u, err := a.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toFlowUser(u), nil
}

func (a credStoreAdapter) Create(ctx context.Context, user flows.NewUser) (*flows.UserRecord, error) {
	u, err := a.store.Create(ctx, NewUser{
		Identifier:   user.Identifier,
		Phone:        user.Phone,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
		Status:       user.Status,
	})
	if err != nil {
		return nil, err
	}
	return toFlowUser(u), nil
}

func (a credStoreAdapter) UpdatePassword(ctx context.Context, userID, hash string) error {
	return a.store.UpdatePassword(ctx, userID, hash)
}

func (a credStoreAdapter) RecordLoginFailure(ctx context.Context, userID string, lockUntil int64) (int, error) {
	return a.store.RecordLoginFailure(ctx, userID, lockUntil)
}

func (a credStoreAdapter) ClearLoginFailures(ctx context.Context, userID string) error {
	return a.store.ClearLoginFailures(ctx, userID)
}

func (a credStoreAdapter) MarkVerified(ctx context.Context, userID, channel string) error {
	return a.store.MarkVerified(ctx, userID, channel)
}

func (a credStoreAdapter) SetStatus(ctx context.Context, userID, status string) error {
	return a.store.SetStatus(ctx, userID, status)
}

type noopNotifier struct{}

func (noopNotifier) SendEmailVerification(context.Context, string, string) error { return nil }
func (noopNotifier) SendOTP(context.Context, string, string) error               { return nil }
func (noopNotifier) SendPasswordReset(context.Context, string, string) error     { return nil }

func newLinkToken() (string, error) {
	secret, err := internal.NewArtifactSecret()
	if err != nil {
		return "", err
	}
	return internal.EncodeArtifactToken(secret), nil
}

func dummyHashFor(h PasswordHasher) (string, error) {
	if d, ok := h.(interface{ DummyHash() (string, error) }); ok {
		return d.DummyHash()
	}
	return h.Hash("\x00authcore-dummy-credential\x00")
}

// strengthPolicy returns ErrWeakPassword for passwords below the
// configured length or lacking both a letter and a digit.
func strengthPolicy(minLength int) func(string) error {
	return func(pw string) error {
		if len(pw) < minLength {
			return ErrWeakPassword
		}
		var hasLetter, hasDigit bool
		for _, r := range pw {
			switch {
			case r >= '0' && r <= '9':
				hasDigit = true
			case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
				hasLetter = true
			}
		}
		if !hasLetter || !hasDigit {
			return ErrWeakPassword
		}
		return nil
	}
}
