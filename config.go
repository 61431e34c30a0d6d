package authcore

import (
	"errors"
	"time"
)

// Config carries every tunable of the engine. Zero values are filled in
// by DefaultConfig; Validate rejects combinations the engine cannot run
// with.
type Config struct {
	Token         TokenConfig
	Session       SessionConfig
	Lockout       LockoutConfig
	RateLimit     RateLimitConfig
	Password      PasswordPolicyConfig
	Verification  VerificationConfig
	PasswordReset PasswordResetConfig
	Account       AccountConfig
	Revocation    RevocationConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

// TokenConfig configures the JWT codec. Access and refresh secrets must
// differ so one leaked key cannot forge the other token class.
type TokenConfig struct {
	AccessSecret    []byte
	RefreshSecret   []byte
	Issuer          string
	AccessAudience  string
	RefreshAudience string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	Leeway          time.Duration
}

// SessionConfig configures session lifetimes and per-platform caps.
type SessionConfig struct {
	TTL time.Duration
	// Retention keeps terminal session blobs readable after they leave
	// the active state, until PurgeSessions removes them.
	Retention time.Duration
	WebCap    int
	MobileCap int
}

// LockoutConfig configures failed-login lockout accounting.
type LockoutConfig struct {
	MaxFailedAttempts int
	LockDuration      time.Duration
}

// RateLimitConfig configures the optional fixed-window throttles.
type RateLimitConfig struct {
	EnableLoginThrottle   bool
	EnableRefreshThrottle bool

	MaxLoginAttempts   int
	LoginCooldown      time.Duration
	MaxRefreshAttempts int
	RefreshCooldown    time.Duration
}

// PasswordPolicyConfig configures password strength and hashing cost.
type PasswordPolicyConfig struct {
	MinLength int
	// BcryptCost is passed to the default hasher. Ignored when a custom
	// PasswordHasher is installed via the Builder.
	BcryptCost int
}

// VerificationConfig configures email/phone verification challenges.
type VerificationConfig struct {
	LinkTTL     time.Duration
	OTPTTL      time.Duration
	OTPDigits   int
	MaxAttempts int
}

// PasswordResetConfig configures the password reset challenge.
type PasswordResetConfig struct {
	ResetTTL    time.Duration
	OTPDigits   int
	MaxAttempts int
}

// AccountConfig configures registration behavior.
type AccountConfig struct {
	DefaultRole string
}

// RevocationConfig configures revocation-check failure behavior.
type RevocationConfig struct {
	// FailOpen lets refresh and validation proceed when Redis cannot
	// answer a revocation or epoch lookup. Default is fail closed: no
	// answer means revoked.
	FailOpen bool
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration the engine ships with. Token
// secrets have no default and must be supplied.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:          "authcore",
			AccessAudience:  "authcore:access",
			RefreshAudience: "authcore:refresh",
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      30 * 24 * time.Hour,
			Leeway:          30 * time.Second,
		},
		Session: SessionConfig{
			TTL:       30 * 24 * time.Hour,
			Retention: 30 * 24 * time.Hour,
			WebCap:    5,
			MobileCap: 3,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			LockDuration:      15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			EnableLoginThrottle:   true,
			EnableRefreshThrottle: true,
			MaxLoginAttempts:      10,
			LoginCooldown:         15 * time.Minute,
			MaxRefreshAttempts:    30,
			RefreshCooldown:       time.Minute,
		},
		Password: PasswordPolicyConfig{
			MinLength:  8,
			BcryptCost: 12,
		},
		Verification: VerificationConfig{
			LinkTTL:     24 * time.Hour,
			OTPTTL:      10 * time.Minute,
			OTPDigits:   6,
			MaxAttempts: 3,
		},
		PasswordReset: PasswordResetConfig{
			ResetTTL:    10 * time.Minute,
			OTPDigits:   6,
			MaxAttempts: 3,
		},
		Account: AccountConfig{
			DefaultRole: "buyer",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSecret = cloneBytes(cfg.Token.AccessSecret)
	out.Token.RefreshSecret = cloneBytes(cfg.Token.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations the engine cannot run with. The token
// codec re-checks its own section; duplicating the cheap checks here
// keeps all config failures in one place at build time.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.AccessSecret) == 0 {
		return errors.New("Token AccessSecret is required")
	}
	if len(c.Token.RefreshSecret) == 0 {
		return errors.New("Token RefreshSecret is required")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must exceed AccessTTL")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.Retention < 0 {
		return errors.New("Session Retention must be >= 0")
	}
	if c.Session.WebCap <= 0 || c.Session.MobileCap <= 0 {
		return errors.New("Session platform caps must be > 0")
	}

	// Lockout
	if c.Lockout.MaxFailedAttempts <= 0 {
		return errors.New("Lockout MaxFailedAttempts must be > 0")
	}
	if c.Lockout.LockDuration <= 0 {
		return errors.New("Lockout LockDuration must be > 0")
	}

	// Rate limiting
	if c.RateLimit.EnableLoginThrottle {
		if c.RateLimit.MaxLoginAttempts <= 0 {
			return errors.New("RateLimit MaxLoginAttempts must be > 0")
		}
		if c.RateLimit.LoginCooldown <= 0 {
			return errors.New("RateLimit LoginCooldown must be > 0")
		}
	}
	if c.RateLimit.EnableRefreshThrottle {
		if c.RateLimit.MaxRefreshAttempts <= 0 {
			return errors.New("RateLimit MaxRefreshAttempts must be > 0")
		}
		if c.RateLimit.RefreshCooldown <= 0 {
			return errors.New("RateLimit RefreshCooldown must be > 0")
		}
	}

	// Password policy
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.BcryptCost < 10 || c.Password.BcryptCost > 31 {
		return errors.New("Password BcryptCost must be between 10 and 31")
	}

	// Verification
	if c.Verification.LinkTTL <= 0 || c.Verification.OTPTTL <= 0 {
		return errors.New("Verification TTLs must be > 0")
	}
	if c.Verification.OTPDigits < 6 || c.Verification.OTPDigits > 10 {
		return errors.New("Verification OTPDigits must be between 6 and 10")
	}
	if c.Verification.MaxAttempts <= 0 {
		return errors.New("Verification MaxAttempts must be > 0")
	}

	// Password reset
	if c.PasswordReset.ResetTTL <= 0 {
		return errors.New("PasswordReset ResetTTL must be > 0")
	}
	if c.PasswordReset.OTPDigits < 6 || c.PasswordReset.OTPDigits > 10 {
		return errors.New("PasswordReset OTPDigits must be between 6 and 10")
	}
	if c.PasswordReset.MaxAttempts <= 0 {
		return errors.New("PasswordReset MaxAttempts must be > 0")
	}

	// Account
	if c.Account.DefaultRole == "" {
		return errors.New("Account DefaultRole is required")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
