package authcore

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig is the flat environment mapping of Config, for daemons that
// cannot construct it programmatically.
type envConfig struct {
	AccessSecret    string        `env:"AUTHCORE_ACCESS_SECRET"`
	RefreshSecret   string        `env:"AUTHCORE_REFRESH_SECRET"`
	Issuer          string        `env:"AUTHCORE_ISSUER" env-default:"authcore"`
	AccessAudience  string        `env:"AUTHCORE_ACCESS_AUDIENCE" env-default:"authcore:access"`
	RefreshAudience string        `env:"AUTHCORE_REFRESH_AUDIENCE" env-default:"authcore:refresh"`
	AccessTTL       time.Duration `env:"AUTHCORE_ACCESS_TTL" env-default:"15m"`
	RefreshTTL      time.Duration `env:"AUTHCORE_REFRESH_TTL" env-default:"720h"`
	Leeway          time.Duration `env:"AUTHCORE_TOKEN_LEEWAY" env-default:"30s"`

	SessionTTL       time.Duration `env:"AUTHCORE_SESSION_TTL" env-default:"720h"`
	SessionRetention time.Duration `env:"AUTHCORE_SESSION_RETENTION" env-default:"720h"`
	WebCap           int           `env:"AUTHCORE_SESSION_WEB_CAP" env-default:"5"`
	MobileCap        int           `env:"AUTHCORE_SESSION_MOBILE_CAP" env-default:"3"`

	MaxFailedAttempts int           `env:"AUTHCORE_LOCKOUT_MAX_ATTEMPTS" env-default:"5"`
	LockDuration      time.Duration `env:"AUTHCORE_LOCKOUT_DURATION" env-default:"15m"`

	LoginThrottle      bool          `env:"AUTHCORE_LOGIN_THROTTLE" env-default:"true"`
	RefreshThrottle    bool          `env:"AUTHCORE_REFRESH_THROTTLE" env-default:"true"`
	MaxLoginAttempts   int           `env:"AUTHCORE_LOGIN_MAX_ATTEMPTS" env-default:"10"`
	LoginCooldown      time.Duration `env:"AUTHCORE_LOGIN_COOLDOWN" env-default:"15m"`
	MaxRefreshAttempts int           `env:"AUTHCORE_REFRESH_MAX_ATTEMPTS" env-default:"30"`
	RefreshCooldown    time.Duration `env:"AUTHCORE_REFRESH_COOLDOWN" env-default:"1m"`

	PasswordMinLength int `env:"AUTHCORE_PASSWORD_MIN_LENGTH" env-default:"8"`
	BcryptCost        int `env:"AUTHCORE_BCRYPT_COST" env-default:"12"`

	LinkTTL                 time.Duration `env:"AUTHCORE_VERIFICATION_LINK_TTL" env-default:"24h"`
	OTPTTL                  time.Duration `env:"AUTHCORE_VERIFICATION_OTP_TTL" env-default:"10m"`
	OTPDigits               int           `env:"AUTHCORE_VERIFICATION_OTP_DIGITS" env-default:"6"`
	VerificationMaxAttempts int           `env:"AUTHCORE_VERIFICATION_MAX_ATTEMPTS" env-default:"3"`

	ResetTTL         time.Duration `env:"AUTHCORE_RESET_TTL" env-default:"10m"`
	ResetOTPDigits   int           `env:"AUTHCORE_RESET_OTP_DIGITS" env-default:"6"`
	ResetMaxAttempts int           `env:"AUTHCORE_RESET_MAX_ATTEMPTS" env-default:"3"`

	DefaultRole string `env:"AUTHCORE_DEFAULT_ROLE" env-default:"buyer"`

	RevocationFailOpen bool `env:"AUTHCORE_REVOCATION_FAIL_OPEN" env-default:"false"`

	AuditEnabled    bool `env:"AUTHCORE_AUDIT_ENABLED" env-default:"false"`
	AuditBufferSize int  `env:"AUTHCORE_AUDIT_BUFFER" env-default:"1024"`
	AuditDropIfFull bool `env:"AUTHCORE_AUDIT_DROP_IF_FULL" env-default:"true"`

	MetricsEnabled bool `env:"AUTHCORE_METRICS_ENABLED" env-default:"true"`
	MetricsLatency bool `env:"AUTHCORE_METRICS_LATENCY" env-default:"false"`
}

// LoadConfigFromEnv builds a Config from AUTHCORE_* environment
// variables. The result still goes through Validate at Build time.
func LoadConfigFromEnv() (Config, error) {
	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Token = TokenConfig{
		AccessSecret:    []byte(env.AccessSecret),
		RefreshSecret:   []byte(env.RefreshSecret),
		Issuer:          env.Issuer,
		AccessAudience:  env.AccessAudience,
		RefreshAudience: env.RefreshAudience,
		AccessTTL:       env.AccessTTL,
		RefreshTTL:      env.RefreshTTL,
		Leeway:          env.Leeway,
	}
	cfg.Session = SessionConfig{
		TTL:       env.SessionTTL,
		Retention: env.SessionRetention,
		WebCap:    env.WebCap,
		MobileCap: env.MobileCap,
	}
	cfg.Lockout = LockoutConfig{
		MaxFailedAttempts: env.MaxFailedAttempts,
		LockDuration:      env.LockDuration,
	}
	cfg.RateLimit = RateLimitConfig{
		EnableLoginThrottle:   env.LoginThrottle,
		EnableRefreshThrottle: env.RefreshThrottle,
		MaxLoginAttempts:      env.MaxLoginAttempts,
		LoginCooldown:         env.LoginCooldown,
		MaxRefreshAttempts:    env.MaxRefreshAttempts,
		RefreshCooldown:       env.RefreshCooldown,
	}
	cfg.Password = PasswordPolicyConfig{
		MinLength:  env.PasswordMinLength,
		BcryptCost: env.BcryptCost,
	}
	cfg.Verification = VerificationConfig{
		LinkTTL:     env.LinkTTL,
		OTPTTL:      env.OTPTTL,
		OTPDigits:   env.OTPDigits,
		MaxAttempts: env.VerificationMaxAttempts,
	}
	cfg.PasswordReset = PasswordResetConfig{
		ResetTTL:    env.ResetTTL,
		OTPDigits:   env.ResetOTPDigits,
		MaxAttempts: env.ResetMaxAttempts,
	}
	cfg.Account = AccountConfig{DefaultRole: env.DefaultRole}
	cfg.Revocation = RevocationConfig{FailOpen: env.RevocationFailOpen}
	cfg.Audit = AuditConfig{
		Enabled:    env.AuditEnabled,
		BufferSize: env.AuditBufferSize,
		DropIfFull: env.AuditDropIfFull,
	}
	cfg.Metrics = MetricsConfig{
		Enabled:                 env.MetricsEnabled,
		EnableLatencyHistograms: env.MetricsLatency,
	}

	return cfg, nil
}
