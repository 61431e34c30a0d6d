package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verification failure taxonomy. The engine maps these onto its public
// sentinels; the codec never reports revocation or staleness because it
// holds no state to decide either.
var (
	// ErrExpired is returned when a token is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned when the signature or structure is invalid,
	// including a token presented against the wrong secret or audience.
	ErrMalformed = errors.New("token malformed")
	// ErrClaimsInvalid is returned when required claims are missing or hold
	// out-of-domain values.
	ErrClaimsInvalid = errors.New("token claims invalid")
)

// maxLeeway bounds clock-skew tolerance for expiry and issued-in-the-future
// checks.
const maxLeeway = 60 * time.Second

// maxFutureIAT rejects tokens claiming to be issued further in the future
// than clock skew can explain.
const maxFutureIAT = 60 * time.Second

// Config defines codec construction parameters. Access and refresh tokens
// are signed with distinct secrets and carry distinct audiences so a leaked
// access token can never be replayed as a refresh token.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte

	Issuer          string
	AccessAudience  string
	RefreshAudience string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Leeway tolerated on expiry and not-before checks. Capped at 60s.
	Leeway time.Duration
}

// AccessClaims is the decoded payload of a verified access token.
type AccessClaims struct {
	UserID       string `json:"uid"`
	Role         string `json:"rol"`
	Status       string `json:"sts"`
	Verification string `json:"vrf"`
	Platform     string `json:"plt"`
	SessionID    string `json:"sid"`
	DeviceID     string `json:"did"`
	jwt.RegisteredClaims
}

// RefreshClaims is the decoded payload of a verified refresh token.
// TokenVersion records the user's token epoch at issuance; the engine
// rejects it as stale once the current epoch moves past it.
type RefreshClaims struct {
	UserID       string `json:"uid"`
	SessionID    string `json:"sid"`
	DeviceID     string `json:"did"`
	TokenVersion int64  `json:"tv"`
	jwt.RegisteredClaims
}

// Subject identifies the principal a token pair is minted for.
type Subject struct {
	UserID       string
	Role         string
	Status       string
	Verification string
	Platform     string
}

// Pair is the result of IssuePair.
type Pair struct {
	AccessToken  string
	RefreshToken string

	AccessJTI  string
	RefreshJTI string

	AccessExpiresIn  time.Duration
	RefreshExpiresIn time.Duration
}

// Codec signs and verifies compact three-part bearer tokens.
//
// Codec instances are configured during initialization and treated as
// immutable afterwards; all methods are safe for concurrent use.
type Codec struct {
	config Config
	now    func() time.Time
}

// NewCodec validates the configuration and returns a ready codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.AccessAudience == "" || cfg.RefreshAudience == "" {
		return nil, errors.New("access and refresh audiences required")
	}
	if cfg.AccessAudience == cfg.RefreshAudience {
		return nil, errors.New("access and refresh audiences must differ")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = maxLeeway
	}

	return &Codec{config: cfg, now: time.Now}, nil
}

// IssuePair mints a fresh access+refresh token pair bound to the given
// session and device. epoch is embedded as the refresh token's version.
func (c *Codec) IssuePair(sub Subject, sessionID, deviceID string, epoch int64) (Pair, error) {
	if sub.UserID == "" || sessionID == "" {
		return Pair{}, ErrClaimsInvalid
	}

	now := c.now()

	accessJTI := uuid.NewString()
	access := AccessClaims{
		UserID:       sub.UserID,
		Role:         sub.Role,
		Status:       sub.Status,
		Verification: sub.Verification,
		Platform:     sub.Platform,
		SessionID:    sessionID,
		DeviceID:     deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        accessJTI,
			Issuer:    c.config.Issuer,
			Audience:  jwt.ClaimStrings{c.config.AccessAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.AccessTTL)),
		},
	}

	refreshJTI := uuid.NewString()
	refresh := RefreshClaims{
		UserID:       sub.UserID,
		SessionID:    sessionID,
		DeviceID:     deviceID,
		TokenVersion: epoch,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        refreshJTI,
			Issuer:    c.config.Issuer,
			Audience:  jwt.ClaimStrings{c.config.RefreshAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.RefreshTTL)),
		},
	}

	accessStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(c.config.AccessSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(c.config.RefreshSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return Pair{
		AccessToken:      accessStr,
		RefreshToken:     refreshStr,
		AccessJTI:        accessJTI,
		RefreshJTI:       refreshJTI,
		AccessExpiresIn:  c.config.AccessTTL,
		RefreshExpiresIn: c.config.RefreshTTL,
	}, nil
}

// IssueAccess mints a fresh access token for an existing session without
// touching the refresh token. Used on refresh, where the refresh token is
// deliberately not rotated.
func (c *Codec) IssueAccess(sub Subject, sessionID, deviceID string) (string, string, time.Duration, error) {
	if sub.UserID == "" || sessionID == "" {
		return "", "", 0, ErrClaimsInvalid
	}

	now := c.now()
	jti := uuid.NewString()
	claims := AccessClaims{
		UserID:       sub.UserID,
		Role:         sub.Role,
		Status:       sub.Status,
		Verification: sub.Verification,
		Platform:     sub.Platform,
		SessionID:    sessionID,
		DeviceID:     deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    c.config.Issuer,
			Audience:  jwt.ClaimStrings{c.config.AccessAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.AccessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.AccessSecret)
	if err != nil {
		return "", "", 0, fmt.Errorf("sign access token: %w", err)
	}

	return signed, jti, c.config.AccessTTL, nil
}

// VerifyAccess checks signature, expiry, audience, and claim domains of an
// access token.
func (c *Codec) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(tokenStr, claims, c.config.AccessSecret, c.config.AccessAudience); err != nil {
		return nil, err
	}

	if claims.UserID == "" || claims.SessionID == "" || claims.ID == "" {
		return nil, ErrClaimsInvalid
	}
	if !validStatus(claims.Status) {
		return nil, ErrClaimsInvalid
	}
	if claims.Platform != "" && !validPlatform(claims.Platform) {
		return nil, ErrClaimsInvalid
	}

	return claims, nil
}

// VerifyRefresh checks signature, expiry, audience, and claim domains of a
// refresh token. Epoch staleness is the caller's check.
func (c *Codec) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(tokenStr, claims, c.config.RefreshSecret, c.config.RefreshAudience); err != nil {
		return nil, err
	}

	if claims.UserID == "" || claims.SessionID == "" || claims.ID == "" {
		return nil, ErrClaimsInvalid
	}
	if claims.TokenVersion < 0 {
		return nil, ErrClaimsInvalid
	}

	return claims, nil
}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.config.AccessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.config.RefreshTTL }

func (c *Codec) parse(tokenStr string, claims jwt.Claims, secret []byte, audience string) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(c.config.Leeway),
		jwt.WithIssuedAt(),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return ErrExpired
		case errors.Is(err, jwt.ErrTokenInvalidAudience),
			errors.Is(err, jwt.ErrTokenInvalidIssuer),
			errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return ErrClaimsInvalid
		default:
			return ErrMalformed
		}
	}
	if !token.Valid {
		return ErrMalformed
	}

	iat, err := token.Claims.GetIssuedAt()
	if err != nil || iat == nil {
		return ErrClaimsInvalid
	}
	if iat.Time.After(c.now().Add(maxFutureIAT)) {
		return ErrMalformed
	}

	return nil
}

func validStatus(s string) bool {
	switch s {
	case "active", "pending", "suspended":
		return true
	default:
		return false
	}
}

func validPlatform(p string) bool {
	switch p {
	case "web", "mobile":
		return true
	default:
		return false
	}
}
