package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skillbridge/authcore/events"
	internalaudit "github.com/skillbridge/authcore/internal/audit"
	"github.com/skillbridge/authcore/internal/flows"
	"github.com/skillbridge/authcore/internal/revocation"
	"github.com/skillbridge/authcore/session"
	"github.com/skillbridge/authcore/token"
)

// Engine is the assembled authentication engine. Build one with the
// Builder; zero-value Engines are not usable.
//
// Engine instances are configured during construction and treated as
// immutable afterwards; all methods are safe for concurrent use.
type Engine struct {
	config     Config
	logger     *zap.Logger
	codec      *token.Codec
	sessions   *session.Manager
	revocation *revocation.Cache
	creds      flows.CredentialStore
	service    flows.Service
	audit      *internalaudit.Dispatcher
	events     events.Sink
	metrics    *Metrics
}

// Close flushes and stops the audit dispatcher. The Redis client and any
// injected sinks belong to the caller and are not closed here.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// publishEvent delivers a lifecycle event to the configured sink. Sink
// failures are logged and swallowed: a dead broker never fails the
// operation that produced the event.
func (e *Engine) publishEvent(ctx context.Context, ev events.Event) {
	if e == nil || e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Warn("event publish failed",
			zap.String("event", ev.Name()),
			zap.Error(err),
		)
	}
}

func (e *Engine) ready() error {
	if e == nil || !e.service.Initialized() {
		return ErrEngineNotReady
	}
	return nil
}

// Login verifies credentials, creates a session for the device, and
// issues a token pair. Unknown identifiers and wrong passwords both
// return ErrInvalidCredentials; the two are indistinguishable in timing
// and in error shape.
func (e *Engine) Login(ctx context.Context, identifier, password string, device DeviceInfo) (*LoginOutcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	result := e.service.Login(ctx, flows.LoginInput{
		Identifier: identifier,
		Password:   password,
		Device:     toFlowDevice(device),
	})

	if result.Failure != flows.LoginFailureNone {
		return nil, e.loginFailed(ctx, identifier, device, result)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLoginSuccess, true, result.User.ID, result.Session.ID, nil, func() map[string]string {
		return map[string]string{
			"platform":  device.Platform,
			"device_id": device.DeviceID,
		}
	})
	e.publishEvent(ctx, events.UserLoggedIn{
		Base:      events.Now(),
		UserID:    result.User.ID,
		SessionID: result.Session.ID,
		Platform:  device.Platform,
	})
	e.publishEvent(ctx, events.SessionCreated{
		Base:      events.Now(),
		UserID:    result.User.ID,
		SessionID: result.Session.ID,
		Platform:  device.Platform,
		DeviceID:  device.DeviceID,
	})

	return &LoginOutcome{
		UserID:    result.User.ID,
		SessionID: result.Session.ID,
		Pair:      pairFromToken(result.Pair),
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, identifier string, device DeviceInfo, result flows.LoginResult) error {
	var userID string
	if result.User != nil {
		userID = result.User.ID
	}

	var sentinel error
	switch result.Failure {
	case flows.LoginFailureRateLimited:
		sentinel = ErrRateLimited
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, userID, "", sentinel, nil)
		return sentinel
	case flows.LoginFailureBadInput, flows.LoginFailureUserNotFound, flows.LoginFailurePassword:
		sentinel = ErrInvalidCredentials
	case flows.LoginFailureLocked:
		sentinel = ErrAccountLocked
	case flows.LoginFailureSuspended:
		sentinel = ErrAccountSuspended
	default:
		err := fmt.Errorf("login: %w", result.Err)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", err, nil)
		return err
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", sentinel, func() map[string]string {
		return map[string]string{"platform": device.Platform}
	})
	e.publishEvent(ctx, events.UserLoginFailed{
		Base:       events.Now(),
		Identifier: identifier,
		Reason:     string(errorCodeOf(sentinel)),
		Locked:     result.Locked,
	})

	if result.Locked {
		e.metricInc(MetricLoginLockout)
		e.emitAudit(ctx, auditEventLoginLockout, false, userID, "", sentinel, nil)
	}

	return sentinel
}

// Refresh verifies a refresh token and issues a fresh token pair at the
// same epoch. The presented refresh token is not invalidated; it stays
// usable until its own expiry or an epoch bump. Client context set via
// WithClientIP, WithUserAgent, and WithLocation feeds device binding
// and session activity.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshOutcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	in := flows.RefreshInput{
		RefreshToken: refreshToken,
		UserAgent:    userAgentFromContext(ctx),
		IPAddress:    clientIPFromContext(ctx),
	}
	if loc, ok := locationFromContext(ctx); ok {
		in.Location = loc
	}

	result := e.service.Refresh(ctx, in)
	if result.Failure != flows.RefreshFailureNone {
		return nil, e.refreshFailed(ctx, result)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, result.UserID, result.SessionID, nil, nil)

	return &RefreshOutcome{
		UserID:    result.UserID,
		SessionID: result.SessionID,
		Pair:      pairFromToken(result.Pair),
	}, nil
}

func (e *Engine) refreshFailed(ctx context.Context, result flows.RefreshResult) error {
	var sentinel error
	audit := auditEventRefreshInvalid

	switch result.Failure {
	case flows.RefreshFailureExpired:
		sentinel = ErrTokenExpired
	case flows.RefreshFailureMalformed:
		sentinel = ErrTokenMalformed
	case flows.RefreshFailureClaims:
		sentinel = ErrTokenClaimsInvalid
	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, result.UserID, result.SessionID, ErrRateLimited, nil)
		return ErrRateLimited
	case flows.RefreshFailureRevoked:
		sentinel = ErrTokenRevoked
		e.metricInc(MetricTokenRevoked)
	case flows.RefreshFailureStale:
		sentinel = ErrTokenStale
		e.metricInc(MetricTokenStale)
	case flows.RefreshFailureSessionNotFound:
		sentinel = ErrSessionNotFound
	case flows.RefreshFailureSessionNotActive:
		sentinel = ErrSessionNotActive
	case flows.RefreshFailureDeviceMismatch:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricDeviceMismatch)
		e.metricInc(MetricSuspiciousFlagged)
		e.emitAudit(ctx, auditEventDeviceMismatch, false, result.UserID, result.SessionID, ErrDeviceMismatch, nil)
		e.publishEvent(ctx, events.SuspiciousSessionFlagged{
			Base:      events.Now(),
			UserID:    result.UserID,
			SessionID: result.SessionID,
			Reason:    "device_mismatch",
		})
		return ErrDeviceMismatch
	case flows.RefreshFailureSuspended:
		sentinel = ErrAccountSuspended
	case flows.RefreshFailureCache:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricCacheFailure)
		err := fmt.Errorf("%w: %v", ErrCacheUnavailable, result.Err)
		e.emitAudit(ctx, audit, false, result.UserID, result.SessionID, err, nil)
		return err
	default:
		err := fmt.Errorf("refresh: %w", result.Err)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, audit, false, result.UserID, result.SessionID, err, nil)
		return err
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, audit, false, result.UserID, result.SessionID, sentinel, nil)
	return sentinel
}

// ValidateToken verifies an access token end to end and returns its
// claims summary. Read-only and middleware-grade: signature and expiry,
// revocation, then session liveness.
func (e *Engine) ValidateToken(ctx context.Context, accessToken string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := e.service.Validate(ctx, accessToken)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	if result.Failure != flows.ValidateFailureNone {
		e.metricInc(MetricValidateFailure)
		sentinel := e.validateSentinel(result)
		var userID, sessionID string
		if result.Claims != nil {
			userID = result.Claims.UserID
			sessionID = result.Claims.SessionID
		}
		e.emitAudit(ctx, auditEventValidateFailure, false, userID, sessionID, sentinel, nil)
		return nil, sentinel
	}

	e.metricInc(MetricValidateSuccess)
	return &AuthResult{
		UserID:       result.Claims.UserID,
		SessionID:    result.Claims.SessionID,
		DeviceID:     result.Claims.DeviceID,
		Role:         result.Claims.Role,
		Status:       result.Claims.Status,
		Verification: result.Claims.Verification,
		Platform:     result.Claims.Platform,
	}, nil
}

func (e *Engine) validateSentinel(result flows.ValidateResult) error {
	switch result.Failure {
	case flows.ValidateFailureExpired:
		return ErrTokenExpired
	case flows.ValidateFailureClaims:
		return ErrTokenClaimsInvalid
	case flows.ValidateFailureMalformed:
		return ErrTokenMalformed
	case flows.ValidateFailureRevoked:
		e.metricInc(MetricTokenRevoked)
		return ErrTokenRevoked
	case flows.ValidateFailureSessionNotFound:
		return ErrSessionNotFound
	case flows.ValidateFailureSessionNotActive:
		return ErrSessionNotActive
	case flows.ValidateFailureCache:
		e.metricInc(MetricCacheFailure)
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, result.Err)
	default:
		return fmt.Errorf("validate: %w", result.Err)
	}
}

// Logout ends the session named by the access token and denies the
// token's JTI for its remaining life. Idempotent: logging out an already
// ended session succeeds.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		return tokenSentinel(err)
	}

	result, err := e.service.Logout(ctx, flows.LogoutInputFromClaims(claims))
	if err != nil {
		err = fmt.Errorf("logout: %w", err)
		e.emitAudit(ctx, auditEventLogoutSession, false, claims.UserID, claims.SessionID, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	if result.SessionRevoked {
		e.metricInc(MetricSessionRevoked)
		e.publishEvent(ctx, events.SessionRevoked{
			Base:      events.Now(),
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
			Cause:     "logout",
		})
	}
	e.emitAudit(ctx, auditEventLogoutSession, true, claims.UserID, claims.SessionID, nil, nil)
	return nil
}

// LogoutAll ends every session of the token's user and bumps the token
// epoch, so refresh tokens minted before this call are stale everywhere.
func (e *Engine) LogoutAll(ctx context.Context, accessToken string) (*InvalidationOutcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, tokenSentinel(err)
	}

	result, err := e.service.LogoutAll(ctx, flows.LogoutInputFromClaims(claims))
	if err != nil {
		err = fmt.Errorf("logout all: %w", err)
		e.emitAudit(ctx, auditEventLogoutAll, false, claims.UserID, claims.SessionID, err, nil)
		return nil, err
	}

	e.metricInc(MetricLogoutAll)
	e.metricInc(MetricEpochBump)
	e.emitAudit(ctx, auditEventLogoutAll, true, claims.UserID, claims.SessionID, nil, func() map[string]string {
		return map[string]string{"sessions_revoked": fmt.Sprint(result.SessionsRevoked)}
	})
	e.publishEvent(ctx, events.SessionsRevokedAll{
		Base:   events.Now(),
		UserID: claims.UserID,
		Count:  result.SessionsRevoked,
		Cause:  "logout_all",
	})
	e.publishEvent(ctx, events.TokenEpochBumped{
		Base:   events.Now(),
		UserID: claims.UserID,
		Epoch:  result.NewEpoch,
		Cause:  "logout_all",
	})

	return &InvalidationOutcome{
		SessionsRevoked: result.SessionsRevoked,
		NewEpoch:        result.NewEpoch,
	}, nil
}

func tokenSentinel(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrClaimsInvalid):
		return ErrTokenClaimsInvalid
	default:
		return ErrTokenMalformed
	}
}

func pairFromToken(p token.Pair) TokenPair {
	return TokenPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresIn:  p.AccessExpiresIn,
		RefreshExpiresIn: p.RefreshExpiresIn,
	}
}
