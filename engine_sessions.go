package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skillbridge/authcore/events"
	"github.com/skillbridge/authcore/session"
)

// SessionInfo is the introspection view of one session. Fingerprints and
// raw storage fields are not exposed.
type SessionInfo struct {
	ID        string
	UserID    string
	DeviceID  string
	Platform  string
	UserAgent string
	IPAddress string
	Location  string

	Status     string
	Suspicious bool

	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
}

func sessionInfoFrom(s *session.Session) SessionInfo {
	return SessionInfo{
		ID:           s.ID,
		UserID:       s.UserID,
		DeviceID:     s.DeviceID,
		Platform:     s.Platform.String(),
		UserAgent:    s.UserAgent,
		IPAddress:    s.IPAddress,
		Location:     s.Location,
		Status:       s.Status.String(),
		Suspicious:   s.Suspicious,
		CreatedAt:    time.Unix(s.CreatedAt, 0).UTC(),
		LastActivity: time.Unix(s.LastActivity, 0).UTC(),
		ExpiresAt:    time.Unix(s.ExpiresAt, 0).UTC(),
	}
}

// ActiveSessions lists the user's currently active sessions, most
// recently active first.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	sessions, err := e.sessions.FindActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("active sessions: %w", err)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, sessionInfoFrom(s))
	}
	return infos, nil
}

// RevokeSession ends one of the user's sessions, typically from a
// "signed-in devices" screen. The session must belong to the user;
// sessions of other users read as not found.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("revoke session: %w", err)
	}
	if sess.UserID != userID {
		return ErrSessionNotFound
	}

	revoked, err := e.sessions.Revoke(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	if revoked {
		e.metricInc(MetricSessionRevoked)
		e.emitAudit(ctx, auditEventSessionRevoked, true, userID, sessionID, nil, nil)
		e.publishEvent(ctx, events.SessionRevoked{
			Base:      events.Now(),
			UserID:    userID,
			SessionID: sessionID,
			Cause:     "user_revoked",
		})
	}
	return nil
}

// EnforceLimits applies the per-platform session cap for the user,
// revoking least-recently-active sessions above it. Returns the number
// revoked. Login applies the cap automatically; this is for out-of-band
// tightening after a config change.
func (e *Engine) EnforceLimits(ctx context.Context, userID, platform string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	p, ok := session.ParsePlatform(platform)
	if !ok {
		return 0, errors.New("unknown platform")
	}

	revoked, err := e.sessions.EnforceLimit(ctx, userID, p)
	if err != nil {
		return revoked, fmt.Errorf("enforce limits: %w", err)
	}
	if revoked > 0 {
		e.metrics.Add(MetricSessionRevoked, uint64(revoked))
	}
	return revoked, nil
}

// SweepExpiredSessions transitions expired-but-still-active sessions to
// the expired state so introspection and retention see them correctly.
// Meant for a periodic job.
func (e *Engine) SweepExpiredSessions(ctx context.Context) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	swept, err := e.sessions.SweepExpired(ctx)
	if err != nil {
		return swept, fmt.Errorf("sweep sessions: %w", err)
	}

	if swept > 0 {
		e.metrics.Add(MetricSessionsSwept, uint64(swept))
		e.emitAudit(ctx, auditEventSessionsSwept, true, "", "", nil, func() map[string]string {
			return map[string]string{"swept": fmt.Sprint(swept)}
		})
		e.publishEvent(ctx, events.SessionsSwept{
			Base:    events.Now(),
			Expired: swept,
		})
	}
	return swept, nil
}

// PurgeSessions hard-deletes terminal sessions older than the given age,
// bounding the retention window for forensics data.
func (e *Engine) PurgeSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	purged, err := e.sessions.PurgeOld(ctx, olderThan)
	if err != nil {
		return purged, fmt.Errorf("purge sessions: %w", err)
	}
	if purged > 0 {
		e.metrics.Add(MetricSessionsPurged, uint64(purged))
	}
	return purged, nil
}

// FlagSuspiciousSessions scans for accounts whose active sessions spread
// across too many distinct IPs and flags those sessions. Returns the
// sessions flagged by this pass.
func (e *Engine) FlagSuspiciousSessions(ctx context.Context) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	flagged, err := e.sessions.FlagSuspicious(ctx)
	if err != nil {
		return nil, fmt.Errorf("flag suspicious: %w", err)
	}

	infos := make([]SessionInfo, 0, len(flagged))
	for _, s := range flagged {
		infos = append(infos, sessionInfoFrom(s))
		e.metricInc(MetricSuspiciousFlagged)
		e.emitAudit(ctx, auditEventSuspiciousFlagged, true, s.UserID, s.ID, nil, nil)
		e.publishEvent(ctx, events.SuspiciousSessionFlagged{
			Base:      events.Now(),
			UserID:    s.UserID,
			SessionID: s.ID,
			Reason:    "ip_spread",
		})
	}
	return infos, nil
}

// SetAccountStatus updates the stored account status. Suspension
// invalidates everything the account holds: all sessions revoked and the
// token epoch bumped. Other transitions touch only the record.
func (e *Engine) SetAccountStatus(ctx context.Context, userID, status string) (*InvalidationOutcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	result, err := e.service.SetAccountStatus(ctx, userID, status)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		err = fmt.Errorf("set account status: %w", err)
		e.emitAudit(ctx, auditEventAccountStatusChange, false, userID, "", err, nil)
		return nil, err
	}

	e.emitAudit(ctx, auditEventAccountStatusChange, true, userID, "", nil, func() map[string]string {
		return map[string]string{"status": status}
	})
	e.publishEvent(ctx, events.AccountStatusChanged{
		Base:            events.Now(),
		UserID:          userID,
		Status:          status,
		SessionsRevoked: result.SessionsRevoked,
	})
	if status == AccountSuspended {
		e.metricInc(MetricEpochBump)
		e.metrics.Add(MetricSessionRevoked, uint64(result.SessionsRevoked))
		e.publishEvent(ctx, events.TokenEpochBumped{
			Base:   events.Now(),
			UserID: userID,
			Epoch:  result.NewEpoch,
			Cause:  "suspension",
		})
	}

	return &InvalidationOutcome{
		SessionsRevoked: result.SessionsRevoked,
		NewEpoch:        result.NewEpoch,
	}, nil
}

// SecurityReport summarizes the engine's security posture as configured.
// Static: it reads config, not runtime state.
type SecurityReport struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	SessionTTL time.Duration
	WebCap     int
	MobileCap  int

	LockoutThreshold int
	LockDuration     time.Duration

	LoginThrottle   bool
	RefreshThrottle bool

	// RevocationFailOpen is the availability-over-security trade: when
	// true, token verification proceeds if the revocation cache is down.
	RevocationFailOpen bool

	BcryptCost        int
	PasswordMinLength int

	AuditEnabled   bool
	MetricsEnabled bool
}

// SecurityReport returns the configured posture so deployments can
// inspect what the engine enforces.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		Issuer:             e.config.Token.Issuer,
		AccessTTL:          e.config.Token.AccessTTL,
		RefreshTTL:         e.config.Token.RefreshTTL,
		SessionTTL:         e.config.Session.TTL,
		WebCap:             e.config.Session.WebCap,
		MobileCap:          e.config.Session.MobileCap,
		LockoutThreshold:   e.config.Lockout.MaxFailedAttempts,
		LockDuration:       e.config.Lockout.LockDuration,
		LoginThrottle:      e.config.RateLimit.EnableLoginThrottle,
		RefreshThrottle:    e.config.RateLimit.EnableRefreshThrottle,
		RevocationFailOpen: e.config.Revocation.FailOpen,
		BcryptCost:         e.config.Password.BcryptCost,
		PasswordMinLength:  e.config.Password.MinLength,
		AuditEnabled:       e.config.Audit.Enabled,
		MetricsEnabled:     e.config.Metrics.Enabled,
	}
}
