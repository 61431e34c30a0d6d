package flows

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/skillbridge/authcore/session"
	"github.com/skillbridge/authcore/token"
)

// RefreshFailureKind names the gate a failed refresh stopped at so the
// caller can map it to a public sentinel.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureExpired
	RefreshFailureMalformed
	RefreshFailureClaims
	RefreshFailureRateLimited
	RefreshFailureRevoked
	RefreshFailureStale
	RefreshFailureSessionNotFound
	RefreshFailureSessionNotActive
	RefreshFailureDeviceMismatch
	RefreshFailureSuspended
	RefreshFailureCache
	RefreshFailureStore
	RefreshFailureIssue
)

// RefreshInput is a refresh token presentation with its client context.
type RefreshInput struct {
	RefreshToken string
	UserAgent    string
	IPAddress    string
	Location     string
}

// RefreshResult carries the freshly minted pair or failure metadata.
// The presented refresh token is not invalidated by a successful
// refresh; it stays usable until its own expiry or an epoch bump.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error

	UserID    string
	SessionID string
	Session   *session.Session

	Pair token.Pair
}

// RefreshDeps is everything the refresh flow needs injected.
type RefreshDeps struct {
	Credentials CredentialStore
	Sessions    SessionManager
	Tokens      TokenCodec
	Revocation  RevocationCache
	RateLimiter RefreshRateLimiter

	Fingerprint func(platform, userAgent string) [32]byte

	// FailOpen lets verification proceed when the revocation cache is
	// unreachable. Default is fail closed: no answer means revoked.
	FailOpen bool
	Warn     func(string, ...any)

	ErrUserNotFound error
}

// RunRefresh verifies a refresh token and issues a fresh token pair at
// the presented token's epoch.
//
// Check order: signature and expiry, per-session rate limit, revocation,
// epoch staleness, session liveness, device binding, account status.
// Every gate must pass; the cheapest checks that reveal nothing run
// first.
func RunRefresh(ctx context.Context, in RefreshInput, deps RefreshDeps) RefreshResult {
	claims, err := deps.Tokens.VerifyRefresh(in.RefreshToken)
	if err != nil {
		return RefreshResult{Failure: classifyTokenError(err), Err: err}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, claims.SessionID); err != nil {
			return RefreshResult{
				Failure:   RefreshFailureRateLimited,
				Err:       err,
				UserID:    claims.UserID,
				SessionID: claims.SessionID,
			}
		}
	}

	revoked, err := deps.Revocation.IsRevoked(ctx, claims.ID)
	if err != nil {
		if !deps.FailOpen {
			return RefreshResult{
				Failure:   RefreshFailureCache,
				Err:       err,
				UserID:    claims.UserID,
				SessionID: claims.SessionID,
			}
		}
		if deps.Warn != nil {
			deps.Warn("revocation check failed open", "session_id", claims.SessionID)
		}
	}
	if revoked {
		return RefreshResult{
			Failure:   RefreshFailureRevoked,
			Err:       errors.New("refresh token revoked"),
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
		}
	}

	epoch, err := deps.Revocation.CurrentEpoch(ctx, claims.UserID)
	if err != nil {
		if !deps.FailOpen {
			return RefreshResult{
				Failure:   RefreshFailureCache,
				Err:       err,
				UserID:    claims.UserID,
				SessionID: claims.SessionID,
			}
		}
		if deps.Warn != nil {
			deps.Warn("epoch check failed open", "user_id", claims.UserID)
		}
		epoch = claims.TokenVersion
	}
	if claims.TokenVersion < epoch {
		return RefreshResult{
			Failure:   RefreshFailureStale,
			Err:       errors.New("token epoch superseded"),
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
		}
	}

	sess, err := deps.Sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return RefreshResult{
				Failure:   RefreshFailureSessionNotFound,
				Err:       err,
				UserID:    claims.UserID,
				SessionID: claims.SessionID,
			}
		}
		return RefreshResult{
			Failure:   RefreshFailureStore,
			Err:       err,
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
		}
	}
	if sess.Status != session.StatusActive || sess.UserID != claims.UserID {
		return RefreshResult{
			Failure:   RefreshFailureSessionNotActive,
			Err:       errors.New("session " + sess.Status.String()),
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
			Session:   sess,
		}
	}

	// Device binding: the claim must name the session's device and the
	// presenting client must reproduce the fingerprint captured at login.
	presented := deps.Fingerprint(sess.Platform.String(), in.UserAgent)
	if claims.DeviceID != sess.DeviceID ||
		subtle.ConstantTimeCompare(presented[:], sess.Fingerprint[:]) != 1 {
		if err := deps.Sessions.MarkSuspicious(ctx, sess.ID); err != nil && deps.Warn != nil {
			deps.Warn("could not flag session after device mismatch", "session_id", sess.ID)
		}
		return RefreshResult{
			Failure:   RefreshFailureDeviceMismatch,
			Err:       errors.New("device fingerprint mismatch"),
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
			Session:   sess,
		}
	}

	user, err := deps.Credentials.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, deps.ErrUserNotFound) {
			return RefreshResult{
				Failure:   RefreshFailureSessionNotFound,
				Err:       err,
				UserID:    claims.UserID,
				SessionID: claims.SessionID,
			}
		}
		return RefreshResult{
			Failure:   RefreshFailureStore,
			Err:       err,
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
		}
	}
	if user.Status == "suspended" {
		return RefreshResult{
			Failure:   RefreshFailureSuspended,
			Err:       errors.New("account suspended"),
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
			Session:   sess,
		}
	}

	if err := deps.Sessions.Touch(ctx, sess.ID, session.Activity{
		Location:       in.Location,
		UpdateLocation: in.Location != "",
	}); err != nil {
		// A touch lost to a concurrent revoke means the session is gone.
		if errors.Is(err, session.ErrNotActive) || errors.Is(err, session.ErrNotFound) {
			return RefreshResult{
				Failure:   RefreshFailureSessionNotActive,
				Err:       err,
				UserID:    claims.UserID,
				SessionID: claims.SessionID,
				Session:   sess,
			}
		}
		return RefreshResult{
			Failure:   RefreshFailureStore,
			Err:       err,
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
			Session:   sess,
		}
	}

	// A full pair is minted at the token's own epoch; the presented
	// refresh token is deliberately left un-revoked.
	pair, err := deps.Tokens.IssuePair(token.Subject{
		UserID:       user.ID,
		Role:         user.Role,
		Status:       user.Status,
		Verification: user.Verification(),
		Platform:     sess.Platform.String(),
	}, sess.ID, sess.DeviceID, claims.TokenVersion)
	if err != nil {
		return RefreshResult{
			Failure:   RefreshFailureIssue,
			Err:       err,
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
			Session:   sess,
		}
	}

	return RefreshResult{
		UserID:    user.ID,
		SessionID: sess.ID,
		Session:   sess,
		Pair:      pair,
	}
}

func classifyTokenError(err error) RefreshFailureKind {
	switch {
	case errors.Is(err, token.ErrExpired):
		return RefreshFailureExpired
	case errors.Is(err, token.ErrClaimsInvalid):
		return RefreshFailureClaims
	default:
		return RefreshFailureMalformed
	}
}
