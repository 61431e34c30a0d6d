package flows

import (
	"context"
	"time"

	"github.com/skillbridge/authcore/token"
)

// LogoutInput identifies the session and access token being ended. The
// access expiry bounds the revocation entry's TTL.
type LogoutInput struct {
	UserID          string
	SessionID       string
	AccessJTI       string
	AccessExpiresAt time.Time
}

// LogoutResult reports what a logout actually did.
type LogoutResult struct {
	// SessionRevoked is false when the session was already terminal,
	// which still counts as success: logout is idempotent.
	SessionRevoked bool
}

// LogoutDeps is everything the logout flow needs injected.
type LogoutDeps struct {
	Sessions   SessionManager
	Tokens     TokenCodec
	Revocation RevocationCache
	Now        func() time.Time
}

// RunLogout ends one session: the session moves to revoked and the
// access token's JTI is denied for its remaining life. Both steps are
// idempotent, so replayed logouts succeed without effect.
func RunLogout(ctx context.Context, in LogoutInput, deps LogoutDeps) (LogoutResult, error) {
	revoked, err := deps.Sessions.Revoke(ctx, in.SessionID)
	if err != nil {
		return LogoutResult{}, err
	}

	if in.AccessJTI != "" {
		remaining := in.AccessExpiresAt.Sub(deps.Now())
		if err := deps.Revocation.Revoke(ctx, in.AccessJTI, remaining); err != nil {
			return LogoutResult{SessionRevoked: revoked}, err
		}
	}

	return LogoutResult{SessionRevoked: revoked}, nil
}

// LogoutAllResult reports the scope of a log-out-everywhere.
type LogoutAllResult struct {
	SessionsRevoked int
	NewEpoch        int64
}

// RunLogoutAll ends every session of the user and bumps the token
// epoch, so refresh tokens minted before this call are stale everywhere,
// including on devices whose sessions raced the revocation pass.
func RunLogoutAll(ctx context.Context, in LogoutInput, deps LogoutDeps) (LogoutAllResult, error) {
	epoch, err := deps.Revocation.BumpEpoch(ctx, in.UserID)
	if err != nil {
		return LogoutAllResult{}, err
	}

	count, err := deps.Sessions.RevokeAll(ctx, in.UserID, "")
	if err != nil {
		return LogoutAllResult{NewEpoch: epoch}, err
	}

	if in.AccessJTI != "" {
		remaining := in.AccessExpiresAt.Sub(deps.Now())
		if err := deps.Revocation.Revoke(ctx, in.AccessJTI, remaining); err != nil {
			return LogoutAllResult{SessionsRevoked: count, NewEpoch: epoch}, err
		}
	}

	return LogoutAllResult{SessionsRevoked: count, NewEpoch: epoch}, nil
}

// LogoutInputFromClaims builds a LogoutInput from verified access claims.
func LogoutInputFromClaims(claims *token.AccessClaims) LogoutInput {
	in := LogoutInput{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		AccessJTI: claims.ID,
	}
	if claims.ExpiresAt != nil {
		in.AccessExpiresAt = claims.ExpiresAt.Time
	}
	return in
}
