package flows

import (
	"context"
	"errors"
)

// StatusDeps is everything the account status change flow needs injected.
type StatusDeps struct {
	Credentials CredentialStore
	Sessions    SessionManager
	Revocation  RevocationCache
}

// StatusChangeResult reports the invalidation scope of a status change.
type StatusChangeResult struct {
	SessionsRevoked int
	NewEpoch        int64
}

// RunSetAccountStatus updates the stored account status. Moving to
// suspended invalidates everything the account holds: all sessions are
// revoked and the epoch bumped, so outstanding refresh tokens die with
// the suspension. Other transitions touch nothing but the record.
func RunSetAccountStatus(ctx context.Context, userID, status string, deps StatusDeps) (StatusChangeResult, error) {
	switch status {
	case "active", "pending", "suspended":
	default:
		return StatusChangeResult{}, errors.New("unknown account status")
	}

	if err := deps.Credentials.SetStatus(ctx, userID, status); err != nil {
		return StatusChangeResult{}, err
	}

	if status != "suspended" {
		return StatusChangeResult{}, nil
	}

	epoch, err := deps.Revocation.BumpEpoch(ctx, userID)
	if err != nil {
		return StatusChangeResult{}, err
	}
	count, err := deps.Sessions.RevokeAll(ctx, userID, "")
	if err != nil {
		return StatusChangeResult{NewEpoch: epoch}, err
	}

	return StatusChangeResult{SessionsRevoked: count, NewEpoch: epoch}, nil
}
