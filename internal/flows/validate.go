package flows

import (
	"context"
	"errors"

	"github.com/skillbridge/authcore/session"
	"github.com/skillbridge/authcore/token"
)

// ValidateFailureKind classifies access validation failures for
// root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureExpired
	ValidateFailureMalformed
	ValidateFailureClaims
	ValidateFailureRevoked
	ValidateFailureSessionNotFound
	ValidateFailureSessionNotActive
	ValidateFailureCache
	ValidateFailureStore
)

// ValidateResult carries verified claims or failure metadata.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error

	Claims  *token.AccessClaims
	Session *session.Session
}

// ValidateDeps is everything the access validation flow needs injected.
type ValidateDeps struct {
	Sessions   SessionManager
	Tokens     TokenCodec
	Revocation RevocationCache

	// FailOpen lets validation proceed when the revocation cache is
	// unreachable. Default is fail closed.
	FailOpen bool
	Warn     func(string, ...any)
}

// RunValidate verifies an access token end to end: signature and expiry,
// revocation, then session liveness. Middleware-grade: no writes, three
// reads worst case.
func RunValidate(ctx context.Context, accessToken string, deps ValidateDeps) ValidateResult {
	claims, err := deps.Tokens.VerifyAccess(accessToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			return ValidateResult{Failure: ValidateFailureExpired, Err: err}
		case errors.Is(err, token.ErrClaimsInvalid):
			return ValidateResult{Failure: ValidateFailureClaims, Err: err}
		default:
			return ValidateResult{Failure: ValidateFailureMalformed, Err: err}
		}
	}

	revoked, err := deps.Revocation.IsRevoked(ctx, claims.ID)
	if err != nil {
		if !deps.FailOpen {
			return ValidateResult{Failure: ValidateFailureCache, Err: err, Claims: claims}
		}
		if deps.Warn != nil {
			deps.Warn("revocation check failed open", "session_id", claims.SessionID)
		}
	}
	if revoked {
		return ValidateResult{Failure: ValidateFailureRevoked, Err: errors.New("access token revoked"), Claims: claims}
	}

	sess, err := deps.Sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ValidateResult{Failure: ValidateFailureSessionNotFound, Err: err, Claims: claims}
		}
		return ValidateResult{Failure: ValidateFailureStore, Err: err, Claims: claims}
	}
	if sess.Status != session.StatusActive || sess.UserID != claims.UserID {
		return ValidateResult{
			Failure: ValidateFailureSessionNotActive,
			Err:     errors.New("session " + sess.Status.String()),
			Claims:  claims,
			Session: sess,
		}
	}

	return ValidateResult{Claims: claims, Session: sess}
}
