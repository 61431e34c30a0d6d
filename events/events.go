// Package events defines the closed set of lifecycle events the engine
// publishes and the Sink interface publishers implement. Publication is
// best-effort: the engine logs publish failures and moves on, so a dead
// broker never blocks authentication.
package events

import (
	"context"
	"time"
)

// Event is one lifecycle event. The set of implementations is closed;
// consumers can switch exhaustively on the concrete type or route on
// Name().
type Event interface {
	// Name is the stable dotted identifier, also used as the routing key
	// by the AMQP publisher.
	Name() string
	// OccurredAt is when the engine emitted the event.
	OccurredAt() time.Time

	isEvent()
}

// Sink receives engine events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Base carries the shared timestamp; every variant embeds it.
type Base struct {
	At time.Time `json:"at"`
}

func (b Base) OccurredAt() time.Time { return b.At }
func (Base) isEvent()                {}

// Now stamps a Base for embedding into a variant.
func Now() Base { return Base{At: time.Now().UTC()} }

type UserRegistered struct {
	Base
	UserID     string `json:"user_id"`
	Identifier string `json:"identifier"`
	Role       string `json:"role"`
}

func (UserRegistered) Name() string { return "user.registered" }

type UserLoggedIn struct {
	Base
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Platform  string `json:"platform"`
}

func (UserLoggedIn) Name() string { return "user.logged_in" }

type UserLoginFailed struct {
	Base
	Identifier string `json:"identifier"`
	Reason     string `json:"reason"`
	Locked     bool   `json:"locked,omitempty"`
}

func (UserLoginFailed) Name() string { return "user.login_failed" }

type SessionCreated struct {
	Base
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Platform  string `json:"platform"`
	DeviceID  string `json:"device_id,omitempty"`
}

func (SessionCreated) Name() string { return "session.created" }

type SessionRevoked struct {
	Base
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Cause     string `json:"cause"`
}

func (SessionRevoked) Name() string { return "session.revoked" }

type SessionsRevokedAll struct {
	Base
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
	Cause  string `json:"cause"`
}

func (SessionsRevokedAll) Name() string { return "session.revoked_all" }

type SessionsSwept struct {
	Base
	Expired int `json:"expired"`
}

func (SessionsSwept) Name() string { return "session.swept" }

type SuspiciousSessionFlagged struct {
	Base
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

func (SuspiciousSessionFlagged) Name() string { return "session.suspicious_flagged" }

type TokenEpochBumped struct {
	Base
	UserID string `json:"user_id"`
	Epoch  int64  `json:"epoch"`
	Cause  string `json:"cause"`
}

func (TokenEpochBumped) Name() string { return "token.epoch_bumped" }

type EmailVerified struct {
	Base
	UserID    string `json:"user_id"`
	Activated bool   `json:"activated"`
}

func (EmailVerified) Name() string { return "user.email_verified" }

type PhoneVerified struct {
	Base
	UserID    string `json:"user_id"`
	Activated bool   `json:"activated"`
}

func (PhoneVerified) Name() string { return "user.phone_verified" }

type PasswordChanged struct {
	Base
	UserID          string `json:"user_id"`
	SessionsRevoked int    `json:"sessions_revoked"`
}

func (PasswordChanged) Name() string { return "user.password_changed" }

type PasswordResetRequested struct {
	Base
	UserID string `json:"user_id"`
}

func (PasswordResetRequested) Name() string { return "user.password_reset_requested" }

type PasswordResetCompleted struct {
	Base
	UserID          string `json:"user_id"`
	SessionsRevoked int    `json:"sessions_revoked"`
}

func (PasswordResetCompleted) Name() string { return "user.password_reset_completed" }

type AccountStatusChanged struct {
	Base
	UserID          string `json:"user_id"`
	Status          string `json:"status"`
	SessionsRevoked int    `json:"sessions_revoked"`
}

func (AccountStatusChanged) Name() string { return "user.status_changed" }
