package session

import "time"

// Status is the lifecycle state of a session. Transitions are one-way:
// active may become expired or revoked, and neither terminal state ever
// returns to active.
type Status uint8

const (
	StatusActive  Status = 0
	StatusExpired Status = 1
	StatusRevoked Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Platform identifies the client class a session was created from.
// The per-user concurrent session cap is tracked per platform.
type Platform uint8

const (
	PlatformWeb    Platform = 0
	PlatformMobile Platform = 1
)

func (p Platform) String() string {
	switch p {
	case PlatformWeb:
		return "web"
	case PlatformMobile:
		return "mobile"
	default:
		return "unknown"
	}
}

// ParsePlatform maps a wire platform name to its code.
func ParsePlatform(s string) (Platform, bool) {
	switch s {
	case "web":
		return PlatformWeb, true
	case "mobile":
		return PlatformMobile, true
	default:
		return 0, false
	}
}

// Session is the decoded form of a stored session blob.
//
// Session instances are snapshots; mutating a field here does not touch
// Redis. All writes go through [Manager] methods.
type Session struct {
	ID     string
	UserID string

	DeviceID    string
	Platform    Platform
	UserAgent   string
	IPAddress   string
	Location    string
	Fingerprint [32]byte

	Status     Status
	Suspicious bool

	CreatedAt    int64
	LastActivity int64
	ExpiresAt    int64
}

// Active reports whether the session is usable at the given instant.
// A session still marked StatusActive but past its expiry is not active.
func (s *Session) Active(now time.Time) bool {
	return s.Status == StatusActive && s.ExpiresAt > now.Unix()
}
