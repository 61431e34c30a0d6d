package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allVariants() []Event {
	return []Event{
		UserRegistered{Base: Now(), UserID: "u1", Identifier: "a@b.c", Role: "buyer"},
		UserLoggedIn{Base: Now(), UserID: "u1", SessionID: "s1", Platform: "web"},
		UserLoginFailed{Base: Now(), Identifier: "a@b.c", Reason: "password"},
		SessionCreated{Base: Now(), UserID: "u1", SessionID: "s1", Platform: "web"},
		SessionRevoked{Base: Now(), UserID: "u1", SessionID: "s1", Cause: "logout"},
		SessionsRevokedAll{Base: Now(), UserID: "u1", Count: 3, Cause: "password_reset"},
		SessionsSwept{Base: Now(), Expired: 7},
		SuspiciousSessionFlagged{Base: Now(), UserID: "u1", SessionID: "s1", Reason: "device_mismatch"},
		TokenEpochBumped{Base: Now(), UserID: "u1", Epoch: 2, Cause: "logout_all"},
		EmailVerified{Base: Now(), UserID: "u1", Activated: true},
		PhoneVerified{Base: Now(), UserID: "u1"},
		PasswordChanged{Base: Now(), UserID: "u1", SessionsRevoked: 2},
		PasswordResetRequested{Base: Now(), UserID: "u1"},
		PasswordResetCompleted{Base: Now(), UserID: "u1", SessionsRevoked: 4},
		AccountStatusChanged{Base: Now(), UserID: "u1", Status: "suspended", SessionsRevoked: 4},
	}
}

func TestEventNamesAreUniqueAndDotted(t *testing.T) {
	seen := make(map[string]bool)
	for _, ev := range allVariants() {
		name := ev.Name()
		assert.False(t, seen[name], "duplicate event name %q", name)
		assert.Regexp(t, `^[a-z]+\.[a-z_]+$`, name)
		seen[name] = true
	}
}

func TestEventsEncodeAsJSON(t *testing.T) {
	for _, ev := range allVariants() {
		body, err := json.Marshal(ev)
		require.NoError(t, err, "marshal %s", ev.Name())

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(body, &decoded))
		assert.Contains(t, decoded, "at", "event %s must carry its timestamp", ev.Name())
	}
}

func TestOccurredAtIsStamped(t *testing.T) {
	ev := UserLoggedIn{Base: Now(), UserID: "u1", SessionID: "s1"}
	assert.False(t, ev.OccurredAt().IsZero())
	assert.Equal(t, "UTC", ev.OccurredAt().Location().String())
}
