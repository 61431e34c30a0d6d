// Package stores persists short-lived single-use verification
// artifacts in Redis: email link tokens, phone OTP codes, and password
// reset codes.
//
// # Design
//
// An artifact is one versioned binary record per (user, purpose) with a
// TTL. Redemption runs a Lua compare-and-act: a wrong secret bumps the
// strike counter atomically, the final strike deletes the record, and a
// match deletes it and hands it back. Secrets are stored only as salted
// hashes; the Go side re-checks the match in constant time.
//
// # Architecture boundaries
//
// Challenge storage and its race handling end here. Secret generation,
// delivery, and the decision to issue or redeem belong to
// internal/flows.
//
// # What this package must NOT do
//
//   - Import authcore or internal/flows (no upward imports).
//   - Persist or log a plaintext secret.
//   - Compare secrets with anything but constant-time equality.
package stores
