// Package session provides Redis-backed session lifecycle management and
// compact binary session encoding for authentication hot paths.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact binary blob with a fixed-width
// head (status, flags, platform, timestamps, fingerprint) followed by a
// length-prefixed tail. The fixed head lets Lua scripts patch status and
// activity timestamps at known offsets without decoding the tail.
//
// # Lifecycle
//
// A session is active, expired, or revoked. Transitions are one-way and
// performed by Lua compare-and-swap scripts, so concurrent revocations,
// sweeps, and touches never resurrect a terminal session. Expired and
// revoked blobs are retained past their expiry so their terminal status
// stays observable until PurgeOld reclaims them.
//
// # Architecture boundaries
//
// This package owns the [Manager] (Redis operations) and the [Session]
// model. It does NOT interpret bearer tokens, verify credentials, or
// enforce authentication policy. Those responsibilities belong to the
// Engine.
//
// # What this package must NOT do
//
//   - Import authcore or token (no upward imports).
//   - Make authorization decisions for the application.
//   - Carry plaintext credentials in [Session] fields.
package session
