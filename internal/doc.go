// Package internal contains helper utilities that are intentionally private to
// authcore, including secure random identifier generation, one-time code
// generation, artifact secret hashing, and device fingerprint helpers.
//
// # Sub-packages
//
//   - audit: async audit event dispatch (Dispatcher + Sink implementations)
//   - flows: orchestrators for every Engine operation
//   - rate: Redis-backed fixed-window rate limit primitives
//   - revocation: token revocation list and per-user token epoch cache
//   - stores: one-time verification artifact store
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
