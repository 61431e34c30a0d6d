// Package authcore is the authentication token and session lifecycle
// engine for marketplace backends: JWT access tokens, long-lived
// non-rotating refresh tokens, Redis-backed sessions with per-platform
// caps, epoch-based bulk revocation, and account verification flows.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after construction
// through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (SessionInfo, MetricsSnapshot, etc.).
// Callers own user persistence through the [CredentialStore] interface
// and out-of-band delivery through [Notifier]; the engine owns sessions,
// revocation state, and verification artifacts in Redis. Flow
// orchestration, session encoding, rate limiting, and audit dispatch
// live under internal/ and are never exported.
//
// # Performance contract
//
// ValidateToken is the hot path: signature check plus two Redis reads,
// no writes. Refresh adds the device-binding comparison and one session
// touch. Login and account operations may take several round-trips.
package authcore
