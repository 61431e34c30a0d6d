// Package middleware exposes an HTTP adapter over Engine.ValidateToken.
//
// [Guard] reads the Authorization header, validates the bearer token,
// and injects the [authcore.AuthResult] into the request context for
// handlers to read through [AuthResultFromContext]. It also forwards the
// client IP and User-Agent into the context so downstream engine calls
// (Refresh in particular) see the presenting client.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to
// Engine.ValidateToken.
package middleware
