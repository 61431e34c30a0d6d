// Package rate implements the Redis counters behind the engine's login
// and refresh throttles.
//
// # Window semantics
//
// Counters are fixed-window: INCR pipelined with EXPIRE NX, so the
// window TTL arms on the first hit and the count dies with it. Key
// prefixes, sharing the keyspace with sessions and artifacts:
//   - al: login per-identifier
//   - ali: login per-IP
//   - ar: refresh per-session
//
// # What this package must NOT do
//
//   - Make lockout decisions (those live in the credential store and flows).
//   - Be imported from outside the authcore module.
package rate
