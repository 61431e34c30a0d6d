// Package token manages access and refresh token issuance and verification
// using independent signing secrets and audiences, with strict validation
// semantics suitable for low-latency authentication paths.
//
// The codec is stateless: it proves what a token says, never whether the
// token is still live. Revocation, epoch staleness, and session liveness are
// layered on top by the engine.
package token
