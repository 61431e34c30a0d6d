// Package flows holds the orchestration logic behind every Engine
// operation as pure functions.
//
// A flow function (RunLogin, RunRefresh, RunValidate, ...) takes its
// collaborators as a typed Deps struct and touches the world only
// through them, which keeps the Engine thin and lets tests drive every
// branch with hand-rolled fakes.
//
// # Architecture boundaries
//
// Flow functions sequence the session manager, token codec, revocation
// cache, artifact store, rate limiter, and credential store. None of
// those resources are owned here; the Engine wires and owns them.
//
// # What this package must NOT do
//
//   - Hold state between calls.
//   - Import authcore (import cycle).
//   - Reach Redis or the credential database except through a Deps field.
package flows
