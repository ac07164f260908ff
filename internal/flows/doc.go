// Package flows contains pure-function orchestrators for engine operations.
//
// [RunRecovery] decides the reaction to an authorization failure and [RunTeardown]
// ends a session. Each accepts a typed dependency struct and has no side effects
// beyond those dependencies, so every branch can be tested with fakes.
//
// # Architecture boundaries
//
// Flows coordinate the token store, refresh client and session flag. They do not
// own them and they do not lock: the engine serializes calls.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package.
//   - Log, emit audit events or record metrics. The engine maps outcomes to those.
package flows
