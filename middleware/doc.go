// Package middleware connects an engine to net/http.
//
// # Client side
//
//   - [Transport]: http.RoundTripper that decorates requests and resends them
//     after a 401 when the engine recovers the session.
//
// # Serving side
//
//   - [Guard]: rejects requests whose bearer token fails a [Validator].
//   - [RequireJWT]: stateless JWT verification.
//   - [RequireSession]: JWT verification plus a session liveness check.
//
// The serving-side guards back the fake backends used by tests and the load
// generator.
//
// # What this package must NOT do
//
//   - Make recovery decisions. The engine decides; the transport only resends.
//   - Touch the token store.
package middleware
