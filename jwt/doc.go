// Package jwt issues, verifies, and inspects JWT access tokens.
//
// The client never verifies signatures on its own credentials: it only reads the
// expiry of the current access token through [Inspect] to report session status.
// [Manager] signs and verifies tokens for the backend side of the protocol and is
// used by the load-test backend and by tests.
//
// # What this package must NOT do
//
//   - Treat [Inspect] output as authenticated.
//   - Import the root package or any store.
package jwt
