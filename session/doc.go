// Package session holds the observable session-validity flag of the client.
//
// # Lifecycle
//
// A [Controller] is created once per process by the engine. It starts valid when any
// token is present in the store at startup. [Controller.Logout] flips it to invalid and
// is idempotent; only [Controller.Reset], called after a fresh login, flips it back.
//
// # Architecture boundaries
//
// The controller never touches tokens. Whoever tears a session down clears the
// token store first and then calls Logout, so there is exactly one owner of
// "what ends a session".
//
// # What this package must NOT do
//
//   - Import the root package, tokenstore, or refresh.
//   - Block a state change on a slow subscriber.
package session
