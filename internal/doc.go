// Package internal groups the pieces of the client that are private to this
// module.
//
// # Sub-packages
//
//   - audit: async event dispatch and sinks
//   - flows: recovery and teardown decisions as pure functions
//   - fakebackend: in-memory diary API with rotating refresh tokens, used by
//     tests and the bundled commands
//
// # What this package must NOT do
//
//   - Export types that appear in the public API.
//   - Be imported from outside this module.
package internal
