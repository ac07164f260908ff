// Package fakebackend is an in-process stand-in for the diary API: JWT access
// tokens, single-use rotating refresh tokens with reuse revocation, and a couple
// of guarded endpoints. It exists for tests and the load generator.
package fakebackend
