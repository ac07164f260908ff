// Package tokenstore persists the bearer credentials of the current session: the
// short-lived access token, the rotating refresh token, and the legacy single-token
// entry written by pre-rotation clients.
//
// # Backends
//
//   - [MemoryStore]: process-local, for tests and ephemeral sessions.
//   - [FileStore]: durable, age-encrypted file on disk.
//   - [KeyringStore]: the operating system credential manager.
//   - [RedisStore]: shared storage for clients running as several processes.
//
// # Architecture boundaries
//
// A [Store] only persists strings under fixed names. It does NOT serialize concurrent
// writers; the session engine holds a mutex around every write so an access/refresh
// pair is never observed half-updated by another refresh. Backends that can write
// both tokens in one operation implement [PairWriter].
//
// # What this package must NOT do
//
//   - Log or return token values in errors.
//   - Import the root package, session, or refresh.
//   - Decide when a session is valid.
package tokenstore
