// Package refresh calls the backend's token refresh endpoint.
//
// # Contract
//
//	POST /api/auth/refresh
//	Authorization: Bearer <refresh token>
//	(no body)
//
//	200 {"accessToken": "...", "refreshToken": "..."}
//
// Any non-2xx status means the refresh token was rejected. The returned refresh
// token supersedes the one sent (rotation).
//
// # Architecture boundaries
//
// [Client] owns its own *http.Client and never goes through the application's
// authenticated transport. [Lazy] defers building the client until the first
// refresh.
//
// # What this package must NOT do
//
//   - Retry failed refresh calls.
//   - Persist tokens or change session state.
//   - Import the root package, session, or tokenstore.
package refresh
