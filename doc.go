// Package weeverytrip is the authenticated session layer of the WeEveryTrip
// travel-diary client.
//
// An [Engine] attaches bearer tokens to outgoing requests ([Engine.Decorate]),
// recovers from HTTP 401 by refreshing the token pair at most once across
// concurrent failures ([Engine.Authenticate]), rotates the stored refresh token,
// bounds retries per logical request, and publishes session validity through a
// session.Controller. The middleware package wires both hooks into an
// [net/http.RoundTripper].
//
// # Architecture boundaries
//
// This package is the public surface: [Engine], [Builder], [Config] and value
// types. Recovery decisions live in internal/flows, event buffering in
// internal/audit, persistence in tokenstore and the refresh call in refresh.
//
// # What this package must NOT do
//
//   - Log or audit token values.
//   - Obtain tokens by login. Callers pass them to [Engine.EstablishSession].
//   - Import middleware or any package that imports this one.
package weeverytrip
