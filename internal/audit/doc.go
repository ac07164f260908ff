// Package audit buffers session lifecycle events and delivers them to a sink.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, zerolog, no-op).
//   - [Dispatcher]: buffered async relay, drop-if-full or block-if-full.
//   - [Event]: one record per refresh, logout, loop detection or session start.
//
// # Architecture boundaries
//
// The engine decides which events to emit. This package only owns buffering and
// delivery.
//
// # What this package must NOT do
//
//   - Filter events.
//   - Import the root package or any sibling internal package.
package audit
