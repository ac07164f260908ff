// Package internaldefs holds the metric names, help strings and bucket bounds
// shared by every exporter, so all of them publish identical series.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
