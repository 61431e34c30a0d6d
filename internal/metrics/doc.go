// Package metrics keeps the engine's operation counters and the token
// validation latency histogram.
//
// # Design
//
// Every MetricID maps to its own cache-line-padded slot so concurrent
// increments on different counters never share a line; writes are
// single atomic adds and never allocate. The histogram has 8 fixed
// buckets (≤5ms through +Inf) plus a nanosecond sum for exporters.
//
// # Architecture boundaries
//
// Storage and snapshotting live here; rendering for scrape endpoints
// lives in metrics/export and works from Snapshot values.
//
// # What this package must NOT do
//
//   - Perform I/O of any kind.
//   - Import authcore or any sibling package.
//   - Hold registry-style global state.
package metrics
