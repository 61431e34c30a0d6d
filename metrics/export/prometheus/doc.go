// Package prometheus exposes authcore engine metrics as a
// prometheus/client_golang Collector.
//
// [NewCollector] wraps an [authcore.Engine] (or any snapshot source) and
// reports every engine counter as authcore_<name>_total, the validate
// latency histogram as authcore_validate_latency_seconds, and dropped
// audit events as authcore_audit_dropped_total. [Handler] mounts a
// collector on its own registry; nothing is registered globally.
package prometheus
