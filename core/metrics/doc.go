// Package metrics defines the observability contract of the broker. A Sink
// records event creation and acknowledgement; optional recorder interfaces
// cover rejected requests, dropped notifications and connected sessions.
// Sinks are built from configuration through NewSink and combined with
// MultiSink when several are configured.
package metrics
