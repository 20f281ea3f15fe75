// Package infra holds the adapters behind the core interfaces: the Paho MQTT
// transport, the SQLite event store, the Redis request cache, metric sinks and
// the zerolog logger. Nothing in core imports these packages.
package infra
