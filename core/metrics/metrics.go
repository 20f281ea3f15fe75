package metrics

import (
	"time"

	"github.com/kilianp07/jobdone/core/model"
)

// EventCreated is recorded when the broker mints a new event.
type EventCreated struct {
	Event model.DockEvent
	Time  time.Time
}

// EventAcked is recorded on the sent -> acked transition. Latency is the time
// between creation and acknowledgement.
type EventAcked struct {
	Event   model.DockEvent
	Latency time.Duration
	Time    time.Time
}

// Sink records event lifecycle transitions.
type Sink interface {
	RecordEventCreated(ev EventCreated) error
	RecordEventAcked(ev EventAcked) error
}

// RejectionRecorder counts requests refused by the broker. Reason is a short
// label such as "invalid_dock" or "not_found".
type RejectionRecorder interface {
	RecordRejected(op, reason string) error
}

// DeliveryRecorder counts notifications a slow session did not receive.
type DeliveryRecorder interface {
	RecordDropped(n int) error
}

// SessionRecorder tracks the number of attached sessions.
type SessionRecorder interface {
	RecordSessions(n int) error
}

// DuplicateRecorder counts submissions absorbed by the idempotency cache.
type DuplicateRecorder interface {
	RecordDuplicate() error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordEventCreated(EventCreated) error { return nil }
func (NopSink) RecordEventAcked(EventAcked) error     { return nil }
func (NopSink) RecordRejected(string, string) error   { return nil }
func (NopSink) RecordDropped(int) error               { return nil }
func (NopSink) RecordSessions(int) error              { return nil }
func (NopSink) RecordDuplicate() error                { return nil }
