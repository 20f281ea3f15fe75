// Package protocol defines the messages exchanged between sessions and the
// broker. Every message travels as an Envelope carrying a type tag and a JSON
// payload.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/jobdone/core/model"
)

// Type identifies a message.
type Type string

// Client to broker.
const (
	TypeSubmitCompletion Type = "submit_completion"
	TypeAckEvent         Type = "ack_event"
	TypeSync             Type = "sync"
)

// Broker to client.
const (
	TypeEventCreated Type = "event_created"
	TypeEventAcked   Type = "event_acked"
	TypeError        Type = "error"
	TypeSyncResult   Type = "sync_result"
)

// Envelope is the unit written to a transport.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type SubmitCompletion struct {
	DockSetID       int    `json:"dockSetId"`
	DockNo          int    `json:"dockNo"`
	ClientRequestID string `json:"clientRequestId"`
}

type AckEvent struct {
	EventID         string `json:"eventId"`
	ClientRequestID string `json:"clientRequestId"`
}

type Sync struct {
	Limit int `json:"limit"`
}

// EventCreated carries the canonical event. ClientRequestID echoes the key of
// the originating request so the originator can match its optimistic entry
// exactly.
type EventCreated struct {
	Event           model.DockEvent `json:"event"`
	ClientRequestID string          `json:"clientRequestId,omitempty"`
}

// EventAcked carries an acknowledgement. ClientRequestID echoes the key of the
// ack request that caused it.
type EventAcked struct {
	EventID         string       `json:"eventId"`
	Status          model.Status `json:"status"`
	AckedAt         time.Time    `json:"ackedAt"`
	ClientRequestID string       `json:"clientRequestId,omitempty"`
}

// Error reports a failed request to its originator. ClientRequestID is set
// when the failed request carried one.
type Error struct {
	Message         string `json:"message"`
	ClientRequestID string `json:"clientRequestId,omitempty"`
}

type SyncResult struct {
	Events []model.DockEvent `json:"events"`
}

// Encode wraps payload into an envelope of type t.
func Encode(t Type, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", t, err)
	}
	return Envelope{Type: t, Payload: b}, nil
}

// MustEncode is Encode for payloads that cannot fail to marshal.
func MustEncode(t Type, payload any) Envelope {
	env, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the envelope payload into out.
func (e Envelope) Decode(out any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("decode %s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return nil
}

// Marshal serialises the envelope for the wire.
func (e Envelope) Marshal() ([]byte, error) { return json.Marshal(e) }

// Unmarshal parses a wire frame.
func Unmarshal(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}
