package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a dock event.
type Status string

const (
	StatusSent  Status = "sent"
	StatusAcked Status = "acked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s == StatusSent || s == StatusAcked }

// DockEvent is the canonical record of a completed dock task.
type DockEvent struct {
	ID        string     `json:"id"`
	DockSetID int        `json:"dockSetId"`
	DockNo    int        `json:"dockNo"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	AckedAt   *time.Time `json:"ackedAt"`
}

// Validate enforces that ackedAt is present exactly when the event is acked.
func (e DockEvent) Validate() error {
	if !e.Status.Valid() {
		return fmt.Errorf("event %s: unknown status %q", e.ID, e.Status)
	}
	if (e.Status == StatusAcked) != (e.AckedAt != nil) {
		return fmt.Errorf("event %s: ackedAt inconsistent with status %s", e.ID, e.Status)
	}
	return nil
}

// Acked reports whether the event reached its terminal state.
func (e DockEvent) Acked() bool { return e.Status == StatusAcked }

// MarkAcked performs the single sent -> acked transition.
func (e *DockEvent) MarkAcked(at time.Time) error {
	if e.Status != StatusSent {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, StatusAcked)
	}
	t := at
	e.Status = StatusAcked
	e.AckedAt = &t
	return nil
}

// AckResult is the outcome of an acknowledgement. AlreadyAcked is an
// idempotent success.
type AckResult struct {
	EventID      string    `json:"eventId"`
	AckedAt      time.Time `json:"ackedAt"`
	AlreadyAcked bool      `json:"alreadyAcked"`
}

const tempPrefix = "temp-"

// TempID builds the local key of an optimistic entry.
func TempID(dockSetID, dockNo int, local time.Time) string {
	return fmt.Sprintf("%s%d-%d-%d", tempPrefix, dockSetID, dockNo, local.UnixMilli())
}

// IsTempID reports whether id was produced by TempID.
func IsTempID(id string) bool { return strings.HasPrefix(id, tempPrefix) }
