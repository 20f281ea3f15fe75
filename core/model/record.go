package model

import "time"

// Record is the persisted row layout of a dock event.
type Record struct {
	ID        string     `json:"id"`
	DockSetID int        `json:"dock_set_id"`
	DockNo    int        `json:"dock_no"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"created_at"`
	AckedAt   *time.Time `json:"acked_at"`
}

// ToRecord maps an event to its row.
func ToRecord(e DockEvent) Record {
	created := e.CreatedAt
	r := Record{
		ID:        e.ID,
		DockSetID: e.DockSetID,
		DockNo:    e.DockNo,
		Status:    string(e.Status),
		CreatedAt: &created,
	}
	if e.AckedAt != nil {
		a := *e.AckedAt
		r.AckedAt = &a
	}
	return r
}

// FromRecord maps a row to an event. A missing created_at yields the zero time,
// which orders last.
func FromRecord(r Record) DockEvent {
	e := DockEvent{
		ID:        r.ID,
		DockSetID: r.DockSetID,
		DockNo:    r.DockNo,
		Status:    Status(r.Status),
	}
	if r.CreatedAt != nil {
		e.CreatedAt = *r.CreatedAt
	}
	if r.AckedAt != nil {
		a := *r.AckedAt
		e.AckedAt = &a
	}
	return e
}

// FromRecords maps rows to events, preserving order.
func FromRecords(rows []Record) []DockEvent {
	out := make([]DockEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromRecord(r))
	}
	return out
}
