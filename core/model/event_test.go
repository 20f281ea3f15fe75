package model

import (
	"errors"
	"testing"
	"time"
)

func TestMarkAckedOnce(t *testing.T) {
	ev := DockEvent{ID: "e1", Status: StatusSent, CreatedAt: time.Now()}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := ev.MarkAcked(at); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if ev.Status != StatusAcked || ev.AckedAt == nil || !ev.AckedAt.Equal(at) {
		t.Fatalf("unexpected event %+v", ev)
	}
	if err := ev.MarkAcked(at.Add(time.Minute)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition got %v", err)
	}
	if !ev.AckedAt.Equal(at) {
		t.Fatalf("ackedAt changed on second transition")
	}
}

func TestDockEventValidate(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		ev   DockEvent
		ok   bool
	}{
		{"sent", DockEvent{ID: "a", Status: StatusSent}, true},
		{"acked", DockEvent{ID: "b", Status: StatusAcked, AckedAt: &now}, true},
		{"sent with ackedAt", DockEvent{ID: "c", Status: StatusSent, AckedAt: &now}, false},
		{"acked without ackedAt", DockEvent{ID: "d", Status: StatusAcked}, false},
		{"unknown status", DockEvent{ID: "e", Status: "lost"}, false},
	}
	for _, tc := range cases {
		err := tc.ev.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("%s: unexpected result %v", tc.name, err)
		}
	}
}

func TestTempID(t *testing.T) {
	local := time.UnixMilli(1714557600123)
	id := TempID(1, 32, local)
	if id != "temp-1-32-1714557600123" {
		t.Fatalf("unexpected temp id %s", id)
	}
	if !IsTempID(id) || IsTempID("e1") {
		t.Fatalf("temp id detection wrong")
	}
}

func TestRecordMapping(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 1, 0, time.UTC)
	acked := created.Add(5 * time.Second)
	ev := DockEvent{ID: "e1", DockSetID: 1, DockNo: 35, Status: StatusAcked, CreatedAt: created, AckedAt: &acked}
	back := FromRecord(ToRecord(ev))
	if back.ID != ev.ID || back.DockNo != 35 || back.Status != StatusAcked || !back.AckedAt.Equal(acked) || !back.CreatedAt.Equal(created) {
		t.Fatalf("mapping lost data: %+v", back)
	}
	if FromRecord(Record{ID: "x", Status: "sent"}).CreatedAt.IsZero() == false {
		t.Fatalf("missing created_at should map to zero time")
	}
}
