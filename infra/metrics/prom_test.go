package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/kilianp07/jobdone/core/metrics"
	"github.com/kilianp07/jobdone/core/model"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	ev := model.DockEvent{ID: "e1", DockSetID: 1, DockNo: 35}
	_ = sink.RecordEventCreated(coremetrics.EventCreated{Event: ev})
	_ = sink.RecordEventCreated(coremetrics.EventCreated{Event: ev})
	_ = sink.RecordEventAcked(coremetrics.EventAcked{Event: ev, Latency: 3 * time.Second})
	_ = sink.RecordRejected("submit_completion", "invalid_dock")
	_ = sink.RecordDropped(3)
	_ = sink.RecordSessions(2)

	if v := testutil.ToFloat64(sink.created.WithLabelValues("1")); v != 2 {
		t.Fatalf("created: expected 2 got %v", v)
	}
	if v := testutil.ToFloat64(sink.acked.WithLabelValues("1")); v != 1 {
		t.Fatalf("acked: expected 1 got %v", v)
	}
	if v := testutil.ToFloat64(sink.rejected.WithLabelValues("submit_completion", "invalid_dock")); v != 1 {
		t.Fatalf("rejected: expected 1 got %v", v)
	}
	if v := testutil.ToFloat64(sink.dropped); v != 3 {
		t.Fatalf("dropped: expected 3 got %v", v)
	}
	if v := testutil.ToFloat64(sink.sessions); v != 2 {
		t.Fatalf("sessions: expected 2 got %v", v)
	}
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	_ = second.RecordEventCreated(coremetrics.EventCreated{Event: model.DockEvent{DockSetID: 2}})
	if v := testutil.ToFloat64(first.created.WithLabelValues("2")); v != 1 {
		t.Fatalf("expected shared collector, got %v", v)
	}
}
