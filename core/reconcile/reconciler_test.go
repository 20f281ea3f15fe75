package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobdone/core/model"
)

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

func sent(id string, set, dock int, created time.Time) model.DockEvent {
	return model.DockEvent{ID: id, DockSetID: set, DockNo: dock, Status: model.StatusSent, CreatedAt: created}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestApplyCreationIsIdempotent(t *testing.T) {
	r := New(Options{})
	ev := sent("e1", 1, 35, at(0))

	assert.True(t, r.ApplyCreation(ev, ""))
	first := r.Entries()
	assert.False(t, r.ApplyCreation(ev, ""))
	assert.Equal(t, first, r.Entries())
	assert.Len(t, first, 1)
}

func TestApplyAckIsIdempotent(t *testing.T) {
	r := New(Options{})
	r.ApplyCreation(sent("e1", 1, 35, at(0)), "")

	assert.True(t, r.ApplyAck("e1", at(5)))
	first := r.Entries()
	assert.False(t, r.ApplyAck("e1", at(9)))
	assert.Equal(t, first, r.Entries())
	require.NotNil(t, first[0].AckedAt)
	assert.Equal(t, at(5), *first[0].AckedAt)
	assert.Equal(t, model.StatusAcked, first[0].Status)
}

func TestApplyAckUnknownEventIsDropped(t *testing.T) {
	r := New(Options{})
	assert.False(t, r.ApplyAck("ghost", at(1)))
	assert.Zero(t, r.Len())

	// The event later arrives via sync already acked.
	ev := sent("ghost", 1, 35, at(0))
	acked := at(1)
	ev.Status, ev.AckedAt = model.StatusAcked, &acked
	r.ApplySync([]model.DockEvent{ev})
	require.Len(t, r.Acked(), 1)
}

func TestOptimisticEntryReplacedWithinWindow(t *testing.T) {
	r := New(Options{Limit: AdminLimit})
	opt := r.AddOptimistic(1, 32, "", at(0))
	assert.True(t, model.IsTempID(opt.ID))

	assert.True(t, r.ApplyCreation(sent("e1", 1, 32, at(2)), ""))

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "e1", entries[0].ID)
	assert.False(t, entries[0].Optimistic)
}

func TestOptimisticEntryOutsideWindowNotMatched(t *testing.T) {
	r := New(Options{})
	r.AddOptimistic(1, 32, "", at(0))

	r.ApplyCreation(sent("e1", 1, 32, at(10)), "")

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].ID)
	assert.True(t, entries[1].Optimistic)
}

func TestOptimisticHeuristicRequiresSameDock(t *testing.T) {
	r := New(Options{})
	r.AddOptimistic(1, 32, "", at(0))

	r.ApplyCreation(sent("e1", 1, 33, at(1)), "")
	r.ApplyCreation(sent("e2", 2, 32, at(1)), "")

	assert.Len(t, r.Entries(), 3)
	assert.Len(t, r.Pending(), 3)
}

func TestOptimisticMatchedByClientRequestID(t *testing.T) {
	r := New(Options{})
	first := r.AddOptimistic(1, 32, "req-a", at(0))
	second := r.AddOptimistic(1, 32, "req-b", at(1))

	// The heuristic alone would pick the most recent placeholder.
	r.ApplyCreation(sent("e1", 1, 32, at(1)), "req-a")

	got := ids(r.Entries())
	assert.Equal(t, []string{second.ID, "e1"}, got)
	assert.NotContains(t, got, first.ID)
}

func TestReplacementKeepsPosition(t *testing.T) {
	r := New(Options{})
	r.AddOptimistic(1, 32, "", at(0))
	r.ApplyCreation(sent("other", 2, 22, at(1)), "")

	r.ApplyCreation(sent("e1", 1, 32, at(3)), "")

	assert.Equal(t, []string{"other", "e1"}, ids(r.Entries()))
}

func TestNotificationsOrderedByCreatedAt(t *testing.T) {
	r := New(Options{})
	r.ApplyCreation(sent("a", 1, 32, at(1)), "")
	r.ApplyCreation(sent("b", 1, 33, at(5)), "")
	r.ApplyCreation(sent("c", 1, 34, at(3)), "")

	assert.Equal(t, []string{"b", "c", "a"}, ids(r.Entries()))
}

func TestEqualTimestampsListLaterArrivalFirst(t *testing.T) {
	r := New(Options{})
	r.ApplyCreation(sent("a", 1, 32, at(1)), "")
	r.ApplyCreation(sent("b", 1, 33, at(1)), "")

	assert.Equal(t, []string{"b", "a"}, ids(r.Entries()))
}

func TestLimitTruncatesOldest(t *testing.T) {
	r := New(Options{Limit: AdminLimit})
	for i := 0; i < 25; i++ {
		r.ApplyCreation(sent(fmt.Sprintf("e%02d", i), 1, 32, at(i)), "")
	}

	entries := r.Entries()
	require.Len(t, entries, AdminLimit)
	assert.Equal(t, "e24", entries[0].ID)
	assert.Equal(t, "e05", entries[AdminLimit-1].ID)
}

func TestUnboundedViewKeepsEverything(t *testing.T) {
	r := New(Options{})
	for i := 0; i < 100; i++ {
		r.ApplyCreation(sent(fmt.Sprintf("e%03d", i), 2, 22, at(i)), "")
	}
	assert.Equal(t, 100, r.Len())
}

func TestApplySyncMergesMonotonically(t *testing.T) {
	r := New(Options{})
	r.ApplyCreation(sent("e1", 1, 35, at(0)), "")
	r.ApplyAck("e1", at(4))

	// A stale snapshot still lists e1 as sent.
	r.ApplySync([]model.DockEvent{sent("e1", 1, 35, at(0)), sent("e2", 1, 36, at(2))})

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "e2", entries[0].ID)
	assert.Equal(t, model.StatusAcked, entries[1].Status)
}

func TestApplySyncAdvancesStatus(t *testing.T) {
	r := New(Options{})
	r.ApplyCreation(sent("e1", 1, 35, at(0)), "")

	ev := sent("e1", 1, 35, at(0))
	acked := at(3)
	ev.Status, ev.AckedAt = model.StatusAcked, &acked
	r.ApplySync([]model.DockEvent{ev})

	require.Len(t, r.Acked(), 1)
	assert.Empty(t, r.Pending())
}

func TestApplySyncReplacesOptimistic(t *testing.T) {
	r := New(Options{})
	r.AddOptimistic(2, 25, "req", at(0))

	r.ApplySync([]model.DockEvent{sent("e1", 2, 25, at(1))})

	assert.Equal(t, []string{"e1"}, ids(r.Entries()))
	// The notification for the same event arriving afterwards is a no-op.
	assert.False(t, r.ApplyCreation(sent("e1", 2, 25, at(1)), "req"))
	assert.Equal(t, 1, r.Len())
}

func TestApplySyncKeepsEntriesMissingFromResult(t *testing.T) {
	r := New(Options{})
	r.ApplyCreation(sent("old", 1, 32, at(0)), "")

	r.ApplySync([]model.DockEvent{sent("new", 1, 33, at(10))})

	assert.Equal(t, []string{"new", "old"}, ids(r.Entries()))
}

func TestApplySyncRespectsLimit(t *testing.T) {
	r := New(Options{Limit: 3})
	var events []model.DockEvent
	for i := 5; i >= 0; i-- {
		events = append(events, sent(fmt.Sprintf("e%d", i), 1, 32, at(i)))
	}
	r.ApplySync(events)

	assert.Equal(t, []string{"e5", "e4", "e3"}, ids(r.Entries()))
}

func TestPruneDropsOrphanedOptimisticEntries(t *testing.T) {
	r := New(Options{})
	r.AddOptimistic(1, 32, "", at(0))
	r.AddOptimistic(1, 33, "", at(25))
	r.ApplyCreation(sent("e1", 1, 40, at(1)), "")

	removed := r.Prune(at(30))

	assert.Equal(t, 1, removed)
	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 33, entries[0].DockNo)
	assert.Equal(t, "e1", entries[1].ID)
}

func TestEntriesReturnsCopies(t *testing.T) {
	r := New(Options{})
	r.ApplyCreation(sent("e1", 1, 35, at(0)), "")
	r.ApplyAck("e1", at(1))

	entries := r.Entries()
	*entries[0].AckedAt = at(99)
	entries[0].DockNo = 0

	again := r.Entries()
	assert.Equal(t, at(1), *again[0].AckedAt)
	assert.Equal(t, 35, again[0].DockNo)
}

func TestRedeliveryAfterProcessedEvictionDoesNotDuplicate(t *testing.T) {
	r := New(Options{ProcessedCap: 2})
	r.ApplyCreation(sent("e1", 1, 32, at(0)), "")
	r.ApplyCreation(sent("e2", 1, 33, at(1)), "")
	r.ApplyCreation(sent("e3", 1, 34, at(2)), "")

	r.ApplyCreation(sent("e1", 1, 32, at(0)), "")

	assert.Equal(t, 3, r.Len())
}

func TestProcessedSetEvictsOldest(t *testing.T) {
	s := newProcessedSet(2)
	assert.True(t, s.Add("a"))
	assert.True(t, s.Add("b"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Add("c"))

	assert.False(t, s.Has("a"))
	assert.True(t, s.Has("b"))
	assert.True(t, s.Has("c"))
	assert.Equal(t, 2, s.Len())
}

func TestDiscardRemovesOptimisticEntryByRequest(t *testing.T) {
	r := New(Options{})
	r.AddOptimistic(1, 32, "req", at(0))
	r.ApplyCreation(sent("e1", 2, 22, at(1)), "")

	assert.False(t, r.Discard(""))
	assert.False(t, r.Discard("other"))
	assert.True(t, r.Discard("req"))
	assert.Equal(t, []string{"e1"}, ids(r.Entries()))
}

func TestForeignRequestDoesNotConsumePlaceholder(t *testing.T) {
	r := New(Options{})
	mine := r.AddOptimistic(1, 35, "req-a", at(0))

	// Another admin marks the same dock a second later.
	assert.True(t, r.ApplyCreation(sent("e-b", 1, 35, at(1)), "req-b"))

	assert.Equal(t, []string{"e-b", mine.ID}, ids(r.Entries()))
	assert.True(t, r.Discard("req-a"))
	assert.Equal(t, []string{"e-b"}, ids(r.Entries()))
}

func TestConfirmationKeepsRequestID(t *testing.T) {
	r := New(Options{})
	r.AddOptimistic(1, 35, "req-1", at(0))
	r.ApplySync([]model.DockEvent{sent("e-old", 1, 35, at(-3600))})

	_, ok := r.Lookup("req-1")
	assert.False(t, ok, "old event must not confirm a fresh request")

	r.ApplyCreation(sent("e-new", 1, 35, at(1)), "req-1")
	e, ok := r.Lookup("req-1")
	require.True(t, ok)
	assert.Equal(t, "e-new", e.ID)
	assert.False(t, e.Optimistic)
	assert.Equal(t, []string{"e-new", "e-old"}, ids(r.Entries()))
}

func TestSyncReplacementKeepsPlaceholderRequestID(t *testing.T) {
	r := New(Options{})
	r.AddOptimistic(2, 25, "req", at(0))
	r.ApplySync([]model.DockEvent{sent("e1", 2, 25, at(1))})

	e, ok := r.Lookup("req")
	require.True(t, ok)
	assert.Equal(t, "e1", e.ID)
	_, ok = r.Lookup("")
	assert.False(t, ok)
}

func TestApplySyncSkipsRepeatedIDs(t *testing.T) {
	r := New(Options{})
	ev := sent("e1", 1, 35, at(0))

	r.ApplySync([]model.DockEvent{ev, ev})

	assert.Equal(t, 1, r.Len())
}

func TestApplyCreationBeyondLimitReportsNoChange(t *testing.T) {
	r := New(Options{Limit: 2})
	r.ApplyCreation(sent("e1", 1, 32, at(10)), "")
	r.ApplyCreation(sent("e2", 1, 33, at(20)), "")

	assert.False(t, r.ApplyCreation(sent("e0", 1, 34, at(0)), ""))
	assert.Equal(t, []string{"e2", "e1"}, ids(r.Entries()))
	assert.True(t, r.ApplyCreation(sent("e3", 1, 34, at(30)), ""))
}
