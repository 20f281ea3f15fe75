package reconcile

import (
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/jobdone/core/model"
)

const (
	// DefaultMatchWindow bounds the distance between an optimistic entry's
	// local time and the canonical createdAt for a heuristic match.
	DefaultMatchWindow = 10 * time.Second
	// DefaultProcessedCap bounds each processed-id set.
	DefaultProcessedCap = 4096
	// AdminLimit is the view length of the admin page.
	AdminLimit = 20
)

// Options tunes a Reconciler. Zero values select the defaults.
type Options struct {
	// Limit truncates the view; 0 keeps every entry.
	Limit int
	// MatchWindow is the heuristic optimistic matching window.
	MatchWindow time.Duration
	// ProcessedCap bounds the creation and acknowledgement id sets.
	ProcessedCap int
	// OrphanAfter is the age at which unmatched optimistic entries are pruned.
	// Defaults to three match windows.
	OrphanAfter time.Duration
}

// Entry is one row of the view.
type Entry struct {
	model.DockEvent
	// Optimistic marks a local placeholder not yet confirmed by the broker.
	Optimistic bool `json:"optimistic,omitempty"`
	// ClientRequestID is the request key the entry was submitted with. It
	// survives confirmation.
	ClientRequestID string `json:"clientRequestId,omitempty"`
}

// Reconciler merges notifications into an ordered view. It is safe for
// concurrent use, although a session drives it from a single goroutine.
type Reconciler struct {
	mu      sync.Mutex
	opts    Options
	entries []Entry
	created *processedSet
	acked   *processedSet
}

// New returns an empty Reconciler.
func New(opts Options) *Reconciler {
	if opts.MatchWindow <= 0 {
		opts.MatchWindow = DefaultMatchWindow
	}
	if opts.ProcessedCap <= 0 {
		opts.ProcessedCap = DefaultProcessedCap
	}
	if opts.OrphanAfter <= 0 {
		opts.OrphanAfter = 3 * opts.MatchWindow
	}
	return &Reconciler{
		opts:    opts,
		created: newProcessedSet(opts.ProcessedCap),
		acked:   newProcessedSet(opts.ProcessedCap),
	}
}

func ackKey(eventID string) string { return "ack:" + eventID }

// AddOptimistic inserts a placeholder for a completion the user just issued
// and returns it.
func (r *Reconciler) AddOptimistic(dockSetID, dockNo int, clientRequestID string, now time.Time) Entry {
	e := Entry{
		DockEvent: model.DockEvent{
			ID:        model.TempID(dockSetID, dockNo, now),
			DockSetID: dockSetID,
			DockNo:    dockNo,
			Status:    model.StatusSent,
			CreatedAt: now,
		},
		Optimistic:      true,
		ClientRequestID: clientRequestID,
	}
	r.mu.Lock()
	r.insert(e)
	r.mu.Unlock()
	return e
}

// ApplyCreation merges a canonical event. It replaces the matching optimistic
// entry in place, or inserts the event by createdAt. It reports whether the
// view changed; redelivered events and events older than a full view are
// ignored. The request id stays on the entry so Lookup can find it.
func (r *Reconciler) ApplyCreation(ev model.DockEvent, clientRequestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.created.Add(ev.ID) {
		return false
	}
	if i := r.indexOf(ev.ID); i >= 0 {
		// Seen before the processed set forgot it; only let status advance.
		return r.advance(i, ev)
	}
	if i := r.matchOptimistic(ev, clientRequestID); i >= 0 {
		r.replace(i, ev, clientRequestID)
		return true
	}
	return r.insert(Entry{DockEvent: cloneEvent(ev), ClientRequestID: clientRequestID})
}

// ApplyAck marks the entry acked. Unknown events are dropped: the next sync
// delivers them already acked.
func (r *Reconciler) ApplyAck(eventID string, ackedAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ackKey(eventID)
	if r.acked.Has(key) {
		return false
	}
	i := r.indexOf(eventID)
	if i < 0 {
		return false
	}
	r.acked.Add(key)
	if r.entries[i].Acked() {
		return false
	}
	at := ackedAt
	r.entries[i].Status = model.StatusAcked
	r.entries[i].AckedAt = &at
	return true
}

// ApplySync merges a sync result. Known entries only advance their status,
// optimistic entries matched by a synced event are replaced, synced events
// not yet in the view are added, and the view is re-sorted.
func (r *Reconciler) ApplySync(events []model.DockEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var fresh []Entry
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		r.created.Add(ev.ID)
		if i := r.indexOf(ev.ID); i >= 0 {
			r.advance(i, ev)
			continue
		}
		if i := r.matchOptimistic(ev, ""); i >= 0 {
			r.replace(i, ev, "")
			continue
		}
		fresh = append(fresh, Entry{DockEvent: cloneEvent(ev)})
	}
	r.entries = append(r.entries, fresh...)
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].CreatedAt.After(r.entries[j].CreatedAt)
	})
	r.truncate()
}

// Discard deletes the optimistic entry submitted with clientRequestID, for
// requests the broker rejected or that never left the session.
func (r *Reconciler) Discard(clientRequestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if clientRequestID == "" {
		return false
	}
	for i, e := range r.entries {
		if e.Optimistic && e.ClientRequestID == clientRequestID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Prune drops optimistic entries older than OrphanAfter and returns how many
// were removed.
func (r *Reconciler) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	removed := 0
	for _, e := range r.entries {
		if e.Optimistic && now.Sub(e.CreatedAt) >= r.opts.OrphanAfter {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed
}

// Entries returns a copy of the view, most recent first.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(Entry) bool { return true })
}

// Pending returns entries awaiting acknowledgement.
func (r *Reconciler) Pending() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(e Entry) bool { return e.Status == model.StatusSent })
}

// Acked returns acknowledged entries.
func (r *Reconciler) Acked() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(e Entry) bool { return e.Status == model.StatusAcked })
}

// Lookup returns the confirmed entry created for clientRequestID.
func (r *Reconciler) Lookup(clientRequestID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if clientRequestID == "" {
		return Entry{}, false
	}
	for _, e := range r.entries {
		if !e.Optimistic && e.ClientRequestID == clientRequestID {
			e.DockEvent = cloneEvent(e.DockEvent)
			return e, true
		}
	}
	return Entry{}, false
}

// Len returns the number of entries in the view.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Reconciler) filter(keep func(Entry) bool) []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e) {
			e.DockEvent = cloneEvent(e.DockEvent)
			out = append(out, e)
		}
	}
	return out
}

// insert places e before the first entry that is not newer, so equal
// timestamps list the later arrival first. It reports whether e is still in
// the view after truncation.
func (r *Reconciler) insert(e Entry) bool {
	pos := sort.Search(len(r.entries), func(i int) bool {
		return !r.entries[i].CreatedAt.After(e.CreatedAt)
	})
	r.entries = append(r.entries, Entry{})
	copy(r.entries[pos+1:], r.entries[pos:])
	r.entries[pos] = e
	r.truncate()
	return pos < len(r.entries)
}

// replace swaps the placeholder at i for ev, keeping its request id when the
// confirmation carries none.
func (r *Reconciler) replace(i int, ev model.DockEvent, clientRequestID string) {
	if clientRequestID == "" {
		clientRequestID = r.entries[i].ClientRequestID
	}
	r.entries[i] = Entry{DockEvent: cloneEvent(ev), ClientRequestID: clientRequestID}
}

func (r *Reconciler) truncate() {
	if r.opts.Limit > 0 && len(r.entries) > r.opts.Limit {
		r.entries = r.entries[:r.opts.Limit]
	}
}

func (r *Reconciler) indexOf(id string) int {
	for i, e := range r.entries {
		if !e.Optimistic && e.ID == id {
			return i
		}
	}
	return -1
}

// matchOptimistic finds the placeholder ev confirms: an exact request id
// match when the broker echoed one, else the first entry for the same dock
// whose local time lies within the match window. A placeholder tagged with a
// different request id never matches an event that names its own.
func (r *Reconciler) matchOptimistic(ev model.DockEvent, clientRequestID string) int {
	if clientRequestID != "" {
		for i, e := range r.entries {
			if e.Optimistic && e.ClientRequestID == clientRequestID {
				return i
			}
		}
	}
	for i, e := range r.entries {
		if !e.Optimistic || e.DockSetID != ev.DockSetID || e.DockNo != ev.DockNo {
			continue
		}
		if clientRequestID != "" && e.ClientRequestID != "" {
			continue
		}
		if absDuration(e.CreatedAt.Sub(ev.CreatedAt)) < r.opts.MatchWindow {
			return i
		}
	}
	return -1
}

// advance applies ev to entry i when it moves the status forward.
func (r *Reconciler) advance(i int, ev model.DockEvent) bool {
	if r.entries[i].Acked() || !ev.Acked() {
		return false
	}
	r.entries[i].DockEvent = cloneEvent(ev)
	return true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func cloneEvent(ev model.DockEvent) model.DockEvent {
	if ev.AckedAt != nil {
		a := *ev.AckedAt
		ev.AckedAt = &a
	}
	return ev
}
