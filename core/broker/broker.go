package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/jobdone/core/idempotency"
	"github.com/kilianp07/jobdone/core/logger"
	"github.com/kilianp07/jobdone/core/metrics"
	"github.com/kilianp07/jobdone/core/model"
	"github.com/kilianp07/jobdone/core/protocol"
	"github.com/kilianp07/jobdone/core/store"
	"github.com/kilianp07/jobdone/internal/eventbus"
)

// ErrClosed is returned for operations submitted while the writer is not running.
var ErrClosed = errors.New("broker closed")

// DefaultSyncLimit is used when a sync request carries no positive limit.
const DefaultSyncLimit = 50

// Options configures a Broker. Catalog and Store are required.
type Options struct {
	Catalog     *model.Catalog
	Store       store.EventStore
	Idempotency idempotency.Cache
	Metrics     metrics.Sink
	Logger      logger.Logger
	// Now returns the current time; defaults to time.Now in UTC.
	Now func() time.Time
	// NewID mints event ids; defaults to random UUIDs.
	NewID func() string
	// SyncLimit is the default number of events returned by a sync.
	SyncLimit int
	// SessionBuffer is the per-session notification queue length.
	SessionBuffer int
}

type op struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	done chan struct{}
}

// Broker serialises event mutations and fans out notifications.
type Broker struct {
	catalog   *model.Catalog
	store     store.EventStore
	idem      idempotency.Cache
	metrics   metrics.Sink
	log       logger.Logger
	now       func() time.Time
	newID     func() string
	syncLimit int

	bus     *eventbus.TypedBus[protocol.Envelope]
	ops     chan op
	started atomic.Bool
	stopped chan struct{}

	mu    sync.Mutex
	peers map[string]*attachment
	wg    sync.WaitGroup
}

// New validates the options and returns a Broker. Call Run to start the writer.
func New(opts Options) (*Broker, error) {
	if opts.Catalog == nil || opts.Store == nil {
		return nil, fmt.Errorf("broker: catalog and store are required")
	}
	b := &Broker{
		catalog:   opts.Catalog,
		store:     opts.Store,
		idem:      opts.Idempotency,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
		syncLimit: opts.SyncLimit,
		bus:       eventbus.NewTyped[protocol.Envelope](opts.SessionBuffer),
		ops:       make(chan op),
		stopped:   make(chan struct{}),
		peers:     map[string]*attachment{},
	}
	if b.idem == nil {
		b.idem = idempotency.NewMemoryCache(idempotency.DefaultTTL, nil)
	}
	if b.metrics == nil {
		b.metrics = metrics.NopSink{}
	}
	if b.log == nil {
		b.log = logger.Nop{}
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	if b.newID == nil {
		b.newID = uuid.NewString
	}
	if b.syncLimit <= 0 {
		b.syncLimit = DefaultSyncLimit
	}
	return b, nil
}

// Run executes mutations until ctx is cancelled. It may be called once.
func (b *Broker) Run(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("broker: already running")
	}
	defer close(b.stopped)
	b.log.Infof("broker writer started")
	for {
		select {
		case o := <-b.ops:
			o.fn(o.ctx)
			close(o.done)
		case <-ctx.Done():
			b.log.Infof("broker writer stopped")
			return nil
		}
	}
}

// exec hands fn to the writer and waits for it to finish. Once the writer has
// accepted fn it always runs to completion.
func (b *Broker) exec(ctx context.Context, fn func(ctx context.Context)) error {
	o := op{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case b.ops <- o:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stopped:
		return ErrClosed
	}
	<-o.done
	return nil
}

// SubmitCompletion validates, mints and persists a new sent event and
// broadcasts it. A clientRequestID seen within the idempotency TTL returns the
// event minted for it the first time, without a second broadcast.
func (b *Broker) SubmitCompletion(ctx context.Context, dockSetID, dockNo int, clientRequestID string) (model.DockEvent, error) {
	ev, _, err := b.submit(ctx, dockSetID, dockNo, clientRequestID)
	return ev, err
}

func (b *Broker) submit(ctx context.Context, dockSetID, dockNo int, reqID string) (ev model.DockEvent, duplicate bool, err error) {
	if xerr := b.exec(ctx, func(ctx context.Context) {
		ev, duplicate, err = b.doSubmit(ctx, dockSetID, dockNo, reqID)
	}); xerr != nil {
		return model.DockEvent{}, false, xerr
	}
	return ev, duplicate, err
}

func (b *Broker) doSubmit(ctx context.Context, dockSetID, dockNo int, reqID string) (model.DockEvent, bool, error) {
	if err := b.catalog.Validate(dockSetID, dockNo); err != nil {
		b.recordRejected(protocol.TypeSubmitCompletion, "invalid_dock")
		return model.DockEvent{}, false, err
	}
	if reqID != "" {
		if id, ok, err := b.idem.Lookup(ctx, reqID); err != nil {
			b.log.Warnf("idempotency lookup %s: %v", reqID, err)
		} else if ok {
			ev, gerr := b.store.Get(ctx, id)
			if gerr == nil {
				if r, ok := b.metrics.(metrics.DuplicateRecorder); ok {
					_ = r.RecordDuplicate()
				}
				b.log.Debugw("duplicate submission", map[string]any{"client_request_id": reqID, "event_id": id})
				return ev, true, nil
			}
			b.log.Warnf("idempotency entry %s points to missing event %s: %v", reqID, id, gerr)
		}
	}

	ev := model.DockEvent{
		ID:        b.newID(),
		DockSetID: dockSetID,
		DockNo:    dockNo,
		Status:    model.StatusSent,
		CreatedAt: b.now(),
	}
	if err := b.store.Insert(ctx, ev); err != nil {
		return model.DockEvent{}, false, fmt.Errorf("persist event: %w", err)
	}
	if reqID != "" {
		if err := b.idem.Remember(ctx, reqID, ev.ID); err != nil {
			b.log.Warnf("idempotency remember %s: %v", reqID, err)
		}
	}
	if err := b.metrics.RecordEventCreated(metrics.EventCreated{Event: ev, Time: ev.CreatedAt}); err != nil {
		b.log.Errorf("metrics error: %v", err)
	}
	b.log.Infow("event created", map[string]any{"event_id": ev.ID, "dock_set_id": dockSetID, "dock_no": dockNo})
	b.broadcast(protocol.MustEncode(protocol.TypeEventCreated, protocol.EventCreated{Event: ev, ClientRequestID: reqID}))
	return ev, false, nil
}

// Acknowledge moves a sent event to acked and broadcasts the change. An event
// that is already acked yields AlreadyAcked with the original timestamp and no
// broadcast; Handle answers such a request to the requester alone.
func (b *Broker) Acknowledge(ctx context.Context, eventID, clientRequestID string) (model.AckResult, error) {
	var (
		res model.AckResult
		err error
	)
	if xerr := b.exec(ctx, func(ctx context.Context) {
		res, err = b.doAck(ctx, eventID, clientRequestID)
	}); xerr != nil {
		return model.AckResult{}, xerr
	}
	return res, err
}

func (b *Broker) doAck(ctx context.Context, eventID, reqID string) (model.AckResult, error) {
	ev, err := b.store.Ack(ctx, eventID, b.now())
	switch {
	case errors.Is(err, model.ErrNotFound):
		b.recordRejected(protocol.TypeAckEvent, "not_found")
		return model.AckResult{}, err
	case errors.Is(err, model.ErrInvalidTransition):
		res := model.AckResult{EventID: eventID, AlreadyAcked: true}
		if ev.AckedAt != nil {
			res.AckedAt = *ev.AckedAt
		}
		b.log.Debugw("event already acked", map[string]any{"event_id": eventID, "client_request_id": reqID})
		return res, nil
	case err != nil:
		return model.AckResult{}, fmt.Errorf("persist ack: %w", err)
	}
	ackedAt := *ev.AckedAt
	if err := b.metrics.RecordEventAcked(metrics.EventAcked{Event: ev, Latency: ackedAt.Sub(ev.CreatedAt), Time: ackedAt}); err != nil {
		b.log.Errorf("metrics error: %v", err)
	}
	b.log.Infow("event acked", map[string]any{"event_id": ev.ID, "dock_no": ev.DockNo, "client_request_id": reqID})
	b.broadcast(protocol.MustEncode(protocol.TypeEventAcked, protocol.EventAcked{
		EventID: ev.ID, Status: model.StatusAcked, AckedAt: ackedAt, ClientRequestID: reqID,
	}))
	return model.AckResult{EventID: ev.ID, AckedAt: ackedAt}, nil
}

// SyncRecent returns the most recent events, newest first. Non-positive limits
// use the configured default.
func (b *Broker) SyncRecent(ctx context.Context, limit int) ([]model.DockEvent, error) {
	var (
		events []model.DockEvent
		err    error
	)
	limit = store.ClampLimit(limit, b.syncLimit)
	if xerr := b.exec(ctx, func(ctx context.Context) {
		events, err = b.store.Recent(ctx, limit)
	}); xerr != nil {
		return nil, xerr
	}
	if events == nil {
		events = []model.DockEvent{}
	}
	return events, err
}

// Catalog exposes the dock reference data.
func (b *Broker) Catalog() *model.Catalog { return b.catalog }

func (b *Broker) broadcast(env protocol.Envelope) {
	if dropped := b.bus.Publish(env); dropped > 0 {
		b.log.Warnf("%s not delivered to %d session(s)", env.Type, dropped)
		if r, ok := b.metrics.(metrics.DeliveryRecorder); ok {
			_ = r.RecordDropped(dropped)
		}
	}
}

func (b *Broker) recordRejected(op protocol.Type, reason string) {
	if r, ok := b.metrics.(metrics.RejectionRecorder); ok {
		_ = r.RecordRejected(string(op), reason)
	}
}
