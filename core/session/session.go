// Package session is the client side of the broker: it keeps a reconciled
// view of dock events for one connected page and issues that page's
// requests over a Transport.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/jobdone/core/logger"
	"github.com/kilianp07/jobdone/core/model"
	"github.com/kilianp07/jobdone/core/protocol"
	"github.com/kilianp07/jobdone/core/reconcile"
)

// Role selects how a session behaves.
type Role string

const (
	// RoleAdmin submits completions and shows a short recent list.
	RoleAdmin Role = "admin"
	// RoleSignal acknowledges completions and shows the full list.
	RoleSignal Role = "signal"
)

// ErrUnknownRequest is returned by Await for request ids the session is not
// tracking.
var ErrUnknownRequest = errors.New("session: unknown request")

// RequestTTL is how long an answer is kept for Await.
const RequestTTL = 2 * time.Minute

// Default sync sizes per role.
const (
	AdminSyncLimit  = reconcile.AdminLimit
	SignalSyncLimit = 50
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleSignal }

// Handler receives transport lifecycle changes and inbound messages. Calls may
// arrive from several goroutines.
type Handler interface {
	OnConnect()
	OnDisconnect(err error)
	OnMessage(env protocol.Envelope)
}

// Transport carries envelopes between a session and the broker. Connect
// returns once the first connection attempt settles; the transport reports
// every later reconnect through the handler.
type Transport interface {
	Connect(ctx context.Context, h Handler) error
	Send(env protocol.Envelope) error
	Close() error
}

// Options configures a Session. Zero values select the role defaults.
type Options struct {
	View      *reconcile.Reconciler
	Logger    logger.Logger
	SyncLimit int
	Now       func() time.Time
	NewID     func() string
}

// Session owns one page's view.
type Session struct {
	role      Role
	transport Transport
	view      *reconcile.Reconciler
	log       logger.Logger
	syncLimit int
	now       func() time.Time
	newID     func() string

	mu        sync.Mutex
	connected bool
	lastErr   error
	listeners []func()
	requests  map[string]*request
}

// Outcome is the broker's answer to one request.
type Outcome struct {
	// Event is the confirmed event. For acknowledgements only ID, Status and
	// AckedAt are set.
	Event model.DockEvent
	Err   error
}

type request struct {
	kind    protocol.Type
	eventID string
	sentAt  time.Time
	done    chan Outcome
}

// New builds a session for role on top of t.
func New(role Role, t Transport, opts Options) (*Session, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown session role %q", role)
	}
	if t == nil {
		return nil, errors.New("session: transport is required")
	}
	s := &Session{
		role:      role,
		transport: t,
		view:      opts.View,
		log:       opts.Logger,
		syncLimit: opts.SyncLimit,
		now:       opts.Now,
		newID:     opts.NewID,
		requests:  map[string]*request{},
	}
	if s.view == nil {
		limit := 0
		if role == RoleAdmin {
			limit = reconcile.AdminLimit
		}
		s.view = reconcile.New(reconcile.Options{Limit: limit})
	}
	if s.log == nil {
		s.log = logger.Nop{}
	}
	if s.syncLimit <= 0 {
		s.syncLimit = SignalSyncLimit
		if role == RoleAdmin {
			s.syncLimit = AdminSyncLimit
		}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Start connects the transport.
func (s *Session) Start(ctx context.Context) error {
	return s.transport.Connect(ctx, s)
}

// Close tears the transport down.
func (s *Session) Close() error {
	return s.transport.Close()
}

// Role returns the session role.
func (s *Session) Role() Role { return s.role }

// Connected reports the transport status.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// LastError returns the most recent error reported by the broker or the
// transport.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// OnChange registers fn to run after every view or status change.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Entries returns the current view, most recent first.
func (s *Session) Entries() []reconcile.Entry { return s.view.Entries() }

// Pending returns entries awaiting acknowledgement.
func (s *Session) Pending() []reconcile.Entry { return s.view.Pending() }

// Acked returns acknowledged entries.
func (s *Session) Acked() []reconcile.Entry { return s.view.Acked() }

// SubmitCompletion asks the broker to record a completion and returns the
// request key. Admin sessions show an optimistic entry until the broker
// confirms it.
func (s *Session) SubmitCompletion(dockSetID, dockNo int) (string, error) {
	if !s.Connected() {
		return "", model.ErrTransportUnavailable
	}
	reqID := s.newID()
	s.track(reqID, protocol.TypeSubmitCompletion, "")
	if s.role == RoleAdmin {
		s.view.AddOptimistic(dockSetID, dockNo, reqID, s.now())
		s.notify()
	}
	env, err := protocol.Encode(protocol.TypeSubmitCompletion, protocol.SubmitCompletion{
		DockSetID: dockSetID, DockNo: dockNo, ClientRequestID: reqID,
	})
	if err == nil {
		err = s.transport.Send(env)
	}
	if err != nil {
		s.untrack(reqID)
		if s.view.Discard(reqID) {
			s.notify()
		}
		return "", fmt.Errorf("submit completion: %w", err)
	}
	return reqID, nil
}

// Acknowledge asks the broker to acknowledge eventID and returns the request
// key.
func (s *Session) Acknowledge(eventID string) (string, error) {
	if !s.Connected() {
		return "", model.ErrTransportUnavailable
	}
	if model.IsTempID(eventID) {
		return "", fmt.Errorf("%w: event %s is not confirmed yet", model.ErrNotFound, eventID)
	}
	reqID := s.newID()
	env, err := protocol.Encode(protocol.TypeAckEvent, protocol.AckEvent{EventID: eventID, ClientRequestID: reqID})
	if err != nil {
		return "", err
	}
	s.track(reqID, protocol.TypeAckEvent, eventID)
	if err := s.transport.Send(env); err != nil {
		s.untrack(reqID)
		return "", fmt.Errorf("acknowledge %s: %w", eventID, err)
	}
	return reqID, nil
}

// Await blocks until the broker answers the request reqID: the canonical
// event for a submission, the acknowledgement for an ack, or the broker's
// error. The answer is consumed by the first successful Await; unanswered or
// unclaimed requests are forgotten after RequestTTL.
func (s *Session) Await(ctx context.Context, reqID string) (model.DockEvent, error) {
	s.mu.Lock()
	req, ok := s.requests[reqID]
	s.mu.Unlock()
	if !ok {
		return model.DockEvent{}, fmt.Errorf("%w: %s", ErrUnknownRequest, reqID)
	}
	select {
	case out := <-req.done:
		s.untrack(reqID)
		return out.Event, out.Err
	case <-ctx.Done():
		return model.DockEvent{}, ctx.Err()
	}
}

func (s *Session) track(reqID string, kind protocol.Type, eventID string) {
	s.mu.Lock()
	s.requests[reqID] = &request{kind: kind, eventID: eventID, sentAt: s.now(), done: make(chan Outcome, 1)}
	s.mu.Unlock()
}

func (s *Session) untrack(reqID string) {
	s.mu.Lock()
	delete(s.requests, reqID)
	s.mu.Unlock()
}

// resolve records the first answer to reqID when it is a request of kind.
func (s *Session) resolve(reqID string, kind protocol.Type, out Outcome) {
	if reqID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[reqID]
	if !ok || (kind != "" && req.kind != kind) {
		return
	}
	select {
	case req.done <- out:
	default:
	}
}

// resolveFromView answers requests whose result reached the view without a
// direct reply, such as through a sync after a dropped notification.
func (s *Session) resolveFromView() {
	s.mu.Lock()
	open := make(map[string]request, len(s.requests))
	for id, req := range s.requests {
		if len(req.done) == 0 {
			open[id] = *req
		}
	}
	s.mu.Unlock()
	for id, req := range open {
		switch req.kind {
		case protocol.TypeSubmitCompletion:
			if e, ok := s.view.Lookup(id); ok {
				s.resolve(id, req.kind, Outcome{Event: e.DockEvent})
			}
		case protocol.TypeAckEvent:
			for _, e := range s.view.Acked() {
				if e.ID == req.eventID {
					s.resolve(id, req.kind, Outcome{Event: e.DockEvent})
					break
				}
			}
		}
	}
}

// expire drops answers nobody awaited.
func (s *Session) expire(now time.Time) {
	s.mu.Lock()
	for id, req := range s.requests {
		if now.Sub(req.sentAt) >= RequestTTL {
			delete(s.requests, id)
		}
	}
	s.mu.Unlock()
}

// Sync requests the most recent events.
func (s *Session) Sync() error {
	if !s.Connected() {
		return model.ErrTransportUnavailable
	}
	return s.requestSync()
}

func (s *Session) requestSync() error {
	env, err := protocol.Encode(protocol.TypeSync, protocol.Sync{Limit: s.syncLimit})
	if err != nil {
		return err
	}
	if err := s.transport.Send(env); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// OnConnect marks the session connected and resynchronises the view.
func (s *Session) OnConnect() {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.log.Infof("%s session connected", s.role)
	s.notify()
	if err := s.requestSync(); err != nil {
		s.fail(err)
	}
}

// OnDisconnect marks the session disconnected.
func (s *Session) OnDisconnect(err error) {
	s.mu.Lock()
	s.connected = false
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()
	if err != nil {
		s.log.Warnf("%s session disconnected: %v", s.role, err)
	} else {
		s.log.Infof("%s session disconnected", s.role)
	}
	s.notify()
}

// OnMessage applies a broker message to the view.
func (s *Session) OnMessage(env protocol.Envelope) {
	changed, err := s.apply(env)
	if err != nil {
		s.fail(err)
		return
	}
	now := s.now()
	if s.view.Prune(now) > 0 {
		changed = true
	}
	s.expire(now)
	if changed {
		s.notify()
	}
}

func (s *Session) apply(env protocol.Envelope) (bool, error) {
	switch env.Type {
	case protocol.TypeEventCreated:
		var msg protocol.EventCreated
		if err := env.Decode(&msg); err != nil {
			return false, err
		}
		changed := s.view.ApplyCreation(msg.Event, msg.ClientRequestID)
		s.resolve(msg.ClientRequestID, protocol.TypeSubmitCompletion, Outcome{Event: msg.Event})
		return changed, nil
	case protocol.TypeEventAcked:
		var msg protocol.EventAcked
		if err := env.Decode(&msg); err != nil {
			return false, err
		}
		at := msg.AckedAt
		s.resolve(msg.ClientRequestID, protocol.TypeAckEvent, Outcome{Event: model.DockEvent{
			ID: msg.EventID, Status: model.StatusAcked, AckedAt: &at,
		}})
		return s.view.ApplyAck(msg.EventID, msg.AckedAt), nil
	case protocol.TypeSyncResult:
		var msg protocol.SyncResult
		if err := env.Decode(&msg); err != nil {
			return false, err
		}
		s.view.ApplySync(msg.Events)
		s.resolveFromView()
		return true, nil
	case protocol.TypeError:
		var msg protocol.Error
		if err := env.Decode(&msg); err != nil {
			return false, err
		}
		s.view.Discard(msg.ClientRequestID)
		berr := &BrokerError{Message: msg.Message, ClientRequestID: msg.ClientRequestID}
		s.resolve(msg.ClientRequestID, "", Outcome{Err: berr})
		return false, berr
	default:
		s.log.Debugf("ignoring message type %q", env.Type)
		return false, nil
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.log.Warnf("%s session: %v", s.role, err)
	s.notify()
}

func (s *Session) notify() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// BrokerError is an error message sent back by the broker.
type BrokerError struct {
	Message         string
	ClientRequestID string
}

func (e *BrokerError) Error() string { return "broker: " + e.Message }
