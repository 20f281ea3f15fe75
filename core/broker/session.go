package broker

import (
	"context"
	"fmt"

	"github.com/kilianp07/jobdone/core/metrics"
	"github.com/kilianp07/jobdone/core/model"
	"github.com/kilianp07/jobdone/core/protocol"
)

// Peer is the broker side of a connected session. Send must be safe for
// concurrent use: broadcasts and direct replies arrive from different
// goroutines.
type Peer interface {
	ID() string
	Send(env protocol.Envelope) error
}

type attachment struct {
	peer Peer
	sub  <-chan protocol.Envelope
	done chan struct{}
}

// Attach subscribes the peer to broadcasts and returns a detach function.
// Attaching an id that is already attached replaces the previous peer.
// Detach must not be called from within Peer.Send.
func (b *Broker) Attach(p Peer) (detach func()) {
	a := &attachment{peer: p, sub: b.bus.Subscribe(), done: make(chan struct{})}
	b.mu.Lock()
	prev := b.peers[p.ID()]
	b.peers[p.ID()] = a
	b.wg.Add(1)
	b.mu.Unlock()
	if prev != nil {
		b.release(prev)
	}
	go b.pump(a)
	b.recordSessions()
	b.log.Infof("session %s attached", p.ID())
	return func() { b.detach(a) }
}

func (b *Broker) pump(a *attachment) {
	defer b.wg.Done()
	defer close(a.done)
	for env := range a.sub {
		if err := a.peer.Send(env); err != nil {
			b.log.Warnf("deliver %s to session %s: %v", env.Type, a.peer.ID(), err)
		}
	}
}

func (b *Broker) detach(a *attachment) {
	b.mu.Lock()
	if cur, ok := b.peers[a.peer.ID()]; ok && cur == a {
		delete(b.peers, a.peer.ID())
	}
	b.mu.Unlock()
	b.release(a)
	b.recordSessions()
	b.log.Infof("session %s detached", a.peer.ID())
}

func (b *Broker) release(a *attachment) {
	b.bus.Unsubscribe(a.sub)
	<-a.done
}

// Sessions returns the number of attached sessions.
func (b *Broker) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}

func (b *Broker) recordSessions() {
	if r, ok := b.metrics.(metrics.SessionRecorder); ok {
		_ = r.RecordSessions(b.Sessions())
	}
}

// Close stops delivery to every session and waits for the delivery
// goroutines to exit.
func (b *Broker) Close() error {
	b.bus.Close()
	b.wg.Wait()
	b.mu.Lock()
	b.peers = map[string]*attachment{}
	b.mu.Unlock()
	return nil
}

// Handle runs the operation carried by a client message. Results addressed to
// the requester, and every failure, are sent to p only.
func (b *Broker) Handle(ctx context.Context, p Peer, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeSubmitCompletion:
		var req protocol.SubmitCompletion
		if err := env.Decode(&req); err != nil {
			b.replyError(p, err, "")
			return
		}
		ev, dup, err := b.submit(ctx, req.DockSetID, req.DockNo, req.ClientRequestID)
		if err != nil {
			b.replyError(p, err, req.ClientRequestID)
			return
		}
		if dup {
			b.reply(p, protocol.MustEncode(protocol.TypeEventCreated, protocol.EventCreated{Event: ev, ClientRequestID: req.ClientRequestID}))
		}
	case protocol.TypeAckEvent:
		var req protocol.AckEvent
		if err := env.Decode(&req); err != nil {
			b.replyError(p, err, "")
			return
		}
		res, err := b.Acknowledge(ctx, req.EventID, req.ClientRequestID)
		if err != nil {
			b.replyError(p, err, req.ClientRequestID)
			return
		}
		if res.AlreadyAcked {
			b.reply(p, protocol.MustEncode(protocol.TypeEventAcked, protocol.EventAcked{
				EventID: res.EventID, Status: model.StatusAcked, AckedAt: res.AckedAt, ClientRequestID: req.ClientRequestID,
			}))
		}
	case protocol.TypeSync:
		var req protocol.Sync
		if err := env.Decode(&req); err != nil {
			b.replyError(p, err, "")
			return
		}
		events, err := b.SyncRecent(ctx, req.Limit)
		if err != nil {
			b.replyError(p, err, "")
			return
		}
		b.reply(p, protocol.MustEncode(protocol.TypeSyncResult, protocol.SyncResult{Events: events}))
	default:
		b.replyError(p, fmt.Errorf("unknown message type %q", env.Type), "")
	}
}

func (b *Broker) reply(p Peer, env protocol.Envelope) {
	if err := p.Send(env); err != nil {
		b.log.Warnf("reply %s to session %s: %v", env.Type, p.ID(), err)
	}
}

func (b *Broker) replyError(p Peer, err error, reqID string) {
	b.log.Debugw("request failed", map[string]any{"session": p.ID(), "error": err.Error()})
	b.reply(p, protocol.MustEncode(protocol.TypeError, protocol.Error{Message: err.Error(), ClientRequestID: reqID}))
}
