// Package loopback connects sessions to a broker in the same process.
package loopback

import (
	"context"
	"errors"
	"sync"

	"github.com/kilianp07/jobdone/core/broker"
	"github.com/kilianp07/jobdone/core/model"
	"github.com/kilianp07/jobdone/core/protocol"
	"github.com/kilianp07/jobdone/core/session"
)

// Conn is an in-process session Transport attached to a broker.
type Conn struct {
	peer   *peer
	broker *broker.Broker

	mu      sync.Mutex
	ctx     context.Context
	handler session.Handler
	detach  func()
	closed  bool
}

var _ session.Transport = (*Conn)(nil)

// peer is the broker side of a Conn.
type peer struct {
	id   string
	conn *Conn
}

func (p *peer) ID() string { return p.id }

func (p *peer) Send(env protocol.Envelope) error {
	p.conn.mu.Lock()
	h := p.conn.handler
	p.conn.mu.Unlock()
	if h != nil {
		h.OnMessage(env)
	}
	return nil
}

// New returns a transport for session id bound to b.
func New(b *broker.Broker, id string) *Conn {
	c := &Conn{broker: b}
	c.peer = &peer{id: id, conn: c}
	return c
}

// ID returns the session id the broker sees.
func (c *Conn) ID() string { return c.peer.id }

// Send hands env to the broker.
func (c *Conn) Send(env protocol.Envelope) error {
	c.mu.Lock()
	ctx, up := c.ctx, c.detach != nil
	c.mu.Unlock()
	if !up {
		return model.ErrTransportUnavailable
	}
	c.broker.Handle(ctx, c.peer, env)
	return nil
}

// Connect attaches to the broker and reports the connection to h.
func (c *Conn) Connect(ctx context.Context, h session.Handler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("loopback: connection closed")
	}
	c.ctx, c.handler = ctx, h
	already := c.detach != nil
	c.mu.Unlock()
	if already {
		return nil
	}
	detach := c.broker.Attach(c.peer)
	c.mu.Lock()
	c.detach = detach
	c.mu.Unlock()
	h.OnConnect()
	return nil
}

// Disconnect drops the link, the way a network failure would.
func (c *Conn) Disconnect(err error) {
	c.mu.Lock()
	detach, h := c.detach, c.handler
	c.detach = nil
	c.mu.Unlock()
	if detach == nil {
		return
	}
	detach()
	if h != nil {
		h.OnDisconnect(err)
	}
}

// Reconnect re-attaches after Disconnect.
func (c *Conn) Reconnect() error {
	c.mu.Lock()
	ctx, h := c.ctx, c.handler
	c.mu.Unlock()
	if h == nil {
		return errors.New("loopback: never connected")
	}
	return c.Connect(ctx, h)
}

// Close disconnects for good.
func (c *Conn) Close() error {
	c.Disconnect(nil)
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
