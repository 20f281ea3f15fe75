package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/jobdone/core/logger"
	"github.com/kilianp07/jobdone/core/model"
	"github.com/kilianp07/jobdone/core/protocol"
	"github.com/kilianp07/jobdone/core/session"
)

// Transport is the session side of the MQTT bridge.
type Transport struct {
	cfg    Config
	id     string
	topics Topics
	log    logger.Logger

	mu      sync.Mutex
	cli     pahoClient
	handler session.Handler
	closed  bool
}

var _ session.Transport = (*Transport)(nil)

// NewTransport returns a transport for session id. The MQTT client id
// defaults to the session id.
func NewTransport(cfg Config, id string, log logger.Logger) (*Transport, error) {
	if !ValidSessionID(id) {
		return nil, fmt.Errorf("mqtt: invalid session id %q", id)
	}
	if log == nil {
		log = logger.Nop{}
	}
	cfg.SetDefaults()
	if cfg.ClientID == "" {
		cfg.ClientID = id
	}
	return &Transport{cfg: cfg, id: id, topics: Topics{Prefix: cfg.TopicPrefix}, log: log}, nil
}

// ID returns the session id.
func (t *Transport) ID() string { return t.id }

// Connect dials the MQTT broker. h sees OnConnect after the inbox
// subscription is in place, on the first connection and on every reconnect.
func (t *Transport) Connect(ctx context.Context, h session.Handler) error {
	opts, err := NewClientOptions(t.cfg)
	if err != nil {
		return err
	}
	presence := t.topics.Presence(t.id)
	opts.SetWill(presence, PresenceOffline, t.cfg.qos("presence"), true)
	opts.OnConnect = func(c paho.Client) {
		t.onConnect(c)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		t.log.Errorf("connection lost: %v", err)
		if h := t.currentHandler(); h != nil {
			h.OnDisconnect(fmt.Errorf("%w: %v", model.ErrTransportUnavailable, err))
		}
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		t.log.Warnf("reconnecting to MQTT broker")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("mqtt: transport closed")
	}
	t.handler = h
	c := newMQTTClient(opts)
	t.cli = c
	t.mu.Unlock()

	token := c.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

type connectedClient interface {
	subscriber
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

func (t *Transport) onConnect(c connectedClient) {
	t.log.Infof("MQTT connected")
	inbox := t.topics.Inbox(t.id)
	if token := c.Subscribe(inbox, t.cfg.qos("inbox"), t.onInbox); token.Wait() && token.Error() != nil {
		t.log.Errorf("subscribe %s: %v", inbox, token.Error())
		return
	}
	token := c.Publish(t.topics.Presence(t.id), t.cfg.qos("presence"), true, PresenceOnline)
	if token.Wait() && token.Error() != nil {
		t.log.Errorf("publish presence: %v", token.Error())
	}
	if h := t.currentHandler(); h != nil {
		h.OnConnect()
	}
}

func (t *Transport) onInbox(_ paho.Client, msg paho.Message) {
	env, err := protocol.Unmarshal(msg.Payload())
	if err != nil {
		t.log.Warnf("inbox: %v", err)
		return
	}
	if h := t.currentHandler(); h != nil {
		h.OnMessage(env)
	}
}

func (t *Transport) currentHandler() session.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler
}

// Send publishes env on the session request topic.
func (t *Transport) Send(env protocol.Envelope) error {
	t.mu.Lock()
	c := t.cli
	t.mu.Unlock()
	if c == nil || !c.IsConnected() {
		return model.ErrTransportUnavailable
	}
	payload, err := env.Marshal()
	if err != nil {
		return err
	}
	return publish(c, t.log, t.cfg, t.topics.Request(t.id), t.cfg.qos("request"), false, payload)
}

// Close announces the session offline and disconnects.
func (t *Transport) Close() error {
	t.mu.Lock()
	c, h := t.cli, t.handler
	t.closed = true
	t.cli, t.handler = nil, nil
	t.mu.Unlock()
	if c == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.Publish(t.topics.Presence(t.id), t.cfg.qos("presence"), true, PresenceOffline)
		token.Wait()
		c.Disconnect(250)
	}
	if h != nil {
		h.OnDisconnect(nil)
	}
	return nil
}
