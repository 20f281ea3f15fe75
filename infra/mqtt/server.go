package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/jobdone/core/broker"
	"github.com/kilianp07/jobdone/core/logger"
	"github.com/kilianp07/jobdone/core/protocol"
)

// Broker is the part of broker.Broker the server drives.
type Broker interface {
	Attach(p broker.Peer) (detach func())
	Handle(ctx context.Context, p broker.Peer, env protocol.Envelope)
}

// Server bridges MQTT sessions to a broker. A session is attached when its
// presence goes online or when its first request arrives, and detached when
// its presence goes offline.
type Server struct {
	cfg    Config
	topics Topics
	broker Broker
	log    logger.Logger

	cli pahoClient
	ctx context.Context

	mu       sync.Mutex
	sessions map[string]func()
}

// NewServer prepares a server for b. Start connects it.
func NewServer(cfg Config, b Broker, log logger.Logger) (*Server, error) {
	if b == nil {
		return nil, errors.New("mqtt: broker is required")
	}
	if log == nil {
		log = logger.Nop{}
	}
	cfg.SetDefaults()
	if cfg.ClientID == "" {
		cfg.ClientID = "jobdone-broker"
	}
	return &Server{
		cfg:      cfg,
		topics:   Topics{Prefix: cfg.TopicPrefix},
		broker:   b,
		log:      log,
		ctx:      context.Background(),
		sessions: make(map[string]func()),
	}, nil
}

// Start connects to the MQTT broker and subscribes to every session's
// request and presence topics. ctx bounds the handling of requests.
func (s *Server) Start(ctx context.Context) error {
	opts, err := NewClientOptions(s.cfg)
	if err != nil {
		return err
	}
	// Handlers publish replies and wait on the token.
	opts.SetOrderMatters(false)
	opts.OnConnect = func(c paho.Client) {
		s.log.Infof("MQTT connected")
		s.subscribe(c)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		s.log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		s.log.Warnf("reconnecting to MQTT broker")
	}
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	c := newMQTTClient(opts)
	s.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

type subscriber interface {
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

func (s *Server) subscribe(c subscriber) {
	subs := []struct {
		topic   string
		qos     byte
		handler paho.MessageHandler
	}{
		{s.topics.Request("+"), s.cfg.qos("request"), s.onRequest},
		{s.topics.Presence("+"), s.cfg.qos("presence"), s.onPresence},
	}
	for _, sub := range subs {
		if token := c.Subscribe(sub.topic, sub.qos, sub.handler); token.Wait() && token.Error() != nil {
			s.log.Errorf("subscribe %s: %v", sub.topic, token.Error())
		}
	}
}

func (s *Server) onPresence(_ paho.Client, msg paho.Message) {
	id, ok := s.topics.SessionID(msg.Topic())
	if !ok {
		return
	}
	switch string(msg.Payload()) {
	case PresenceOnline:
		s.attach(id)
	case PresenceOffline:
		s.detach(id)
	default:
		s.log.Warnf("session %s: unknown presence %q", id, msg.Payload())
	}
}

func (s *Server) onRequest(_ paho.Client, msg paho.Message) {
	id, ok := s.topics.SessionID(msg.Topic())
	if !ok {
		return
	}
	p := s.attach(id)
	env, err := protocol.Unmarshal(msg.Payload())
	if err != nil {
		s.log.Warnf("session %s: %v", id, err)
		p.reply(protocol.MustEncode(protocol.TypeError, protocol.Error{Message: err.Error()}))
		return
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	s.broker.Handle(ctx, p, env)
}

func (s *Server) attach(id string) *inboxPeer {
	p := &inboxPeer{id: id, server: s}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		s.sessions[id] = s.broker.Attach(p)
	}
	return p
}

func (s *Server) detach(id string) {
	s.mu.Lock()
	detach, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		detach()
	}
}

// Sessions returns the ids of attached sessions.
func (s *Server) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close detaches every session and disconnects.
func (s *Server) Close() error {
	s.mu.Lock()
	detach := make([]func(), 0, len(s.sessions))
	for id, d := range s.sessions {
		detach = append(detach, d)
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	for _, d := range detach {
		d()
	}
	if s.cli != nil && s.cli.IsConnected() {
		s.cli.Disconnect(250)
	}
	return nil
}

// inboxPeer publishes broker messages to a session inbox.
type inboxPeer struct {
	id     string
	server *Server
}

func (p *inboxPeer) ID() string { return p.id }

func (p *inboxPeer) Send(env protocol.Envelope) error {
	payload, err := env.Marshal()
	if err != nil {
		return err
	}
	s := p.server
	return publish(s.cli, s.log, s.cfg, s.topics.Inbox(p.id), s.cfg.qos("inbox"), false, payload)
}

func (p *inboxPeer) reply(env protocol.Envelope) {
	if err := p.Send(env); err != nil {
		p.server.log.Warnf("reply to session %s: %v", p.id, err)
	}
}
