package mqtt

import (
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type publishedMsg struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements paho.Client for tests.
type mockClient struct {
	mu          sync.Mutex
	opts        *paho.ClientOptions
	connected   bool
	handlers    map[string]paho.MessageHandler
	subscribed  []string
	published   []publishedMsg
	publishErrs []error
}

func installMock(t *testing.T) *mockClient {
	t.Helper()
	mc := &mockClient{handlers: map[string]paho.MessageHandler{}}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient {
		mc.mu.Lock()
		mc.opts = o
		mc.mu.Unlock()
		return mc
	}
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
	return mc
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) Connect() paho.Token {
	m.mu.Lock()
	m.connected = true
	opts := m.opts
	m.mu.Unlock()
	if opts != nil && opts.OnConnect != nil {
		opts.OnConnect(m)
	}
	return &dummyToken{}
}

func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMsg{topic, qos, retained, b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

func (m *mockClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, topic)
	m.handlers[topic] = cb
	return &dummyToken{}
}

func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return m.IsConnected() }

// deliver routes a message to the first subscription matching topic.
func (m *mockClient) deliver(topic, payload string) bool {
	m.mu.Lock()
	var cb paho.MessageHandler
	for pattern, h := range m.handlers {
		if topicMatches(pattern, topic) {
			cb = h
			break
		}
	}
	m.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(m, mockMessage{topic: topic, p: []byte(payload)})
	return true
}

func (m *mockClient) loseConnection(err error) {
	m.mu.Lock()
	m.connected = false
	opts := m.opts
	m.mu.Unlock()
	opts.OnConnectionLost(m, err)
}

func (m *mockClient) publishedTo(topic string) []publishedMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedMsg
	for _, p := range m.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func topicMatches(pattern, topic string) bool {
	pl, tl := strings.Split(pattern, "/"), strings.Split(topic, "/")
	if len(pl) != len(tl) {
		return false
	}
	for i := range pl {
		if pl[i] != "+" && pl[i] != tl[i] {
			return false
		}
	}
	return true
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
