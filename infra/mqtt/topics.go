package mqtt

import "strings"

// Presence payloads.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Topics derives per-session topic names from a prefix.
type Topics struct {
	Prefix string
}

func (t Topics) base() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix + "/sessions/"
	}
	return strings.TrimSuffix(t.Prefix, "/") + "/sessions/"
}

func (t Topics) Request(id string) string  { return t.base() + id + "/request" }
func (t Topics) Inbox(id string) string    { return t.base() + id + "/inbox" }
func (t Topics) Presence(id string) string { return t.base() + id + "/presence" }

// SessionID extracts the session id from a session topic.
func (t Topics) SessionID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.base())
	if !ok {
		return "", false
	}
	id, _, ok := strings.Cut(rest, "/")
	return id, ok && id != "" && !strings.ContainsAny(id, "+#")
}

// ValidSessionID reports whether id can be used as a topic level.
func ValidSessionID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/+#")
}
