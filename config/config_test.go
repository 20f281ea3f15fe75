package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  password: "pass"
  topic_prefix: "plant"
  qos:
    inbox: 2
broker:
  sync_limit: 30
store:
  type: sqlite
  conf:
    path: /tmp/jobdone.db
idempotency:
  type: redis
  conf:
    addr: localhost:6379
    ttl: 5m
reconciler:
  match_window: 15s
metrics:
  sinks:
    - type: "prometheus"
http:
  addr: ":9000"
  rate_limit: 10
docksets:
  - id: 1
    name: "A"
    dockFrom: 1
    dockTo: 5
    excluded: [3]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "cli"},
		{"topic_prefix", cfg.MQTT.TopicPrefix, "plant"},
		{"qos.inbox", cfg.MQTT.QoS["inbox"], byte(2)},
		{"mqtt.max_retries", cfg.MQTT.MaxRetries, 3},
		{"sync_limit", cfg.Broker.SyncLimit, 30},
		{"session_buffer", cfg.Broker.SessionBuffer, 64},
		{"store", cfg.Store.Type, "sqlite"},
		{"store.path", cfg.Store.Conf["path"], "/tmp/jobdone.db"},
		{"idempotency", cfg.Idempotency.Type, "redis"},
		{"match_window", cfg.Reconciler.MatchWindow, 15 * time.Second},
		{"orphan_after", cfg.Reconciler.OrphanAfter, 45 * time.Second},
		{"admin_limit", cfg.Reconciler.AdminLimit, 20},
		{"metrics_sink", cfg.Metrics.Sinks[0].Type, "prometheus"},
		{"http.addr", cfg.HTTP.Addr, ":9000"},
		{"http.rate_limit", cfg.HTTP.RateLimit, 10},
		{"http.rate_window", cfg.HTTP.RateWindow, time.Minute},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}

	cat, err := cfg.Catalog()
	require.NoError(t, err)
	set, ok := cat.Get(1)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 4, 5}, set.Docks())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.MQTT.Broker)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "memory", cfg.Idempotency.Type)
	assert.Equal(t, "nop", cfg.Metrics.Sinks[0].Type)
	assert.Equal(t, 50, cfg.Broker.SyncLimit)
	assert.Equal(t, 10*time.Second, cfg.Reconciler.MatchWindow)
	assert.True(t, cfg.HTTP.Enabled())
	assert.Len(t, cfg.DockSets, 2)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.json", `{"mqtt":{"broker":"tcp://a:1883"},"broker":{"sync_limit":10}}`)
	t.Setenv("K_MQTT__BROKER", "tcp://b:1883")
	t.Setenv("K_HTTP__ADDR", "off")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://b:1883", cfg.MQTT.Broker)
	assert.Equal(t, 10, cfg.Broker.SyncLimit)
	assert.False(t, cfg.HTTP.Enabled())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"sync limit":    "broker:\n  sync_limit: 1000\n",
		"overlap":       "docksets:\n  - {id: 1, name: a, dockFrom: 1, dockTo: 3}\n  - {id: 1, name: b, dockFrom: 4, dockTo: 6}\n",
		"bad range":     "docksets:\n  - {id: 1, name: a, dockFrom: 9, dockTo: 3}\n",
		"orphan window": "reconciler:\n  match_window: 10s\n  orphan_after: 5s\n",
		"mqtt qos":      "mqtt:\n  broker: tcp://x:1883\n  qos:\n    inbox: 5\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", data))
			assert.Error(t, err)
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load(writeConfig(t, "config.toml", ""))
	assert.Error(t, err)
}
