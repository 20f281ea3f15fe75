// Package idempotency remembers which canonical event a client request
// produced so retried submissions do not mint a second event.
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/jobdone/core/factory"
)

// DefaultTTL is how long a client request id is remembered.
const DefaultTTL = 2 * time.Minute

// Cache maps client request ids to event ids for a bounded time.
type Cache interface {
	// Lookup returns the event id recorded for key.
	Lookup(ctx context.Context, key string) (eventID string, ok bool, err error)
	// Remember records key -> eventID unless key is already present.
	Remember(ctx context.Context, key, eventID string) error
	Close() error
}

var registry = factory.NewRegistry[Cache]()

// Register makes a cache backend available to New.
func Register(name string, f factory.Factory[Cache]) error {
	return registry.Register(name, f)
}

// New creates the cache described by cfg.
func New(cfg factory.ModuleConfig) (Cache, error) {
	return registry.Create(cfg)
}

func init() {
	_ = Register("memory", func(conf map[string]any) (Cache, error) {
		var c struct {
			TTL time.Duration `json:"ttl"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewMemoryCache(c.TTL, nil), nil
	})
	_ = Register("none", func(map[string]any) (Cache, error) { return Disabled{}, nil })
}

type entry struct {
	eventID string
	expires time.Time
}

// MemoryCache is a TTL map. Expired keys are swept on write.
type MemoryCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]entry
}

// NewMemoryCache returns a cache keeping keys for ttl. A nil now uses time.Now.
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{ttl: ttl, now: now, data: map[string]entry{}}
}

func (c *MemoryCache) Lookup(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok || !c.now().Before(e.expires) {
		return "", false, nil
	}
	return e.eventID, true, nil
}

func (c *MemoryCache) Remember(_ context.Context, key, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.data {
		if !now.Before(e.expires) {
			delete(c.data, k)
		}
	}
	if _, ok := c.data[key]; ok {
		return nil
	}
	c.data[key] = entry{eventID: eventID, expires: now.Add(c.ttl)}
	return nil
}

// Len returns the number of live keys.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *MemoryCache) Close() error { return nil }

// Disabled never remembers anything; every submission mints a new event.
type Disabled struct{}

func (Disabled) Lookup(context.Context, string) (string, bool, error) { return "", false, nil }
func (Disabled) Remember(context.Context, string, string) error       { return nil }
func (Disabled) Close() error                                         { return nil }
