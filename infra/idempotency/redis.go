// Package idempotency provides a Redis backed client request cache. Entries
// survive broker restarts. The lookup and the write are two round trips, so
// the cache deduplicates within one broker process; replicas sharing a Redis
// can still each mint an event for the same request.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/jobdone/core/factory"
	coreidem "github.com/kilianp07/jobdone/core/idempotency"
	"github.com/kilianp07/jobdone/infra/logger"
)

func init() {
	_ = coreidem.Register("redis", func(conf map[string]any) (coreidem.Cache, error) {
		var c RedisConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRedisCache(c)
	})
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"ttl"`
	Prefix   string        `json:"prefix"`
}

// RedisCache stores keys with SET NX and an expiry.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    logger.Logger
}

// NewRedisCache connects and pings the server.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	c := newWithClient(client, cfg)
	c.log.Infof("connected to redis %s db %d", cfg.Addr, cfg.DB)
	return c, nil
}

func newWithClient(client *redis.Client, cfg RedisConfig) *RedisCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = coreidem.DefaultTTL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "jobdone:req:"
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix, log: logger.New("idempotency")}
}

func (c *RedisCache) Lookup(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

func (c *RedisCache) Remember(ctx context.Context, key, eventID string) error {
	if err := c.client.SetNX(ctx, c.prefix+key, eventID, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error { return c.client.Close() }
