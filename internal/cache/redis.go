package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Cache is a JSON value cache backed by Redis. A disabled cache accepts every
// call and misses on every Get.
type Cache struct {
	client  *redis.Client
	enabled bool
	prefix  string
}

// New connects to redisURL. An empty or unreachable URL yields a disabled cache.
func New(ctx context.Context, redisURL, prefix string) *Cache {
	c := &Cache{prefix: prefix}
	if redisURL == "" {
		log.Info("Redis URL not provided, caching disabled")
		return c
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.WithError(err).Warn("Failed to parse Redis URL, caching disabled")
		return c
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Failed to connect to Redis, caching disabled")
		client.Close()
		return c
	}

	c.client = client
	c.enabled = true
	log.Info("Redis cache initialized")
	return c
}

func (c *Cache) Enabled() bool { return c != nil && c.enabled }

// Client exposes the underlying connection, nil when disabled.
func (c *Cache) Client() *redis.Client {
	if !c.Enabled() {
		return nil
	}
	return c.client
}

func (c *Cache) Close() error {
	if c.Enabled() {
		return c.client.Close()
	}
	return nil
}

// Set stores a value in cache with expiration
func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if !c.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, c.prefix+key, data, expiration).Err()
}

// Get retrieves a value from cache; a miss returns redis.Nil.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if !c.Enabled() {
		return redis.Nil
	}

	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// Delete removes a key from cache
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}

	return c.client.Del(ctx, c.prefix+key).Err()
}
