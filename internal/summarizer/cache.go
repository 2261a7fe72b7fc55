package summarizer

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis"
)

// DefaultCacheTTL is how long a summary stays valid.
const DefaultCacheTTL = 24 * time.Hour

// Cache stores summaries by repository.
type Cache interface {
	Get(key string) (*Result, bool)
	Set(key string, result *Result)
	// Purge drops expired entries.
	Purge()
}

// NoCache never stores anything.
type NoCache struct{}

func (NoCache) Get(string) (*Result, bool) { return nil, false }
func (NoCache) Set(string, *Result)        {}
func (NoCache) Purge()                     {}

type cacheEntry struct {
	result    *Result
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a MemoryCache. A non-positive ttl uses DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached result for key if it has not expired.
func (c *MemoryCache) Get(key string) (*Result, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if e, ok := c.entries[key]; ok && !c.now().Before(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.result, true
}

// Set stores result under key.
func (c *MemoryCache) Set(key string, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{result: result, expiresAt: c.now().Add(c.ttl)}
}

// Purge removes every expired entry.
func (c *MemoryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

const redisKeyPrefix = "keyhub:summary:"

// RedisCache stores summaries in Redis with a TTL, so instances behind a load
// balancer share them.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis at addr and verifies the connection.
func NewRedisCache(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (*RedisCache, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        10,
	})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "summary_cache"),
	}, nil
}

// Get returns the cached result for key. Redis errors count as a miss.
func (c *RedisCache) Get(key string) (*Result, bool) {
	raw, err := c.client.Get(redisKeyPrefix + key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Failed to read summary from redis", "key", key, "error", err)
		return nil, false
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn("Discarding undecodable cached summary", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

// Set stores result under key with the configured TTL.
func (c *RedisCache) Set(key string, result *Result) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("Failed to encode summary", "key", key, "error", err)
		return
	}
	if err := c.client.Set(redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to write summary to redis", "key", key, "error", err)
	}
}

// Purge is a no-op; Redis expires keys on its own.
func (c *RedisCache) Purge() {}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
