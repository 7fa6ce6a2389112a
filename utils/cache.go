package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss reports that a key is absent. A miss is not a transient
// failure and is never retried.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the key/value store behind the metadata cache. The Set* methods
// back the explicit tag index (tag -> member keys) so bulk eviction walks a
// tag set instead of scanning the keyspace.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SetAdd(ctx context.Context, set string, members ...string) error
	SetRemove(ctx context.Context, set string, members ...string) error
	SetMembers(ctx context.Context, set string) ([]string, error)
}

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis cache client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
	}
}

// Get reads a cached value.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	// 关于 Unmarshal 函数 用于将 json 格式反序列化存入 dest 中
	return json.Unmarshal([]byte(val), dest)
}

// Set writes a cached value.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, string(data), expiration).Err()
}

// Delete removes cache entries.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Exists checks whether a cache key exists.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetAdd adds members to a tag set.
func (c *RedisCache) SetAdd(ctx context.Context, set string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(members))
	for _, m := range members {
		args = append(args, m)
	}
	return c.client.SAdd(ctx, set, args...).Err()
}

// SetRemove removes members from a tag set.
func (c *RedisCache) SetRemove(ctx context.Context, set string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(members))
	for _, m := range members {
		args = append(args, m)
	}
	return c.client.SRem(ctx, set, args...).Err()
}

// SetMembers returns all members of a tag set.
func (c *RedisCache) SetMembers(ctx context.Context, set string) ([]string, error) {
	return c.client.SMembers(ctx, set).Result()
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache used by tests and by single-node
// setups that run without Redis. Tag sets live beside the entries under the
// same mutex, so individual gets never contend with a bulk eviction on
// unrelated keys for long.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	sets    map[string]map[string]struct{}
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		sets:    make(map[string]map[string]struct{}),
	}
}

// Get reads a cached value.
func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return ErrCacheMiss
	}
	return json.Unmarshal(entry.data, dest)
}

// Set writes a cached value.
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var expiresAt time.Time
	if expiration > 0 {
		expiresAt = time.Now().Add(expiration)
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{data: data, expiresAt: expiresAt}
	c.mu.Unlock()
	return nil
}

// Delete removes cache entries.
func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil
}

// Exists checks whether a cache key exists.
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return true, nil
}

// SetAdd adds members to a tag set.
func (c *MemoryCache) SetAdd(ctx context.Context, set string, members ...string) error {
	c.mu.Lock()
	s, ok := c.sets[set]
	if !ok {
		s = make(map[string]struct{})
		c.sets[set] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	c.mu.Unlock()
	return nil
}

// SetRemove removes members from a tag set.
func (c *MemoryCache) SetRemove(ctx context.Context, set string, members ...string) error {
	c.mu.Lock()
	if s, ok := c.sets[set]; ok {
		for _, m := range members {
			delete(s, m)
		}
	}
	c.mu.Unlock()
	return nil
}

// SetMembers returns all members of a tag set.
func (c *MemoryCache) SetMembers(ctx context.Context, set string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.sets[set]
	members := make([]string, 0, len(s))
	for m := range s {
		members = append(members, m)
	}
	return members, nil
}

// BuildCacheKey builds a cache key.
func BuildCacheKey(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key += fmt.Sprintf(":%v", param)
	}
	return key
}

const (
	CacheKeyFileView = "file:view"
	CacheKeyUserInfo = "user:info"

	// Tag sets for bulk eviction.
	CacheTagFiles   = "tag:files"
	CacheTagTrashed = "tag:trashed"
)
