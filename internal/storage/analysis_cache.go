// internal/storage/analysis_cache.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AnalysisCache stores serialized image analyses keyed by content hash.
type AnalysisCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// MemoryAnalysisCache is an in-process LRU with per-entry expiry.
type MemoryAnalysisCache struct {
	mutex   sync.RWMutex
	entries map[string]*memoryEntry
	maxSize int
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
	lastRead  time.Time
}

func NewMemoryAnalysisCache(maxSize int) *MemoryAnalysisCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryAnalysisCache{
		entries: make(map[string]*memoryEntry),
		maxSize: maxSize,
	}
}

func (c *MemoryAnalysisCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	now := time.Now()
	if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	entry.lastRead = now
	return entry.data, true, nil
}

// Set stores value; ttl <= 0 keeps it until evicted.
func (c *MemoryAnalysisCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	entry := &memoryEntry{data: value, lastRead: now}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	c.entries[key] = entry

	if len(c.entries) > c.maxSize {
		c.cleanupLRU(max(1, c.maxSize/5))
	}
	return nil
}

func (c *MemoryAnalysisCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

func (c *MemoryAnalysisCache) Close() error {
	c.mutex.Lock()
	c.entries = make(map[string]*memoryEntry)
	c.mutex.Unlock()
	return nil
}

// cleanupLRU removes the count least recently read entries. Caller holds the lock.
func (c *MemoryAnalysisCache) cleanupLRU(count int) {
	type keyAge struct {
		key  string
		time time.Time
	}
	entries := make([]keyAge, 0, len(c.entries))
	for k, v := range c.entries {
		entries = append(entries, keyAge{k, v.lastRead})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].time.Before(entries[j].time)
	})
	for i := 0; i < min(count, len(entries)); i++ {
		delete(c.entries, entries[i].key)
	}
}

const redisKeyPrefix = "moodboard:analysis:"

// RedisAnalysisCache shares analyses between server restarts and instances.
type RedisAnalysisCache struct {
	client *redis.Client
}

// NewRedisAnalysisCache connects to addr and pings it.
func NewRedisAnalysisCache(ctx context.Context, addr, password string) (*RedisAnalysisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisAnalysisCache{client: client}, nil
}

func (c *RedisAnalysisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *RedisAnalysisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err()
}

func (c *RedisAnalysisCache) Close() error {
	return c.client.Close()
}
