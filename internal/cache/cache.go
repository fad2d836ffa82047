// Package cache memoizes calculation results. Keys are derived from the
// engine's constants fingerprint and the canonical input, so a change to the
// constants table never serves a stale result.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrMiss = errors.New("cache miss")

// Cache is a byte-oriented key/value store with per-entry expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCache{client: rdb}
}

// Ping checks that the server is reachable.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return val, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

type entry struct {
	value   []byte
	expires time.Time
	written time.Time
}

const (
	// DefaultMaxEntries bounds a MemoryCache created by NewMemoryCache.
	DefaultMaxEntries = 10000
	sweepInterval     = time.Minute
)

// MemoryCache is a process-local Cache. Expired entries are dropped on read
// and by a sweep that Set runs at most once per minute, or whenever the
// cache is full. A full cache evicts its oldest entry.
type MemoryCache struct {
	mu         sync.RWMutex
	items      map[string]entry
	maxEntries int
	lastSweep  time.Time
	now        func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheSize(DefaultMaxEntries)
}

// NewMemoryCacheSize returns a MemoryCache holding at most maxEntries
// entries. A non-positive size uses DefaultMaxEntries.
func NewMemoryCacheSize(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryCache{items: make(map[string]entry), maxEntries: maxEntries, now: time.Now}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if e.expired(m.now()) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, ErrMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := m.now()
	e := entry{value: append([]byte(nil), value...), written: now}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.items[key]
	full := !exists && len(m.items) >= m.maxEntries
	if full || now.Sub(m.lastSweep) >= sweepInterval {
		m.sweep(now)
	}
	if !exists && len(m.items) >= m.maxEntries {
		m.evictOldest()
	}
	m.items[key] = e
	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryCache) Close() error { return nil }

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// sweep must be called with mu held.
func (m *MemoryCache) sweep(now time.Time) {
	for k, e := range m.items {
		if e.expired(now) {
			delete(m.items, k)
		}
	}
	m.lastSweep = now
}

// evictOldest must be called with mu held.
func (m *MemoryCache) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range m.items {
		if !found || e.written.Before(oldest) {
			oldestKey, oldest, found = k, e.written, true
		}
	}
	if found {
		delete(m.items, oldestKey)
	}
}
