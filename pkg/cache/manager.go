package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the fallback TTL when the source sends no Expires header.
const DefaultTTL = 5 * time.Minute

var (
	// ErrCacheMiss indicates no servable page is cached under the key
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cached entry cannot be decoded
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores source page bodies in Redis.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a new cache manager with Redis backend. A ttl <= 0 uses DefaultTTL.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{redis: redisClient, ttl: ttl}
}

// DefaultTTL returns the TTL applied to entries without an Expires header.
func (m *Manager) DefaultTTL() time.Duration {
	return m.ttl
}

// Get returns the page cached under key. Expired entries, entries holding a
// non-2xx response and entries without a body are dropped and reported as
// ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	entry, err := m.load(ctx, key.String())
	if err != nil {
		return nil, err
	}

	if !servable(entry) {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return entry, nil
}

func (m *Manager) load(ctx context.Context, redisKey string) (*CacheEntry, error) {
	data, err := m.redis.Get(ctx, redisKey).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	case err != nil:
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", redisKey, err)
	}

	entry := &CacheEntry{}
	if err := json.Unmarshal(data, entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, redisKey, err)
	}
	return entry, nil
}

// Set stores a page under key until entry.Expires. Entries that are already
// expired, hold a non-2xx status or have no body are not stored.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if !servable(entry) {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, entry.TTL()).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes the page cached under key.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// servable reports whether entry holds a live successful page body.
func servable(entry *CacheEntry) bool {
	ok := entry.StatusCode >= 200 && entry.StatusCode < 300
	return ok && len(entry.Data) > 0 && entry.TTL() > 0
}
