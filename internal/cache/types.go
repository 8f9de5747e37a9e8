// Package cache implements the proxy's content-addressed response cache.
// A response is stored as a single tagged JSON envelope with an
// always-base64 body field, so there is exactly one decode path
// regardless of whether the cached payload is text or binary.
package cache

import (
	"context"
	"time"
)

// Entry is the canonical wire form of a cached response. Headers keeps
// the origin's response header set so it can be replayed verbatim on a
// cache hit; Body is always base64-encoded in JSON via the []byte field
// type, never conditionally present.
type Entry struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"body"`
	URL        string            `json:"url"`
	CachedAt   int64             `json:"cached_at"`
}

// Stats mirrors Statistics' cache_hits/cache_misses counters for callers
// that want them without going through the Statistics bag directly.
type Stats struct {
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Ratio  float64 `json:"hit_ratio"`
}

// Store is the minimal key/value contract CacheManager needs. Redis is
// the only implementation shipped, but the seam keeps CacheManager
// testable against an in-memory fake if Redis is unavailable.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Scan iterates every key currently in the store, calling fn with
	// each key's raw value. Iteration stops early if fn returns false.
	Scan(ctx context.Context, fn func(key string, value []byte) bool) error
	Ping(ctx context.Context) error
	Close() error
}
