package cache

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/modulelabs/httpproxy/internal/stats"
)

// Manager is a content-addressed response cache with GET-only admission
// and status/Cache-Control based exclusion rules.
type Manager struct {
	store      Store
	expiration time.Duration
	stats      *stats.Statistics
}

// NewManager creates a Manager storing entries with the given default TTL.
func NewManager(store Store, expiration time.Duration, s *stats.Statistics) *Manager {
	return &Manager{store: store, expiration: expiration, stats: s}
}

// Get returns the cached entry for (method, url, headers, body), or nil
// on a miss. Only GET requests are ever looked up; every other method is
// an unconditional miss.
func (m *Manager) Get(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Entry, error) {
	if !strings.EqualFold(method, "GET") {
		return nil, nil
	}

	key := Key(method, url, headers, body)
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		if m.stats != nil {
			m.stats.Increment("cache_misses", 1)
		}
		return nil, nil
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// Corrupt entry: treat exactly like a miss.
		if m.stats != nil {
			m.stats.Increment("cache_misses", 1)
		}
		return nil, nil
	}

	if m.stats != nil {
		m.stats.Increment("cache_hits", 1)
	}
	return &entry, nil
}

// Put stores a response under its content-address. It is a no-op for
// non-GET requests, for error responses, and for responses whose
// Cache-Control header says not to cache.
func (m *Manager) Put(ctx context.Context, method, url string, requestHeaders map[string]string, statusCode int, responseHeaders map[string]string, body []byte) error {
	if !strings.EqualFold(method, "GET") {
		return nil
	}
	if statusCode >= 400 {
		return nil
	}
	if cc := lookupHeader(responseHeaders, "Cache-Control"); cc != "" {
		lc := strings.ToLower(cc)
		if strings.Contains(lc, "no-store") || strings.Contains(lc, "no-cache") {
			return nil
		}
	}

	key := Key(method, url, requestHeaders, nil)
	entry := Entry{
		StatusCode: statusCode,
		Headers:    responseHeaders,
		Body:       body,
		URL:        url,
		CachedAt:   time.Now().Unix(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return m.store.Set(ctx, key, data, m.expiration)
}

// Invalidate deletes cache entries whose stored url contains substr. An
// empty substr deletes every entry. This is an administrative operation
// reachable only from Go code, never from the request path.
func (m *Manager) Invalidate(ctx context.Context, substr string) (int, error) {
	deleted := 0
	var toDelete []string

	err := m.store.Scan(ctx, func(key string, value []byte) bool {
		if substr == "" {
			toDelete = append(toDelete, key)
			return true
		}
		var entry Entry
		if err := json.Unmarshal(value, &entry); err != nil {
			return true
		}
		if strings.Contains(entry.URL, substr) {
			toDelete = append(toDelete, key)
		}
		return true
	})
	if err != nil {
		return 0, err
	}

	for _, key := range toDelete {
		if err := m.store.Delete(ctx, key); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func lookupHeader(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
