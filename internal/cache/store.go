package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis: no cluster/sentinel topologies,
// no namespacing beyond a single key prefix — the proxy runs one cache
// per Redis logical DB.
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewRedisStore dials addr/db and verifies connectivity before returning.
func NewRedisStore(addr string, db int, prefix string) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

// NewRedisStoreFromClient wraps an already-constructed client, used by
// tests against miniredis.
func NewRedisStoreFromClient(client goredis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// stripKey reverses key: it removes this store's prefix from a raw Redis
// key so callers who receive keys from Scan can pass them back through
// Get/Set/Delete, which all re-add the prefix themselves.
func (s *RedisStore) stripKey(k string) string {
	if s.prefix == "" {
		return k
	}
	return strings.TrimPrefix(k, s.prefix+":")
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: redis get: %w", err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("cache: redis del: %w", err)
	}
	return nil
}

// Scan walks every key under this store's prefix. SCAN is used instead
// of KEYS so the iteration never blocks the Redis server. fn receives
// the logical key with the store's prefix already stripped, so it can
// be passed straight back into Get/Set/Delete without double-prefixing.
func (s *RedisStore) Scan(ctx context.Context, fn func(key string, value []byte) bool) error {
	pattern := s.key("*")
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		rawKey := iter.Val()
		val, err := s.client.Get(ctx, rawKey).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			return fmt.Errorf("cache: redis get during scan: %w", err)
		}
		if !fn(s.stripKey(rawKey), val) {
			break
		}
	}
	return iter.Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
