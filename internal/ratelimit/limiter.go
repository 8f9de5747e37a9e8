// Package ratelimit implements the proxy's sliding-window client rate
// limiter: each client IP gets a Redis sorted set of recent request
// timestamps, trimmed and counted in one pipelined round trip.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a Redis-backed sliding-window rate limiter. A single
// instance is shared across all accepted connections.
type Limiter struct {
	client  *redis.Client
	limit   int64
	window  time.Duration
	logger  *slog.Logger
	nowFunc func() time.Time
}

// New creates a Limiter allowing up to requestsLimit requests per client
// IP within window.
func New(client *redis.Client, requestsLimit int, window time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		client:  client,
		limit:   int64(requestsLimit),
		window:  window,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// IsRateLimited reports whether clientIP has exceeded the configured
// request rate. Store errors fail open: a pipeline error is logged and
// treated as "not limited".
func (l *Limiter) IsRateLimited(ctx context.Context, clientIP string) bool {
	t := l.nowFunc()
	now := t.Unix()
	key := fmt.Sprintf("rate_limit:%s", clientIP)
	// The member is the nanosecond timestamp so that requests within the
	// same second each count; the score is the whole-second timestamp.
	member := strconv.FormatInt(t.UnixNano(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now-int64(l.window.Seconds()), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter store error, failing open", "error", err, "client_ip", clientIP)
		return false
	}

	return card.Val() > l.limit
}

// ClientIP extracts the client address rate limiting keys on, stripping
// the port from a raw "ip:port" remote address. A reverse-proxy deployment
// that wants to honor X-Forwarded-For must resolve the trusted client IP
// itself and pass it here; this proxy does not parse that header by
// default.
func ClientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
