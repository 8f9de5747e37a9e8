// Command proxy is the composition root for the caching, rate-limiting
// reverse proxy: it wires configuration, logging, Redis-backed state,
// the request handler, and the accept loop together and runs until
// SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/modulelabs/httpproxy/internal/acceptor"
	"github.com/modulelabs/httpproxy/internal/cache"
	"github.com/modulelabs/httpproxy/internal/config"
	"github.com/modulelabs/httpproxy/internal/filter"
	"github.com/modulelabs/httpproxy/internal/handler"
	"github.com/modulelabs/httpproxy/internal/logging"
	"github.com/modulelabs/httpproxy/internal/originpool"
	"github.com/modulelabs/httpproxy/internal/ratelimit"
	"github.com/modulelabs/httpproxy/internal/stats"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "optional YAML config file (environment variables take precedence)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	baseLogger := logging.New(logging.Config{
		Level:      slog.LevelInfo,
		JSONFormat: true,
	})
	slog.SetDefault(baseLogger.Slog())
	logger := baseLogger.Slog()

	registry := prometheus.NewRegistry()
	statistics := stats.New(registry)

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr(),
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		logger.Warn("redis not reachable at startup, continuing (rate limiter fails open, cache misses every lookup)", "error", err)
	}

	cacheStore := cache.NewRedisStoreFromClient(redisClient, "proxy-cache")
	cacheManager := cache.NewManager(cacheStore, cfg.CacheExpiration, statistics)

	limiter := ratelimit.New(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow, logger)

	requestFilter := filter.New(cfg.RequestFilters)
	if configPath != "" {
		watcher := config.NewFilterWatcher(configPath, cfg.RequestFilters, logger)
		watcher.OnChange(requestFilter.Set)
		watchCtx, watchCancel := context.WithCancel(context.Background())
		defer watchCancel()
		if err := watcher.Watch(watchCtx); err != nil {
			logger.Warn("request filter hot reload disabled", "error", err)
		}
	}

	pool := originpool.New(originpool.Config{
		Origins:             cfg.BackendServers,
		MaxIdleConnsPerHost: 10,
		Timeout:             cfg.ConnectionTimeout,
	})

	reqHandler := &handler.Handler{
		Filter:            requestFilter,
		Cache:             cacheManager,
		Pool:              pool,
		Stats:             statistics,
		Gatherer:          registry,
		ConnectionTimeout: cfg.ConnectionTimeout,
		EnableCompression: cfg.EnableCompression,
		Logger:            logger,
	}

	accept := &acceptor.Acceptor{
		Addr:              cfg.Addr(),
		QueueSize:         cfg.RequestQueueSize,
		WorkerCount:       cfg.ThreadPoolSize,
		ConnectionTimeout: cfg.ConnectionTimeout,
		RateLimiter:       limiter,
		Handler:           reqHandler,
		Stats:             statistics,
		Logger:            logger,
	}

	if err := accept.Listen(); err != nil {
		return fmt.Errorf("binding %s: %w", cfg.Addr(), err)
	}

	ctx, cancelRun := context.WithCancel(context.Background())
	monitor := stats.NewMonitor(statistics, 60*time.Second, logger)
	go monitor.Run(ctx)

	runErr := make(chan error, 1)
	go func() {
		runErr <- accept.Run(ctx)
	}()

	logger.Info("proxy listening", "addr", cfg.Addr(), "backends", cfg.BackendServers)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down")
	case err := <-runErr:
		cancelRun()
		if err != nil {
			return fmt.Errorf("accept loop: %w", err)
		}
		return nil
	}

	cancelRun()
	<-runErr
	logger.Info("proxy stopped")
	return nil
}
