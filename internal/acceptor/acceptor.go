// Package acceptor implements the proxy's connection accept loop and
// bounded worker pool: a single listening socket, a rate-limit check
// performed at accept time, and a fixed pool of workers dequeuing from a
// bounded handoff queue, so slow handlers stall acceptance only once
// the queue is full.
package acceptor

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modulelabs/httpproxy/internal/handler"
	"github.com/modulelabs/httpproxy/internal/ratelimit"
	"github.com/modulelabs/httpproxy/internal/stats"
)

// Acceptor owns the listen socket, the handoff queue, and the worker
// pool that drains it.
type Acceptor struct {
	Addr              string
	QueueSize         int
	WorkerCount       int
	ConnectionTimeout time.Duration
	RateLimiter       *ratelimit.Limiter
	Handler           *handler.Handler
	Stats             *stats.Statistics
	Logger            *slog.Logger

	listener net.Listener
	queue    chan net.Conn
	running  atomic.Bool
	wg       sync.WaitGroup
}

// Listen opens the listen socket. Separated from Run so callers can
// observe bind failures before committing to the accept loop.
func (a *Acceptor) Listen() error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", a.Addr)
	if err != nil {
		return err
	}
	a.listener = ln
	a.queue = make(chan net.Conn, a.QueueSize)
	return nil
}

// Run starts the worker pool and the accept loop. It blocks until ctx is
// canceled, at which point the listener is closed, the queue is closed
// so the workers drain what is left in it and exit, and Run waits for
// in-flight handlers to finish.
func (a *Acceptor) Run(ctx context.Context) error {
	a.running.Store(true)

	for i := 0; i < a.WorkerCount; i++ {
		a.wg.Add(1)
		go a.worker()
	}

	go func() {
		<-ctx.Done()
		a.running.Store(false)
		_ = a.listener.Close()
	}()

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if !a.running.Load() {
				break
			}
			a.logger().Warn("accept error", "error", err)
			continue
		}
		if !a.running.Load() {
			_ = conn.Close()
			break
		}
		a.acceptOne(conn)
	}

	close(a.queue)
	a.wg.Wait()
	return nil
}

// acceptOne applies the per-connection deadline and the accept-time rate
// check, then enqueues the connection. Enqueue blocks when the queue is
// full, which is the proxy's backpressure mechanism.
func (a *Acceptor) acceptOne(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(a.ConnectionTimeout))

	clientIP := ratelimit.ClientIP(conn.RemoteAddr().String())
	if a.RateLimiter.IsRateLimited(context.Background(), clientIP) {
		a.Stats.Increment("rate_limited_requests", 1)
		_ = conn.Close()
		return
	}

	a.Stats.Increment("active_connections", 1)
	a.queue <- conn
}

func (a *Acceptor) worker() {
	defer a.wg.Done()
	for conn := range a.queue {
		a.Handler.Handle(conn)
	}
}

// Shutdown closes the listener immediately, causing Run's Accept loop to
// unblock and return.
func (a *Acceptor) Shutdown() error {
	a.running.Store(false)
	if a.listener != nil {
		return a.listener.Close()
	}
	return nil
}

func (a *Acceptor) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
