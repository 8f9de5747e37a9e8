// Package handler implements the per-connection request state machine:
// READ_REQUEST → CLASSIFY → {FILTERED | STATS | CACHED | FORWARD} →
// REPLY → CLOSE.
package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/modulelabs/httpproxy/internal/cache"
	"github.com/modulelabs/httpproxy/internal/filter"
	"github.com/modulelabs/httpproxy/internal/logging"
	"github.com/modulelabs/httpproxy/internal/originpool"
	"github.com/modulelabs/httpproxy/internal/stats"
)

// StatsEndpoint is the reserved path that is never forwarded, never
// filtered, but still subject to the accept-time rate check.
const StatsEndpoint = "/proxy-stats"

// MetricsEndpoint exposes the same Statistics counters in Prometheus
// text exposition format. Like StatsEndpoint it is classified before
// FORWARD, never proxied to an origin.
const MetricsEndpoint = "/metrics"

// Handler owns everything one accepted connection's lifecycle needs.
// A single Handler is shared by every worker goroutine — it holds no
// per-connection state itself.
type Handler struct {
	Filter            *filter.RequestFilter
	Cache             *cache.Manager
	Pool              *originpool.Pool
	Stats             *stats.Statistics
	Gatherer          prometheus.Gatherer
	ConnectionTimeout time.Duration
	EnableCompression bool
	MaxResponseBody   int64
	Logger            *slog.Logger
}

// Handle runs the full state machine for one accepted connection. It
// never returns an error — failures are turned into an HTTP error reply
// and logged.
func (h *Handler) Handle(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		h.Stats.Decrement("active_connections", 1)
	}()

	requestID := logging.NewRequestID()
	ctx := logging.ContextWithRequestID(context.Background(), requestID)
	reqLogger := h.loggerFor(ctx)

	deadline := time.Now().Add(h.ConnectionTimeout)
	_ = conn.SetDeadline(deadline)

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	req, err := readRequest(reader, DefaultMaxResponseBodyBytes)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			reqLogger.Debug("failed to read request", "error", err)
		}
		if isTimeoutErr(err) {
			h.replyError(writer, http.StatusRequestTimeout, "")
			return
		}
		h.replyError(writer, http.StatusBadRequest, "")
		return
	}

	h.Stats.Increment("requests_total", 1)
	h.Stats.RecordMethod(req.Method)

	switch {
	case req.Target == StatsEndpoint:
		h.replyStats(writer)
		return
	case req.Target == MetricsEndpoint:
		h.replyMetrics(writer)
		return
	case h.Filter.ShouldFilter(req.Target, req.Headers):
		h.replyError(writer, http.StatusForbidden, "")
		return
	}

	if strings.EqualFold(req.Method, http.MethodGet) {
		entry, err := h.Cache.Get(ctx, req.Method, req.Target, req.Headers, req.Body)
		if err == nil && entry != nil {
			h.replyCached(writer, req, entry)
			return
		}
	}

	h.forward(ctx, writer, req, deadline)
}

// forward implements the FORWARD state: select an origin, issue the
// request, map failures to status codes, and store a successful GET in
// the cache before handing off to REPLY.
func (h *Handler) forward(ctx context.Context, writer *bufio.Writer, req *Request, deadline time.Time) {
	reqLogger := h.loggerFor(ctx)

	origin := h.Pool.Select()
	if origin == "" {
		h.errorAndReply(writer, http.StatusBadGateway, "no backend servers configured")
		return
	}

	target := req.Target
	var absoluteURL string
	if strings.HasPrefix(target, "http") {
		absoluteURL = target
	} else {
		absoluteURL = origin + target
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, absoluteURL, newBodyReader(req.Body))
	if err != nil {
		h.errorAndReply(writer, http.StatusBadGateway, err.Error())
		return
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := h.Pool.SessionFor(origin)
	resp, err := client.Do(httpReq)
	if err != nil {
		h.Stats.Increment("requests_error", 1)
		if errors.Is(err, context.DeadlineExceeded) || isTimeoutErr(err) {
			reqLogger.Debug("origin request timed out", "origin", origin, "error", err)
			h.replyError(writer, http.StatusGatewayTimeout, "")
			return
		}
		reqLogger.Debug("origin request failed", "origin", origin, "error", err)
		h.replyError(writer, http.StatusBadGateway, "")
		return
	}
	defer resp.Body.Close()

	body, err := readLimitedBody(resp.Body, h.maxResponseBody())
	if err != nil && !errors.Is(err, ErrResponseBodyTooLarge) {
		h.Stats.Increment("requests_error", 1)
		reqLogger.Debug("reading origin response body failed", "origin", origin, "error", err)
		h.replyError(writer, http.StatusBadGateway, "")
		return
	}

	respHeaders := flattenHeader(resp.Header)

	if strings.EqualFold(req.Method, http.MethodGet) && resp.StatusCode >= 200 && resp.StatusCode < 400 {
		_ = h.Cache.Put(ctx, req.Method, req.Target, req.Headers, resp.StatusCode, respHeaders, body)
	}

	h.Stats.Increment("requests_success", 1)
	h.Stats.Increment("bytes_transferred", int64(len(body)))

	acceptEncoding := req.Headers["Accept-Encoding"]
	_ = writeResponse(writer, resp.StatusCode, respHeaders, body, h.EnableCompression, acceptEncoding)
}

// replyCached serves a cache hit through the same REPLY composition path
// a live origin response uses.
func (h *Handler) replyCached(writer *bufio.Writer, req *Request, entry *cache.Entry) {
	acceptEncoding := req.Headers["Accept-Encoding"]
	h.Stats.Increment("requests_success", 1)
	h.Stats.Increment("bytes_transferred", int64(len(entry.Body)))
	_ = writeResponse(writer, entry.StatusCode, entry.Headers, entry.Body, h.EnableCompression, acceptEncoding)
}

// replyStats serves GET /proxy-stats: a pretty-printed JSON snapshot.
func (h *Handler) replyStats(writer *bufio.Writer) {
	snap := h.Stats.Snapshot()
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		h.replyError(writer, http.StatusInternalServerError, "")
		return
	}
	headers := map[string]string{"Content-Type": "application/json"}
	_ = writeResponse(writer, http.StatusOK, headers, body, false, "")
}

// replyMetrics serves GET /metrics in Prometheus text exposition format.
func (h *Handler) replyMetrics(writer *bufio.Writer) {
	if h.Gatherer == nil {
		h.replyError(writer, http.StatusNotFound, "")
		return
	}
	families, err := h.Gatherer.Gather()
	if err != nil {
		h.replyError(writer, http.StatusInternalServerError, "")
		return
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			h.replyError(writer, http.StatusInternalServerError, "")
			return
		}
	}

	headers := map[string]string{"Content-Type": string(expfmt.NewFormat(expfmt.TypeTextPlain))}
	_ = writeResponse(writer, http.StatusOK, headers, buf.Bytes(), false, "")
}

func (h *Handler) errorAndReply(writer *bufio.Writer, status int, msg string) {
	h.Stats.Increment("requests_error", 1)
	h.replyError(writer, status, msg)
}

func (h *Handler) replyError(writer *bufio.Writer, status int, msg string) {
	if msg == "" {
		msg = reasonPhrase(status)
	}
	headers := map[string]string{"Content-Type": "text/plain; charset=utf-8"}
	_ = writeResponse(writer, status, headers, []byte(msg), false, "")
}

func (h *Handler) maxResponseBody() int64 {
	if h.MaxResponseBody > 0 {
		return h.MaxResponseBody
	}
	return DefaultMaxResponseBodyBytes
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// loggerFor attaches ctx's request ID, if any, to every line logged
// through the returned logger.
func (h *Handler) loggerFor(ctx context.Context) *slog.Logger {
	base := h.logger()
	if id := logging.RequestIDFromContext(ctx); id != "" {
		return base.With("request_id", id)
	}
	return base
}

func flattenHeader(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for k, v := range header {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func newBodyReader(body []byte) io.Reader {
	if len(body) == 0 {
		return nil
	}
	return strings.NewReader(string(body))
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}

