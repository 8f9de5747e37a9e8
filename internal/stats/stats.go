// Package stats provides process-wide counters for the proxy, safe for
// concurrent update, with a point-in-time snapshot for the stats endpoint
// and the periodic monitor.
package stats

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "proxy"

// Statistics is the process-wide counter bag the proxy maintains.
// Every field is backed by a Prometheus metric so the same numbers are
// independently scrapeable at GET /metrics in addition to being carried in
// the JSON snapshot served at GET /proxy-stats.
type Statistics struct {
	requestsTotal        *atomicCounter
	requestsSuccess      *atomicCounter
	requestsError        *atomicCounter
	bytesTransferred     *atomicCounter
	cacheHits            *atomicCounter
	cacheMisses          *atomicCounter
	activeConnections    *atomicCounter
	rateLimitedRequests  *atomicCounter
	methodGet            *atomicCounter
	methodPost           *atomicCounter
	methodPut            *atomicCounter
	methodDelete         *atomicCounter
	methodOther          *atomicCounter
	startTime            time.Time
	promRequestsTotal    prometheus.Counter
	promRequestsSuccess  prometheus.Counter
	promRequestsError    prometheus.Counter
	promBytesTransferred prometheus.Counter
	promCacheHits        prometheus.Counter
	promCacheMisses      prometheus.Counter
	promActiveConns      prometheus.Gauge
	promRateLimited      prometheus.Counter
	promMethod           *prometheus.CounterVec
}

// atomicCounter is a simple int64 counter safe for concurrent increment and
// decrement, and consistent to read (snapshot() never observes a partial
// update because each field is updated with a single atomic operation).
type atomicCounter struct {
	v int64
}

func (c *atomicCounter) add(delta int64) { atomic.AddInt64(&c.v, delta) }
func (c *atomicCounter) load() int64     { return atomic.LoadInt64(&c.v) }

// New creates a Statistics bag whose metrics are registered with
// registerer. A nil registerer gets a fresh private registry, so that
// repeated construction in tests never panics on duplicate metric
// registration.
func New(registerer prometheus.Registerer) *Statistics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	factory := promauto.With(registerer)

	s := &Statistics{
		requestsTotal:       &atomicCounter{},
		requestsSuccess:     &atomicCounter{},
		requestsError:       &atomicCounter{},
		bytesTransferred:    &atomicCounter{},
		cacheHits:           &atomicCounter{},
		cacheMisses:         &atomicCounter{},
		activeConnections:   &atomicCounter{},
		rateLimitedRequests: &atomicCounter{},
		methodGet:           &atomicCounter{},
		methodPost:          &atomicCounter{},
		methodPut:           &atomicCounter{},
		methodDelete:        &atomicCounter{},
		methodOther:         &atomicCounter{},
		startTime:           time.Now(),
	}

	s.promRequestsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "requests_total", Help: "Total requests accepted past the rate limiter.",
	})
	s.promRequestsSuccess = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "requests_success", Help: "Requests successfully proxied to an origin.",
	})
	s.promRequestsError = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "requests_error", Help: "Requests that ended in a handler-internal error.",
	})
	s.promBytesTransferred = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "bytes_transferred", Help: "Total response body bytes relayed to clients.",
	})
	s.promCacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "cache_hits", Help: "GET requests served from cache.",
	})
	s.promCacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "cache_misses", Help: "GET requests not found in cache.",
	})
	s.promActiveConns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "active_connections", Help: "Connections currently being handled.",
	})
	s.promRateLimited = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "rate_limited_requests", Help: "Connections rejected at accept time by the rate limiter.",
	})
	s.promMethod = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "requests_by_method", Help: "Requests observed per HTTP method.",
	}, []string{"method"})

	return s
}

// Increment adds delta to the named counter. Unknown names are silently
// ignored.
func (s *Statistics) Increment(name string, delta int64) {
	s.apply(name, delta)
}

// Decrement subtracts delta from the named counter.
func (s *Statistics) Decrement(name string, delta int64) {
	s.apply(name, -delta)
}

func (s *Statistics) apply(name string, delta int64) {
	switch name {
	case "requests_total":
		s.requestsTotal.add(delta)
		addToCounter(s.promRequestsTotal, delta)
	case "requests_success":
		s.requestsSuccess.add(delta)
		addToCounter(s.promRequestsSuccess, delta)
	case "requests_error":
		s.requestsError.add(delta)
		addToCounter(s.promRequestsError, delta)
	case "bytes_transferred":
		s.bytesTransferred.add(delta)
		addToCounter(s.promBytesTransferred, delta)
	case "cache_hits":
		s.cacheHits.add(delta)
		addToCounter(s.promCacheHits, delta)
	case "cache_misses":
		s.cacheMisses.add(delta)
		addToCounter(s.promCacheMisses, delta)
	case "active_connections":
		s.activeConnections.add(delta)
		s.promActiveConns.Add(float64(delta))
	case "rate_limited_requests":
		s.rateLimitedRequests.add(delta)
		addToCounter(s.promRateLimited, delta)
	default:
		// Unknown counter names are no-ops, matching the source behavior.
	}
}

// addToCounter adds delta to a Prometheus Counter, which rejects negative
// values; Statistics never decrements these fields, but guard anyway.
func addToCounter(c prometheus.Counter, delta int64) {
	if delta < 0 {
		return
	}
	c.Add(float64(delta))
}

// RecordMethod increments the per-method counter. Unrecognized methods map
// to the OTHER bucket.
func (s *Statistics) RecordMethod(method string) {
	switch strings.ToUpper(method) {
	case "GET":
		s.methodGet.add(1)
		s.promMethod.WithLabelValues("GET").Inc()
	case "POST":
		s.methodPost.add(1)
		s.promMethod.WithLabelValues("POST").Inc()
	case "PUT":
		s.methodPut.add(1)
		s.promMethod.WithLabelValues("PUT").Inc()
	case "DELETE":
		s.methodDelete.add(1)
		s.promMethod.WithLabelValues("DELETE").Inc()
	default:
		s.methodOther.add(1)
		s.promMethod.WithLabelValues("OTHER").Inc()
	}
}

// Snapshot is a point-in-time, internally consistent copy of all counters
// plus the derived fields uptime_seconds and cache_hit_ratio.
type Snapshot struct {
	RequestsTotal       int64          `json:"requests_total"`
	RequestsSuccess     int64          `json:"requests_success"`
	RequestsError       int64          `json:"requests_error"`
	BytesTransferred    int64          `json:"bytes_transferred"`
	CacheHits           int64          `json:"cache_hits"`
	CacheMisses         int64          `json:"cache_misses"`
	ActiveConnections   int64          `json:"active_connections"`
	RateLimitedRequests int64          `json:"rate_limited_requests"`
	RequestMethods      map[string]int64 `json:"request_methods"`
	StartTime           float64        `json:"start_time"`
	UptimeSeconds       float64        `json:"uptime_seconds"`
	CacheHitRatio       float64        `json:"cache_hit_ratio"`
}

// Snapshot returns a consistent copy of the counters. Each field read is a
// single atomic load, so a concurrent Increment is either fully reflected
// or not reflected at all — never half-applied.
func (s *Statistics) Snapshot() Snapshot {
	hits := s.cacheHits.load()
	misses := s.cacheMisses.load()

	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}

	return Snapshot{
		RequestsTotal:       s.requestsTotal.load(),
		RequestsSuccess:     s.requestsSuccess.load(),
		RequestsError:       s.requestsError.load(),
		BytesTransferred:    s.bytesTransferred.load(),
		CacheHits:           hits,
		CacheMisses:         misses,
		ActiveConnections:   s.activeConnections.load(),
		RateLimitedRequests: s.rateLimitedRequests.load(),
		RequestMethods: map[string]int64{
			"GET":    s.methodGet.load(),
			"POST":   s.methodPost.load(),
			"PUT":    s.methodPut.load(),
			"DELETE": s.methodDelete.load(),
			"OTHER":  s.methodOther.load(),
		},
		StartTime:     float64(s.startTime.Unix()),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		CacheHitRatio: ratio,
	}
}
