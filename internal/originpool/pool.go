// Package originpool implements the proxy's per-origin HTTP client pool:
// one reusable client per backend origin, bounded idle-connection count,
// and uniformly random origin selection with no health checking or
// retry.
package originpool

import (
	"crypto/tls"
	"math/rand"
	"net/http"
	"time"
)

// Pool holds one *http.Client per configured backend origin.
type Pool struct {
	origins []string
	clients map[string]*http.Client
}

// Config controls the per-origin client construction.
type Config struct {
	Origins            []string
	MaxIdleConnsPerHost int
	Timeout             time.Duration
}

// New builds a Pool with one client per origin. Redirects are disabled
// (the response is relayed to the client as-is) and TLS certificate
// verification is disabled, a known simplification a production
// deployment must make configurable.
func New(cfg Config) *Pool {
	maxIdle := cfg.MaxIdleConnsPerHost
	if maxIdle <= 0 {
		maxIdle = 10
	}

	p := &Pool{
		origins: append([]string(nil), cfg.Origins...),
		clients: make(map[string]*http.Client, len(cfg.Origins)),
	}

	for _, origin := range cfg.Origins {
		transport := &http.Transport{
			MaxIdleConnsPerHost: maxIdle,
			MaxIdleConns:        maxIdle,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // known simplification
		}
		p.clients[origin] = &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	return p
}

// Select chooses a backend origin uniformly at random. There is no
// health checking or weighting — every configured origin is always
// eligible. Uses the package-level math/rand source, which is safe for
// concurrent use by the many worker goroutines calling Select at once.
func (p *Pool) Select() string {
	if len(p.origins) == 0 {
		return ""
	}
	if len(p.origins) == 1 {
		return p.origins[0]
	}
	return p.origins[rand.Intn(len(p.origins))]
}

// SessionFor returns the reusable client for origin.
func (p *Pool) SessionFor(origin string) *http.Client {
	return p.clients[origin]
}

// Origins returns the configured backend origin list.
func (p *Pool) Origins() []string {
	return p.origins
}
