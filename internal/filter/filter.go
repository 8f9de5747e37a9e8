// Package filter implements the proxy's request denylist.
package filter

import (
	"strings"
	"sync/atomic"
)

// RequestFilter blocks requests whose URL contains any configured
// substring, case-insensitively. Headers are accepted for future rule
// types, but the current rule set only inspects the URL.
type RequestFilter struct {
	rules atomic.Pointer[[]string]
}

// New creates a RequestFilter from the initial denylist.
func New(rules []string) *RequestFilter {
	f := &RequestFilter{}
	f.Set(rules)
	return f
}

// Set atomically replaces the denylist, used by config.FilterWatcher on
// hot reload.
func (f *RequestFilter) Set(rules []string) {
	cp := make([]string, len(rules))
	copy(cp, rules)
	f.rules.Store(&cp)
}

// ShouldFilter reports whether url should be blocked. headers is unused
// by the current rule set; it is accepted so callers can pass request
// headers through without the signature needing to change if header-based
// rules are added later.
func (f *RequestFilter) ShouldFilter(url string, headers map[string]string) bool {
	rules := f.rules.Load()
	if rules == nil || len(*rules) == 0 {
		return false
	}

	urlLower := strings.ToLower(url)
	for _, rule := range *rules {
		if rule == "" {
			continue
		}
		if strings.Contains(urlLower, strings.ToLower(rule)) {
			return true
		}
	}
	return false
}
