package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// cacheableHeaders are the only request headers that influence the cache
// key: accept, accept-language and accept-encoding affect representation
// selection, everything else (auth, cookies, tracing headers) must not
// fragment the cache.
var cacheableHeaders = []string{"accept", "accept-language", "accept-encoding"}

// keyComponents is marshaled to produce a stable JSON string prior to
// hashing. Map key ordering for map[string]string is not guaranteed
// stable across marshal calls, so headers are flattened into a
// pre-sorted slice instead of relying on encoder ordering.
type keyComponents struct {
	Method  string      `json:"method"`
	URL     string      `json:"url"`
	Headers [][2]string `json:"headers"`
	Body    string      `json:"body,omitempty"`
}

// Key computes the content-address for a request: method, URL, the
// cacheable header subset (sorted, lowercased), and — for non-GET
// methods — the request body, hashed to a lowercase hex digest.
func Key(method, url string, headers map[string]string, body []byte) string {
	method = strings.ToUpper(method)

	filtered := make(map[string]string, len(cacheableHeaders))
	for k, v := range headers {
		lk := strings.ToLower(k)
		for _, allowed := range cacheableHeaders {
			if lk == allowed {
				filtered[lk] = v
				break
			}
		}
	}

	pairs := make([][2]string, 0, len(filtered))
	for k, v := range filtered {
		pairs = append(pairs, [2]string{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })

	comp := keyComponents{
		Method:  method,
		URL:     url,
		Headers: pairs,
	}
	if method != "GET" && len(body) > 0 {
		comp.Body = string(body)
	}

	data, _ := json.Marshal(comp)

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
