package client

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// responseCache holds fresh responses for idempotent reads. Keys are
// "METHOD normalizedURL bodyDigest"; an entry is never returned past
// its expiry.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	resp    *Response
	expires time.Time
}

func newResponseCache() *responseCache {
	return &responseCache{entries: make(map[string]cacheEntry)}
}

func (c *responseCache) get(key string, now time.Time) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.resp, true
}

func (c *responseCache) put(key string, resp *Response, ttl time.Duration, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{resp: resp, expires: now.Add(ttl)}
}

// invalidateURL drops every entry cached for the given normalized URL,
// regardless of method or body digest. Writes call this so reads never
// see a response the write just made stale.
func (c *responseCache) invalidateURL(normalizedURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.Contains(k, " "+normalizedURL+" ") {
			delete(c.entries, k)
		}
	}
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cacheKey derives the lookup key from method, normalized URL and a
// digest of the request body.
func cacheKey(method, normalizedURL string, body []byte) string {
	sum := sha256.Sum256(body)
	return method + " " + normalizedURL + " " + hex.EncodeToString(sum[:8])
}

// normalizeURL canonicalizes scheme/host casing and query ordering so
// logically identical requests share a cache key.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if q := u.Query(); len(q) > 0 {
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			vs := q[k]
			sort.Strings(vs)
			for _, v := range vs {
				if b.Len() > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = b.String()
	}
	return u.String()
}
