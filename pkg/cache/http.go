package cache

import (
	"net/http"
	"strings"
	"time"
)

// NewEntry builds a cache entry from an already-read response. Expiry comes
// from the Expires header, falling back to now+fallback. A response carrying
// Cache-Control: no-store gets an entry that is already expired, which Set
// skips.
func NewEntry(statusCode int, headers http.Header, body []byte, fallback time.Duration) *CacheEntry {
	now := time.Now()

	entry := &CacheEntry{
		Data:       body,
		StatusCode: statusCode,
		CachedAt:   now,
	}

	if noStore(headers) {
		entry.Expires = now
		return entry
	}

	entry.Expires = parseExpires(headers, fallback)
	return entry
}

// parseExpires parses the Expires header from HTTP headers.
// Returns the parsed expiration time, or current time + fallback if absent or invalid.
func parseExpires(headers http.Header, fallback time.Duration) time.Time {
	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return time.Now().Add(fallback)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return time.Now().Add(fallback)
	}

	if expires.Before(time.Now()) {
		return time.Now()
	}

	return expires
}

func noStore(headers http.Header) bool {
	for _, directive := range strings.Split(headers.Get("Cache-Control"), ",") {
		if strings.EqualFold(strings.TrimSpace(directive), "no-store") {
			return true
		}
	}
	return false
}
