package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "dataflux"

// CacheKey identifies one cached page request.
type CacheKey struct {
	// Endpoint is the collection path (e.g., "/users")
	Endpoint string

	// QueryParams are the pagination parameters (e.g., page=1, size=100)
	QueryParams url.Values

	// Total is the record count discovery reported for the run. Pages cached
	// while the collection had a different size live under another key and
	// are never served. 0 leaves the key unversioned.
	Total int
}

// String generates a deterministic cache key string.
// Format: dataflux:endpoint[:total=N]:query1=val1:query2=val2
//
// Example:
//
//	dataflux:users:total=250:page=1:size=100
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}
	if k.Total > 0 {
		parts = append(parts, fmt.Sprintf("total=%d", k.Total))
	}

	// Query params sorted for determinism
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
