// Package cache provides an optional Redis-backed cache of source page bodies.
//
// Re-running an ingestion against a source that has not changed (typical in
// dev mode, or when the three collections are ingested back to back) does not
// need to hit the source again for every page. The cache stores the raw JSON
// body of each successful batch page request under a deterministic key.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 5*time.Minute)
//
//	key := cache.CacheKey{
//		Endpoint:    "/users",
//		QueryParams: url.Values{"page": []string{"1"}, "size": []string{"100"}},
//		Total:       250,
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the source, then
//		entry = cache.NewEntry(resp.StatusCode, resp.Header, body, manager.DefaultTTL())
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Expiry
//
// An entry lives until the source's Expires header when present, otherwise for
// the manager's default TTL. Responses marked Cache-Control: no-store are
// never cached, and neither are failed responses. Discovery requests bypass the
// cache entirely so page counts are always fresh; batch requests carry the
// discovered total in their key, so a collection that grew or shrank since
// the pages were cached is fetched again.
//
// # Metrics
//
//   - dataflux_cache_hits_total - Cache hits
//   - dataflux_cache_misses_total - Cache misses
//   - dataflux_cache_errors_total{operation} - Cache operation errors
package cache
