// Package cache keeps downloaded NR payloads in Redis so that identifiers
// shared between customers, or re-audited within the re-download window, do
// not consume API quota again.
//
// Entries are stored under nrdata:payload:<identifier> with a Redis TTL equal
// to the configured maximum age. An entry younger than FreshFor is served as
// is. An older entry that still carries an ETag or Last-Modified value is
// revalidated with a conditional request; a 304 answer refreshes it.
//
// # Basic Usage
//
//	manager, err := cache.NewManager(redisClient, cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	entry, err := manager.Get(ctx, id)
//	switch {
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch from the API
//	case err != nil:
//		// Redis trouble: log and fetch from the API
//	case manager.IsFresh(entry, now):
//		// use entry.Payload
//	case entry.CanRevalidate():
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// # Metrics
//
//   - nrdata_cache_hits_total
//   - nrdata_cache_misses_total
//   - nrdata_cache_errors_total{operation}
//   - nrdata_cache_conditional_requests_total
//   - nrdata_cache_not_modified_total
package cache
