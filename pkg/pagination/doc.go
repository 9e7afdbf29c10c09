// Package pagination discovers the page count of a source collection and
// fetches every page concurrently with a bounded worker pool.
//
// Discovery issues one request for the first page and derives the page count
// from the reported total and page size:
//
//	counter := pagination.NewPageCounter(source, 15*time.Second)
//	disc, err := counter.Count(ctx, "/users", 100)
//
// The batch fetcher then requests every page exactly once:
//
//	fetcher := pagination.NewBatchFetcher(source, pagination.Config{
//		MaxConcurrency: 100,
//		PageSize:       disc.PageSize,
//	}, recorder)
//	for res := range fetcher.Fetch(ctx, "/users", disc.TotalPages) {
//		...
//	}
//
// The batch fetcher:
//   - Runs min(MaxConcurrency, pages) workers
//   - Gives every request its own timeout
//   - Delivers results in completion order
//   - Turns a failed page into a FetchError without stopping the batch
//   - Never retries a page
//
// Page indexes are 0-based; index i is requested as source page i+1.
package pagination
