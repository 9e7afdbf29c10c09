package pagination

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/data-flux/pkg/client"
	"github.com/Sternrassler/data-flux/pkg/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of requests in flight
	MaxConcurrency int
	// Timeout per page request
	Timeout time.Duration
	// PageSize sent with every request; use the size discovery reported
	PageSize int
	// TotalRecords discovery reported; carried on every request for cache keying
	TotalRecords int
	// ProgressEvery logs progress after this many completed pages (0 disables)
	ProgressEvery int
}

// DefaultConfig returns the default batch configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 100,
		Timeout:        15 * time.Second,
		PageSize:       100,
		ProgressEvery:  50,
	}
}

// PageFetcher fetches a single page from the source.
type PageFetcher interface {
	FetchPage(ctx context.Context, req client.PageRequest) (*client.Page, error)
}

// Throttler is implemented by fetchers that rate-limit requests. The batch
// fetcher takes a token on the run context before a page's timeout starts and
// marks the request Admitted.
type Throttler interface {
	Wait(ctx context.Context) error
}

// Outcome describes one completed page request. Cached outcomes were served
// without contacting the source.
type Outcome struct {
	Page    int
	Success bool
	Cached  bool
	Elapsed time.Duration
	Records int
	Err     error
}

// OutcomeObserver receives one Outcome per page request. It is called from
// worker goroutines and must be safe for concurrent use.
type OutcomeObserver interface {
	ObserveRequest(Outcome)
}

// FetchError is a page whose request failed. The page's records are lost for
// this run.
type FetchError struct {
	Page  int
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// PageResult is the result of one page request. Exactly one of Records or
// Err is meaningful.
type PageResult struct {
	Page    int
	Records []schema.RawRecord
	Err     *FetchError
}

// BatchFetcher fetches all pages of an endpoint with a worker pool.
type BatchFetcher struct {
	fetcher  PageFetcher
	config   Config
	observer OutcomeObserver
	logger   zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher. observer may be nil.
func NewBatchFetcher(fetcher PageFetcher, config Config, observer OutcomeObserver) *BatchFetcher {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.ProgressEvery < 0 {
		config.ProgressEvery = 0
	}

	return &BatchFetcher{
		fetcher:  fetcher,
		config:   config,
		observer: observer,
		logger:   log.With().Str("component", "batch-fetcher").Logger(),
	}
}

// Fetch requests pages 0..totalPages-1 of endpoint, each exactly once, and
// streams results in completion order. The channel is closed after the last
// result. Cancelling ctx makes remaining requests fail fast; every page still
// yields a result.
func (bf *BatchFetcher) Fetch(ctx context.Context, endpoint string, totalPages int) <-chan PageResult {
	workers := bf.config.MaxConcurrency
	if totalPages < workers {
		workers = totalPages
	}

	results := make(chan PageResult, workers)
	if totalPages <= 0 {
		close(results)
		return results
	}

	pageQueue := make(chan int, workers)
	go func() {
		for page := 0; page < totalPages; page++ {
			pageQueue <- page
		}
		close(pageQueue)
	}()

	bf.logger.Info().
		Str("endpoint", endpoint).
		Int("total_pages", totalPages).
		Int("workers", workers).
		Msg("Starting batch fetch")

	var completed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, endpoint, totalPages, pageQueue, results, &completed, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// worker processes pages from the queue until it is drained.
func (bf *BatchFetcher) worker(ctx context.Context, endpoint string, totalPages int, pageQueue <-chan int, results chan<- PageResult, completed *atomic.Int64, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for page := range pageQueue {
		results <- bf.fetchOne(ctx, endpoint, page)
		pagesProcessed++

		done := completed.Add(1)
		if every := int64(bf.config.ProgressEvery); every > 0 && done%every == 0 {
			bf.logger.Info().
				Int64("fetched", done).
				Int("total", totalPages).
				Float64("progress_pct", float64(done)/float64(totalPages)*100).
				Msg("Fetch progress")
		}
	}

	bf.logger.Debug().
		Int("worker_id", workerID).
		Int("pages_processed", pagesProcessed).
		Msg("Worker completed")
}

// fetchOne requests one page under its own timeout and reports the outcome.
func (bf *BatchFetcher) fetchOne(ctx context.Context, endpoint string, page int) PageResult {
	req := client.PageRequest{
		Endpoint: endpoint,
		Page:     page + 1,
		Size:     bf.config.PageSize,
		Total:    bf.config.TotalRecords,
	}

	if throttler, ok := bf.fetcher.(Throttler); ok {
		if err := throttler.Wait(ctx); err != nil {
			bf.observe(Outcome{Page: page, Err: err})
			return PageResult{Page: page, Err: &FetchError{Page: page, Cause: fmt.Errorf("rate limiter wait: %w", err)}}
		}
		req.Admitted = true
	}

	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := bf.fetcher.FetchPage(pageCtx, req)
	elapsed := time.Since(start)

	if err != nil {
		bf.observe(Outcome{Page: page, Elapsed: elapsed, Err: err})
		return PageResult{Page: page, Err: &FetchError{Page: page, Cause: err}}
	}

	bf.observe(Outcome{Page: page, Success: true, Cached: resp.Cached, Elapsed: elapsed, Records: len(resp.Items)})
	return PageResult{Page: page, Records: resp.Items}
}

func (bf *BatchFetcher) observe(o Outcome) {
	if bf.observer != nil {
		bf.observer.ObserveRequest(o)
	}
}
