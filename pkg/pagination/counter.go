package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/data-flux/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Discovery is the size of a collection as reported by the source.
type Discovery struct {
	Endpoint     string
	TotalRecords int
	PageSize     int
	TotalPages   int
}

// DiscoveryError means the collection size could not be determined. The run
// cannot continue without it.
type DiscoveryError struct {
	Endpoint string
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.Endpoint, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

var (
	errMissingTotal = errors.New("response has no total")
	errMissingSize  = errors.New("response has no size")
)

// TotalPages returns ceil(total/size), or 0 when either is not positive.
func TotalPages(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// PageCounter determines how many pages a collection spans.
type PageCounter struct {
	fetcher PageFetcher
	timeout time.Duration
	logger  zerolog.Logger
}

// NewPageCounter creates a page counter. A timeout <= 0 uses the default
// request timeout.
func NewPageCounter(fetcher PageFetcher, timeout time.Duration) *PageCounter {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &PageCounter{
		fetcher: fetcher,
		timeout: timeout,
		logger:  log.With().Str("component", "page-counter").Logger(),
	}
}

// Count requests the first page with the given size and derives the page
// count from the size the source reports, which may be smaller than the one
// requested. Any failure is a *DiscoveryError.
func (pc *PageCounter) Count(ctx context.Context, endpoint string, requestSize int) (Discovery, error) {
	fail := func(err error) (Discovery, error) {
		pc.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Discovery failed")
		return Discovery{}, &DiscoveryError{Endpoint: endpoint, Err: err}
	}

	if requestSize <= 0 {
		return fail(fmt.Errorf("request size must be > 0 (got %d)", requestSize))
	}

	reqCtx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	page, err := pc.fetcher.FetchPage(reqCtx, client.PageRequest{
		Endpoint:  endpoint,
		Page:      1,
		Size:      requestSize,
		SkipCache: true,
	})
	if err != nil {
		return fail(err)
	}

	switch {
	case page.Total == nil:
		return fail(errMissingTotal)
	case page.Size == nil:
		return fail(errMissingSize)
	case *page.Size <= 0:
		return fail(fmt.Errorf("invalid page size %d", *page.Size))
	case *page.Total < 0:
		return fail(fmt.Errorf("invalid total %d", *page.Total))
	}

	disc := Discovery{
		Endpoint:     endpoint,
		TotalRecords: *page.Total,
		PageSize:     *page.Size,
		TotalPages:   TotalPages(*page.Total, *page.Size),
	}

	if disc.PageSize != requestSize {
		pc.logger.Warn().
			Int("requested", requestSize).
			Int("reported", disc.PageSize).
			Msg("Source changed the page size")
	}
	if page.Pages != nil && *page.Pages != disc.TotalPages {
		pc.logger.Warn().
			Int("reported_pages", *page.Pages).
			Int("computed_pages", disc.TotalPages).
			Msg("Source page count disagrees with total/size")
	}

	pc.logger.Info().
		Str("endpoint", endpoint).
		Int("total_records", disc.TotalRecords).
		Int("page_size", disc.PageSize).
		Int("total_pages", disc.TotalPages).
		Msg("Discovery complete")

	return disc, nil
}
