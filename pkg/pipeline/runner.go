// Package pipeline runs one ingestion batch: discover the page count, fetch
// every page, validate and map each record, then hand the result to the
// configured sink and report store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Sternrassler/data-flux/pkg/collection"
	"github.com/Sternrassler/data-flux/pkg/metrics"
	"github.com/Sternrassler/data-flux/pkg/pagination"
	"github.com/Sternrassler/data-flux/pkg/report"
	"github.com/Sternrassler/data-flux/pkg/schema"
	"github.com/Sternrassler/data-flux/pkg/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config describes one run.
type Config struct {
	Collection     collection.Collection
	VersionID      int64
	VersionTitle   string
	VersionTTL     time.Duration
	SchemaVersion  string
	RequestSize    int
	MaxConcurrency int
	RequestTimeout time.Duration
	DevMode        bool
}

// Validate checks the run configuration.
func (c Config) Validate() error {
	var errs []error
	if !c.Collection.Valid() {
		errs = append(errs, fmt.Errorf("unknown collection %q", c.Collection))
	}
	if c.VersionID <= 0 {
		errs = append(errs, fmt.Errorf("version id must be > 0 (got %d)", c.VersionID))
	}
	if c.RequestSize <= 0 {
		errs = append(errs, fmt.Errorf("request size must be > 0 (got %d)", c.RequestSize))
	}
	if c.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("max concurrency must be > 0 (got %d)", c.MaxConcurrency))
	}
	return errors.Join(errs...)
}

// ReportSaver stores run reports.
type ReportSaver interface {
	Save(ctx context.Context, r report.Report) error
}

// Result is the output of a completed batch.
type Result struct {
	RunID      string
	Collection collection.Collection
	VersionID  int64
	Discovery  pagination.Discovery
	// Records are ordered by page, then by position within the page.
	Records  []schema.MappedRecord
	Failures []*pagination.FetchError
	Metrics  metrics.PipelineMetrics
	// Saved reports whether the records were handed to a sink successfully.
	Saved bool
	// Skipped are records the sink could not store; the rest were saved.
	Skipped    []store.SkippedRecord
	StartedAt  time.Time
	FinishedAt time.Time
}

// FailedPages returns the page indexes that could not be fetched, ascending.
func (r *Result) FailedPages() []int {
	pages := make([]int, len(r.Failures))
	for i, f := range r.Failures {
		pages[i] = f.Page
	}
	return pages
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink sets the sink the mapped records are saved to.
func WithSink(sink store.Sink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithReportStore sets the store run reports are written to.
func WithReportStore(reports ReportSaver) Option {
	return func(r *Runner) { r.reports = reports }
}

// WithLogger sets the base logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// Runner executes ingestion runs.
type Runner struct {
	cfg       Config
	source    pagination.PageFetcher
	validator *schema.Validator
	mapper    *schema.Mapper
	sink      store.Sink
	reports   ReportSaver
	logger    zerolog.Logger
}

// NewRunner creates a runner for cfg reading from source. The rule for
// (cfg.SchemaVersion, cfg.Collection) must exist in rules.
func NewRunner(cfg Config, source pagination.PageFetcher, rules *schema.RuleSet, opts ...Option) (*Runner, error) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = schema.DefaultVersion
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}

	validator, err := schema.NewValidator(rules, cfg.SchemaVersion, cfg.Collection)
	if err != nil {
		return nil, err
	}
	mapper, err := schema.NewMapper(cfg.Collection, cfg.VersionID)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:       cfg,
		source:    source,
		validator: validator,
		mapper:    mapper,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes one batch. A *pagination.DiscoveryError aborts the run before
// any page is fetched. A sink failure is returned together with the result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	logger := r.logger.With().
		Str("run_id", runID).
		Str("collection", r.cfg.Collection.String()).
		Int64("version_id", r.cfg.VersionID).
		Logger()

	result := &Result{
		RunID:      runID,
		Collection: r.cfg.Collection,
		VersionID:  r.cfg.VersionID,
		StartedAt:  time.Now(),
	}

	endpoint := r.cfg.Collection.Endpoint()
	disc, err := pagination.NewPageCounter(r.source, r.cfg.RequestTimeout).Count(ctx, endpoint, r.cfg.RequestSize)
	if err != nil {
		return nil, err
	}
	result.Discovery = disc

	recorder := metrics.NewRecorder(r.cfg.Collection, logger)
	fetcher := pagination.NewBatchFetcher(r.source, pagination.Config{
		MaxConcurrency: r.cfg.MaxConcurrency,
		Timeout:        r.cfg.RequestTimeout,
		PageSize:       disc.PageSize,
		TotalRecords:   disc.TotalRecords,
		ProgressEvery:  pagination.DefaultConfig().ProgressEvery,
	}, recorder)

	start := time.Now()
	byPage := make(map[int][]schema.MappedRecord, disc.TotalPages)
	for res := range fetcher.Fetch(ctx, endpoint, disc.TotalPages) {
		if res.Err != nil {
			result.Failures = append(result.Failures, res.Err)
			continue
		}
		byPage[res.Page] = r.process(recorder, res)
	}
	result.Metrics = recorder.Finish(time.Since(start))

	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].Page < result.Failures[j].Page })
	for page := 0; page < disc.TotalPages; page++ {
		result.Records = append(result.Records, byPage[page]...)
	}

	var saveErr error
	switch {
	case r.sink == nil:
	case r.cfg.DevMode:
		logger.Info().Int("records", len(result.Records)).Msg("Dev mode, skipping sink")
	default:
		var saved store.SaveResult
		saved, saveErr = r.sink.Save(ctx, store.Batch{
			Collection: r.cfg.Collection,
			Version: store.Version{
				ID:    r.cfg.VersionID,
				Title: r.cfg.VersionTitle,
				TTL:   r.cfg.VersionTTL,
			},
			Records: result.Records,
		})
		if saveErr != nil {
			logger.Error().Err(saveErr).Msg("Sink failed")
			saveErr = fmt.Errorf("save batch: %w", saveErr)
		} else {
			result.Saved = true
			result.Skipped = saved.Skipped
			if len(saved.Skipped) > 0 {
				logger.Warn().
					Int("skipped", len(saved.Skipped)).
					Int("written", saved.Written).
					Msg("Sink skipped records")
			}
		}
	}
	result.FinishedAt = time.Now()

	if r.reports != nil {
		rep := report.Report{
			RunID:         runID,
			Collection:    r.cfg.Collection,
			VersionID:     r.cfg.VersionID,
			SchemaVersion: r.validator.Version(),
			TotalRecords:  disc.TotalRecords,
			TotalPages:    disc.TotalPages,
			FailedPages:   result.FailedPages(),
			Metrics:       result.Metrics,
			Saved:         result.Saved,
			SkippedRows:   len(result.Skipped),
			StartedAt:     result.StartedAt,
			FinishedAt:    result.FinishedAt,
		}
		if err := r.reports.Save(ctx, rep); err != nil {
			logger.Warn().Err(err).Msg("Failed to save run report")
		}
	}

	return result, saveErr
}

// process validates every record of a fetched page and maps the accepted ones.
func (r *Runner) process(recorder *metrics.Recorder, res pagination.PageResult) []schema.MappedRecord {
	var out []schema.MappedRecord
	for i, rec := range res.Records {
		v := r.validator.Validate(rec)
		recorder.ObserveValidation(res.Page, i, v)
		if !v.Accepted {
			continue
		}
		mapped := r.mapper.Map(rec)
		for k := range mapped {
			mapped[k].Page, mapped[k].Index = res.Page, i
		}
		recorder.ObserveMapped(len(mapped))
		out = append(out, mapped...)
	}
	return out
}
