package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/data-flux/pkg/collection"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNotFound indicates no report exists for the requested key.
var ErrNotFound = errors.New("report not found")

var reportsSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dataflux_reports_saved_total",
	Help: "Run reports written to Redis by collection",
}, []string{"collection"})

// Store reads and writes run reports in Redis.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewStore creates a report store. Reports expire after ttl; 0 keeps them
// until overwritten.
func NewStore(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// Save writes the report and moves the collection's latest pointer to it in
// one pipeline.
func (s *Store) Save(ctx context.Context, r Report) error {
	if !r.Collection.Valid() {
		return fmt.Errorf("invalid collection %q", r.Collection)
	}
	if r.VersionID <= 0 {
		return fmt.Errorf("version id must be > 0 (got %d)", r.VersionID)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, ReportKey(r.Collection, r.VersionID), data, s.ttl)
	pipe.Set(ctx, LatestKey(r.Collection), r.VersionID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store report in redis: %w", err)
	}

	reportsSavedTotal.WithLabelValues(r.Collection.String()).Inc()

	logEvent := s.logger.Info()
	if !r.Complete() {
		logEvent = s.logger.Warn().Ints("failed_pages", r.FailedPages)
	}
	logEvent.
		Str("run_id", r.RunID).
		Str("collection", r.Collection.String()).
		Int64("version_id", r.VersionID).
		Msg("Run report saved")

	return nil
}

// Get returns the report of one (collection, version) run.
func (s *Store) Get(ctx context.Context, c collection.Collection, versionID int64) (*Report, error) {
	data, err := s.redis.Get(ctx, ReportKey(c, versionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}

// Latest returns the most recently saved report of a collection.
func (s *Store) Latest(ctx context.Context, c collection.Collection) (*Report, error) {
	versionID, err := s.redis.Get(ctx, LatestKey(c)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get latest version: %w", err)
	}
	return s.Get(ctx, c, versionID)
}
