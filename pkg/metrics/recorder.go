package metrics

import (
	"sync/atomic"
	"time"

	"github.com/Sternrassler/data-flux/pkg/collection"
	"github.com/Sternrassler/data-flux/pkg/pagination"
	"github.com/Sternrassler/data-flux/pkg/schema"
	"github.com/rs/zerolog"
)

// PipelineMetrics summarizes one batch run. Rates are 0 when Duration is 0.
// RequestsCached counts successful requests served by the page cache; they
// are part of RequestsTotal but not of SourceRequestsPerSec.
type PipelineMetrics struct {
	Collection        string        `json:"collection"`
	RequestsTotal     int64         `json:"requests_total"`
	RequestsSucceeded int64         `json:"requests_succeeded"`
	RequestsFailed    int64         `json:"requests_failed"`
	RequestsCached    int64         `json:"requests_cached"`
	RecordsAccepted   int64         `json:"records_accepted"`
	RecordsRejected   int64         `json:"records_rejected"`
	RecordsMapped     int64         `json:"records_mapped"`
	Duration          time.Duration `json:"duration_ns"`
	RequestsPerSec    float64       `json:"requests_per_sec"`
	RecordsPerSec     float64       `json:"records_per_sec"`

	SourceRequestsPerSec float64 `json:"source_requests_per_sec"`
}

// Candidates is the number of records that entered validation.
func (m PipelineMetrics) Candidates() int64 {
	return m.RecordsAccepted + m.RecordsRejected
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (m PipelineMetrics) MarshalZerologObject(e *zerolog.Event) {
	e.Str("collection", m.Collection).
		Int64("requests_total", m.RequestsTotal).
		Int64("requests_succeeded", m.RequestsSucceeded).
		Int64("requests_failed", m.RequestsFailed).
		Int64("requests_cached", m.RequestsCached).
		Int64("records_accepted", m.RecordsAccepted).
		Int64("records_rejected", m.RecordsRejected).
		Int64("records_mapped", m.RecordsMapped).
		Dur("duration", m.Duration).
		Float64("requests_per_sec", m.RequestsPerSec).
		Float64("records_per_sec", m.RecordsPerSec).
		Float64("source_requests_per_sec", m.SourceRequestsPerSec)
}

// Recorder accumulates the metrics of one run. It is safe for concurrent use.
type Recorder struct {
	collection collection.Collection
	logger     zerolog.Logger

	requests  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	cached    atomic.Int64
	accepted  atomic.Int64
	rejected  atomic.Int64
	mapped    atomic.Int64
}

var _ pagination.OutcomeObserver = (*Recorder)(nil)

// NewRecorder creates a recorder that logs through logger.
func NewRecorder(c collection.Collection, logger zerolog.Logger) *Recorder {
	return &Recorder{
		collection: c,
		logger:     logger.With().Str("collection", c.String()).Logger(),
	}
}

// ObserveRequest records one batch request outcome.
func (r *Recorder) ObserveRequest(o pagination.Outcome) {
	r.requests.Add(1)
	requestDuration.WithLabelValues(r.collection.String()).Observe(o.Elapsed.Seconds())

	if o.Success {
		r.succeeded.Add(1)
		status := "success"
		if o.Cached {
			r.cached.Add(1)
			status = "cached"
		}
		requestsTotal.WithLabelValues(r.collection.String(), status).Inc()
		r.logger.Info().
			Int("page", o.Page).
			Bool("cached", o.Cached).
			Dur("elapsed", o.Elapsed).
			Int("records", o.Records).
			Msg("Page fetched")
		return
	}

	r.failed.Add(1)
	requestsTotal.WithLabelValues(r.collection.String(), "failure").Inc()
	r.logger.Warn().
		Err(o.Err).
		Int("page", o.Page).
		Dur("elapsed", o.Elapsed).
		Msg("Page fetch failed")
}

// ObserveValidation records the validation outcome of the record at index in page.
func (r *Recorder) ObserveValidation(page, index int, res schema.Result) {
	if res.Accepted {
		r.accepted.Add(1)
		recordsTotal.WithLabelValues(r.collection.String(), "accepted").Inc()
		r.logger.Info().
			Int("page", page).
			Int("index", index).
			Msg("Record accepted")
		return
	}

	r.rejected.Add(1)
	recordsTotal.WithLabelValues(r.collection.String(), "rejected").Inc()
	r.logger.Warn().
		Int("page", page).
		Int("index", index).
		Strs("missing_fields", res.Missing).
		Msg("Record rejected")
}

// ObserveMapped adds n output records.
func (r *Recorder) ObserveMapped(n int) {
	r.mapped.Add(int64(n))
}

// Snapshot returns the counters without rates.
func (r *Recorder) Snapshot() PipelineMetrics {
	return PipelineMetrics{
		Collection:        r.collection.String(),
		RequestsTotal:     r.requests.Load(),
		RequestsSucceeded: r.succeeded.Load(),
		RequestsFailed:    r.failed.Load(),
		RequestsCached:    r.cached.Load(),
		RecordsAccepted:   r.accepted.Load(),
		RecordsRejected:   r.rejected.Load(),
		RecordsMapped:     r.mapped.Load(),
	}
}

// Finish computes the final metrics for a batch that took duration, logs the
// summary and updates the throughput gauges.
func (r *Recorder) Finish(duration time.Duration) PipelineMetrics {
	m := r.Snapshot()
	m.Duration = duration
	if secs := duration.Seconds(); secs > 0 {
		m.RequestsPerSec = float64(m.RequestsTotal) / secs
		m.RecordsPerSec = float64(m.RecordsAccepted) / secs
		m.SourceRequestsPerSec = float64(m.RequestsTotal-m.RequestsCached) / secs
	}

	lastRunRequestsPerSecond.WithLabelValues(m.Collection).Set(m.RequestsPerSec)
	lastRunRecordsPerSecond.WithLabelValues(m.Collection).Set(m.RecordsPerSec)

	r.logger.Info().EmbedObject(m).Msg("Batch complete")
	return m
}
