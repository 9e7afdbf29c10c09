// Package report persists the outcome of each ingestion run in Redis so the
// latest metrics of every (collection, version) pair can be inspected after
// the batch process has exited.
package report

import (
	"fmt"
	"time"

	"github.com/Sternrassler/data-flux/pkg/collection"
	"github.com/Sternrassler/data-flux/pkg/metrics"
)

// Redis key layout.
const (
	// RedisKeyPrefix prefixes every report key.
	RedisKeyPrefix = "dataflux:report"

	// latestSuffix names the pointer to the most recent version of a collection.
	latestSuffix = "latest"
)

// Report is the stored outcome of one run.
type Report struct {
	RunID         string                  `json:"run_id"`
	Collection    collection.Collection   `json:"collection"`
	VersionID     int64                   `json:"version_id"`
	SchemaVersion string                  `json:"schema_version"`
	TotalRecords  int                     `json:"total_records"`
	TotalPages    int                     `json:"total_pages"`
	FailedPages   []int                   `json:"failed_pages,omitempty"`
	Metrics       metrics.PipelineMetrics `json:"metrics"`
	Saved         bool                    `json:"saved"`
	SkippedRows   int                     `json:"skipped_rows,omitempty"`
	StartedAt     time.Time               `json:"started_at"`
	FinishedAt    time.Time               `json:"finished_at"`
}

// Complete reports whether every page of the run was fetched.
func (r *Report) Complete() bool {
	return len(r.FailedPages) == 0
}

// ReportKey returns the key a report is stored under.
func ReportKey(c collection.Collection, versionID int64) string {
	return fmt.Sprintf("%s:%s:%d", RedisKeyPrefix, c, versionID)
}

// LatestKey returns the key holding the latest version id of a collection.
func LatestKey(c collection.Collection) string {
	return fmt.Sprintf("%s:%s:%s", RedisKeyPrefix, c, latestSuffix)
}
