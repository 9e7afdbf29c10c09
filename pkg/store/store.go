// Package store defines the persistence boundary of a run: a Sink receives
// the mapped records of one (collection, version) batch.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/data-flux/pkg/collection"
	"github.com/Sternrassler/data-flux/pkg/schema"
)

// Version identifies the data version a batch is written under.
type Version struct {
	ID    int64
	Title string
	// TTL sets the version's expiry relative to its creation; 0 never expires.
	TTL time.Duration
}

// Batch is the output of one run.
type Batch struct {
	Collection collection.Collection
	Version    Version
	Records    []schema.MappedRecord
}

// SkippedRecord is a mapped record a sink could not turn into a row. Page
// and Index locate the source record; Column names the offending column.
type SkippedRecord struct {
	Page   int
	Index  int
	Column string
	Err    error
}

func (s SkippedRecord) Error() string {
	return fmt.Sprintf("page %d record %d: %s: %v", s.Page, s.Index, s.Column, s.Err)
}

func (s SkippedRecord) Unwrap() error {
	return s.Err
}

// SaveResult reports what a sink did with a batch.
type SaveResult struct {
	// Written is the number of rows handed to the database.
	Written int
	// Skipped are the records left out of the batch.
	Skipped []SkippedRecord
}

// Sink persists batches. A record the sink cannot store is skipped and
// reported in SaveResult; it never fails the rest of the batch.
type Sink interface {
	Save(ctx context.Context, batch Batch) (SaveResult, error)
}
