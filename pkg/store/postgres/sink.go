// Package postgres implements the Postgres sink with pgx. A batch is written
// in one transaction: the versions row is upserted, records are bulk-copied
// into a staging table and moved into the target table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/data-flux/pkg/collection"
	"github.com/Sternrassler/data-flux/pkg/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const upsertVersion = `INSERT INTO versions (id, title, expiry_at)
VALUES ($1, NULLIF($2, ''), CASE WHEN $3::float8 > 0 THEN now() + make_interval(secs => $3::float8) END)
ON CONFLICT (id) DO NOTHING`

// Sink writes batches to Postgres.
type Sink struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

var _ store.Sink = (*Sink)(nil)

// New connects to the database at dsn.
func New(ctx context.Context, dsn string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Sink{
		pool:   pool,
		logger: log.With().Str("component", "postgres-sink").Logger(),
	}, nil
}

// Close releases all connections.
func (s *Sink) Close() {
	s.pool.Close()
}

// EnsureSchema creates the versions table and the collection tables if they
// do not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	statements := []string{versionsDDL}
	for _, c := range collection.All() {
		statements = append(statements, tables[c].createDDL())
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Save writes one batch. Rows already present for the batch's version are
// left untouched, so saving the same batch twice is harmless. Records that
// cannot be converted to their table's column types are skipped, logged and
// returned in the result.
func (s *Sink) Save(ctx context.Context, batch store.Batch) (store.SaveResult, error) {
	var result store.SaveResult
	t, ok := tables[batch.Collection]
	if !ok {
		return result, fmt.Errorf("unknown collection %q", batch.Collection)
	}
	if batch.Version.ID <= 0 {
		return result, fmt.Errorf("version id must be > 0 (got %d)", batch.Version.ID)
	}

	rows, skipped, err := buildRows(t, batch.Records)
	if err != nil {
		return result, err
	}
	result.Skipped = skipped
	for _, sk := range skipped {
		s.logger.Warn().
			Err(sk.Err).
			Str("collection", batch.Collection.String()).
			Int("page", sk.Page).
			Int("index", sk.Index).
			Str("column", sk.Column).
			Msg("Record skipped")
	}

	start := time.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Warn().Err(err).Msg("Rollback failed")
		}
	}()

	if _, err := tx.Exec(ctx, upsertVersion, batch.Version.ID, batch.Version.Title, batch.Version.TTL.Seconds()); err != nil {
		return result, fmt.Errorf("upsert version %d: %w", batch.Version.ID, err)
	}

	var inserted int64
	if len(rows) > 0 {
		if _, err := tx.Exec(ctx, t.stagingDDL()); err != nil {
			return result, fmt.Errorf("create staging table: %w", err)
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{t.stagingName()}, t.columns, pgx.CopyFromRows(rows)); err != nil {
			return result, fmt.Errorf("copy %s rows: %w", t.name, err)
		}
		tag, err := tx.Exec(ctx, t.insertFromStaging())
		if err != nil {
			return result, fmt.Errorf("insert %s rows: %w", t.name, err)
		}
		inserted = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit: %w", err)
	}
	result.Written = len(rows)

	s.logger.Info().
		Str("collection", batch.Collection.String()).
		Int64("version_id", batch.Version.ID).
		Int("records", len(rows)).
		Int("skipped", len(skipped)).
		Int64("inserted", inserted).
		Dur("elapsed", time.Since(start)).
		Msg("Batch saved")

	return result, nil
}
