//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Sternrassler/data-flux/internal/testutil"
	"github.com/Sternrassler/data-flux/pkg/collection"
	"github.com/Sternrassler/data-flux/pkg/schema"
	"github.com/Sternrassler/data-flux/pkg/store"
)

func setupSink(t *testing.T) *Sink {
	t.Helper()

	ctx := context.Background()
	sink, err := New(ctx, testutil.StartPostgres(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(sink.Close)

	if err := sink.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error: %v", err)
	}
	// Idempotent.
	if err := sink.EnsureSchema(ctx); err != nil {
		t.Fatalf("second EnsureSchema() error: %v", err)
	}
	return sink
}

func TestSink_Integration_Users(t *testing.T) {
	sink := setupSink(t)
	ctx := context.Background()

	m, _ := schema.NewMapper(collection.Users, 1)
	var records []schema.MappedRecord
	records = append(records, m.Map(schema.RawRecord{
		"id": json.Number("1"), "email": "a@example.com", "created_at": "2024-10-07T10:00:00Z",
	})...)
	records = append(records, m.Map(schema.RawRecord{"id": json.Number("2")})...)

	batch := store.Batch{
		Collection: collection.Users,
		Version:    store.Version{ID: 1, Title: "initial", TTL: 24 * time.Hour},
		Records:    records,
	}
	if _, err := sink.Save(ctx, batch); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	// Saving the same batch again leaves the table unchanged.
	if _, err := sink.Save(ctx, batch); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	var count int
	if err := sink.pool.QueryRow(ctx, "SELECT count(*) FROM users WHERE version_id = 1").Scan(&count); err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 2 {
		t.Errorf("users count = %d, want 2", count)
	}

	var created time.Time
	if err := sink.pool.QueryRow(ctx, "SELECT created_at FROM users WHERE id = 1").Scan(&created); err != nil {
		t.Fatalf("select created_at: %v", err)
	}
	if !created.Equal(time.Date(2024, time.October, 7, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v, want source timestamp", created)
	}

	var email *string
	if err := sink.pool.QueryRow(ctx, "SELECT email FROM users WHERE id = 2").Scan(&email); err != nil {
		t.Fatalf("select email: %v", err)
	}
	if email != nil {
		t.Errorf("email = %q, want NULL", *email)
	}

	var title string
	var hasExpiry bool
	if err := sink.pool.QueryRow(ctx, "SELECT title, expiry_at IS NOT NULL FROM versions WHERE id = 1").Scan(&title, &hasExpiry); err != nil {
		t.Fatalf("select version: %v", err)
	}
	if title != "initial" || !hasExpiry {
		t.Errorf("version = %q expiry=%v, want initial with expiry", title, hasExpiry)
	}
}

func TestSink_Integration_ListenHistoryOrder(t *testing.T) {
	sink := setupSink(t)
	ctx := context.Background()

	m, _ := schema.NewMapper(collection.ListenHistory, 3)
	records := m.Map(schema.RawRecord{
		"user_id": json.Number("9"),
		"items":   []any{json.Number("30"), json.Number("10"), json.Number("30")},
	})

	if _, err := sink.Save(ctx, store.Batch{
		Collection: collection.ListenHistory,
		Version:    store.Version{ID: 3},
		Records:    records,
	}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	rows, err := sink.pool.Query(ctx, "SELECT track_id FROM listen_history WHERE user_id = 9 ORDER BY position")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	var got []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, id)
	}
	want := []int64{30, 10, 30}
	if len(got) != len(want) {
		t.Fatalf("track ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("track ids = %v, want %v", got, want)
			break
		}
	}
}

func TestSink_Integration_EmptyBatchWritesVersion(t *testing.T) {
	sink := setupSink(t)
	ctx := context.Background()

	if _, err := sink.Save(ctx, store.Batch{Collection: collection.Tracks, Version: store.Version{ID: 8}}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	var exists bool
	if err := sink.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM versions WHERE id = 8)").Scan(&exists); err != nil {
		t.Fatalf("query: %v", err)
	}
	if !exists {
		t.Error("versions row should exist for an empty batch")
	}
}

func TestSink_Integration_BadRecordSkipped(t *testing.T) {
	sink := setupSink(t)
	ctx := context.Background()

	m, _ := schema.NewMapper(collection.Tracks, 5)
	var records []schema.MappedRecord
	for i, raw := range []schema.RawRecord{
		{"id": json.Number("1"), "name": "first"},
		{"id": json.Number("2"), "name": "second", "created_at": "three minutes ago"},
		{"id": json.Number("3"), "name": "third"},
	} {
		for _, rec := range m.Map(raw) {
			rec.Page, rec.Index = 0, i
			records = append(records, rec)
		}
	}

	result, err := sink.Save(ctx, store.Batch{
		Collection: collection.Tracks,
		Version:    store.Version{ID: 5},
		Records:    records,
	})
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if result.Written != 2 || len(result.Skipped) != 1 || result.Skipped[0].Index != 1 {
		t.Errorf("result = %+v, want 2 written and record 1 skipped", result)
	}

	var ids []int64
	rows, err := sink.pool.Query(ctx, "SELECT id FROM tracks WHERE version_id = 5 ORDER BY id")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("track ids = %v, want [1 3]", ids)
	}
}
