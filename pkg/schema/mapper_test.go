package schema

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/Sternrassler/data-flux/pkg/collection"
)

func TestNewMapper_Validation(t *testing.T) {
	if _, err := NewMapper(collection.Users, 0); err == nil {
		t.Error("NewMapper() with version 0 expected error")
	}
	if _, err := NewMapper(collection.Users, -1); err == nil {
		t.Error("NewMapper() with negative version expected error")
	}
	if _, err := NewMapper("albums", 1); err == nil {
		t.Error("NewMapper() with unknown collection expected error")
	}
}

func TestMap_Users(t *testing.T) {
	m, err := NewMapper(collection.Users, 3)
	if err != nil {
		t.Fatalf("NewMapper() error: %v", err)
	}

	rows := m.Map(RawRecord{
		"id":              json.Number("1"),
		"first_name":      "John",
		"last_name":       "Doe",
		"email":           "john.doe@example.com",
		"gender":          "male",
		"favorite_genres": []any{"rock", "jazz"},
		"created_at":      "2024-10-07T10:00:00Z",
	})
	if len(rows) != 1 {
		t.Fatalf("Map() returned %d rows, want 1", len(rows))
	}

	row := rows[0]
	if row.VersionID != 3 {
		t.Errorf("VersionID = %d, want 3", row.VersionID)
	}
	if row.Table() != "users" {
		t.Errorf("Table() = %q, want users", row.Table())
	}
	if got := row.Fields["favorite_genre"]; got != "rock, jazz" {
		t.Errorf("favorite_genre = %v, want %q", got, "rock, jazz")
	}
	if _, ok := row.Fields["favorite_genres"]; ok {
		t.Error("source field favorite_genres should be renamed")
	}
	if got := row.Fields["created_at"]; got != "2024-10-07T10:00:00Z" {
		t.Errorf("created_at = %v, want source value", got)
	}
	if got := row.Fields["updated_at"]; got != nil {
		t.Errorf("updated_at = %v, want nil (not fabricated)", got)
	}
}

func TestMap_UsersNullsPreserved(t *testing.T) {
	m, _ := NewMapper(collection.Users, 1)

	rows := m.Map(RawRecord{"id": json.Number("2")})
	if len(rows) != 1 {
		t.Fatalf("Map() returned %d rows, want 1", len(rows))
	}

	values := rows[0].Values()
	want := []any{json.Number("2"), int64(1), nil, nil, nil, nil, nil, nil, nil}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("Values() = %#v, want %#v", values, want)
	}
}

func TestMap_Tracks(t *testing.T) {
	m, _ := NewMapper(collection.Tracks, 1)

	rows := m.Map(RawRecord{
		"id":          json.Number("42"),
		"name":        "Song Title",
		"artist":      "Artist Name",
		"songwriters": "Songwriter 1, Songwriter 2",
		"duration":    "3:45",
		"genres":      []any{"rock", nil, "pop"},
		"album":       "Album Name",
	})
	if len(rows) != 1 {
		t.Fatalf("Map() returned %d rows, want 1", len(rows))
	}

	fields := rows[0].Fields
	if fields["songwriters"] != "Songwriter 1, Songwriter 2" {
		t.Errorf("songwriters = %v", fields["songwriters"])
	}
	if fields["genres"] != "rock, pop" {
		t.Errorf("genres = %v, want %q", fields["genres"], "rock, pop")
	}
	if fields["duration"] != "3:45" {
		t.Errorf("duration = %v", fields["duration"])
	}
}

func TestMap_ListenHistoryOrder(t *testing.T) {
	m, _ := NewMapper(collection.ListenHistory, 5)

	tracks := []any{json.Number("30"), json.Number("10"), json.Number("20"), json.Number("10")}
	rows := m.Map(RawRecord{"user_id": json.Number("9"), "items": tracks})

	if len(rows) != len(tracks) {
		t.Fatalf("Map() returned %d rows, want %d", len(rows), len(tracks))
	}
	for k, row := range rows {
		if row.Fields["track_id"] != tracks[k] {
			t.Errorf("row %d track_id = %v, want %v", k, row.Fields["track_id"], tracks[k])
		}
		if row.Fields["user_id"] != json.Number("9") {
			t.Errorf("row %d user_id = %v, want 9", k, row.Fields["user_id"])
		}
		if row.Position != k {
			t.Errorf("row %d Position = %d, want %d", k, row.Position, k)
		}
		if row.VersionID != 5 {
			t.Errorf("row %d VersionID = %d, want 5", k, row.VersionID)
		}
	}
}

func TestMap_ListenHistoryEdgeCases(t *testing.T) {
	m, _ := NewMapper(collection.ListenHistory, 1)

	tests := []struct {
		name   string
		record RawRecord
		want   int
	}{
		{"items absent", RawRecord{"user_id": json.Number("1")}, 0},
		{"items null", RawRecord{"user_id": json.Number("1"), "items": nil}, 0},
		{"items empty", RawRecord{"user_id": json.Number("1"), "items": []any{}}, 0},
		{"items scalar", RawRecord{"user_id": json.Number("1"), "items": json.Number("4")}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(m.Map(tt.record)); got != tt.want {
				t.Errorf("Map() returned %d rows, want %d", got, tt.want)
			}
		})
	}
}

func TestMappedRecord_MarshalJSON(t *testing.T) {
	m, _ := NewMapper(collection.ListenHistory, 2)
	rows := m.Map(RawRecord{"user_id": json.Number("1"), "items": []any{json.Number("7")}})

	data, err := json.Marshal(rows[0])
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	want := `{"created_at":null,"position":0,"track_id":7,"updated_at":null,"user_id":1,"version_id":2}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestMappedRecord_MarshalJSON_RepeatedPlays(t *testing.T) {
	m, _ := NewMapper(collection.ListenHistory, 2)
	rows := m.Map(RawRecord{"user_id": json.Number("1"), "items": []any{json.Number("7"), json.Number("7")}})

	first, err := json.Marshal(rows[0])
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	second, err := json.Marshal(rows[1])
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(first) == string(second) {
		t.Errorf("repeated plays encode identically: %s", first)
	}
}

func TestMappedRecord_MarshalJSON_NoPositionOutsideListenHistory(t *testing.T) {
	m, _ := NewMapper(collection.Tracks, 2)
	rows := m.Map(RawRecord{"id": json.Number("3")})

	data, err := json.Marshal(rows[0])
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if strings.Contains(string(data), `"position"`) {
		t.Errorf("tracks row carries position: %s", data)
	}
}

func TestColumns(t *testing.T) {
	for _, c := range collection.All() {
		cols := Columns(c)
		found := false
		for _, col := range cols {
			if col == ColumnVersionID {
				found = true
			}
		}
		if !found {
			t.Errorf("%s columns %v lack %s", c, cols, ColumnVersionID)
		}
	}

	cols := Columns(collection.Users)
	cols[0] = "mutated"
	if Columns(collection.Users)[0] != "id" {
		t.Error("Columns() should return a copy")
	}
}
