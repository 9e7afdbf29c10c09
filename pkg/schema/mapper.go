package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/data-flux/pkg/collection"
)

// ColumnVersionID is the column every target table carries.
const ColumnVersionID = "version_id"

// ColumnPosition stores a listen_history row's play order within its source
// record, so repeated plays of one track stay distinct.
const ColumnPosition = "position"

// listSeparator joins list values that the target schema stores as one scalar.
const listSeparator = ", "

// tableColumns lists each target table's columns in DDL order.
var tableColumns = map[collection.Collection][]string{
	collection.Users: {
		"id", ColumnVersionID, "first_name", "last_name", "email", "gender",
		"favorite_genre", "created_at", "updated_at",
	},
	collection.Tracks: {
		"id", ColumnVersionID, "name", "artist", "songwriters", "duration",
		"genres", "album", "created_at", "updated_at",
	},
	collection.ListenHistory: {
		"user_id", "track_id", ColumnVersionID, "created_at", "updated_at",
	},
}

// fieldMapping renames one source field to a target column, optionally reshaping the value.
type fieldMapping struct {
	source  string
	target  string
	reshape func(any) any
}

var userFields = []fieldMapping{
	{source: "id", target: "id"},
	{source: "first_name", target: "first_name"},
	{source: "last_name", target: "last_name"},
	{source: "email", target: "email"},
	{source: "gender", target: "gender"},
	// Schema decision: the target keeps a single genre column. Revisit if
	// consumers need the list back.
	{source: "favorite_genres", target: "favorite_genre", reshape: scalar},
	{source: "created_at", target: "created_at"},
	{source: "updated_at", target: "updated_at"},
}

var trackFields = []fieldMapping{
	{source: "id", target: "id"},
	{source: "name", target: "name"},
	{source: "artist", target: "artist"},
	{source: "songwriters", target: "songwriters", reshape: scalar},
	{source: "duration", target: "duration"},
	{source: "genres", target: "genres", reshape: scalar},
	{source: "album", target: "album"},
	{source: "created_at", target: "created_at"},
	{source: "updated_at", target: "updated_at"},
}

// Columns returns the column order of the collection's target table.
func Columns(c collection.Collection) []string {
	cols := tableColumns[c]
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

// MappedRecord is one row ready to be inserted into the target table.
type MappedRecord struct {
	Collection collection.Collection
	VersionID  int64

	// Position is the 0-based play order within the source listen_history
	// record (0 = earliest). Always 0 for other collections.
	Position int

	// Page and Index locate the source record: its 0-based page and its
	// position within that page. Set by the pipeline, not by Map.
	Page  int
	Index int

	// Fields maps target column to value. A nil value is a SQL NULL.
	Fields map[string]any
}

// Table returns the target table name.
func (r MappedRecord) Table() string {
	return r.Collection.Table()
}

// Values returns the row's values aligned with Columns(r.Collection).
func (r MappedRecord) Values() []any {
	cols := tableColumns[r.Collection]
	values := make([]any, len(cols))
	for i, col := range cols {
		if col == ColumnVersionID {
			values[i] = r.VersionID
			continue
		}
		values[i] = r.Fields[col]
	}
	return values
}

// MarshalJSON encodes the row as a flat object of its table columns, plus
// "position" for listen_history rows so repeated plays of one track stay
// distinct. Keys are sorted by encoding/json, so equal rows encode to equal
// bytes.
func (r MappedRecord) MarshalJSON() ([]byte, error) {
	row := make(map[string]any, len(r.Fields)+2)
	for _, col := range tableColumns[r.Collection] {
		row[col] = r.Fields[col]
	}
	row[ColumnVersionID] = r.VersionID
	if r.Collection == collection.ListenHistory {
		row[ColumnPosition] = r.Position
	}
	return json.Marshal(row)
}

// Mapper reshapes accepted records of one collection into target rows.
type Mapper struct {
	collection collection.Collection
	versionID  int64
}

// NewMapper returns a mapper stamping versionID on every row.
func NewMapper(c collection.Collection, versionID int64) (*Mapper, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	if versionID <= 0 {
		return nil, fmt.Errorf("version id must be positive (got %d)", versionID)
	}
	return &Mapper{collection: c, versionID: versionID}, nil
}

// VersionID returns the version stamped on every mapped row.
func (m *Mapper) VersionID() int64 {
	return m.versionID
}

// Map converts one accepted record. It never rejects: missing optional fields
// become nil. A listen_history record expands into one row per listened track,
// in source order.
func (m *Mapper) Map(rec RawRecord) []MappedRecord {
	switch m.collection {
	case collection.Users:
		return []MappedRecord{m.row(rec, userFields)}
	case collection.Tracks:
		return []MappedRecord{m.row(rec, trackFields)}
	case collection.ListenHistory:
		return m.expandListenHistory(rec)
	default:
		return nil
	}
}

func (m *Mapper) row(rec RawRecord, mappings []fieldMapping) MappedRecord {
	fields := make(map[string]any, len(mappings))
	for _, fm := range mappings {
		value := rec[fm.source]
		if fm.reshape != nil {
			value = fm.reshape(value)
		}
		fields[fm.target] = value
	}
	return MappedRecord{
		Collection: m.collection,
		VersionID:  m.versionID,
		Fields:     fields,
	}
}

// expandListenHistory emits one (user_id, track_id) row per entry of "items".
// The source has no per-play timestamp, so list order is the play order.
func (m *Mapper) expandListenHistory(rec RawRecord) []MappedRecord {
	var tracks []any
	switch items := rec["items"].(type) {
	case nil:
		return nil
	case []any:
		tracks = items
	default:
		tracks = []any{items}
	}

	rows := make([]MappedRecord, 0, len(tracks))
	for i, trackID := range tracks {
		rows = append(rows, MappedRecord{
			Collection: m.collection,
			VersionID:  m.versionID,
			Position:   i,
			Fields: map[string]any{
				"user_id":    rec["user_id"],
				"track_id":   trackID,
				"created_at": rec["created_at"],
				"updated_at": rec["updated_at"],
			},
		})
	}
	return rows
}

// scalar collapses a list value into one comma-separated string. Nil elements
// are skipped and an empty list becomes nil. Non-list values pass through.
func scalar(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}

	parts := make([]string, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		parts = append(parts, fmt.Sprint(item))
	}
	if len(parts) == 0 {
		return nil
	}
	return strings.Join(parts, listSeparator)
}
