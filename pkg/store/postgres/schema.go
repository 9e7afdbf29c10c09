package postgres

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/data-flux/pkg/collection"
	"github.com/Sternrassler/data-flux/pkg/schema"
)

type columnType int

const (
	typeBigint columnType = iota
	typeInteger
	typeText
	typeTimestamp
)

func (t columnType) sql() string {
	switch t {
	case typeBigint:
		return "BIGINT"
	case typeInteger:
		return "INTEGER"
	case typeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// table describes one target table.
type table struct {
	name       string
	columns    []string
	types      map[string]columnType
	notNull    map[string]bool
	primaryKey []string
}

var versionsDDL = `CREATE TABLE IF NOT EXISTS versions (
	id BIGINT PRIMARY KEY,
	title TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expiry_at TIMESTAMPTZ
)`

var tables = map[collection.Collection]table{
	collection.Users: {
		name:    "users",
		columns: schema.Columns(collection.Users),
		types: map[string]columnType{
			"id": typeBigint, schema.ColumnVersionID: typeBigint,
			"created_at": typeTimestamp, "updated_at": typeTimestamp,
		},
		notNull:    map[string]bool{"id": true, schema.ColumnVersionID: true},
		primaryKey: []string{"id", schema.ColumnVersionID},
	},
	collection.Tracks: {
		name:    "tracks",
		columns: schema.Columns(collection.Tracks),
		types: map[string]columnType{
			"id": typeBigint, schema.ColumnVersionID: typeBigint,
			"created_at": typeTimestamp, "updated_at": typeTimestamp,
		},
		notNull:    map[string]bool{"id": true, schema.ColumnVersionID: true},
		primaryKey: []string{"id", schema.ColumnVersionID},
	},
	collection.ListenHistory: {
		name:    "listen_history",
		columns: append(schema.Columns(collection.ListenHistory), schema.ColumnPosition),
		types: map[string]columnType{
			"user_id": typeBigint, "track_id": typeBigint, schema.ColumnVersionID: typeBigint,
			"created_at": typeTimestamp, "updated_at": typeTimestamp, schema.ColumnPosition: typeInteger,
		},
		notNull: map[string]bool{
			"user_id": true, "track_id": true, schema.ColumnVersionID: true, schema.ColumnPosition: true,
		},
		primaryKey: []string{"user_id", schema.ColumnVersionID, schema.ColumnPosition},
	},
}

func (t table) typeOf(col string) columnType {
	if ct, ok := t.types[col]; ok {
		return ct
	}
	return typeText
}

// createDDL returns the idempotent CREATE TABLE statement. Timestamps default
// to now() when the source leaves them empty.
func (t table) createDDL() string {
	defs := make([]string, 0, len(t.columns)+2)
	for _, col := range t.columns {
		def := col + " " + t.typeOf(col).sql()
		if t.typeOf(col) == typeTimestamp {
			def += " NOT NULL DEFAULT now()"
		} else if t.notNull[col] {
			def += " NOT NULL"
		}
		if col == schema.ColumnVersionID {
			def += " REFERENCES versions(id)"
		}
		defs = append(defs, def)
	}
	defs = append(defs, "PRIMARY KEY ("+strings.Join(t.primaryKey, ", ")+")")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.name, strings.Join(defs, ",\n\t"))
}

func (t table) stagingName() string {
	return "stage_" + t.name
}

// stagingDDL returns a session-local table with the same columns and no
// constraints, dropped at commit.
func (t table) stagingDDL() string {
	defs := make([]string, len(t.columns))
	for i, col := range t.columns {
		defs[i] = col + " " + t.typeOf(col).sql()
	}
	return fmt.Sprintf("CREATE TEMP TABLE %s (%s) ON COMMIT DROP", t.stagingName(), strings.Join(defs, ", "))
}

// insertFromStaging moves staged rows into the target, filling missing
// timestamps and skipping rows already written for the version.
func (t table) insertFromStaging() string {
	selects := make([]string, len(t.columns))
	for i, col := range t.columns {
		if t.typeOf(col) == typeTimestamp {
			selects[i] = fmt.Sprintf("COALESCE(%s, now())", col)
			continue
		}
		selects[i] = col
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO NOTHING",
		t.name,
		strings.Join(t.columns, ", "),
		strings.Join(selects, ", "),
		t.stagingName(),
		strings.Join(t.primaryKey, ", "))
}
