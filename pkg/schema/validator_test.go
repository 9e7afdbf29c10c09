package schema

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Sternrassler/data-flux/pkg/collection"
)

func mustDefaultRules(t *testing.T) *RuleSet {
	t.Helper()
	rules, err := DefaultRules()
	if err != nil {
		t.Fatalf("DefaultRules() error: %v", err)
	}
	return rules
}

func TestDefaultRules(t *testing.T) {
	rules := mustDefaultRules(t)

	tests := []struct {
		collection collection.Collection
		required   []string
	}{
		{collection.Users, []string{"id"}},
		{collection.Tracks, []string{"id"}},
		{collection.ListenHistory, []string{"user_id"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.collection), func(t *testing.T) {
			rule, err := rules.Rule(DefaultVersion, tt.collection)
			if err != nil {
				t.Fatalf("Rule() error: %v", err)
			}
			if !reflect.DeepEqual(rule.Required, tt.required) {
				t.Errorf("Required = %v, want %v", rule.Required, tt.required)
			}
		})
	}

	if got := rules.VersionNames(); !reflect.DeepEqual(got, []string{"1.0.0"}) {
		t.Errorf("VersionNames() = %v, want [1.0.0]", got)
	}
}

func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty document", ""},
		{"unknown collection", "versions:\n  \"1.0.0\":\n    albums:\n      required: [id]\n"},
		{"empty field name", "versions:\n  \"1.0.0\":\n    users:\n      required: [\"\"]\n"},
		{"malformed yaml", "versions: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRules([]byte(tt.yaml)); err == nil {
				t.Error("ParseRules() expected error, got nil")
			}
		})
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := "versions:\n  \"2.0.0\":\n    users:\n      required: [id, email]\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() error: %v", err)
	}

	v, err := NewValidator(rules, "2.0.0", collection.Users)
	if err != nil {
		t.Fatalf("NewValidator() error: %v", err)
	}

	res := v.Validate(RawRecord{"id": json.Number("1")})
	if res.Accepted {
		t.Error("record without email should be rejected under 2.0.0")
	}
	if !reflect.DeepEqual(res.Missing, []string{"email"}) {
		t.Errorf("Missing = %v, want [email]", res.Missing)
	}

	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadRules() on missing file expected error")
	}
}

func TestNewValidator_UnknownRule(t *testing.T) {
	rules := mustDefaultRules(t)

	_, err := NewValidator(rules, "9.9.9", collection.Users)
	if !errors.Is(err, ErrUnknownRule) {
		t.Errorf("NewValidator() error = %v, want ErrUnknownRule", err)
	}

	if _, err := NewValidator(nil, DefaultVersion, collection.Users); err == nil {
		t.Error("NewValidator(nil rules) expected error")
	}
}

func TestValidate(t *testing.T) {
	rules := mustDefaultRules(t)

	tests := []struct {
		name       string
		collection collection.Collection
		record     RawRecord
		accepted   bool
		missing    []string
	}{
		{
			name:       "user with all fields",
			collection: collection.Users,
			record: RawRecord{
				"id": json.Number("42"), "first_name": "John", "last_name": "Doe",
				"email": "john.doe@example.com", "gender": "male", "favorite_genres": "rock",
			},
			accepted: true,
		},
		{
			name:       "user with id and null optionals",
			collection: collection.Users,
			record: RawRecord{
				"id": json.Number("2"), "first_name": nil, "last_name": nil,
				"email": nil, "gender": nil, "favorite_genres": nil,
			},
			accepted: true,
		},
		{
			name:       "user missing id",
			collection: collection.Users,
			record:     RawRecord{"first_name": "John"},
			accepted:   false,
			missing:    []string{"id"},
		},
		{
			name:       "user with null id",
			collection: collection.Users,
			record:     RawRecord{"id": nil, "first_name": "John"},
			accepted:   false,
			missing:    []string{"id"},
		},
		{
			name:       "track with id only",
			collection: collection.Tracks,
			record:     RawRecord{"id": json.Number("7")},
			accepted:   true,
		},
		{
			name:       "track missing id",
			collection: collection.Tracks,
			record:     RawRecord{"name": "Song Title"},
			accepted:   false,
			missing:    []string{"id"},
		},
		{
			name:       "listen history with empty items",
			collection: collection.ListenHistory,
			record:     RawRecord{"user_id": json.Number("3"), "items": []any{}},
			accepted:   true,
		},
		{
			name:       "listen history missing user_id",
			collection: collection.ListenHistory,
			record:     RawRecord{"items": []any{json.Number("1")}},
			accepted:   false,
			missing:    []string{"user_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewValidator(rules, DefaultVersion, tt.collection)
			if err != nil {
				t.Fatalf("NewValidator() error: %v", err)
			}

			res := v.Validate(tt.record)
			if res.Accepted != tt.accepted {
				t.Errorf("Accepted = %v, want %v", res.Accepted, tt.accepted)
			}
			if !reflect.DeepEqual(res.Missing, tt.missing) {
				t.Errorf("Missing = %v, want %v", res.Missing, tt.missing)
			}
		})
	}
}

func TestValidate_MissingSorted(t *testing.T) {
	rules, err := ParseRules([]byte("versions:\n  \"3.0.0\":\n    tracks:\n      required: [name, id, album]\n"))
	if err != nil {
		t.Fatalf("ParseRules() error: %v", err)
	}
	v, err := NewValidator(rules, "3.0.0", collection.Tracks)
	if err != nil {
		t.Fatalf("NewValidator() error: %v", err)
	}

	res := v.Validate(RawRecord{"name": nil})
	if want := []string{"album", "id", "name"}; !reflect.DeepEqual(res.Missing, want) {
		t.Errorf("Missing = %v, want %v", res.Missing, want)
	}
}
