package schema

import (
	"fmt"
	"sort"

	"github.com/Sternrassler/data-flux/pkg/collection"
)

// RawRecord is one item of a source page. Values are whatever the JSON decoder
// produced: nil, string, json.Number, bool, []any or map[string]any.
type RawRecord map[string]any

// Result is the outcome of validating one record.
type Result struct {
	Record   RawRecord
	Accepted bool

	// Missing lists the required fields that were absent or null, sorted.
	Missing []string
}

// Validator checks records of one collection against one schema version.
type Validator struct {
	collection collection.Collection
	version    string
	required   []string
}

// NewValidator resolves the rule for (version, c). Construction fails when the
// rule set has no such rule, so a run never starts without one.
func NewValidator(rules *RuleSet, version string, c collection.Collection) (*Validator, error) {
	if rules == nil {
		return nil, fmt.Errorf("rule set is required")
	}
	rule, err := rules.Rule(version, c)
	if err != nil {
		return nil, err
	}

	required := make([]string, len(rule.Required))
	copy(required, rule.Required)

	return &Validator{
		collection: c,
		version:    version,
		required:   required,
	}, nil
}

// Collection returns the collection this validator checks.
func (v *Validator) Collection() collection.Collection {
	return v.collection
}

// Version returns the schema version this validator enforces.
func (v *Validator) Version() string {
	return v.version
}

// Validate accepts rec iff every required key is present and non-null.
func (v *Validator) Validate(rec RawRecord) Result {
	var missing []string
	for _, field := range v.required {
		if value, ok := rec[field]; !ok || value == nil {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)

	return Result{
		Record:   rec,
		Accepted: len(missing) == 0,
		Missing:  missing,
	}
}
