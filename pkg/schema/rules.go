// Package schema validates raw source records against versioned required-field
// rules and maps accepted records into the target table shape.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/Sternrassler/data-flux/pkg/collection"
	"gopkg.in/yaml.v3"
)

// DefaultVersion is the schema version used when none is configured.
const DefaultVersion = "1.0.0"

//go:embed rules.yaml
var defaultRules []byte

// ErrUnknownRule is returned when no rule exists for a (version, collection) pair.
var ErrUnknownRule = errors.New("no validation rule")

// Rule lists the keys a record must carry with a non-null value.
type Rule struct {
	Required []string `yaml:"required"`
}

// RuleSet holds the rules of every schema version, keyed by version then collection.
type RuleSet struct {
	Versions map[string]map[collection.Collection]Rule `yaml:"versions"`
}

// DefaultRules returns the rule set compiled into the binary.
func DefaultRules() (*RuleSet, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads a rule set from a YAML file.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule set and checks that it only names known collections.
func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(rs.Versions) == 0 {
		return nil, fmt.Errorf("parse rules: no versions declared")
	}

	for version, rules := range rs.Versions {
		for c, rule := range rules {
			if !c.Valid() {
				return nil, fmt.Errorf("parse rules: version %s: unknown collection %q", version, c)
			}
			for _, field := range rule.Required {
				if field == "" {
					return nil, fmt.Errorf("parse rules: version %s: %s: empty field name", version, c)
				}
			}
		}
	}

	return &rs, nil
}

// Rule returns the rule for a collection under the given schema version.
func (rs *RuleSet) Rule(version string, c collection.Collection) (Rule, error) {
	rules, ok := rs.Versions[version]
	if !ok {
		return Rule{}, fmt.Errorf("%w: schema version %s", ErrUnknownRule, version)
	}
	rule, ok := rules[c]
	if !ok {
		return Rule{}, fmt.Errorf("%w: schema version %s has no %s rule", ErrUnknownRule, version, c)
	}
	return rule, nil
}

// VersionNames returns the declared schema versions, sorted.
func (rs *RuleSet) VersionNames() []string {
	names := make([]string, 0, len(rs.Versions))
	for v := range rs.Versions {
		names = append(names, v)
	}
	sort.Strings(names)
	return names
}
