package migration

import (
	"sort"
	"strings"
)

// RuleKind names a field transformation.
type RuleKind string

const (
	RuleDirect         RuleKind = "direct"
	RuleComposite      RuleKind = "composite"
	RuleLookup         RuleKind = "lookup"
	RuleMappingLookup  RuleKind = "mapping_lookup"
	RuleDate           RuleKind = "date"
	RuleBooleanInverse RuleKind = "boolean_inverse"
)

const defaultSeparator = " "

// FieldTransformation describes how a field is converted. It applies to every
// mapped source path containing its key.
type FieldTransformation struct {
	Kind RuleKind `json:"type" validate:"required,oneof=direct composite lookup mapping_lookup date boolean_inverse"`

	// composite
	Fields    []string `json:"fields,omitempty" validate:"omitempty,dive,required"`
	Separator *string  `json:"separator,omitempty"`

	// lookup
	Model       string `json:"model,omitempty"`
	SearchField string `json:"search_field,omitempty"`

	// mapping_lookup
	SourcePath string `json:"source_path,omitempty"`
	EntityType string `json:"entity_type,omitempty"`

	// Priority wins over key length when several keys match a path.
	Priority     int              `json:"priority,omitempty"`
	OnUnresolved UnresolvedPolicy `json:"on_unresolved,omitempty" validate:"omitempty,oneof=omit error"`

	key string
}

// Key returns the field path fragment the transformation is registered under.
func (t *FieldTransformation) Key() string {
	return t.key
}

// JoinSeparator returns the composite separator, a single space by default.
func (t *FieldTransformation) JoinSeparator() string {
	if t.Separator == nil {
		return defaultSeparator
	}
	return *t.Separator
}

// Matches reports whether the transformation applies to a source path.
func (t *FieldTransformation) Matches(path string) bool {
	return t.key != "" && strings.Contains(path, t.key)
}

func (t *FieldTransformation) applyDefaults() {
	if t.Kind == RuleMappingLookup && t.EntityType == "" && t.SourcePath != "" {
		t.EntityType = trimRef(strings.SplitN(t.SourcePath, ".", 2)[0])
	}
}

func (t *FieldTransformation) validate() *ConfigurationError {
	switch t.Kind {
	case RuleDirect, RuleDate, RuleBooleanInverse:
		return nil
	case RuleComposite:
		if len(t.Fields) == 0 {
			return NewConfigurationError(CodeInvalidTransformation, "composite transformation needs at least one field")
		}
	case RuleLookup:
		if t.Model == "" || t.SearchField == "" {
			return NewConfigurationError(CodeInvalidTransformation, "lookup transformation needs model and search_field")
		}
	case RuleMappingLookup:
		if t.EntityType == "" {
			return NewConfigurationError(CodeInvalidTransformation, "mapping_lookup transformation needs source_path or entity_type")
		}
	default:
		return NewConfigurationError(CodeInvalidTransformation, "unknown transformation type %q", t.Kind)
	}
	return nil
}

// compileRules orders transformations for selection: highest priority first,
// then the longest key, then the lexicographically smallest key.
func compileRules(transformations map[string]*FieldTransformation) []*FieldTransformation {
	rules := make([]*FieldTransformation, 0, len(transformations))
	for key, rule := range transformations {
		if rule == nil || key == "" {
			continue
		}
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if len(a.key) != len(b.key) {
			return len(a.key) > len(b.key)
		}
		return a.key < b.key
	})
	return rules
}

// RuleFor selects the transformation for a source path. It returns nil when
// no key matches, meaning the value is copied unchanged.
func (c *MappingConfig) RuleFor(path string) *FieldTransformation {
	for _, rule := range c.rules {
		if rule.Matches(path) {
			return rule
		}
	}
	return nil
}
