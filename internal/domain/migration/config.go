package migration

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// UnresolvedPolicy decides what happens to a reference that cannot be resolved.
type UnresolvedPolicy string

const (
	// UnresolvedOmit drops the field and logs a warning.
	UnresolvedOmit UnresolvedPolicy = "omit"
	// UnresolvedError fails the record.
	UnresolvedError UnresolvedPolicy = "error"
)

// DefaultIDField is the source field holding a record's identifier.
const DefaultIDField = "Id"

var fallbackDisplayNameFields = []string{"DisplayName", "Name", "FullyQualifiedName", "DocNumber"}

// Metadata describes the platforms a mapping file connects.
type Metadata struct {
	SourcePlatform string `json:"source_platform"`
	TargetPlatform string `json:"target_platform"`
	Version        string `json:"version,omitempty"`
	Description    string `json:"description,omitempty"`
}

// MappingConfig is the declarative description of a migration. It is loaded
// once, prepared, and must not be modified while a run uses it.
type MappingConfig struct {
	Metadata             Metadata                        `json:"metadata"`
	EntityMappings       map[string]*EntityMapping       `json:"entity_mappings" validate:"required,min=1"`
	FieldTransformations map[string]*FieldTransformation `json:"field_transformations,omitempty"`
	MigrationSequence    []string                        `json:"migration_sequence" validate:"required,min=1,unique,dive,required"`
	UnresolvedReferences UnresolvedPolicy                `json:"unresolved_references,omitempty" validate:"omitempty,oneof=omit error"`
	Validation           ValidationSettings              `json:"validation"`

	rules []*FieldTransformation
}

// ParseMappingConfig decodes and prepares a mapping configuration.
func ParseMappingConfig(data []byte) (*MappingConfig, error) {
	var cfg MappingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, NewConfigurationError(CodeInvalidConfig, "decode mapping configuration: %v", err)
	}
	if err := cfg.Prepare(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Prepare applies defaults, validates the configuration and compiles the
// transformation rules. It is safe to call more than once.
func (c *MappingConfig) Prepare() error {
	if c.UnresolvedReferences == "" {
		c.UnresolvedReferences = UnresolvedOmit
	}
	for name, mapping := range c.EntityMappings {
		if mapping != nil {
			mapping.Name = name
			mapping.applyDefaults()
		}
	}
	for key, rule := range c.FieldTransformations {
		if rule != nil {
			rule.key = key
			rule.applyDefaults()
		}
	}
	if err := c.Validate(); err != nil {
		return err
	}
	c.rules = compileRules(c.FieldTransformations)
	return nil
}

// Entity returns the mapping of an entity type.
func (c *MappingConfig) Entity(entityType string) (*EntityMapping, bool) {
	mapping, ok := c.EntityMappings[entityType]
	if !ok || mapping == nil {
		return nil, false
	}
	return mapping, true
}

// AliasesFor returns the extraction keys an entity type may be stored under.
func (c *MappingConfig) AliasesFor(entityType string) []string {
	if mapping, ok := c.Entity(entityType); ok {
		return mapping.SourceAliases()
	}
	return []string{entityType}
}

// Sequence returns the migration order restricted to only, preserving the
// configured relative order. An empty only selects the whole sequence. Names
// that are not part of the sequence are returned separately.
func (c *MappingConfig) Sequence(only []string) (sequence []string, unknown []string) {
	if len(only) == 0 {
		return slices.Clone(c.MigrationSequence), nil
	}
	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		wanted[name] = true
	}
	for _, name := range c.MigrationSequence {
		if wanted[name] {
			sequence = append(sequence, name)
			delete(wanted, name)
		}
	}
	for _, name := range only {
		if wanted[name] {
			unknown = append(unknown, name)
			delete(wanted, name)
		}
	}
	return sequence, unknown
}

// Policy returns the unresolved reference policy in effect for rule.
func (c *MappingConfig) Policy(rule *FieldTransformation) UnresolvedPolicy {
	if rule != nil && rule.OnUnresolved != "" {
		return rule.OnUnresolved
	}
	if c.UnresolvedReferences == "" {
		return UnresolvedOmit
	}
	return c.UnresolvedReferences
}

// Lint returns non-fatal findings: references to entity types migrated later
// than (or not at all before) the referencing type, and mappings that are
// never migrated.
func (c *MappingConfig) Lint() []string {
	position := make(map[string]int, len(c.MigrationSequence))
	for i, name := range c.MigrationSequence {
		position[name] = i
	}

	var warnings []string
	for _, name := range sortedKeys(c.EntityMappings) {
		mapping := c.EntityMappings[name]
		pos, scheduled := position[name]
		if !scheduled {
			warnings = append(warnings, fmt.Sprintf("entity mapping %q is not part of the migration sequence", name))
			continue
		}
		for _, ref := range mapping.referencedEntityTypes(c) {
			refPos, ok := position[ref]
			switch {
			case !ok:
				warnings = append(warnings, fmt.Sprintf("%s references %s, which is never migrated", name, ref))
			case refPos >= pos:
				warnings = append(warnings, fmt.Sprintf("%s references %s, which is migrated later", name, ref))
			}
		}
	}
	return warnings
}

// -----------------------------------------------------------------------------
// Entity mapping
// -----------------------------------------------------------------------------

// EntityMapping describes how one source entity type becomes target records.
type EntityMapping struct {
	// Name is the entity type the mapping is registered under.
	Name              string            `json:"-"`
	TargetModel       string            `json:"target_model" validate:"required"`
	Aliases           []string          `json:"aliases,omitempty" validate:"omitempty,unique,dive,required"`
	IDField           string            `json:"id_field,omitempty"`
	DisplayNameFields []string          `json:"display_name_fields,omitempty" validate:"omitempty,dive,required"`
	FieldMappings     map[string]string `json:"field_mappings" validate:"dive,keys,required,endkeys,required"`
	ComputedFields    map[string]any    `json:"computed_fields,omitempty"`
	TypeMapping       *TypeMapping      `json:"type_mapping,omitempty"`
	LineItems         *LineItems        `json:"line_items,omitempty"`
	SecondaryAddress  *SecondaryAddress `json:"secondary_address,omitempty"`

	sourcePaths []string
}

func (m *EntityMapping) applyDefaults() {
	if m.IDField == "" {
		m.IDField = DefaultIDField
	}
	if m.LineItems != nil {
		m.LineItems.applyDefaults()
	}
	if m.SecondaryAddress != nil && m.SecondaryAddress.ContactType == "" {
		m.SecondaryAddress.ContactType = "delivery"
	}
	m.sourcePaths = sortedKeys(m.FieldMappings)
}

// SourceAliases returns the extraction keys tried, in order, for this entity.
func (m *EntityMapping) SourceAliases() []string {
	if len(m.Aliases) > 0 {
		return m.Aliases
	}
	return []string{m.Name}
}

// SourcePaths returns the mapped source paths in a stable order.
func (m *EntityMapping) SourcePaths() []string {
	if m.sourcePaths == nil {
		return sortedKeys(m.FieldMappings)
	}
	return m.sourcePaths
}

// DisplayNamePaths returns the paths tried, in order, for a human-readable name.
func (m *EntityMapping) DisplayNamePaths() []string {
	paths := slices.Clone(m.DisplayNameFields)
	for _, p := range fallbackDisplayNameFields {
		if !slices.Contains(paths, p) {
			paths = append(paths, p)
		}
	}
	return paths
}

func (m *EntityMapping) referencedEntityTypes(c *MappingConfig) []string {
	seen := make(map[string]bool)
	var refs []string
	add := func(name string) {
		if name != "" && name != m.Name && !seen[name] {
			seen[name] = true
			refs = append(refs, name)
		}
	}
	if m.LineItems != nil {
		for _, ref := range m.LineItems.References {
			add(ref.EntityType)
		}
	}
	for _, path := range m.SourcePaths() {
		if rule := c.RuleFor(path); rule != nil && rule.Kind == RuleMappingLookup {
			add(rule.EntityType)
		}
	}
	sort.Strings(refs)
	return refs
}

// TypeMapping maps a source enumeration onto target values, optionally
// resolving the mapped value to a target record id.
type TypeMapping struct {
	SourceField string            `json:"source_field" validate:"required"`
	TargetField string            `json:"target_field" validate:"required"`
	Values      map[string]string `json:"values" validate:"required,min=1"`
	Default     string            `json:"default" validate:"required"`
	Lookup      *LookupTarget     `json:"lookup,omitempty"`
}

// Map returns the target value of a source value, falling back to Default.
func (t *TypeMapping) Map(sourceValue string, present bool) (string, bool) {
	if present {
		if mapped, ok := t.Values[sourceValue]; ok {
			return mapped, true
		}
	}
	return t.Default, false
}

// LookupTarget names the target model and field a value is searched by.
type LookupTarget struct {
	Model       string `json:"model" validate:"required"`
	SearchField string `json:"search_field" validate:"required"`
}

// LineItems assembles nested document lines into create directives.
type LineItems struct {
	SourcePath        string          `json:"source_path" validate:"required"`
	TargetField       string          `json:"target_field" validate:"required"`
	DetailTypeField   string          `json:"detail_type_field,omitempty"`
	DetailTypes       []string        `json:"detail_types,omitempty"`
	QuantityPath      string          `json:"quantity_path,omitempty"`
	PricePath         string          `json:"price_path,omitempty"`
	DescriptionPath   string          `json:"description_path,omitempty"`
	QuantityField     string          `json:"quantity_field,omitempty"`
	PriceField        string          `json:"price_field,omitempty"`
	DescriptionField  string          `json:"description_field,omitempty"`
	QuantityPrecision *int32          `json:"quantity_precision,omitempty" validate:"omitempty,min=0,max=12"`
	PricePrecision    *int32          `json:"price_precision,omitempty" validate:"omitempty,min=0,max=12"`
	References        []LineReference `json:"references,omitempty" validate:"dive"`
}

// LineReference resolves a reference inside a line through the mapping cache.
type LineReference struct {
	TargetField string `json:"target_field" validate:"required"`
	Path        string `json:"path" validate:"required"`
	EntityType  string `json:"entity_type" validate:"required"`
}

func (l *LineItems) applyDefaults() {
	if l.QuantityField == "" {
		l.QuantityField = "quantity"
	}
	if l.PriceField == "" {
		l.PriceField = "price_unit"
	}
	if l.DescriptionField == "" {
		l.DescriptionField = "name"
	}
	if l.QuantityPrecision == nil {
		p := l.quantityPrecision()
		l.QuantityPrecision = &p
	}
	if l.PricePrecision == nil {
		p := l.pricePrecision()
		l.PricePrecision = &p
	}
}

func (l *LineItems) quantityPrecision() int32 {
	if l.QuantityPrecision == nil {
		return 4
	}
	return *l.QuantityPrecision
}

func (l *LineItems) pricePrecision() int32 {
	if l.PricePrecision == nil {
		return 2
	}
	return *l.PricePrecision
}

// accepts reports whether a line passes the detail type filter.
func (l *LineItems) accepts(line SourceRecord) bool {
	if l.DetailTypeField == "" || len(l.DetailTypes) == 0 {
		return true
	}
	detail, ok := line.LookupString(l.DetailTypeField)
	return ok && slices.Contains(l.DetailTypes, detail)
}

// SecondaryAddress emits a child contact when a record's secondary address
// differs from its primary one.
type SecondaryAddress struct {
	PrimaryPath   string            `json:"primary_path" validate:"required"`
	SecondaryPath string            `json:"secondary_path" validate:"required"`
	TargetField   string            `json:"target_field" validate:"required"`
	ContactType   string            `json:"contact_type,omitempty"`
	NamePath      string            `json:"name_path,omitempty"`
	Fields        map[string]string `json:"fields" validate:"required,min=1,dive,keys,required,endkeys,required"`
}

// -----------------------------------------------------------------------------
// Validation settings
// -----------------------------------------------------------------------------

// ValidationSettings selects the categories compared after a run.
type ValidationSettings struct {
	// Categories maps a category name to the entity type counted for it.
	Categories map[string]string `json:"categories,omitempty" validate:"dive,keys,required,endkeys,required"`
	// AllMigrated compares every migrated entity type instead of the categories.
	AllMigrated bool `json:"all_migrated,omitempty"`
}

// ValidationCategory pairs a report category with the entity type it counts.
type ValidationCategory struct {
	Name       string
	EntityType string
}

var defaultValidationCategories = []ValidationCategory{
	{Name: "customers", EntityType: "Customer"},
	{Name: "vendors", EntityType: "Vendor"},
	{Name: "invoices", EntityType: "Invoice"},
	{Name: "bills", EntityType: "Bill"},
	{Name: "items", EntityType: "Item"},
	{Name: "accounts", EntityType: "Account"},
}

// DefaultValidationCategories returns the coarse categories compared when a
// mapping file does not configure its own.
func DefaultValidationCategories() []ValidationCategory {
	return slices.Clone(defaultValidationCategories)
}

// ValidationCategories returns the categories compared after a run.
func (c *MappingConfig) ValidationCategories() []ValidationCategory {
	if c.Validation.AllMigrated {
		categories := make([]ValidationCategory, 0, len(c.MigrationSequence))
		for _, name := range c.MigrationSequence {
			categories = append(categories, ValidationCategory{Name: name, EntityType: name})
		}
		return categories
	}
	if len(c.Validation.Categories) > 0 {
		categories := make([]ValidationCategory, 0, len(c.Validation.Categories))
		for _, name := range sortedKeys(c.Validation.Categories) {
			categories = append(categories, ValidationCategory{Name: name, EntityType: c.Validation.Categories[name]})
		}
		return categories
	}
	return DefaultValidationCategories()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func trimRef(segment string) string {
	if trimmed := strings.TrimSuffix(segment, "Ref"); trimmed != "" {
		return trimmed
	}
	return segment
}
