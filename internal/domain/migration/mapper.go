package migration

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"go.uber.org/zap"
)

// PlatformMapper turns source records into target-shaped records using a
// MappingConfig. It holds no per-record state.
type PlatformMapper struct {
	config      *MappingConfig
	transformer *FieldTransformer
	logger      *zap.Logger
}

// MapperOption configures a PlatformMapper
type MapperOption func(*PlatformMapper)

// WithMapperLogger sets the mapper logger
func WithMapperLogger(logger *zap.Logger) MapperOption {
	return func(m *PlatformMapper) {
		m.logger = logger
	}
}

// NewPlatformMapper creates a mapper for a prepared configuration that
// resolves references through cache.
func NewPlatformMapper(config *MappingConfig, cache MappingCache, opts ...MapperOption) *PlatformMapper {
	m := &PlatformMapper{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.transformer = NewFieldTransformer(cache,
		WithUnresolvedPolicy(config.Policy(nil)),
		WithTransformerLogger(m.logger),
	)
	return m
}

// Config returns the mapping configuration.
func (m *PlatformMapper) Config() *MappingConfig {
	return m.config
}

// Transformer returns the field transformer shared by all entity types.
func (m *PlatformMapper) Transformer() *FieldTransformer {
	return m.transformer
}

// TransformEntity converts one source record of entityType. Mapped fields are
// copied (through their transformation rule) first, then the configured
// assemblers run, then computed fields overwrite whatever is already there.
func (m *PlatformMapper) TransformEntity(ctx context.Context, entityType string, record SourceRecord, target TargetSystem) (TransformedRecord, error) {
	mapping, ok := m.config.Entity(entityType)
	if !ok {
		return nil, NewConfigurationError(CodeUnknownEntityType, "no entity mapping configured for %q", entityType)
	}

	out := make(TransformedRecord, len(mapping.FieldMappings)+len(mapping.ComputedFields)+2)
	for _, sourcePath := range mapping.SourcePaths() {
		value, ok := record.Lookup(sourcePath)
		if !ok {
			continue
		}
		result, present, err := m.transformer.Apply(ctx, value, m.config.RuleFor(sourcePath), record, target)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", sourcePath, err)
		}
		if present && result != nil {
			out[mapping.FieldMappings[sourcePath]] = result
		}
	}

	if mapping.TypeMapping != nil {
		if err := m.applyTypeMapping(ctx, mapping.TypeMapping, record, target, out); err != nil {
			return nil, fmt.Errorf("type mapping: %w", err)
		}
	}
	if mapping.LineItems != nil {
		lines, err := m.assembleLines(ctx, mapping.LineItems, record)
		if err != nil {
			return nil, fmt.Errorf("line items: %w", err)
		}
		if len(lines) > 0 {
			out[mapping.LineItems.TargetField] = lines
		}
	}
	if mapping.SecondaryAddress != nil {
		if contact, ok := m.secondaryContact(mapping.SecondaryAddress, record); ok {
			out[mapping.SecondaryAddress.TargetField] = []CreateDirective{contact}
		}
	}

	maps.Copy(out, mapping.ComputedFields)
	return out, nil
}

// SourceID returns the identifier of a source record.
func (m *PlatformMapper) SourceID(entityType string, record SourceRecord) (string, bool) {
	path := DefaultIDField
	if mapping, ok := m.config.Entity(entityType); ok {
		path = mapping.IDField
	}
	id, ok := record.LookupString(path)
	if !ok || strings.TrimSpace(id) == "" {
		return "", false
	}
	return id, true
}

// DisplayName returns a human-readable name of a source record for reports.
func (m *PlatformMapper) DisplayName(entityType string, record SourceRecord) string {
	paths := fallbackDisplayNameFields
	if mapping, ok := m.config.Entity(entityType); ok {
		paths = mapping.DisplayNamePaths()
	}
	for _, path := range paths {
		if name, ok := record.LookupString(path); ok && strings.TrimSpace(name) != "" {
			return name
		}
	}
	return "Unknown"
}

// -----------------------------------------------------------------------------
// Assemblers
// -----------------------------------------------------------------------------

func (m *PlatformMapper) applyTypeMapping(ctx context.Context, tm *TypeMapping, record SourceRecord, target TargetSystem, out TransformedRecord) error {
	raw, present := record.LookupString(tm.SourceField)
	mapped, known := tm.Map(raw, present)
	if present && !known {
		m.logger.Debug("Unmapped enumeration value, using default",
			zap.String("field", tm.SourceField),
			zap.String("value", raw),
			zap.String("default", tm.Default),
		)
	}

	if tm.Lookup == nil {
		out[tm.TargetField] = mapped
		return nil
	}

	res, err := m.transformer.Lookup(ctx, target, tm.Lookup.Model, tm.Lookup.SearchField, mapped)
	if err != nil {
		return err
	}
	value, ok, err := m.transformer.settle(m.config.Policy(nil), res,
		fmt.Sprintf("%s.%s = %s", tm.Lookup.Model, tm.Lookup.SearchField, mapped))
	if err != nil {
		return err
	}
	if ok {
		out[tm.TargetField] = value
	}
	return nil
}

func (m *PlatformMapper) assembleLines(ctx context.Context, li *LineItems, record SourceRecord) ([]CreateDirective, error) {
	var lines []CreateDirective
	for i, line := range record.Children(li.SourcePath) {
		if !li.accepts(line) {
			continue
		}

		values, err := m.lineValues(ctx, li, line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		lines = append(lines, CreateDirective{Values: values})
	}
	return lines, nil
}

func (m *PlatformMapper) lineValues(ctx context.Context, li *LineItems, line SourceRecord) (map[string]any, error) {
	values := make(map[string]any, 3+len(li.References))

	quantity := decimalOne
	if raw, ok := line.Lookup(li.QuantityPath); ok {
		q, err := toDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("quantity: %w", err)
		}
		quantity = q
	}
	values[li.QuantityField] = quantity.Round(li.quantityPrecision()).InexactFloat64()

	if raw, ok := line.Lookup(li.PricePath); ok {
		price, err := toDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("price: %w", err)
		}
		values[li.PriceField] = price.Round(li.pricePrecision()).InexactFloat64()
	}

	if desc, ok := line.LookupString(li.DescriptionPath); ok && strings.TrimSpace(desc) != "" {
		values[li.DescriptionField] = desc
	}

	for _, ref := range li.References {
		sourceID, ok := line.LookupString(ref.Path)
		if !ok || sourceID == "" {
			continue
		}
		res, err := m.transformer.Resolve(ctx, ref.EntityType, sourceID)
		if err != nil {
			return nil, err
		}
		id, ok, err := m.transformer.settle(m.config.Policy(nil), res, CacheKey(ref.EntityType, sourceID))
		if err != nil {
			return nil, err
		}
		if ok {
			values[ref.TargetField] = id
		}
	}
	return values, nil
}

func (m *PlatformMapper) secondaryContact(sa *SecondaryAddress, record SourceRecord) (CreateDirective, bool) {
	secondary := addressValues(record, sa.SecondaryPath, sa.Fields)
	if len(secondary) == 0 {
		return CreateDirective{}, false
	}
	primary := addressValues(record, sa.PrimaryPath, sa.Fields)
	if maps.Equal(primary, secondary) {
		return CreateDirective{}, false
	}

	values := make(map[string]any, len(secondary)+2)
	for field, v := range secondary {
		values[field] = v
	}
	values["type"] = sa.ContactType
	if name, ok := record.LookupString(sa.NamePath); ok && name != "" {
		values["name"] = name
	}
	return CreateDirective{Values: values}, true
}

// addressValues reads the non-blank address parts below prefix, keyed by
// target field.
func addressValues(record SourceRecord, prefix string, fields map[string]string) map[string]string {
	values := make(map[string]string, len(fields))
	for sub, targetField := range fields {
		v, ok := record.LookupString(prefix + "." + sub)
		if !ok {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			values[targetField] = v
		}
	}
	return values
}
