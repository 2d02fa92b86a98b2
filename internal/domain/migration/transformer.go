package migration

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// FieldTransformer converts single field values according to a
// FieldTransformation. Besides its inputs it only reads the mapping cache and,
// for lookups, the target system.
type FieldTransformer struct {
	cache  MappingCache
	policy UnresolvedPolicy
	logger *zap.Logger
}

// TransformerOption configures a FieldTransformer
type TransformerOption func(*FieldTransformer)

// WithTransformerLogger sets the logger used for omitted references
func WithTransformerLogger(logger *zap.Logger) TransformerOption {
	return func(t *FieldTransformer) {
		t.logger = logger
	}
}

// WithUnresolvedPolicy sets the policy applied when a rule does not override it
func WithUnresolvedPolicy(policy UnresolvedPolicy) TransformerOption {
	return func(t *FieldTransformer) {
		if policy != "" {
			t.policy = policy
		}
	}
}

// NewFieldTransformer creates a transformer reading references from cache.
func NewFieldTransformer(cache MappingCache, opts ...TransformerOption) *FieldTransformer {
	t := &FieldTransformer{
		cache:  cache,
		policy: UnresolvedOmit,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Apply converts value with rule. The boolean result is false when the field
// must be left out of the transformed record. A nil rule copies the value.
func (t *FieldTransformer) Apply(ctx context.Context, value any, rule *FieldTransformation, record SourceRecord, target TargetSystem) (any, bool, error) {
	if rule == nil {
		return value, value != nil, nil
	}

	switch rule.Kind {
	case RuleDirect:
		return value, value != nil, nil

	case RuleComposite:
		return t.composite(rule, record), true, nil

	case RuleLookup:
		if value == nil {
			return nil, false, nil
		}
		res, err := t.Lookup(ctx, target, rule.Model, rule.SearchField, value)
		if err != nil {
			return nil, false, err
		}
		return t.settle(t.policyFor(rule), res, fmt.Sprintf("%s.%s = %v", rule.Model, rule.SearchField, value))

	case RuleMappingLookup:
		res, sourceID, err := t.MappingLookup(ctx, rule, record, value)
		if err != nil {
			return nil, false, err
		}
		if sourceID == "" {
			return nil, false, nil
		}
		return t.settle(t.policyFor(rule), res, CacheKey(rule.EntityType, sourceID))

	case RuleDate:
		if value == nil {
			return nil, false, nil
		}
		return FormatDate(value), true, nil

	case RuleBooleanInverse:
		inverted, err := InvertBool(value)
		if err != nil {
			return nil, false, err
		}
		return inverted, true, nil

	default:
		return nil, false, NewConfigurationError(CodeInvalidTransformation, "unknown transformation type %q", rule.Kind).
			WithField("field_transformations." + rule.key)
	}
}

// composite joins the non-blank values of the rule's fields as they are.
// Missing fields are skipped and all-missing yields the empty string.
func (t *FieldTransformer) composite(rule *FieldTransformation, record SourceRecord) string {
	parts := make([]string, 0, len(rule.Fields))
	for _, path := range rule.Fields {
		v, ok := record.LookupString(path)
		if !ok {
			continue
		}
		if strings.TrimSpace(v) != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, rule.JoinSeparator())
}

// Lookup searches model for a record whose searchField equals value and
// resolves to the first match.
func (t *FieldTransformer) Lookup(ctx context.Context, target TargetSystem, model, searchField string, value any) (Resolution, error) {
	if target == nil {
		return Unresolved, ErrNoTargetSystem
	}
	ids, err := target.Search(ctx, model, []Filter{Eq(searchField, value)})
	if err != nil {
		return Unresolved, fmt.Errorf("lookup %s.%s: %w", model, searchField, err)
	}
	if len(ids) == 0 {
		return Unresolved, nil
	}
	return Resolved(ids[0]), nil
}

// MappingLookup resolves a reference to a previously migrated record. The
// source id is read from the rule's source path, or taken from value itself
// (the "value" member of a reference object, or the scalar) when no path is
// configured.
func (t *FieldTransformer) MappingLookup(ctx context.Context, rule *FieldTransformation, record SourceRecord, value any) (Resolution, string, error) {
	var sourceID string
	var ok bool
	if rule.SourcePath != "" {
		sourceID, ok = record.LookupString(rule.SourcePath)
	} else {
		sourceID, ok = referenceID(value)
	}
	if !ok || sourceID == "" {
		return Unresolved, "", nil
	}
	res, err := t.Resolve(ctx, rule.EntityType, sourceID)
	return res, sourceID, err
}

// Resolve reads the target id of a migrated source record from the cache.
func (t *FieldTransformer) Resolve(ctx context.Context, entityType, sourceID string) (Resolution, error) {
	if t.cache == nil {
		return Unresolved, nil
	}
	id, ok, err := t.cache.Get(ctx, CacheKey(entityType, sourceID))
	if err != nil {
		return Unresolved, fmt.Errorf("read mapping cache: %w", err)
	}
	if !ok {
		return Unresolved, nil
	}
	return Resolved(id), nil
}

// settle turns a Resolution into a field value according to policy.
func (t *FieldTransformer) settle(policy UnresolvedPolicy, res Resolution, reference string) (any, bool, error) {
	if id, ok := res.ID(); ok {
		return id, true, nil
	}
	if policy == UnresolvedError {
		return nil, false, fmt.Errorf("%w: %s", ErrUnresolvedReference, reference)
	}
	t.logger.Warn("Unresolved reference omitted", zap.String("reference", reference))
	return nil, false, nil
}

func (t *FieldTransformer) policyFor(rule *FieldTransformation) UnresolvedPolicy {
	if rule != nil && rule.OnUnresolved != "" {
		return rule.OnUnresolved
	}
	return t.policy
}

func referenceID(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case map[string]any:
		inner, ok := v["value"]
		if !ok || inner == nil {
			return "", false
		}
		return stringify(inner), true
	default:
		return stringify(v), true
	}
}
