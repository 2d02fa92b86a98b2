package migration

import (
	"context"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Source
// -----------------------------------------------------------------------------

// SourceExtractor reads every entity of the source platform. Pagination and
// rate limiting are the extractor's business.
type SourceExtractor interface {
	ExtractAll(ctx context.Context) (ExtractedData, error)
}

// -----------------------------------------------------------------------------
// Target
// -----------------------------------------------------------------------------

// Filter operators understood by target systems
const (
	OpEquals    = "="
	OpNotEquals = "!="
	OpIn        = "in"
	OpILike     = "ilike"
)

// Filter is a single search condition on a target model field.
type Filter struct {
	Field    string
	Operator string
	Value    any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Operator: OpEquals, Value: value}
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %v", f.Field, f.Operator, f.Value)
}

// TargetSystem is the platform records are created in.
type TargetSystem interface {
	// Create creates one record of model and returns its id.
	Create(ctx context.Context, model string, values TransformedRecord) (TargetID, error)
	// Search returns the ids of records matching every filter, in id order.
	Search(ctx context.Context, model string, filters []Filter) ([]TargetID, error)
	// SearchRead returns the requested fields of matching records.
	SearchRead(ctx context.Context, model string, filters []Filter, fields []string) ([]map[string]any, error)
}

// -----------------------------------------------------------------------------
// Mapping cache
// -----------------------------------------------------------------------------

// MappingCache maps "{EntityType}_{SourceID}" to the id created in the target.
// It lives for a single run and every key is written at most once.
type MappingCache interface {
	// Put stores id under key. It returns ErrCacheKeyExists if key is taken.
	Put(ctx context.Context, key string, id TargetID) error
	// Get returns the id stored under key.
	Get(ctx context.Context, key string) (TargetID, bool, error)
	// Len returns the number of stored keys.
	Len(ctx context.Context) (int, error)
	// Snapshot copies every stored entry.
	Snapshot(ctx context.Context) (map[string]TargetID, error)
}

// -----------------------------------------------------------------------------
// Clock
// -----------------------------------------------------------------------------

// Clock abstracts time for report timestamps.
type Clock func() time.Time

// SystemClock returns the current UTC time.
func SystemClock() time.Time {
	return time.Now().UTC()
}
