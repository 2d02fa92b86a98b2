package migration

import (
	"fmt"
	"strconv"
)

// TargetID is the identifier the target platform assigns to a created record.
type TargetID int64

func (id TargetID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseTargetID parses the decimal form produced by TargetID.String.
func ParseTargetID(s string) (TargetID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("migration: invalid target id %q: %w", s, err)
	}
	return TargetID(v), nil
}

// CacheKey builds the mapping cache key of a source record.
func CacheKey(entityType, sourceID string) string {
	return entityType + "_" + sourceID
}

// Resolution is the outcome of resolving a reference: either a target id or
// nothing. Callers never see sentinel values such as zero or false.
type Resolution struct {
	id       TargetID
	resolved bool
}

// Unresolved is the Resolution of a reference that could not be found.
var Unresolved = Resolution{}

// Resolved wraps a found target id.
func Resolved(id TargetID) Resolution {
	return Resolution{id: id, resolved: true}
}

// ID returns the resolved id and whether there is one.
func (r Resolution) ID() (TargetID, bool) {
	return r.id, r.resolved
}

// IsResolved reports whether the reference was found.
func (r Resolution) IsResolved() bool {
	return r.resolved
}

func (r Resolution) String() string {
	if !r.resolved {
		return "unresolved"
	}
	return "resolved(" + r.id.String() + ")"
}
