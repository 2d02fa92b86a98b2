package migration

import (
	"errors"
	"fmt"
)

// Configuration error codes.
const (
	CodeUnknownEntityType     = "UNKNOWN_ENTITY_TYPE"
	CodeInvalidTransformation = "INVALID_TRANSFORMATION"
	CodeInvalidMapping        = "INVALID_MAPPING"
	CodeInvalidSequence       = "INVALID_SEQUENCE"
	CodeInvalidConfig         = "INVALID_CONFIG"
)

// Record failure stages
const (
	StageTransform = "transform"
	StageCreate    = "create"
	StageCache     = "cache"
)

var (
	// ErrCacheKeyExists is returned when a mapping cache key is written twice.
	ErrCacheKeyExists = errors.New("migration: mapping cache key already written")
	// ErrUnresolvedReference is returned for references that cannot be resolved
	// while the unresolved reference policy is "error".
	ErrUnresolvedReference = errors.New("migration: unresolved reference")
	// ErrNoTargetSystem is returned when a lookup runs without a target system.
	ErrNoTargetSystem = errors.New("migration: lookup requires a target system")
	// ErrPhaseOrder is returned when a run tries to move backwards through its phases.
	ErrPhaseOrder = errors.New("migration: phase transition out of order")
	// ErrRunNotFound is returned when a persisted run does not exist.
	ErrRunNotFound = errors.New("migration: run not found")
	// ErrInvalidRunState is returned for run status transitions that are not allowed.
	ErrInvalidRunState = errors.New("migration: invalid run state transition")
)

// ConfigurationError reports a mapping configuration problem: an entity type
// without a mapping, or a transformation descriptor missing what its kind needs.
type ConfigurationError struct {
	Code    string
	Field   string
	Message string
}

// NewConfigurationError creates a ConfigurationError with a formatted message.
func NewConfigurationError(code, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithField records the configuration path the error refers to.
func (e *ConfigurationError) WithField(field string) *ConfigurationError {
	e.Field = field
	return e
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("migration: configuration %s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("migration: configuration %s: %s", e.Code, e.Message)
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// ExtractionError means the source could not be read. It aborts the run
// before anything is written to the target.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("migration: extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// IsExtractionError reports whether err carries an ExtractionError.
func IsExtractionError(err error) bool {
	var extErr *ExtractionError
	return errors.As(err, &extErr)
}

// RecordError is a failure scoped to a single source record.
type RecordError struct {
	EntityType  string
	SourceID    string
	DisplayName string
	Stage       string
	Err         error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("migration: %s %s %q (%s): %v", e.Stage, e.EntityType, e.SourceID, e.DisplayName, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
