package migration

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so errors point at the mapping file.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the structure of the configuration. Prepare calls it after
// defaults are applied.
func (c *MappingConfig) Validate() error {
	if err := validateStruct(c, ""); err != nil {
		return err
	}

	for i, name := range c.MigrationSequence {
		if _, ok := c.Entity(name); !ok {
			return NewConfigurationError(CodeInvalidSequence, "entity type %q has no entity mapping", name).
				WithField(fmt.Sprintf("migration_sequence[%d]", i))
		}
	}

	for _, name := range sortedKeys(c.EntityMappings) {
		mapping := c.EntityMappings[name]
		field := "entity_mappings." + name
		if mapping == nil {
			return NewConfigurationError(CodeInvalidMapping, "entity mapping is empty").WithField(field)
		}
		if err := validateStruct(mapping, field); err != nil {
			return err
		}
		if mapping.LineItems != nil {
			for i, ref := range mapping.LineItems.References {
				if _, ok := c.Entity(ref.EntityType); !ok {
					return NewConfigurationError(CodeInvalidMapping, "line reference to unknown entity type %q", ref.EntityType).
						WithField(fmt.Sprintf("%s.line_items.references[%d]", field, i))
				}
			}
		}
	}

	for _, key := range sortedKeys(c.FieldTransformations) {
		rule := c.FieldTransformations[key]
		field := "field_transformations." + key
		if rule == nil {
			return NewConfigurationError(CodeInvalidTransformation, "transformation is empty").WithField(field)
		}
		if err := validateStruct(rule, field); err != nil {
			return err
		}
		if err := rule.validate(); err != nil {
			return err.WithField(field)
		}
	}
	return nil
}

func validateStruct(s any, prefix string) error {
	err := configValidator.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return NewConfigurationError(CodeInvalidConfig, "%v", err).WithField(prefix)
	}
	fe := fieldErrs[0]
	field := fieldPath(fe.Namespace())
	if prefix != "" {
		field = prefix + "." + field
	}
	return NewConfigurationError(CodeInvalidConfig, "%s", validationMessage(fe)).WithField(field)
}

// fieldPath drops the struct name validator puts in front of the namespace.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Map || fe.Kind() == reflect.Slice {
			return "must have at least " + fe.Param() + " entries"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "unique":
		return "must not contain duplicates"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
