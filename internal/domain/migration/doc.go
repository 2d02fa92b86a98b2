// Package migration contains the core of the cross-platform data migrator.
//
// A migration reads every entity of a source platform as loosely structured
// JSON records, rewrites each record into the shape the target platform
// expects, and creates it there. The rewrite is driven entirely by a
// MappingConfig:
//
//   - EntityMapping lists, per source entity type, the target model, the
//     field renames, constant computed fields and optional assemblers for
//     enumerations, line items and secondary addresses.
//   - FieldTransformation describes how a single field is converted (direct
//     copy, composite join, target lookup, cross-entity reference, date
//     normalisation, boolean inversion).
//   - MigrationSequence fixes the order entity types are migrated in, so that
//     referenced entities always exist before the records that point at them.
//
// Cross-entity references are resolved through a MappingCache keyed by
// "{EntityType}_{SourceID}" that is filled as records are created. The cache
// is owned by a single run and is written at most once per key.
//
// The package only defines ports (SourceExtractor, TargetSystem, MappingCache,
// RunRepository). Concrete adapters live under internal/infrastructure and the
// run itself is driven by internal/application/migration.
package migration
