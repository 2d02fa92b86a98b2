package migrationapp

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/logger"
	"github.com/erp/migrator/internal/infrastructure/telemetry"
)

// validate compares, per category, the number of source records with the
// number of records an unfiltered search finds on the target model.
// Categories whose entity type has no mapping, or was not part of this run,
// are not compared.
func (o *Orchestrator) validate(ctx context.Context, data migration.ExtractedData, sequence []string) migration.ValidationResult {
	ctx, span := telemetry.StartSpan(ctx, "migration.validate")
	defer span.End()
	log := logger.WithLogger(ctx, o.logger)

	var categories []migration.CategoryValidation
	for _, category := range o.config.ValidationCategories() {
		mapping, ok := o.config.Entity(category.EntityType)
		if !ok || !slices.Contains(sequence, category.EntityType) {
			continue
		}
		result := migration.CategoryValidation{
			Category:    category.Name,
			EntityType:  category.EntityType,
			TargetModel: mapping.TargetModel,
			SourceCount: data.Count(o.config.AliasesFor(category.EntityType)),
		}
		ids, err := o.target.Search(ctx, mapping.TargetModel, nil)
		if err != nil {
			result.Error = err.Error()
			log.Warn("Validation search failed",
				zap.String("category", category.Name),
				zap.String("target_model", mapping.TargetModel),
				zap.Error(err),
			)
		} else {
			result.TargetCount = len(ids)
			result.Match = result.SourceCount == result.TargetCount
		}
		if !result.Match {
			log.Warn("Validation mismatch",
				zap.String("category", category.Name),
				zap.Int("source_count", result.SourceCount),
				zap.Int("target_count", result.TargetCount),
			)
		}
		categories = append(categories, result)
	}

	validation := migration.NewValidationResult(categories, o.clock())
	telemetry.SetAttributes(span, "migration.validation", string(validation.Status))
	return validation
}
