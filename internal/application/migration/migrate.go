package migrationapp

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/cache"
	"github.com/erp/migrator/internal/infrastructure/logger"
	"github.com/erp/migrator/internal/infrastructure/telemetry"
)

func newInMemoryCache(context.Context, string) (migration.MappingCache, error) {
	return cache.NewInMemoryMappingCache(), nil
}

// migrateEntity creates every source record of one entity type. It stops
// early only when ctx is cancelled.
func (o *Orchestrator) migrateEntity(ctx context.Context, run *runState, entityType string) migration.EntityStats {
	stats := migration.EntityStats{EntityType: entityType}
	mapping, ok := o.config.Entity(entityType)
	if ok {
		stats.TargetModel = mapping.TargetModel
	}

	ctx = logger.WithEntityType(ctx, entityType)
	log := logger.WithLogger(ctx, o.logger)

	records, sourceKey, found := run.data.Find(o.config.AliasesFor(entityType))
	if !found {
		log.Debug("No source records for entity type")
		return stats
	}
	stats.SourceKey = sourceKey
	total := len(records)

	ctx, span := telemetry.StartSpan(ctx, "migration.entity",
		telemetry.WithAttribute(telemetry.SpanAttrEntityType, entityType),
		telemetry.WithAttribute(telemetry.SpanAttrTargetModel, stats.TargetModel),
		telemetry.WithAttribute(telemetry.SpanAttrRecords, total),
	)
	defer span.End()

	start := o.clock()
	for i, record := range records {
		if ctx.Err() != nil {
			telemetry.AddEvent(span, "cancelled", "processed", i)
			stats.Pending = total - i
			break
		}
		stats.Total++
		sourceID, outcome := o.migrateRecord(ctx, run, entityType, stats.TargetModel, record)
		switch outcome {
		case telemetry.OutcomeSucceeded:
			stats.Succeeded++
		case telemetry.OutcomeFailed:
			stats.Failed++
		case telemetry.OutcomeSkipped:
			stats.Skipped++
		}
		o.emit(ProgressEvent{
			RunID:      run.id,
			Phase:      migration.PhaseMigrating,
			EntityType: entityType,
			SourceID:   sourceID,
			Outcome:    outcome,
			Processed:  i + 1,
			Total:      total,
		})
	}
	stats.Duration = o.clock().Sub(start)

	log.Info("Entity type migrated",
		zap.String("source_key", sourceKey),
		zap.String("target_model", stats.TargetModel),
		zap.Int("total", stats.Total),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("pending", stats.Pending),
	)
	return stats
}

// migrateRecord runs transform, create and cache write for one record and
// returns its source id and outcome.
func (o *Orchestrator) migrateRecord(ctx context.Context, run *runState, entityType, targetModel string, record migration.SourceRecord) (string, string) {
	log := logger.WithLogger(ctx, o.logger)
	sourceID, hasID := run.mapper.SourceID(entityType, record)
	fail := func(stage string, err error) (string, string) {
		recErr := &migration.RecordError{
			EntityType:  entityType,
			SourceID:    sourceID,
			DisplayName: run.mapper.DisplayName(entityType, record),
			Stage:       stage,
			Err:         err,
		}
		run.report.Errors = append(run.report.Errors, migration.NewErrorRecord(recErr, o.clock()))
		log.Warn("Record not migrated", zap.Error(recErr))
		return sourceID, telemetry.OutcomeFailed
	}

	key := ""
	if hasID {
		key = migration.CacheKey(entityType, sourceID)
		if _, exists, err := run.cache.Get(ctx, key); err != nil {
			log.Warn("Mapping cache read failed", zap.String("key", key), zap.Error(err))
		} else if exists {
			log.Warn("Duplicate source record skipped", zap.String("source_id", sourceID))
			return sourceID, telemetry.OutcomeSkipped
		}
	}

	values, err := run.mapper.TransformEntity(ctx, entityType, record, o.target)
	if err != nil {
		return fail(migration.StageTransform, err)
	}
	id, err := o.target.Create(ctx, targetModel, values)
	if err != nil {
		return fail(migration.StageCreate, err)
	}

	if !hasID {
		log.Warn("Source record has no id, created but not cached", zap.Stringer("target_id", id))
		return sourceID, telemetry.OutcomeSucceeded
	}
	if err := run.cache.Put(ctx, key, id); err != nil {
		// The record exists in the target; only later references to it are lost.
		if errors.Is(err, migration.ErrCacheKeyExists) {
			log.Warn("Mapping cache key written concurrently", zap.String("key", key))
		}
		fail(migration.StageCache, err)
		return sourceID, telemetry.OutcomeSucceeded
	}
	log.Debug("Record migrated", zap.String("source_id", sourceID), zap.Stringer("target_id", id))
	return sourceID, telemetry.OutcomeSucceeded
}
