package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/erp/migrator/internal/domain/migration"
)

// Record outcomes
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// MigrationMetrics holds the instruments describing migration runs.
type MigrationMetrics struct {
	records        *Counter
	runs           *Counter
	entityDuration *Histogram
	cachedKeys     *Gauge
}

// NewMigrationMetrics registers the migration instruments on meter.
func NewMigrationMetrics(meter metric.Meter) (*MigrationMetrics, error) {
	if meter == nil {
		return nil, errors.New("NewMigrationMetrics: meter cannot be nil")
	}

	records, err := NewCounter(meter, "migration.records", "Records processed, by entity type and outcome", "{record}")
	if err != nil {
		return nil, err
	}
	runs, err := NewCounter(meter, "migration.runs", "Migration runs finished, by report status", "{run}")
	if err != nil {
		return nil, err
	}
	entityDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "migration.entity.duration",
		Description: "Time spent migrating one entity type",
		Unit:        "s",
		Boundaries:  EntityDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	cachedKeys, err := NewGauge(meter, "migration.cache.keys", "Cache entries written by the last run", "{key}")
	if err != nil {
		return nil, err
	}

	return &MigrationMetrics{
		records:        records,
		runs:           runs,
		entityDuration: entityDuration,
		cachedKeys:     cachedKeys,
	}, nil
}

// RecordEntity records the outcome counts and duration of one entity type.
func (m *MigrationMetrics) RecordEntity(ctx context.Context, platform string, stats migration.EntityStats) {
	if m == nil {
		return
	}
	base := []attribute.KeyValue{AttrSourcePlatform.String(platform), AttrEntityType.String(stats.EntityType)}
	for outcome, n := range map[string]int{
		OutcomeSucceeded: stats.Succeeded,
		OutcomeFailed:    stats.Failed,
		OutcomeSkipped:   stats.Skipped,
	} {
		if n > 0 {
			m.records.Add(ctx, int64(n), append(base, AttrOutcome.String(outcome))...)
		}
	}
	m.entityDuration.RecordDuration(ctx, stats.Duration, base...)
}

// RecordRun records a finished run.
func (m *MigrationMetrics) RecordRun(ctx context.Context, report *migration.Report) {
	if m == nil || report == nil {
		return
	}
	platform := AttrSourcePlatform.String(report.Metadata.SourcePlatform)
	m.runs.Add(ctx, 1, platform, AttrStatus.String(string(report.Status)))
	m.cachedKeys.Record(ctx, int64(report.CachedKeys), platform)
}
