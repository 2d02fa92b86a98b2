// Package migrationapp runs migrations: the orchestrator drives one run
// through its phases and the run service records runs and publishes their
// reports.
package migrationapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/logger"
	"github.com/erp/migrator/internal/infrastructure/telemetry"
)

// CacheProvider returns the mapping cache of one run
type CacheProvider func(ctx context.Context, runID string) (migration.MappingCache, error)

// ProgressEvent is emitted when a run changes phase and after every record
type ProgressEvent struct {
	RunID      string
	Phase      migration.Phase
	EntityType string
	SourceID   string
	Outcome    string
	Processed  int
	Total      int
}

// ProgressFunc receives progress events. It is called synchronously.
type ProgressFunc func(ProgressEvent)

// RunOptions configures one run
type RunOptions struct {
	// RunID identifies the run in logs, spans and cache keys. Generated when empty.
	RunID string
	// TenantID is attached to logs only.
	TenantID string
	// Only restricts the run to these entity types, in configured order.
	Only []string
}

// clearer is implemented by caches that hold resources beyond the run
type clearer interface {
	Clear(ctx context.Context) error
}

// Orchestrator migrates the records of a source platform into a target
// platform following a mapping configuration.
type Orchestrator struct {
	config   *migration.MappingConfig
	source   migration.SourceExtractor
	target   migration.TargetSystem
	newCache CacheProvider
	metrics  *telemetry.MigrationMetrics
	progress ProgressFunc
	clock    migration.Clock
	logger   *zap.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithCacheProvider replaces the default in-memory mapping cache
func WithCacheProvider(provider CacheProvider) Option {
	return func(o *Orchestrator) {
		o.newCache = provider
	}
}

// WithMetrics records run and entity metrics
func WithMetrics(metrics *telemetry.MigrationMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithProgress registers a progress listener
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// WithClock sets the clock used for report timestamps
func WithClock(clock migration.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// NewOrchestrator creates an orchestrator for a prepared mapping configuration
func NewOrchestrator(config *migration.MappingConfig, source migration.SourceExtractor, target migration.TargetSystem, opts ...Option) (*Orchestrator, error) {
	if config == nil {
		return nil, migration.NewConfigurationError(migration.CodeInvalidConfig, "mapping configuration is required")
	}
	if source == nil {
		return nil, errors.New("migration: source extractor is required")
	}
	if target == nil {
		return nil, migration.ErrNoTargetSystem
	}

	o := &Orchestrator{
		config:   config,
		source:   source,
		target:   target,
		newCache: newInMemoryCache,
		clock:    migration.SystemClock,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o, nil
}

// Config returns the mapping configuration
func (o *Orchestrator) Config() *migration.MappingConfig {
	return o.config
}

// runState carries what one run accumulates
type runState struct {
	id     string
	phase  migration.Phase
	report *migration.Report
	cache  migration.MappingCache
	mapper *migration.PlatformMapper
	data   migration.ExtractedData
}

func (o *Orchestrator) advance(ctx context.Context, run *runState, next migration.Phase) error {
	if !run.phase.CanAdvanceTo(next) {
		return fmt.Errorf("%w: %s -> %s", migration.ErrPhaseOrder, run.phase, next)
	}
	run.phase = next
	logger.WithLogger(ctx, o.logger).Debug("Migration phase", zap.String("phase", string(next)))
	o.emit(ProgressEvent{RunID: run.id, Phase: next})
	return nil
}

func (o *Orchestrator) emit(event ProgressEvent) {
	if o.progress != nil {
		o.progress(event)
	}
}

// Run executes one migration. Extraction failures return an
// *migration.ExtractionError and no report; nothing has been written then.
// A cancelled context stops the run between records and returns the partial
// report together with the context error. Every other failure is recorded in
// the report.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*migration.Report, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logger.WithRunID(ctx, runID)
	if opts.TenantID != "" {
		ctx = logger.WithTenantID(ctx, opts.TenantID)
	}
	ctx, span := telemetry.StartSpan(ctx, "migration.run", telemetry.WithAttribute(telemetry.SpanAttrRunID, runID))
	defer span.End()
	log := logger.WithLogger(ctx, o.logger)

	sequence, unknown := o.config.Sequence(opts.Only)
	if len(unknown) > 0 {
		err := migration.NewConfigurationError(migration.CodeInvalidSequence,
			"entity types %v are not part of the migration sequence", unknown)
		telemetry.RecordError(span, err)
		return nil, err
	}

	run := &runState{
		id:    runID,
		phase: migration.PhaseIdle,
		report: &migration.Report{
			RunID:    runID,
			Metadata: o.config.Metadata,
			Entities: []migration.EntityStats{},
			Errors:   []migration.ErrorRecord{},
		},
	}
	run.report.Statistics.StartTime = o.clock()
	log.Info("Migration started",
		zap.String("source_platform", o.config.Metadata.SourcePlatform),
		zap.String("target_platform", o.config.Metadata.TargetPlatform),
		zap.Strings("sequence", sequence),
	)

	cache, err := o.newCache(ctx, runID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("migration: create mapping cache: %w", err)
	}
	defer o.release(ctx, cache)
	run.cache = cache
	run.mapper = migration.NewPlatformMapper(o.config, cache, migration.WithMapperLogger(o.logger))

	if err := o.extract(ctx, run); err != nil {
		telemetry.RecordError(span, err)
		log.Error("Extraction failed, nothing migrated", zap.Error(err))
		return nil, err
	}

	if err := o.advance(ctx, run, migration.PhaseMigrating); err != nil {
		return nil, err
	}
	for _, entityType := range sequence {
		if ctx.Err() != nil {
			break
		}
		stats := o.migrateEntity(ctx, run, entityType)
		run.report.Entities = append(run.report.Entities, stats)
		run.report.Statistics.Add(stats)
		o.metrics.RecordEntity(ctx, o.config.Metadata.SourcePlatform, stats)
	}

	if err := ctx.Err(); err != nil {
		run.report.Status = migration.ReportCancelled
		run.report.Validation = migration.ValidationResult{
			Status:      migration.ValidationSkipped,
			Categories:  []migration.CategoryValidation{},
			ValidatedAt: o.clock(),
		}
		if err := o.finish(ctx, run); err != nil {
			return nil, err
		}
		log.Warn("Migration cancelled", zap.Int("migrated", run.report.Statistics.SuccessfullyMigrated))
		telemetry.RecordError(span, err)
		return run.report, err
	}

	if err := o.advance(ctx, run, migration.PhaseValidating); err != nil {
		return nil, err
	}
	run.report.Validation = o.validate(ctx, run.data, sequence)

	run.report.Status = migration.ReportCompleted
	if run.report.Statistics.Failed > 0 {
		run.report.Status = migration.ReportCompletedWithErrors
	}
	if err := o.finish(ctx, run); err != nil {
		return nil, err
	}

	stats := run.report.Statistics
	telemetry.SetAttributes(span,
		telemetry.SpanAttrRecords, stats.TotalRecords,
		"migration.failed", stats.Failed,
		"migration.validation", string(run.report.Validation.Status),
	)
	log.Info("Migration finished",
		zap.String("status", string(run.report.Status)),
		zap.Int("total", stats.TotalRecords),
		zap.Int("migrated", stats.SuccessfullyMigrated),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.String("validation", string(run.report.Validation.Status)),
		zap.Duration("duration", stats.Duration()),
	)
	return run.report, nil
}

func (o *Orchestrator) extract(ctx context.Context, run *runState) error {
	if err := o.advance(ctx, run, migration.PhaseExtracting); err != nil {
		return err
	}
	ctx, span := telemetry.StartSpan(ctx, "migration.extract")
	defer span.End()

	data, err := o.source.ExtractAll(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return &migration.ExtractionError{Err: err}
	}
	if data == nil {
		data = migration.ExtractedData{}
	}
	run.data = data
	return nil
}

// finish moves the run through reporting to done and seals the report.
func (o *Orchestrator) finish(ctx context.Context, run *runState) error {
	if err := o.advance(ctx, run, migration.PhaseReporting); err != nil {
		return err
	}
	// The run context may be cancelled already; the cache is still readable.
	n, err := run.cache.Len(context.WithoutCancel(ctx))
	if err != nil {
		logger.WithLogger(ctx, o.logger).Warn("Failed to count cached keys", zap.Error(err))
	}
	run.report.CachedKeys = n
	run.report.Statistics.EndTime = o.clock()
	o.metrics.RecordRun(ctx, run.report)
	return o.advance(ctx, run, migration.PhaseDone)
}

func (o *Orchestrator) release(ctx context.Context, cache migration.MappingCache) {
	c, ok := cache.(clearer)
	if !ok {
		return
	}
	if err := c.Clear(context.WithoutCancel(ctx)); err != nil {
		logger.WithLogger(ctx, o.logger).Warn("Failed to clear mapping cache", zap.Error(err))
	}
}
