package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	migrationapp "github.com/erp/migrator/internal/application/migration"
	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/cache"
	"github.com/erp/migrator/internal/infrastructure/mappingconfig"
	"github.com/erp/migrator/internal/infrastructure/persistence"
	"github.com/erp/migrator/internal/infrastructure/platform"
	"github.com/erp/migrator/internal/infrastructure/storage"
	"github.com/erp/migrator/internal/infrastructure/telemetry"
)

// Exit codes of the run command
const (
	exitExtractionFailed = 1
	exitValidationFailed = 2
)

type runFlags struct {
	mapping  string
	source   string
	only     []string
	report   string
	progress bool
}

func newRunCmd(c *cli) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Migrate a source export into the staging target",
		Long: `Run extracts every entity of the source export, migrates the entity types
of the mapping's migration_sequence in order, validates record counts and
records the run in the history database.

Exit status is 1 when the source cannot be read and 2 when validation fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.mapping == "" {
				f.mapping = c.app.cfg.Migration.MappingFile
			}
			if f.source == "" {
				f.source = c.app.cfg.Migration.SourceFile
			}
			if f.mapping == "" || f.source == "" {
				return errors.New("--mapping and --source are required (or migration.mapping_file / migration.source_file)")
			}
			return runMigration(cmd.Context(), c.app, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.mapping, "mapping", "", "mapping configuration file")
	cmd.Flags().StringVar(&f.source, "source", "", "source platform export (JSON)")
	cmd.Flags().StringSliceVar(&f.only, "only", nil, "migrate only these entity types, e.g. Account,Customer")
	cmd.Flags().StringVar(&f.report, "report", "", "also write the JSON report to this file")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "print a line per migrated entity type")
	return cmd
}

func runMigration(ctx context.Context, a *app, f runFlags, out io.Writer) error {
	log := a.log
	mappingCfg, err := mappingconfig.NewLoader(mappingconfig.WithLogger(log)).Load(f.mapping)
	if err != nil {
		return err
	}
	tenantID, err := a.tenantID()
	if err != nil {
		return err
	}

	tp, err := telemetry.NewTracerProvider(ctx, a.telemetryConfig(), log)
	if err != nil {
		return err
	}
	mp, err := telemetry.NewMeterProvider(ctx, a.telemetryConfig(), 0, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := shutdownContext(ctx)
		defer cancel()
		_ = mp.Shutdown(shutdownCtx)
		_ = tp.Shutdown(shutdownCtx)
	}()
	metrics, err := telemetry.NewMigrationMetrics(mp.Meter(telemetry.TracerName))
	if err != nil {
		return err
	}

	db, err := a.database(ctx)
	if err != nil {
		return err
	}

	policy := platform.RetryPolicy{
		Attempts:  uint64(max(a.cfg.Retry.Attempts, 0)),
		BaseDelay: a.cfg.Retry.BaseDelay,
		MaxDelay:  a.cfg.Retry.MaxDelay,
		Jitter:    a.cfg.Retry.Jitter,
	}
	source := platform.NewRetryingSource(
		platform.NewJSONExportSource(f.source, platform.WithSourceLogger(log)), policy, log)
	target := platform.NewRetryingTarget(
		platform.NewGormTarget(db.DB, platform.WithTargetLogger(log)), policy, log)

	caches := cache.NewMappingCacheFactory(a.cfg.Cache, a.cfg.Redis, cache.WithLogger(log))
	defer func() { _ = caches.Close() }()

	opts := []migrationapp.Option{
		migrationapp.WithLogger(log),
		migrationapp.WithCacheProvider(caches.Create),
		migrationapp.WithMetrics(metrics),
	}
	if f.progress {
		opts = append(opts, migrationapp.WithProgress(progressPrinter(out)))
	}
	orchestrator, err := migrationapp.NewOrchestrator(mappingCfg, source, target, opts...)
	if err != nil {
		return err
	}

	sinks, err := reportSinks(ctx, a)
	if err != nil {
		return err
	}
	service := migrationapp.NewRunService(orchestrator, persistence.NewGormRunRepository(db.DB),
		migrationapp.WithSinks(sinks...),
		migrationapp.WithServiceLogger(log),
	)

	run, runErr := service.Execute(ctx, migrationapp.RunRequest{
		TenantID:    tenantID,
		MappingFile: f.mapping,
		Metadata:    mappingCfg.Metadata,
		Only:        f.only,
	})
	if run != nil && run.Report != nil {
		_, _ = fmt.Fprint(out, run.Report.Summary())
		if f.report != "" {
			if err := writeReport(f.report, run.Report); err != nil {
				log.Error("Failed to write report file", zap.String("path", f.report), zap.Error(err))
			}
		}
	}
	return runOutcome(run, runErr)
}

// runOutcome maps a finished run to the command's exit status
func runOutcome(run *migration.Run, err error) error {
	if err != nil {
		if migration.IsExtractionError(err) {
			return &exitError{code: exitExtractionFailed, err: err}
		}
		return err
	}
	if run != nil && run.ValidationStatus == migration.ValidationFailed {
		return &exitError{code: exitValidationFailed, err: fmt.Errorf("run %s: validation failed", run.ID)}
	}
	return nil
}

func reportSinks(ctx context.Context, a *app) ([]migrationapp.ReportSink, error) {
	var sinks []migrationapp.ReportSink
	if dir := a.cfg.Migration.ReportDir; dir != "" {
		sinks = append(sinks, storage.NewFileReportSink(dir, storage.WithFileLogger(a.log)))
	}
	if a.cfg.Storage.S3Enabled {
		s3Sink, err := storage.NewS3ReportSink(ctx, &a.cfg.Storage, storage.WithS3Logger(a.log))
		if err != nil {
			return nil, err
		}
		if err := s3Sink.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, s3Sink)
	}
	return sinks, nil
}

func writeReport(path string, report *migration.Report) error {
	data, err := report.JSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func progressPrinter(out io.Writer) migrationapp.ProgressFunc {
	return func(e migrationapp.ProgressEvent) {
		if e.EntityType == "" || e.Processed != e.Total {
			return
		}
		_, _ = fmt.Fprintf(out, "%-12s %d/%d\n", e.EntityType, e.Processed, e.Total)
	}
}
