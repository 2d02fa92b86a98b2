package migrationapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/migrator/internal/domain/migration"
)

// Runner executes one migration run
type Runner interface {
	Run(ctx context.Context, opts RunOptions) (*migration.Report, error)
}

// ReportSink receives the report of every finished run
type ReportSink interface {
	Name() string
	Publish(ctx context.Context, report *migration.Report) error
}

var _ Runner = (*Orchestrator)(nil)

// RunRequest describes a run to execute
type RunRequest struct {
	TenantID    uuid.UUID
	MappingFile string
	Metadata    migration.Metadata
	Only        []string
}

// RunService records migration runs and publishes their reports
type RunService struct {
	runner Runner
	repo   migration.RunRepository
	sinks  []ReportSink
	logger *zap.Logger
}

// RunServiceOption configures a RunService
type RunServiceOption func(*RunService)

// WithSinks adds report sinks
func WithSinks(sinks ...ReportSink) RunServiceOption {
	return func(s *RunService) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithServiceLogger sets the service logger
func WithServiceLogger(logger *zap.Logger) RunServiceOption {
	return func(s *RunService) {
		s.logger = logger
	}
}

// NewRunService creates a new RunService
func NewRunService(runner Runner, repo migration.RunRepository, opts ...RunServiceOption) *RunService {
	s := &RunService{
		runner: runner,
		repo:   repo,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs a migration and records it. The returned run carries the
// report when one was produced; the error is the runner's.
func (s *RunService) Execute(ctx context.Context, req RunRequest) (*migration.Run, error) {
	run, err := migration.NewRun(req.TenantID, req.Metadata, req.MappingFile, req.Only)
	if err != nil {
		return nil, err
	}
	if err := run.Start(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save migration run: %w", err)
	}

	report, runErr := s.runner.Run(ctx, RunOptions{
		RunID:    run.ID.String(),
		TenantID: req.TenantID.String(),
		Only:     req.Only,
	})

	// Bookkeeping happens even when the run was cancelled.
	saveCtx := context.WithoutCancel(ctx)
	switch {
	case runErr == nil:
		err = run.Complete(report)
	case report != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)):
		err = run.Cancel(report)
	default:
		err = run.Fail(runErr, report)
	}
	if err != nil {
		return run, errors.Join(runErr, err)
	}
	if err := s.repo.Save(saveCtx, run); err != nil {
		s.logger.Error("Failed to save migration run",
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
		return run, errors.Join(runErr, fmt.Errorf("failed to save migration run: %w", err))
	}

	if report != nil {
		s.publish(saveCtx, report)
	}
	return run, runErr
}

func (s *RunService) publish(ctx context.Context, report *migration.Report) {
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, report); err != nil {
			s.logger.Error("Failed to publish migration report",
				zap.String("sink", sink.Name()),
				zap.String("run_id", report.RunID),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("Migration report published",
			zap.String("sink", sink.Name()),
			zap.String("run_id", report.RunID),
		)
	}
}

// Get returns one recorded run
func (s *RunService) Get(ctx context.Context, tenantID, id uuid.UUID) (*migration.Run, error) {
	return s.repo.FindByID(ctx, tenantID, id)
}

// History returns the latest runs of a tenant, newest first
func (s *RunService) History(ctx context.Context, tenantID uuid.UUID, filter migration.RunFilter, limit int) ([]*migration.Run, error) {
	return s.repo.FindRecent(ctx, tenantID, filter, limit)
}
