package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/erp/migrator/internal/domain/migration"
)

// FileReportSink writes reports below a local directory, one directory per run.
type FileReportSink struct {
	dir    string
	logger *zap.Logger
}

// FileReportSinkOption configures a FileReportSink
type FileReportSinkOption func(*FileReportSink)

// WithFileLogger sets the logger of a FileReportSink
func WithFileLogger(logger *zap.Logger) FileReportSinkOption {
	return func(s *FileReportSink) {
		s.logger = logger
	}
}

// NewFileReportSink creates a sink writing under dir
func NewFileReportSink(dir string, opts ...FileReportSinkOption) *FileReportSink {
	s := &FileReportSink{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the sink in logs
func (s *FileReportSink) Name() string {
	return "file"
}

// Publish writes report.json and summary.txt for the report's run
func (s *FileReportSink) Publish(ctx context.Context, report *migration.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	objects, err := renderReport(report)
	if err != nil {
		return err
	}

	runDir := filepath.Join(s.dir, runDirectory(report))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory %s: %w", runDir, err)
	}
	for _, obj := range objects {
		p := filepath.Join(runDir, obj.name)
		if err := os.WriteFile(p, obj.body, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", p, err)
		}
	}

	s.logger.Info("Report written", zap.String("dir", runDir))
	return nil
}

// Path returns the location of the JSON report of a run
func (s *FileReportSink) Path(runID string) string {
	return filepath.Join(s.dir, runID, reportObjectName)
}
