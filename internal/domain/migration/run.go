package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a persisted run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsValid checks if the status is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Run is the history entry of a migration run. The core never persists it;
// callers record runs through a RunRepository.
type Run struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	SourcePlatform   string
	TargetPlatform   string
	MappingFile      string
	EntityTypes      []string
	Status           RunStatus
	TotalRecords     int
	SucceededRecords int
	FailedRecords    int
	SkippedRecords   int
	ValidationStatus ValidationStatus
	ErrorMessage     string
	Report           *Report
	StartedAt        *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewRun creates a pending run.
func NewRun(tenantID uuid.UUID, metadata Metadata, mappingFile string, entityTypes []string) (*Run, error) {
	if mappingFile == "" {
		return nil, fmt.Errorf("%w: mapping file cannot be empty", ErrInvalidRunState)
	}
	now := time.Now()
	return &Run{
		ID:             uuid.New(),
		TenantID:       tenantID,
		SourcePlatform: metadata.SourcePlatform,
		TargetPlatform: metadata.TargetPlatform,
		MappingFile:    mappingFile,
		EntityTypes:    entityTypes,
		Status:         RunStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Start marks the run as running
func (r *Run) Start() error {
	if r.Status != RunStatusPending {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidRunState, r.Status)
	}
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
	r.UpdatedAt = now
	return nil
}

// Complete records the final report of a run that reached the end.
func (r *Run) Complete(report *Report) error {
	if r.Status != RunStatusRunning {
		return fmt.Errorf("%w: cannot complete from %s", ErrInvalidRunState, r.Status)
	}
	r.finish(RunStatusCompleted, report)
	return nil
}

// Fail marks the run as failed. report may be nil when nothing ran.
func (r *Run) Fail(cause error, report *Report) error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot fail from terminal state %s", ErrInvalidRunState, r.Status)
	}
	if cause != nil {
		r.ErrorMessage = cause.Error()
	}
	r.finish(RunStatusFailed, report)
	return nil
}

// Cancel marks the run as cancelled with its partial report.
func (r *Run) Cancel(report *Report) error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot cancel from terminal state %s", ErrInvalidRunState, r.Status)
	}
	r.finish(RunStatusCancelled, report)
	return nil
}

func (r *Run) finish(status RunStatus, report *Report) {
	now := time.Now()
	r.Status = status
	r.CompletedAt = &now
	r.UpdatedAt = now
	if report == nil {
		return
	}
	r.Report = report
	r.TotalRecords = report.Statistics.TotalRecords
	r.SucceededRecords = report.Statistics.SuccessfullyMigrated
	r.FailedRecords = report.Statistics.Failed
	r.SkippedRecords = report.Statistics.Skipped
	r.ValidationStatus = report.Validation.Status
}

// ReportJSON returns the stored report as JSON, or "" when there is none.
func (r *Run) ReportJSON() (string, error) {
	if r.Report == nil {
		return "", nil
	}
	data, err := json.Marshal(r.Report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

// SetReportFromJSON restores the report from its JSON form
func (r *Run) SetReportFromJSON(s string) error {
	if s == "" {
		r.Report = nil
		return nil
	}
	var report Report
	if err := json.Unmarshal([]byte(s), &report); err != nil {
		return fmt.Errorf("failed to unmarshal report: %w", err)
	}
	r.Report = &report
	return nil
}

// RunFilter narrows run history queries
type RunFilter struct {
	Status         *RunStatus
	SourcePlatform string
	StartedFrom    *time.Time
}

// RunRepository persists run history
type RunRepository interface {
	// Save creates or updates a run
	Save(ctx context.Context, run *Run) error

	// FindByID finds a run by ID
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Run, error)

	// FindRecent returns the latest runs of a tenant, newest first
	FindRecent(ctx context.Context, tenantID uuid.UUID, filter RunFilter, limit int) ([]*Run, error)
}
