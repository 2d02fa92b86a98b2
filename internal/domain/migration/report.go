package migration

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Phases
// -----------------------------------------------------------------------------

// Phase is a stage of a migration run. Runs only ever move forward.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseExtracting Phase = "extracting"
	PhaseMigrating  Phase = "migrating"
	PhaseValidating Phase = "validating"
	PhaseReporting  Phase = "reporting"
	PhaseDone       Phase = "done"
)

var phaseOrder = map[Phase]int{
	PhaseIdle:       0,
	PhaseExtracting: 1,
	PhaseMigrating:  2,
	PhaseValidating: 3,
	PhaseReporting:  4,
	PhaseDone:       5,
}

// CanAdvanceTo reports whether next comes strictly after p.
func (p Phase) CanAdvanceTo(next Phase) bool {
	cur, ok := phaseOrder[p]
	nxt, okNext := phaseOrder[next]
	return ok && okNext && nxt > cur
}

// -----------------------------------------------------------------------------
// Statistics
// -----------------------------------------------------------------------------

// Statistics are the overall record counts of a run.
type Statistics struct {
	TotalRecords         int       `json:"total_records"`
	SuccessfullyMigrated int       `json:"successfully_migrated"`
	Failed               int       `json:"failed"`
	Skipped              int       `json:"skipped"`
	Pending              int       `json:"pending,omitempty"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
}

// Duration is the wall time between start and end.
func (s Statistics) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Add accumulates the counts of one entity type.
func (s *Statistics) Add(e EntityStats) {
	s.TotalRecords += e.Total
	s.SuccessfullyMigrated += e.Succeeded
	s.Failed += e.Failed
	s.Skipped += e.Skipped
	s.Pending += e.Pending
}

// EntityStats are the record counts of one entity type. Total counts the
// records attempted, so Total = Succeeded + Failed + Skipped. Pending counts
// the records a cancelled run never reached.
type EntityStats struct {
	EntityType  string        `json:"entity_type"`
	SourceKey   string        `json:"source_key,omitempty"`
	TargetModel string        `json:"target_model"`
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Pending     int           `json:"pending,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// ErrorRecord identifies a record that failed and why.
type ErrorRecord struct {
	EntityType  string    `json:"entity_type"`
	SourceID    string    `json:"source_id"`
	DisplayName string    `json:"display_name"`
	Stage       string    `json:"stage"`
	Message     string    `json:"error"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewErrorRecord converts a RecordError into its report form.
func NewErrorRecord(err *RecordError, at time.Time) ErrorRecord {
	msg := ""
	if err.Err != nil {
		msg = err.Err.Error()
	}
	return ErrorRecord{
		EntityType:  err.EntityType,
		SourceID:    err.SourceID,
		DisplayName: err.DisplayName,
		Stage:       err.Stage,
		Message:     msg,
		Timestamp:   at,
	}
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

// ValidationStatus is the overall outcome of post-migration validation.
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
	ValidationSkipped ValidationStatus = "skipped"
)

// CategoryValidation compares source and target counts of one category.
type CategoryValidation struct {
	Category    string `json:"category"`
	EntityType  string `json:"entity_type"`
	TargetModel string `json:"target_model"`
	SourceCount int    `json:"source_count"`
	TargetCount int    `json:"target_count"`
	Match       bool   `json:"match"`
	Error       string `json:"error,omitempty"`
}

// ValidationResult is the outcome of comparing every category.
type ValidationResult struct {
	Status      ValidationStatus     `json:"status"`
	Categories  []CategoryValidation `json:"categories"`
	ValidatedAt time.Time            `json:"validated_at"`
}

// NewValidationResult derives the overall status: passed only when every
// compared category matches.
func NewValidationResult(categories []CategoryValidation, at time.Time) ValidationResult {
	status := ValidationPassed
	for _, c := range categories {
		if !c.Match {
			status = ValidationFailed
			break
		}
	}
	if categories == nil {
		categories = []CategoryValidation{}
	}
	return ValidationResult{Status: status, Categories: categories, ValidatedAt: at}
}

// Passed reports whether every category matched.
func (v ValidationResult) Passed() bool {
	return v.Status == ValidationPassed
}

// -----------------------------------------------------------------------------
// Report
// -----------------------------------------------------------------------------

// ReportStatus is the final state of a run as seen in its report.
type ReportStatus string

const (
	ReportCompleted           ReportStatus = "completed"
	ReportCompletedWithErrors ReportStatus = "completed_with_errors"
	ReportCancelled           ReportStatus = "cancelled"
)

// Report is the result of a migration run.
type Report struct {
	RunID      string           `json:"run_id"`
	Metadata   Metadata         `json:"metadata"`
	Status     ReportStatus     `json:"status"`
	Statistics Statistics       `json:"statistics"`
	Entities   []EntityStats    `json:"entities"`
	Errors     []ErrorRecord    `json:"errors"`
	Validation ValidationResult `json:"validation"`
	CachedKeys int              `json:"cached_keys"`
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("migration: encode report: %w", err)
	}
	return data, nil
}

// Entity returns the statistics of one entity type.
func (r *Report) Entity(entityType string) (EntityStats, bool) {
	for _, e := range r.Entities {
		if e.EntityType == entityType {
			return e, true
		}
	}
	return EntityStats{}, false
}

// Summary renders a short human-readable overview.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Migration %s: %s\n", r.RunID, r.Status)
	fmt.Fprintf(&b, "  total=%d migrated=%d failed=%d skipped=%d duration=%s\n",
		r.Statistics.TotalRecords, r.Statistics.SuccessfullyMigrated,
		r.Statistics.Failed, r.Statistics.Skipped,
		r.Statistics.Duration().Round(time.Millisecond))
	if r.Statistics.Pending > 0 {
		fmt.Fprintf(&b, "  pending=%d (run cancelled)\n", r.Statistics.Pending)
	}
	for _, e := range r.Entities {
		fmt.Fprintf(&b, "  %-12s -> %-24s total=%d ok=%d failed=%d skipped=%d\n",
			e.EntityType, e.TargetModel, e.Total, e.Succeeded, e.Failed, e.Skipped)
	}
	fmt.Fprintf(&b, "  validation: %s\n", r.Validation.Status)
	for _, c := range r.Validation.Categories {
		mark := "ok"
		if !c.Match {
			mark = "MISMATCH"
		}
		fmt.Fprintf(&b, "    %-12s source=%d target=%d %s\n", c.Category, c.SourceCount, c.TargetCount, mark)
	}
	return b.String()
}
