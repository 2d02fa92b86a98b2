package models

import (
	"time"

	"github.com/erp/migrator/internal/domain/migration"
)

// MigrationRunModel is the persistence model for a migration.Run
type MigrationRunModel struct {
	TenantModel
	SourcePlatform   string                     `gorm:"type:varchar(100);not null;index"`
	TargetPlatform   string                     `gorm:"type:varchar(100);not null"`
	MappingFile      string                     `gorm:"type:varchar(500);not null"`
	EntityTypes      []string                   `gorm:"serializer:json"`
	Status           migration.RunStatus        `gorm:"type:varchar(20);not null;default:'pending';index"`
	TotalRecords     int                        `gorm:"not null;default:0"`
	SucceededRecords int                        `gorm:"not null;default:0"`
	FailedRecords    int                        `gorm:"not null;default:0"`
	SkippedRecords   int                        `gorm:"not null;default:0"`
	ValidationStatus migration.ValidationStatus `gorm:"type:varchar(20)"`
	ErrorMessage     string                     `gorm:"type:text"`
	Report           string                     `gorm:"type:text"`
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// TableName returns the table name for GORM
func (MigrationRunModel) TableName() string {
	return "migration_runs"
}

// ToDomain converts the persistence model to a domain Run.
// A report that no longer decodes is dropped rather than failing the lookup.
func (m *MigrationRunModel) ToDomain() *migration.Run {
	run := &migration.Run{
		ID:               m.ID,
		TenantID:         m.TenantID,
		SourcePlatform:   m.SourcePlatform,
		TargetPlatform:   m.TargetPlatform,
		MappingFile:      m.MappingFile,
		EntityTypes:      m.EntityTypes,
		Status:           m.Status,
		TotalRecords:     m.TotalRecords,
		SucceededRecords: m.SucceededRecords,
		FailedRecords:    m.FailedRecords,
		SkippedRecords:   m.SkippedRecords,
		ValidationStatus: m.ValidationStatus,
		ErrorMessage:     m.ErrorMessage,
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	_ = run.SetReportFromJSON(m.Report)
	return run
}

// FromDomain populates the persistence model from a domain Run
func (m *MigrationRunModel) FromDomain(r *migration.Run) error {
	report, err := r.ReportJSON()
	if err != nil {
		return err
	}
	m.ID = r.ID
	m.TenantID = r.TenantID
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
	m.SourcePlatform = r.SourcePlatform
	m.TargetPlatform = r.TargetPlatform
	m.MappingFile = r.MappingFile
	m.EntityTypes = r.EntityTypes
	m.Status = r.Status
	m.TotalRecords = r.TotalRecords
	m.SucceededRecords = r.SucceededRecords
	m.FailedRecords = r.FailedRecords
	m.SkippedRecords = r.SkippedRecords
	m.ValidationStatus = r.ValidationStatus
	m.ErrorMessage = r.ErrorMessage
	m.Report = report
	m.StartedAt = r.StartedAt
	m.CompletedAt = r.CompletedAt
	return nil
}

// MigrationRunModelFromDomain creates a persistence model from a domain Run
func MigrationRunModelFromDomain(r *migration.Run) (*MigrationRunModel, error) {
	m := &MigrationRunModel{}
	if err := m.FromDomain(r); err != nil {
		return nil, err
	}
	return m, nil
}
