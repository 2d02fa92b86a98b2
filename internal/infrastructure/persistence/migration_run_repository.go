package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/persistence/models"
)

// DefaultRunHistoryLimit bounds FindRecent when the caller passes no limit
const DefaultRunHistoryLimit = 20

// GormRunRepository implements migration.RunRepository using GORM
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

var _ migration.RunRepository = (*GormRunRepository)(nil)

func tenantScope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// Save creates or updates a run
func (r *GormRunRepository) Save(ctx context.Context, run *migration.Run) error {
	model, err := models.MigrationRunModelFromDomain(run)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return fmt.Errorf("failed to save migration run %s: %w", run.ID, err)
	}
	return nil
}

// FindByID finds a run by ID
func (r *GormRunRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*migration.Run, error) {
	var model models.MigrationRunModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, migration.ErrRunNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRecent returns the latest runs of a tenant, newest first
func (r *GormRunRepository) FindRecent(
	ctx context.Context,
	tenantID uuid.UUID,
	filter migration.RunFilter,
	limit int,
) ([]*migration.Run, error) {
	if limit <= 0 {
		limit = DefaultRunHistoryLimit
	}

	query := r.db.WithContext(ctx).Model(&models.MigrationRunModel{}).
		Scopes(tenantScope(tenantID))
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SourcePlatform != "" {
		query = query.Where("source_platform = ?", filter.SourcePlatform)
	}
	if filter.StartedFrom != nil {
		query = query.Where("started_at >= ?", *filter.StartedFrom)
	}

	var runModels []models.MigrationRunModel
	if err := query.Order("created_at DESC").Limit(limit).Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]*migration.Run, len(runModels))
	for i := range runModels {
		runs[i] = runModels[i].ToDomain()
	}
	return runs, nil
}
