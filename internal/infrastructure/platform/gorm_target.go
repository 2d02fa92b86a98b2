package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/persistence/models"
)

// GormTarget is a staging target system backed by the target_records table.
// Each created record keeps its values as a JSON document; searches narrow
// id and text equality filters in SQL and evaluate every filter against the
// remaining documents.
type GormTarget struct {
	db     *gorm.DB
	logger *zap.Logger
}

// GormTargetOption configures a GormTarget
type GormTargetOption func(*GormTarget)

// WithTargetLogger sets the logger of a GormTarget
func WithTargetLogger(logger *zap.Logger) GormTargetOption {
	return func(t *GormTarget) {
		t.logger = logger
	}
}

// NewGormTarget creates a staging target on db. The target_records table
// must exist (see persistence.Database.AutoMigrate).
func NewGormTarget(db *gorm.DB, opts ...GormTargetOption) *GormTarget {
	t := &GormTarget{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ migration.TargetSystem = (*GormTarget)(nil)

// Create stores values as a new record of model
func (t *GormTarget) Create(ctx context.Context, model string, values migration.TransformedRecord) (migration.TargetID, error) {
	if model == "" {
		return 0, wrapOp("create", model, fmt.Errorf("model is required"))
	}
	if values == nil {
		values = migration.TransformedRecord{}
	}
	doc, err := json.Marshal(values)
	if err != nil {
		return 0, wrapOp("create", model, err)
	}

	row := models.TargetRecordModel{Model: model, Values: string(doc)}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, wrapOp("create", model, err)
	}
	t.logger.Debug("Target record created", zap.String("model", model), zap.Int64("id", row.ID))
	return migration.TargetID(row.ID), nil
}

// Search returns the ids of the records of model matching every filter, in id order
func (t *GormTarget) Search(ctx context.Context, model string, filters []migration.Filter) ([]migration.TargetID, error) {
	rows, err := t.matching(ctx, model, filters)
	if err != nil {
		return nil, err
	}
	ids := make([]migration.TargetID, len(rows))
	for i, row := range rows {
		ids[i] = migration.TargetID(row.ID)
	}
	return ids, nil
}

// SearchRead returns the requested fields of the matching records plus "id".
// An empty fields list returns every stored field.
func (t *GormTarget) SearchRead(ctx context.Context, model string, filters []migration.Filter, fields []string) ([]map[string]any, error) {
	rows, err := t.matching(ctx, model, filters)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		var doc map[string]any
		if err := json.Unmarshal([]byte(row.Values), &doc); err != nil {
			return nil, wrapOp("read", model, err)
		}
		result := map[string]any{"id": migration.TargetID(row.ID)}
		for field, value := range doc {
			if len(fields) == 0 || slices.Contains(fields, field) {
				result[field] = value
			}
		}
		out = append(out, result)
	}
	return out, nil
}

// Count returns the number of stored records of model
func (t *GormTarget) Count(ctx context.Context, model string) (int64, error) {
	var n int64
	err := t.db.WithContext(ctx).Model(&models.TargetRecordModel{}).Where("model = ?", model).Count(&n).Error
	if err != nil {
		return 0, wrapOp("count", model, err)
	}
	return n, nil
}

func (t *GormTarget) matching(ctx context.Context, model string, filters []migration.Filter) ([]models.TargetRecordModel, error) {
	predicates := make([]predicate, len(filters))
	for i, f := range filters {
		p, err := compileFilter(f)
		if err != nil {
			return nil, wrapOp("search", model, err)
		}
		predicates[i] = p
	}

	query := t.db.WithContext(ctx).Where("model = ?", model)
	dialect := t.db.Dialector.Name()
	for _, f := range filters {
		if cond, args, ok := sqlNarrowing(dialect, f); ok {
			query = query.Where(cond, args...)
		}
	}

	var rows []models.TargetRecordModel
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, wrapOp("search", model, err)
	}

	matched := rows[:0]
	for _, row := range rows {
		if matchesAll(predicates, row) {
			matched = append(matched, row)
		}
	}
	return matched, nil
}
