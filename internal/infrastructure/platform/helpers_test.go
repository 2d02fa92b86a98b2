package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/persistence/models"
)

func setupTargetDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// MockTargetSystem is a mock implementation of migration.TargetSystem
type MockTargetSystem struct {
	mock.Mock
}

func (m *MockTargetSystem) Create(ctx context.Context, model string, values migration.TransformedRecord) (migration.TargetID, error) {
	args := m.Called(ctx, model, values)
	return args.Get(0).(migration.TargetID), args.Error(1)
}

func (m *MockTargetSystem) Search(ctx context.Context, model string, filters []migration.Filter) ([]migration.TargetID, error) {
	args := m.Called(ctx, model, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]migration.TargetID), args.Error(1)
}

func (m *MockTargetSystem) SearchRead(ctx context.Context, model string, filters []migration.Filter, fields []string) ([]map[string]any, error) {
	args := m.Called(ctx, model, filters, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

// MockSourceExtractor is a mock implementation of migration.SourceExtractor
type MockSourceExtractor struct {
	mock.Mock
}

func (m *MockSourceExtractor) ExtractAll(ctx context.Context) (migration.ExtractedData, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(migration.ExtractedData), args.Error(1)
}
