package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/persistence/models"
)

func setupRunTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(models.All()...)
	require.NoError(t, err)

	return db
}

func newTestRun(t *testing.T, tenantID uuid.UUID, source string) *migration.Run {
	t.Helper()
	run, err := migration.NewRun(tenantID, migration.Metadata{
		SourcePlatform: source,
		TargetPlatform: "odoo",
	}, "mapping.json", []string{"Customer"})
	require.NoError(t, err)
	return run
}

func TestGormRunRepository_SaveAndFind(t *testing.T) {
	repo := NewGormRunRepository(setupRunTestDB(t))
	ctx := context.Background()
	tenantID := uuid.New()

	run := newTestRun(t, tenantID, "quickbooks")
	require.NoError(t, repo.Save(ctx, run))

	found, err := repo.FindByID(ctx, tenantID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, migration.RunStatusPending, found.Status)
	assert.Equal(t, []string{"Customer"}, found.EntityTypes)
	assert.Nil(t, found.Report)

	t.Run("updates existing run", func(t *testing.T) {
		require.NoError(t, run.Start())
		report := &migration.Report{
			RunID:      run.ID.String(),
			Status:     migration.ReportCompletedWithErrors,
			Statistics: migration.Statistics{TotalRecords: 3, SuccessfullyMigrated: 2, Failed: 1},
			Validation: migration.NewValidationResult(nil, time.Now()),
		}
		require.NoError(t, run.Complete(report))
		require.NoError(t, repo.Save(ctx, run))

		found, err := repo.FindByID(ctx, tenantID, run.ID)
		require.NoError(t, err)
		assert.Equal(t, migration.RunStatusCompleted, found.Status)
		assert.Equal(t, 1, found.FailedRecords)
		require.NotNil(t, found.Report)
		assert.Equal(t, migration.ReportCompletedWithErrors, found.Report.Status)
		assert.NotNil(t, found.CompletedAt)
	})

	t.Run("other tenant cannot see run", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New(), run.ID)
		assert.True(t, errors.Is(err, migration.ErrRunNotFound))
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, tenantID, uuid.New())
		assert.ErrorIs(t, err, migration.ErrRunNotFound)
	})
}

func TestGormRunRepository_FindRecent(t *testing.T) {
	repo := NewGormRunRepository(setupRunTestDB(t))
	ctx := context.Background()
	tenantID := uuid.New()

	base := time.Now().Add(-time.Hour)
	var ids []uuid.UUID
	for i, source := range []string{"quickbooks", "xero", "quickbooks"} {
		run := newTestRun(t, tenantID, source)
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		run.UpdatedAt = run.CreatedAt
		if i == 2 {
			require.NoError(t, run.Start())
			require.NoError(t, run.Fail(errors.New("source unreachable"), nil))
		}
		require.NoError(t, repo.Save(ctx, run))
		ids = append(ids, run.ID)
	}
	require.NoError(t, repo.Save(ctx, newTestRun(t, uuid.New(), "quickbooks")))

	t.Run("newest first, tenant scoped", func(t *testing.T) {
		runs, err := repo.FindRecent(ctx, tenantID, migration.RunFilter{}, 0)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, ids[2], runs[0].ID)
		assert.Equal(t, ids[0], runs[2].ID)
	})

	t.Run("limit", func(t *testing.T) {
		runs, err := repo.FindRecent(ctx, tenantID, migration.RunFilter{}, 1)
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})

	t.Run("filter by status and platform", func(t *testing.T) {
		failed := migration.RunStatusFailed
		runs, err := repo.FindRecent(ctx, tenantID, migration.RunFilter{Status: &failed}, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "source unreachable", runs[0].ErrorMessage)

		runs, err = repo.FindRecent(ctx, tenantID, migration.RunFilter{SourcePlatform: "xero"}, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, ids[1], runs[0].ID)
	})
}
