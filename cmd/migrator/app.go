package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/migrator/internal/infrastructure/config"
	"github.com/erp/migrator/internal/infrastructure/logger"
	"github.com/erp/migrator/internal/infrastructure/persistence"
	"github.com/erp/migrator/internal/infrastructure/telemetry"
)

const serviceVersion = "1.0.0"

// app holds what every command shares: configuration, logger and the
// lazily opened run history database.
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *persistence.Database
}

func newApp(configPath, logLevel string) (*app, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &app{cfg: cfg, log: log.With(zap.String("app", cfg.App.Name))}, nil
}

// database opens the run history database and creates its tables
func (a *app) database(ctx context.Context) (*persistence.Database, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := persistence.NewDatabase(&a.cfg.Database,
		persistence.WithLogger(a.log, logger.MapGormLogLevel(a.cfg.Database.LogLevel)))
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	a.log.Info("Database connected", zap.String("driver", a.cfg.Database.Driver))
	a.db = db
	return db, nil
}

func (a *app) tenantID() (uuid.UUID, error) {
	if a.cfg.Migration.TenantID == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(a.cfg.Migration.TenantID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid migration.tenant_id: %w", err)
	}
	return id, nil
}

func (a *app) telemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:           a.cfg.Telemetry.Enabled,
		CollectorEndpoint: a.cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     a.cfg.Telemetry.SamplingRatio,
		ServiceName:       a.cfg.Telemetry.ServiceName,
		ServiceVersion:    serviceVersion,
		Insecure:          a.cfg.Telemetry.Insecure,
	}
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("Error closing database", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

// shutdownContext bounds cleanup after the command context may have been cancelled
func shutdownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}
