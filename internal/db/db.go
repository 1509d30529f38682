package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"rental-thermostat-backend/config"
	"rental-thermostat-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig, logger zerolog.Logger) (*gorm.DB, error) {
	logger = logger.With().Str("component", "db").Logger()

	var dialector gorm.Dialector
	switch cfg.Backend {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		dialector = postgres.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	logger.Info().Msg("running database migrations")
	if err := db.AutoMigrate(
		&model.Property{},
		&model.Thermostat{},
		&model.ScheduleRule{},
		&model.TemperatureLog{},
		&model.PushSubscription{},
	); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	if cfg.EnableTimescale {
		logger.Info().Msg("applying TimescaleDB DDL for temperature_logs")
		if err := applyTimescaleDDL(db); err != nil {
			logger.Warn().Err(err).Msg("failed to apply TimescaleDB DDL, continuing without it")
		}
	}

	logger.Info().Str("backend", cfg.Backend).Msg("database initialization complete")
	return db, nil
}

// applyTimescaleDDL turns temperature_logs into a hypertable and adds the
// indexes the reporting queries lean on. Postgres only.
func applyTimescaleDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS timescaledb;",
		"SELECT create_hypertable('temperature_logs', 'recorded_at', if_not_exists => TRUE);",
		"CREATE INDEX IF NOT EXISTS idx_temperature_logs_thermostat_recorded_desc " +
			"ON temperature_logs (thermostat_id, recorded_at DESC);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
