package db

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stealth-backend/internal/config"
	"stealth-backend/internal/models"
)

var DB *gorm.DB

// InitDB opens the index database and migrates its schema.
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if cfg.Driver != "" && cfg.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	logrus.Info("🔌 Connecting to index database")
	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		DisableAutomaticPing:                     true,
		PrepareStmt:                              true,
		CreateBatchSize:                          1000,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	logrus.Info("✅ Database connected successfully")

	if err := Migrate(gdb); err != nil {
		return nil, err
	}

	DB = gdb
	return gdb, nil
}

// Migrate creates or updates the index tables.
func Migrate(gdb *gorm.DB) error {
	logrus.Info("🚀 Starting database schema migration with GORM AutoMigrate...")
	if err := gdb.AutoMigrate(
		&models.IntentRecord{},
		&models.ReleaseRecord{},
		&models.BatchRecord{},
		&models.LedgerEventRecord{},
	); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	logrus.Info("✅ Database schema migrated successfully")
	return nil
}
