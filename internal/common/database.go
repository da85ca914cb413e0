package common

import (
	"fmt"

	"github.com/lgulliver/docdesk/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM database connection
type Database struct {
	*gorm.DB
	Driver string
}

// NewDatabase opens the history database for the configured driver. The
// sqlite DSN is used as-is; postgres falls back to the database settings when
// no DSN is configured.
func NewDatabase(history *config.HistoryConfig, db *config.DatabaseConfig) (*Database, error) {
	var dialector gorm.Dialector
	switch history.Driver {
	case "sqlite":
		dialector = sqlite.Open(history.DSN)
	case "postgres":
		dsn := history.DSN
		if dsn == "" {
			dsn = db.DatabaseURL()
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported history driver: %s", history.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{DB: gdb, Driver: history.Driver}, nil
}

// Migrate runs database migrations for the given models
func (db *Database) Migrate(models ...interface{}) error {
	return db.AutoMigrate(models...)
}

// Close closes the database connection
func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
