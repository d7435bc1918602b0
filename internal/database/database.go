package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens postgres for postgres:// urls and sqlite for anything else,
// then brings the schema up to date.
func NewDatabase(databaseURL string) (*gorm.DB, error) {
	isPostgres := strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")

	var dialector gorm.Dialector
	if isPostgres {
		dialector = postgres.Open(databaseURL)
	} else {
		dialector = sqlite.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	if !isPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("unable to get sql db: %w", err)
		}
		// In-memory sqlite databases are per connection.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := GetMigrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("unable to migrate database: %w", err)
	}

	slog.Info("database ready", "dialect", db.Dialector.Name())
	return db, nil
}

func OpenSQLite(dir string) (*gorm.DB, error) {
	path := filepath.Join(dir, "db", "genie.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("unable to create database directory: %w", err)
	}
	return NewDatabase(path)
}
