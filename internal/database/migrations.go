package database

import (
	"log/slog"

	"genie-backend/internal/database/versions/migration_0"
	"genie-backend/internal/database/versions/migration_1"
	"genie-backend/internal/database/versions/migration_2"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:      "0",
			Migrate: migration_0.Migration,
		},
		{
			ID:       "1",
			Migrate:  migration_1.Migration,
			Rollback: migration_1.Rollback,
		},
		{
			ID:       "2",
			Migrate:  migration_2.Migration,
			Rollback: migration_2.Rollback,
		},
	})

	migrator.InitSchema(func(txn *gorm.DB) error {
		// A clean database skips the migration chain and gets the latest schema
		// directly.
		slog.Info("clean database detected, running full schema initialization")

		dbType := txn.Dialector.Name()
		if dbType == "sqlite" || dbType == "sqlite3" {
			if err := txn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
				slog.Error("error enabling foreign keys for SQLite", "error", err)
			}
		}

		return txn.AutoMigrate(&Conversation{}, &Exchange{})
	})

	return migrator
}
