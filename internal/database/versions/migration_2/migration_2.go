package migration_2

import (
	"fmt"

	"gorm.io/gorm"
)

type Exchange struct {
	UpstreamKey string `gorm:"default:''"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&Exchange{}, "upstream_key"); err != nil {
		return fmt.Errorf("error adding UpstreamKey column: %w", err)
	}

	if err := db.Model(&Exchange{}).
		Where("upstream_key IS NULL").
		Update("upstream_key", "").Error; err != nil {
		return fmt.Errorf("error setting default value for UpstreamKey: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&Exchange{}, "upstream_key"); err != nil {
		return fmt.Errorf("error dropping UpstreamKey column: %w", err)
	}

	return nil
}
