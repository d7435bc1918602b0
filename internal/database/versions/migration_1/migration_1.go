package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type Exchange struct {
	LatencyMs int64 `gorm:"default:0"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&Exchange{}, "latency_ms"); err != nil {
		return fmt.Errorf("error adding LatencyMs column: %w", err)
	}

	if err := db.Model(&Exchange{}).
		Where("latency_ms IS NULL").
		Update("latency_ms", 0).Error; err != nil {
		return fmt.Errorf("error setting default value for LatencyMs: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&Exchange{}, "latency_ms"); err != nil {
		return fmt.Errorf("error dropping LatencyMs column: %w", err)
	}

	return nil
}
