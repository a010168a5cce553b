package db

import (
	"fmt"

	"github.com/zulandar/quill/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Work{},
		&models.Unit{},
		&models.Character{},
		&models.WorldRule{},
		&models.EstablishedFact{},
		&models.PlotThread{},
		&models.Checkpoint{},
		&models.StoryState{},
		&models.RunRecord{},
		&models.GenerationLog{},
		&models.RunLease{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// DropAll drops every table. Used by `quill db reset` on file and
// postgres databases where dropping the whole database is not an option.
func DropAll(db *gorm.DB) error {
	m := AllModels()
	for i := len(m) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(m[i]); err != nil {
			return fmt.Errorf("db: drop table: %w", err)
		}
	}
	return nil
}
