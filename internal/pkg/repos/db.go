package repos

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ambercms/amber-update/internal/pkg/types"
)

// Open opens the metadata database at the path and migrates the schema.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database at %q: %w", path, err)
	}
	if err := db.AutoMigrate(&types.Backup{}, &types.UpdateRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate metadata schema: %w", err)
	}
	return db, nil
}
