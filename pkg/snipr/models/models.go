package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: Link must be migrated before Click for the foreign key to resolve
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Link{},
		&Click{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
