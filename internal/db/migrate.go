package db

import (
	"itemwatch/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Item{},
		&models.PricePoint{},
		&models.ItemStatistics{},
		&models.PortfolioEntry{},
		&models.PortfolioStatistics{},
		&models.AlertState{},
		&models.AlertEvent{},
	)
}
