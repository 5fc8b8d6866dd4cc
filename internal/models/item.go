package models

import (
	"time"
)

// Item is one tradable catalog entry. Identity is immutable; items are
// registered once and never auto-deleted.
type Item struct {
	ID        string    `gorm:"primaryKey;type:text"`
	Name      string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	MarketURL *string   `gorm:"type:text"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Item) TableName() string {
	return "items"
}
