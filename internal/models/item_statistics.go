package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemStatistics is the per-item aggregate refreshed after each ingestion
// cycle. Change columns are nil when the window has no usable base price.
type ItemStatistics struct {
	ID             uint64           `gorm:"primaryKey;autoIncrement"`
	ItemID         string           `gorm:"type:text;not null;uniqueIndex"`
	Item           *Item            `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE"`
	CurrentPrice   *decimal.Decimal `gorm:"type:numeric(20,4)"`
	MinPrice30d    *decimal.Decimal `gorm:"type:numeric(20,4)"`
	MaxPrice30d    *decimal.Decimal `gorm:"type:numeric(20,4)"`
	AvgPrice30d    *decimal.Decimal `gorm:"type:numeric(20,4)"`
	PriceChange24h *float64         `gorm:"type:numeric"`
	PriceChange7d  *float64         `gorm:"type:numeric"`
	PriceChange30d *float64         `gorm:"type:numeric"`
	LastUpdated    time.Time        `gorm:"type:timestamptz;not null;index"`
}

func (ItemStatistics) TableName() string {
	return "item_statistics"
}
