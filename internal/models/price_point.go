package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one observed market price for an item. Rows are append-only;
// the (item_id, timestamp) pair is the idempotency key for ingestion, so a
// re-fetch of the same instant overwrites rather than duplicates.
type PricePoint struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement"`
	ItemID    string          `gorm:"type:text;not null;index;uniqueIndex:idx_price_item_ts,priority:1"`
	Item      *Item           `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE"`
	Price     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Currency  string          `gorm:"type:varchar(10);not null;default:'RUB'"`
	Timestamp time.Time       `gorm:"type:timestamptz;not null;index;uniqueIndex:idx_price_item_ts,priority:2"`
}

func (PricePoint) TableName() string {
	return "price_points"
}
